package cell

// csqRssiDbm converts the LTE RSSI number from AT+CSQ into a dBm value
// rounded up to the nearest whole number.
var csqRssiDbm = [...]int{
	-118, -115, -113, -110, -108, -105, -103, -100, // 0 - 7
	-98, -95, -93, -90, -88, -85, -83, -80, // 8 - 15
	-78, -76, -74, -73, -71, -69, -68, -65, // 16 - 23
	-63, -61, -60, -59, -58, -55, -53, -48, // 24 - 31
}

// rsrpToDbm converts RSRP in TS 36.133 format to dBm.
// Returns 0 if the number is not known.
// 0: -141 dBm or less,
// 1..96: from -140 dBm to -45 dBm with 1 dBm steps,
// 97: -44 dBm or greater,
// 255: not known or not detectable.
func rsrpToDbm(rsrp int) int {
	rsrpDbm := 0

	if rsrp >= 0 && rsrp <= 97 {
		rsrpDbm = rsrp - (97 + 44)
		if rsrpDbm < -141 {
			rsrpDbm = -141
		}
	}

	return rsrpDbm
}

// rsrqToDb converts RSRQ in TS 36.133 format to dB.
// Returns 0 if the number is not known.
// 0: less than -19.5 dB
// 1..33: from -19.5 dB to -3.5 dB with 0.5 dB steps
// 34: -3 dB or greater
// 255: not known or not detectable.
func rsrqToDb(rsrq int) int {
	rsrqDb := 0

	if rsrq >= 0 && rsrq <= 34 {
		d := rsrq - (34 + 6)
		rsrqDb = d / 2
		if d%2 != 0 {
			// Integer division truncates toward zero; d is negative
			// here and the scale wants the floor.
			rsrqDb--
		}
		if rsrqDb < -19 {
			rsrqDb = -19
		}
	}

	return rsrqDb
}
