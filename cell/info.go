package cell

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/AarC10/ubxlib-dev/at"
)

const (
	// imeiSize is the exact digit count of an IMEI reply.
	imeiSize = 15
	// imsiSize is the exact digit count of an IMSI reply.
	imsiSize = 15
	// identityRetries bounds the AT+CGSN/AT+CIMI retry loop.
	identityRetries = 10
)

// snrCeiling is reported when RSSI equals RSRP: all received power is
// reference signal, the interference floor sits at the noise level.
const snrCeiling = math.MaxInt32

// radioField returns one stored radio parameter field under the subsystem
// lock.
func (c *Context) radioField(handle int, field func(*RadioParameters) int) (int, error) {
	if c == nil {
		return 0, ErrNotInitialized
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	inst := c.instance(handle)
	if inst == nil {
		return 0, ErrInvalidParameter
	}
	return field(&inst.radio), nil
}

// RssiDbm returns the stored RSSI in dBm. A value of 0 means no reading is
// available; valid readings are negative. Note that 0 therefore cannot be
// told apart from a refresh that never produced an RSSI.
func (c *Context) RssiDbm(handle int) (int, error) {
	return c.radioField(handle, func(r *RadioParameters) int { return r.RssiDbm })
}

// RsrpDbm returns the stored RSRP in dBm, 0 when unknown. Valid readings
// are within [-141, -44].
func (c *Context) RsrpDbm(handle int) (int, error) {
	return c.radioField(handle, func(r *RadioParameters) int { return r.RsrpDbm })
}

// RsrqDb returns the stored RSRQ in dB, 0 when unknown. Valid readings are
// within [-19, -3].
func (c *Context) RsrqDb(handle int) (int, error) {
	return c.radioField(handle, func(r *RadioParameters) int { return r.RsrqDb })
}

// RxQual returns the stored quality index, -1 when unknown.
func (c *Context) RxQual(handle int) (int, error) {
	return c.radioField(handle, func(r *RadioParameters) int { return r.RxQual })
}

// CellID returns the stored serving cell identifier, -1 when unknown.
func (c *Context) CellID(handle int) (int, error) {
	return c.radioField(handle, func(r *RadioParameters) int { return r.CellID })
}

// Earfcn returns the stored E-UTRA channel number, -1 when unknown.
func (c *Context) Earfcn(handle int) (int, error) {
	return c.radioField(handle, func(r *RadioParameters) int { return r.Earfcn })
}

// SnrDb derives the SNR in dB from the stored RSSI and RSRP:
//
//	SNR = 10 * log10(rsrp / (rssi - rsrp))
//
// with rssi and rsrp converted from dBm to linear first. When RSSI and RSRP
// are equal (and known), the SNR is reported as the ceiling value. When
// either input is unknown the call fails with ErrInvalidParameter; when the
// denominator would not be positive it fails with ErrValueOutOfRange.
func (c *Context) SnrDb(handle int) (int, error) {
	if c == nil {
		return 0, ErrNotInitialized
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	inst := c.instance(handle)
	if inst == nil {
		return 0, ErrInvalidParameter
	}

	rssiDbm := inst.radio.RssiDbm
	rsrpDbm := inst.radio.RsrpDbm
	if rssiDbm != 0 && rssiDbm == rsrpDbm {
		return snrCeiling, nil
	}
	if rssiDbm == 0 || rsrpDbm == 0 {
		return 0, ErrInvalidParameter
	}
	if rssiDbm < rsrpDbm {
		// RSSI below RSRP gives a non-positive denominator.
		return 0, ErrValueOutOfRange
	}

	rssi := math.Pow(10.0, float64(rssiDbm)/10)
	rsrp := math.Pow(10.0, float64(rsrpDbm)/10)
	snrDb := 10 * math.Log10(rsrp/(rssi-rsrp))
	return int(snrDb), nil
}

// identity runs cmd under the subsystem lock and accepts only a raw reply
// of exactly size numeric characters. As the reply carries no prefix, a URC
// can collide with it undetectably, so it is retried a fixed number of
// times before giving up with an AT error.
func (c *Context) identity(ctx context.Context, handle int, cmd string, size int) (string, error) {
	if c == nil {
		return "", ErrNotInitialized
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	inst := c.instance(handle)
	if inst == nil {
		return "", ErrInvalidParameter
	}

	for try := 0; try < identityRetries; try++ {
		lines, err := inst.client.Command(ctx, cmd)
		if err != nil || len(lines) == 0 {
			continue
		}
		s := lines[0]
		if len(s) == size && isNumeric(s) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: no valid %s reply after %d attempts", ErrAT, cmd, identityRetries)
}

// IMEI reads the module's IMEI with AT+CGSN.
func (c *Context) IMEI(ctx context.Context, handle int) (string, error) {
	return c.identity(ctx, handle, at.CmdIMEI, imeiSize)
}

// IMSI reads the IMSI of the SIM with AT+CIMI.
func (c *Context) IMSI(ctx context.Context, handle int) (string, error) {
	return c.identity(ctx, handle, at.CmdIMSI, imsiSize)
}

// ICCID reads the ICCID string of the SIM with AT+CCID.
func (c *Context) ICCID(ctx context.Context, handle int) (string, error) {
	if c == nil {
		return "", ErrNotInitialized
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	inst := c.instance(handle)
	if inst == nil {
		return "", ErrInvalidParameter
	}

	lines, err := inst.client.Command(ctx, at.CmdICCID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAT, err)
	}
	s, ok := at.ResponseLine(lines, at.PrefixCCID)
	if !ok {
		return "", fmt.Errorf("%w: no +CCID reply", ErrAT)
	}
	return s, nil
}

// idString runs an identification command whose reply is a single raw line.
func (c *Context) idString(ctx context.Context, handle int, cmd string) (string, error) {
	if c == nil {
		return "", ErrNotInitialized
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	inst := c.instance(handle)
	if inst == nil {
		return "", ErrInvalidParameter
	}

	lines, err := inst.client.Command(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAT, err)
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("%w: empty %s reply", ErrAT, cmd)
	}
	return lines[0], nil
}

// Manufacturer reads the manufacturer identification with AT+CGMI.
func (c *Context) Manufacturer(ctx context.Context, handle int) (string, error) {
	return c.idString(ctx, handle, at.CmdManufacturer)
}

// Model reads the model identification with AT+CGMM.
func (c *Context) Model(ctx context.Context, handle int) (string, error) {
	return c.idString(ctx, handle, at.CmdModel)
}

// FirmwareVersion reads the firmware version with AT+CGMR.
func (c *Context) FirmwareVersion(ctx context.Context, handle int) (string, error) {
	return c.idString(ctx, handle, at.CmdFirmwareVersion)
}

// TimeUTC reads the module clock with AT+CCLK?. The reply format is
// "yy/MM/dd,hh:mm:ss+TZ" where the two-digit year is offset by 2000 and the
// timezone, expressed in 15 minute intervals, may be omitted. When a
// timezone is present it is subtracted to get UTC.
func (c *Context) TimeUTC(ctx context.Context, handle int) (time.Time, error) {
	if c == nil {
		return time.Time{}, ErrNotInitialized
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	inst := c.instance(handle)
	if inst == nil {
		return time.Time{}, ErrInvalidParameter
	}

	lines, err := inst.client.Command(ctx, at.CmdClock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrAT, err)
	}
	line, ok := at.ResponseLine(lines, at.PrefixCCLK)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: no +CCLK reply", ErrAT)
	}
	s := unquote(line)
	if len(s) < 17 {
		return time.Time{}, fmt.Errorf("%w: short time string %q", ErrAT, s)
	}

	t, err := parseModuleTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrUnknown, err)
	}
	c.logger.Debug("module UTC time read", "handle", handle, "time", t)
	return t, nil
}

// parseModuleTime decodes the fixed-offset "yy/MM/dd,hh:mm:ss[+-TZ]" layout.
// The timezone digits sit at bytes 18-19 when present.
func parseModuleTime(s string) (time.Time, error) {
	var fields [6]int
	for i, span := range [6][2]int{{0, 2}, {3, 5}, {6, 8}, {9, 11}, {12, 14}, {15, 17}} {
		v, err := strconv.Atoi(s[span[0]:span[1]])
		if err != nil {
			return time.Time{}, fmt.Errorf("parse time string %q: %w", s, err)
		}
		fields[i] = v
	}
	if fields[1] < 1 || fields[1] > 12 || fields[2] < 1 || fields[2] > 31 {
		return time.Time{}, fmt.Errorf("parse time string %q: bad date", s)
	}

	t := time.Date(2000+fields[0], time.Month(fields[1]), fields[2],
		fields[3], fields[4], fields[5], 0, time.UTC)
	if len(s) >= 20 {
		tz, err := strconv.Atoi(s[18:20])
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timezone of %q: %w", s, err)
		}
		t = t.Add(-time.Duration(tz) * 15 * time.Minute)
	}
	return t, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
