package cell

// ModuleType identifies the cellular module variant attached to an instance.
// The variant decides which extended radio information command the module
// understands.
type ModuleType int

const (
	ModuleSaraU201 ModuleType = iota
	ModuleSaraR410M02B
	ModuleSaraR412M02B
	ModuleSaraR412M03B
	ModuleSaraR5
)

func (m ModuleType) String() string {
	switch m {
	case ModuleSaraU201:
		return "SARA-U201"
	case ModuleSaraR410M02B:
		return "SARA-R410M-02B"
	case ModuleSaraR412M02B:
		return "SARA-R412M-02B"
	case ModuleSaraR412M03B:
		return "SARA-R412M-03B"
	case ModuleSaraR5:
		return "SARA-R5"
	default:
		return "unknown"
	}
}

// ParseModuleType maps a module name, as configured or as reported by
// AT+CGMM, to its ModuleType. The second return value reports whether the
// name was recognized.
func ParseModuleType(name string) (ModuleType, bool) {
	switch name {
	case "SARA-U201":
		return ModuleSaraU201, true
	case "SARA-R410M-02B":
		return ModuleSaraR410M02B, true
	case "SARA-R412M-02B":
		return ModuleSaraR412M02B, true
	case "SARA-R412M-03B":
		return ModuleSaraR412M03B, true
	case "SARA-R5":
		return ModuleSaraR5, true
	}
	return 0, false
}

// decodeStrategy selects how extended radio parameters are obtained after
// the universal AT+CSQ baseline.
type decodeStrategy int

const (
	// strategyCsqOnly: the module has no usable extended query.
	strategyCsqOnly decodeStrategy = iota
	// strategyUcged2: AT+UCGED? in mode 2 (SARA-R5 family).
	strategyUcged2
	// strategyUcged5: AT+UCGED? in mode 5 (SARA-R4 family, EUTRAN only).
	strategyUcged5
)

// radioStrategy returns the extended decode strategy for the module type.
func (m ModuleType) radioStrategy() decodeStrategy {
	switch m {
	case ModuleSaraR5:
		return strategyUcged2
	case ModuleSaraR410M02B, ModuleSaraR412M02B, ModuleSaraR412M03B:
		return strategyUcged5
	default:
		return strategyCsqOnly
	}
}

// Rat is a radio access technology as reported in the <AcT> field of the
// +CREG/+CEREG replies.
type Rat int

const (
	RatUnknown Rat = iota
	RatGsm
	RatGprs
	RatUtran
	RatLte
	RatCatM1
	RatNB1
)

func (r Rat) String() string {
	switch r {
	case RatGsm:
		return "GSM"
	case RatGprs:
		return "GPRS"
	case RatUtran:
		return "UTRAN"
	case RatLte:
		return "LTE"
	case RatCatM1:
		return "LTE Cat M1"
	case RatNB1:
		return "NB-IoT"
	default:
		return "unknown"
	}
}

// IsEutran reports whether the RAT belongs to the EUTRAN family. The mode 5
// extended query only works on these.
func (r Rat) IsEutran() bool {
	switch r {
	case RatLte, RatCatM1, RatNB1:
		return true
	}
	return false
}

// ratFromAct maps the 3GPP <AcT> value of a registration reply to a Rat.
func ratFromAct(act int) Rat {
	switch act {
	case 0, 1:
		return RatGsm
	case 3:
		return RatGprs
	case 2, 4, 5, 6:
		return RatUtran
	case 7:
		return RatLte
	case 8:
		return RatCatM1
	case 9:
		return RatNB1
	default:
		return RatUnknown
	}
}
