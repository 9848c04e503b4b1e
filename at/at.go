package at

const (
	// Terminal Control
	CRLF = "\r\n"

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// Commands
	CmdAT              = "AT"
	CmdEchoOff         = "ATE0"
	CmdVerboseErrors   = "AT+CMEE=2"
	CmdSignalQuality   = "AT+CSQ"
	CmdRadioInfo       = "AT+UCGED?"
	CmdIMEI            = "AT+CGSN"
	CmdIMSI            = "AT+CIMI"
	CmdICCID           = "AT+CCID"
	CmdManufacturer    = "AT+CGMI"
	CmdModel           = "AT+CGMM"
	CmdFirmwareVersion = "AT+CGMR"
	CmdClock           = "AT+CCLK?"
	CmdEpsRegQuery     = "AT+CEREG?"
	CmdEpsRegUrcOn     = "AT+CEREG=2"
	CmdRegQuery        = "AT+CREG?"

	// Response prefixes
	PrefixCSQ   = "+CSQ:"
	PrefixUCGED = "+UCGED:"
	PrefixRSRP  = "+RSRP:"
	PrefixRSRQ  = "+RSRQ:"
	PrefixCCID  = "+CCID:"
	PrefixCCLK  = "+CCLK:"
	PrefixCEREG = "+CEREG:"
	PrefixCREG  = "+CREG:"
)

type ResponseType int

const (
	// TypeFinal is a final result code (OK, ERROR, +CME ERROR and friends).
	TypeFinal ResponseType = iota
	// TypeURC is an asynchronous notification.
	TypeURC
	// TypeData is intermediate command output (+CSQ: ... and the like).
	TypeData
)
