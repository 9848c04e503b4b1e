package cell

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AarC10/ubxlib-dev/at"
)

// RadioParameters holds the latest decoded network quality metrics for one
// device instance. Fields carrying physical quantities use 0 as the
// "unknown" sentinel (valid readings are always negative); the identifier
// fields use -1.
//
// The record is reset to all-unknown at the start of every refresh cycle, so
// a partially successful refresh never silently mixes stale and fresh
// values: fields a decoder did not reach simply read back as unknown.
type RadioParameters struct {
	// RssiDbm is the received signal strength in dBm, or 0 when unknown.
	RssiDbm int `json:"rssi_dbm"`
	// RsrpDbm is the reference signal received power in dBm within
	// [-141, -44], or 0 when unknown.
	RsrpDbm int `json:"rsrp_dbm"`
	// RsrqDb is the reference signal received quality in dB within
	// [-19, -3], or 0 when unknown.
	RsrqDb int `json:"rsrq_db"`
	// RxQual is the quality index, or -1 when unknown.
	RxQual int `json:"rx_qual"`
	// CellID is the physical/serving cell identifier, or -1 when unknown.
	CellID int `json:"cell_id"`
	// Earfcn is the E-UTRA channel number, or -1 when unknown.
	Earfcn int `json:"earfcn"`
}

// reset puts every field back to its unknown sentinel.
func (r *RadioParameters) reset() {
	r.RssiDbm = 0
	r.RsrpDbm = 0
	r.RsrqDb = 0
	r.RxQual = -1
	r.CellID = -1
	r.Earfcn = -1
}

// decodeCsq fills in the radio parameters the AT+CSQ way. The reply is
// "+CSQ: <rssi>,<ber>"; the signal index maps through the fixed RSSI table
// and a quality index of 99 means unknown.
func decodeCsq(ctx context.Context, client *at.Client, p *RadioParameters) error {
	lines, err := client.Command(ctx, at.CmdSignalQuality)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAT, err)
	}
	line, ok := at.ResponseLine(lines, at.PrefixCSQ)
	if !ok {
		return fmt.Errorf("%w: no +CSQ reply", ErrAT)
	}

	fields := at.Fields(line)
	if len(fields) > 0 {
		if x, err := strconv.Atoi(fields[0]); err == nil && x >= 0 && x < len(csqRssiDbm) {
			p.RssiDbm = csqRssiDbm[x]
		}
	}
	if len(fields) > 1 {
		if y, err := strconv.Atoi(fields[1]); err == nil {
			if y == 99 {
				y = -1
			}
			p.RxQual = y
		}
	}
	return nil
}

// decodeUcged2 fills in the radio parameters the AT+UCGED? mode 2 way.
// The reply is three lines:
//
//	+UCGED: 2
//	<rat>,<svc>,<MCC>,<MNC>
//	<earfcn>,<Lband>,<ul_BW>,<dl_BW>,<tac>,<LcellId>,<PCID>,<mTmsi>,<mmeGrId>,<mmeCode>,<rsrp>,<rsrq>,...
//
// e.g.
//
//	+UCGED: 2
//	6,4,001,01
//	2525,5,50,50,e8fe,1a2d001,1,d60814d1,8001,01,28,31,13.75,3,1,10,28,-50,-6,0,255,255,0
//
// RSRP and RSRQ follow the <mmeCode> element, coded as specified in TS 36.133.
func decodeUcged2(ctx context.Context, client *at.Client, p *RadioParameters) error {
	lines, err := client.Command(ctx, at.CmdRadioInfo)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAT, err)
	}

	// The data line is two lines past the "+UCGED: 2" header, the line
	// in between carries <rat>,<svc>,<MCC>,<MNC> which is not wanted.
	data := ""
	for i, line := range lines {
		if strings.HasPrefix(line, at.PrefixUCGED) && i+2 < len(lines) {
			data = lines[i+2]
			break
		}
	}
	if data == "" {
		return fmt.Errorf("%w: no +UCGED mode 2 reply", ErrAT)
	}

	fields := at.Fields(data)
	setInt := func(idx int, dst *int) {
		if idx < len(fields) {
			if v, err := strconv.Atoi(fields[idx]); err == nil {
				*dst = v
			}
		}
	}

	// EARFCN first; <Lband>, <ul_BW>, <dl_BW>, <tac> and <LcellId> are
	// skipped on the way to <PCID>; <mTmsi>, <mmeGrId> and <mmeCode> on
	// the way to the coded RSRP and RSRQ.
	setInt(0, &p.Earfcn)
	setInt(6, &p.CellID)
	if 10 < len(fields) {
		if v, err := strconv.Atoi(fields[10]); err == nil {
			p.RsrpDbm = rsrpToDbm(v)
		}
	}
	if 11 < len(fields) {
		if v, err := strconv.Atoi(fields[11]); err == nil {
			p.RsrqDb = rsrqToDb(v)
		}
	}
	return nil
}

// decodeUcged5 fills in the radio parameters the AT+UCGED? mode 5 way.
// The reply is two labeled lines carrying floating point readings:
//
//	+RSRP: <cellId>,<earfcn>,"<rsrp dBm>"
//	+RSRQ: <cellId>,<earfcn>,"<rsrq dB>"
//
// The readings are rounded half away from zero to the nearest integer.
func decodeUcged5(ctx context.Context, client *at.Client, p *RadioParameters) error {
	lines, err := client.Command(ctx, at.CmdRadioInfo)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAT, err)
	}

	if line, ok := at.ResponseLine(lines, at.PrefixRSRP); ok {
		fields := at.Fields(line)
		if len(fields) > 0 {
			if v, err := strconv.Atoi(fields[0]); err == nil {
				p.CellID = v
			}
		}
		if len(fields) > 1 {
			if v, err := strconv.Atoi(fields[1]); err == nil {
				p.Earfcn = v
			}
		}
		if len(fields) > 2 {
			if v, err := strconv.ParseFloat(fields[2], 64); err == nil {
				p.RsrpDbm = roundHalfAway(v)
			}
		}
	}
	if line, ok := at.ResponseLine(lines, at.PrefixRSRQ); ok {
		// Cell ID and EARFCN repeat what the +RSRP line already carried.
		fields := at.Fields(line)
		if len(fields) > 2 {
			if v, err := strconv.ParseFloat(fields[2], 64); err == nil {
				p.RsrqDb = roundHalfAway(v)
			}
		}
	}
	return nil
}

func roundHalfAway(v float64) int {
	if v >= 0 {
		return int(v + 0.5)
	}
	return int(v - 0.5)
}

// RefreshRadioParameters re-reads the radio parameters of the instance
// identified by handle from the module.
//
// The record is first reset to all-unknown. AT+CSQ is always attempted as it
// works across all module families; depending on the module type an extended
// AT+UCGED? query follows after a short settling delay, and its result
// supersedes the CSQ result code. Partial successes surface the last
// decoder's error even though earlier fields may already be populated: best
// effort, last error wins.
//
// The subsystem mutex is held for the entire refresh, settling delay
// included. Refreshes are expected to be infrequent, polled operations.
func (c *Context) RefreshRadioParameters(ctx context.Context, handle int) error {
	if c == nil {
		return ErrNotInitialized
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	inst := c.instance(handle)
	if inst == nil {
		return ErrInvalidParameter
	}

	inst.radio.reset()
	if !inst.registered {
		return ErrNotRegistered
	}

	// The mechanisms to get the radio information differ between EUTRAN
	// and GERAN but AT+CSQ works in all cases, though it sometimes doesn't
	// return a reading. Collect what we can with it. AT+UCGED is used for
	// the rest rather than AT+CESQ as it is more reliable in reporting
	// answers.
	err := decodeCsq(ctx, inst.client, &inst.radio)

	switch inst.config.Module.radioStrategy() {
	case strategyUcged2:
		// Allow a little settling time here, don't want to overtask the
		// module if this is being called repeatedly.
		sleepCtx(ctx, inst.config.UcgedSettleTime)
		err = decodeUcged2(ctx, inst.client, &inst.radio)
	case strategyUcged5:
		sleepCtx(ctx, inst.config.UcgedSettleTime)
		// Mode 5 only works in EUTRAN; on any other RAT the CSQ baseline
		// is all there is and that counts as success.
		if inst.rat.IsEutran() {
			err = decodeUcged5(ctx, inst.client, &inst.radio)
		} else {
			err = nil
		}
	}

	if err == nil {
		c.logger.Debug("radio parameters refreshed",
			"handle", handle,
			"rssi_dbm", inst.radio.RssiDbm,
			"rsrp_dbm", inst.radio.RsrpDbm,
			"rsrq_db", inst.radio.RsrqDb,
			"rx_qual", inst.radio.RxQual,
			"cell_id", inst.radio.CellID,
			"earfcn", inst.radio.Earfcn)
	} else {
		c.logger.Warn("unable to refresh radio parameters", "handle", handle, "error", err)
	}
	return err
}

// RadioParameters returns a copy of the stored record for the instance.
func (c *Context) RadioParameters(handle int) (RadioParameters, error) {
	if c == nil {
		return RadioParameters{}, ErrNotInitialized
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	inst := c.instance(handle)
	if inst == nil {
		return RadioParameters{}, ErrInvalidParameter
	}
	return inst.radio, nil
}

// sleepCtx blocks for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
