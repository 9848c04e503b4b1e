package cell

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AarC10/ubxlib-dev/at"
)

// scriptedTransport answers each written AT command with a canned reply,
// popping from a per-command list so retries can observe different replies.
// The last reply of a list is repeated once the list is exhausted. Commands
// without a script entry get a bare OK.
//
// readChan is never closed; Read and the channel sends select on done
// instead, so a blocked sender can neither deadlock Close nor panic on a
// closed channel.
type scriptedTransport struct {
	mu       sync.Mutex
	readChan chan []byte
	done     chan struct{}
	replies  map[string][]string
	writes   []string
	closed   bool
}

func newScriptedTransport(replies map[string][]string) *scriptedTransport {
	return &scriptedTransport{
		readChan: make(chan []byte, 10),
		done:     make(chan struct{}),
		replies:  replies,
	}
}

func (t *scriptedTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	cmd := strings.TrimSuffix(string(p), "\r")
	t.writes = append(t.writes, cmd)

	reply := at.OK + at.CRLF
	if list, ok := t.replies[cmd]; ok && len(list) > 0 {
		reply = list[0]
		if len(list) > 1 {
			t.replies[cmd] = list[1:]
		}
	}
	t.mu.Unlock()

	select {
	case t.readChan <- []byte(reply):
	case <-t.done:
	}
	return len(p), nil
}

func (t *scriptedTransport) Read(p []byte) (int, error) {
	select {
	case data := <-t.readChan:
		return copy(p, data), nil
	case <-t.done:
		return 0, io.EOF
	}
}

func (t *scriptedTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	return nil
}

// send queues an unsolicited line for the reader, as if the module had
// emitted it on its own.
func (t *scriptedTransport) send(line string) {
	select {
	case t.readChan <- []byte(line):
	case <-t.done:
	}
}

func (t *scriptedTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.writes))
	copy(out, t.writes)
	return out
}

func (t *scriptedTransport) wrote(cmd string) bool {
	for _, w := range t.Writes() {
		if w == cmd {
			return true
		}
	}
	return false
}

// newTestInstance wires a ready-made instance straight into the context,
// bypassing Add's dial and bring-up sequence.
func newTestInstance(t *testing.T, c *Context, module ModuleType, transport *scriptedTransport) *Instance {
	t.Helper()

	client := at.NewClient(transport, at.WithTimeout(2*time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := client.Loop(ctx); err != nil && err != context.Canceled && err != io.EOF {
			t.Errorf("client loop error: %v", err)
		}
	}()
	t.Cleanup(cancel)

	inst := &Instance{
		config: Config{
			Module:          module,
			ATTimeout:       2 * time.Second,
			UcgedSettleTime: time.Millisecond,
		},
		client:     client,
		cancel:     cancel,
		registered: true,
		rat:        RatLte,
	}
	c.mu.Lock()
	c.nextHandle++
	inst.handle = c.nextHandle
	c.instances[inst.handle] = inst
	c.mu.Unlock()
	return inst
}

const ucged2Reply = "+UCGED: 2\r\n" +
	"6,4,001,01\r\n" +
	"2525,5,50,50,e8fe,1a2d001,1,d60814d1,8001,01,28,31,13.75,3,1,10,28,-50,-6,0,255,255,0\r\n" +
	"OK\r\n"

const ucged5Reply = "+RSRP: 162,5110,\"-075.40\",\r\n" +
	"+RSRQ: 162,5110,\"-15.10\",\r\n" +
	"OK\r\n"

func TestRefreshRadioParameters(t *testing.T) {
	t.Run("Unknown handle", func(t *testing.T) {
		c := NewContext(nil)
		if err := c.RefreshRadioParameters(context.Background(), 42); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("expected ErrInvalidParameter, got: %v", err)
		}
	})

	t.Run("Nil context object", func(t *testing.T) {
		var c *Context
		if err := c.RefreshRadioParameters(context.Background(), 1); !errors.Is(err, ErrNotInitialized) {
			t.Errorf("expected ErrNotInitialized, got: %v", err)
		}
	})

	t.Run("Not registered leaves all fields unknown", func(t *testing.T) {
		c := NewContext(nil)
		transport := newScriptedTransport(nil)
		inst := newTestInstance(t, c, ModuleSaraR5, transport)
		inst.registered = false
		inst.radio = RadioParameters{RssiDbm: -80, RsrpDbm: -100, RsrqDb: -10, RxQual: 3, CellID: 7, Earfcn: 2525}

		err := c.RefreshRadioParameters(context.Background(), inst.handle)
		if !errors.Is(err, ErrNotRegistered) {
			t.Fatalf("expected ErrNotRegistered, got: %v", err)
		}

		want := RadioParameters{RxQual: -1, CellID: -1, Earfcn: -1}
		if inst.radio != want {
			t.Errorf("expected all-unknown record, got %+v", inst.radio)
		}
		if len(transport.Writes()) != 0 {
			t.Errorf("expected no AT traffic, got %q", transport.Writes())
		}
	})

	t.Run("Family A runs CSQ then UCGED mode 2", func(t *testing.T) {
		c := NewContext(nil)
		transport := newScriptedTransport(map[string][]string{
			at.CmdSignalQuality: {"+CSQ: 15,99\r\nOK\r\n"},
			at.CmdRadioInfo:     {ucged2Reply},
		})
		inst := newTestInstance(t, c, ModuleSaraR5, transport)

		if err := c.RefreshRadioParameters(context.Background(), inst.handle); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := RadioParameters{
			RssiDbm: -80,  // CSQ index 15
			RsrpDbm: -113, // code 28
			RsrqDb:  -5,   // code 31
			RxQual:  -1,   // 99 remaps to unknown
			CellID:  1,
			Earfcn:  2525,
		}
		if inst.radio != want {
			t.Errorf("got %+v, want %+v", inst.radio, want)
		}

		writes := transport.Writes()
		if len(writes) != 2 || writes[0] != at.CmdSignalQuality || writes[1] != at.CmdRadioInfo {
			t.Errorf("unexpected command sequence: %q", writes)
		}
	})

	t.Run("Family A UCGED failure supersedes CSQ success", func(t *testing.T) {
		c := NewContext(nil)
		transport := newScriptedTransport(map[string][]string{
			at.CmdSignalQuality: {"+CSQ: 15,99\r\nOK\r\n"},
			at.CmdRadioInfo:     {at.ERROR + at.CRLF},
		})
		inst := newTestInstance(t, c, ModuleSaraR5, transport)

		err := c.RefreshRadioParameters(context.Background(), inst.handle)
		if !errors.Is(err, ErrAT) {
			t.Fatalf("expected ErrAT, got: %v", err)
		}
		// Best effort: the CSQ fields survive the extended query failure
		if inst.radio.RssiDbm != -80 {
			t.Errorf("expected RSSI -80 from CSQ, got %d", inst.radio.RssiDbm)
		}
		if inst.radio.RsrpDbm != 0 || inst.radio.RsrqDb != 0 {
			t.Errorf("expected RSRP/RSRQ unknown, got %d/%d", inst.radio.RsrpDbm, inst.radio.RsrqDb)
		}
	})

	t.Run("Family B on EUTRAN runs UCGED mode 5", func(t *testing.T) {
		c := NewContext(nil)
		transport := newScriptedTransport(map[string][]string{
			at.CmdSignalQuality: {"+CSQ: 3,4\r\nOK\r\n"},
			at.CmdRadioInfo:     {ucged5Reply},
		})
		inst := newTestInstance(t, c, ModuleSaraR410M02B, transport)

		if err := c.RefreshRadioParameters(context.Background(), inst.handle); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := RadioParameters{
			RssiDbm: -110, // CSQ index 3
			RsrpDbm: -75,  // "-075.40" rounded
			RsrqDb:  -15,  // "-15.10" rounded
			RxQual:  4,
			CellID:  162,
			Earfcn:  5110,
		}
		if inst.radio != want {
			t.Errorf("got %+v, want %+v", inst.radio, want)
		}
	})

	t.Run("Family B off EUTRAN succeeds with CSQ only", func(t *testing.T) {
		c := NewContext(nil)
		transport := newScriptedTransport(map[string][]string{
			at.CmdSignalQuality: {"+CSQ: 31,0\r\nOK\r\n"},
		})
		inst := newTestInstance(t, c, ModuleSaraR412M03B, transport)
		inst.rat = RatGsm

		if err := c.RefreshRadioParameters(context.Background(), inst.handle); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if inst.radio.RssiDbm != -48 || inst.radio.RxQual != 0 {
			t.Errorf("unexpected CSQ decode: %+v", inst.radio)
		}
		if transport.wrote(at.CmdRadioInfo) {
			t.Error("AT+UCGED? must not be issued outside EUTRAN")
		}
	})

	t.Run("CSQ unknown index leaves RSSI unset", func(t *testing.T) {
		c := NewContext(nil)
		transport := newScriptedTransport(map[string][]string{
			at.CmdSignalQuality: {"+CSQ: 99,99\r\nOK\r\n"},
		})
		inst := newTestInstance(t, c, ModuleSaraU201, transport)

		if err := c.RefreshRadioParameters(context.Background(), inst.handle); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if inst.radio.RssiDbm != 0 {
			t.Errorf("expected RSSI to stay unknown, got %d", inst.radio.RssiDbm)
		}
		if inst.radio.RxQual != -1 {
			t.Errorf("expected RxQual unknown, got %d", inst.radio.RxQual)
		}
	})

	t.Run("Malformed field is skipped without aborting", func(t *testing.T) {
		c := NewContext(nil)
		transport := newScriptedTransport(map[string][]string{
			at.CmdSignalQuality: {"+CSQ: banana,4\r\nOK\r\n"},
		})
		inst := newTestInstance(t, c, ModuleSaraU201, transport)

		if err := c.RefreshRadioParameters(context.Background(), inst.handle); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if inst.radio.RssiDbm != 0 {
			t.Errorf("expected RSSI unknown, got %d", inst.radio.RssiDbm)
		}
		if inst.radio.RxQual != 4 {
			t.Errorf("expected RxQual 4, got %d", inst.radio.RxQual)
		}
	})
}

func TestRadioParametersCopy(t *testing.T) {
	c := NewContext(nil)
	transport := newScriptedTransport(nil)
	inst := newTestInstance(t, c, ModuleSaraR5, transport)
	inst.radio = RadioParameters{RssiDbm: -70, RsrpDbm: -90, RsrqDb: -10, RxQual: 2, CellID: 5, Earfcn: 100}

	got, err := c.RadioParameters(inst.handle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != inst.radio {
		t.Errorf("got %+v, want %+v", got, inst.radio)
	}

	if _, err := c.RadioParameters(999); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got: %v", err)
	}
}
