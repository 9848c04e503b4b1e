package cell

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/AarC10/ubxlib-dev/at"
)

type scriptedDialer struct {
	transport Transport
}

func (d scriptedDialer) Dial(ctx context.Context) (Transport, error) {
	return d.transport, nil
}

func TestAdd(t *testing.T) {
	t.Run("Bring-up sequence and registration seeding", func(t *testing.T) {
		c := NewContext(nil)
		transport := newScriptedTransport(map[string][]string{
			at.CmdEpsRegQuery: {"+CEREG: 0,1,\"e8fe\",\"1a2d001\",7\r\nOK\r\n"},
		})

		config, err := NewConfigBuilder().
			WithDialer(scriptedDialer{transport}).
			WithModule(ModuleSaraR5).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		handle, err := c.Add(context.Background(), config)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer c.Remove(handle)

		for _, cmd := range []string{at.CmdAT, at.CmdEchoOff, at.CmdVerboseErrors, at.CmdEpsRegUrcOn, at.CmdEpsRegQuery} {
			if !transport.wrote(cmd) {
				t.Errorf("bring-up did not issue %s", cmd)
			}
		}

		c.mu.Lock()
		inst := c.instance(handle)
		registered, rat := inst.registered, inst.rat
		c.mu.Unlock()
		if !registered {
			t.Error("expected instance to be registered")
		}
		if rat != RatLte {
			t.Errorf("expected LTE RAT, got %v", rat)
		}
	})

	t.Run("Registration URC right after bring-up", func(t *testing.T) {
		c := NewContext(nil)
		transport := newScriptedTransport(map[string][]string{
			at.CmdEpsRegQuery: {"+CEREG: 0,1,\"e8fe\",\"1a2d001\",7\r\nOK\r\n"},
		})

		config, err := NewConfigBuilder().
			WithDialer(scriptedDialer{transport}).
			WithModule(ModuleSaraR5).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		handle, err := c.Add(context.Background(), config)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer c.Remove(handle)

		// Deregistration notification lands while Add's caller is still
		// looking at the fresh instance.
		transport.send("+CEREG: 0" + at.CRLF)

		deadline := time.Now().Add(time.Second)
		for {
			c.mu.Lock()
			registered := c.instance(handle).registered
			c.mu.Unlock()
			if !registered {
				break
			}
			if time.Now().After(deadline) {
				t.Fatal("registration state not updated from URC")
			}
			time.Sleep(time.Millisecond)
		}
	})

	t.Run("Unregistered module falls back to CREG and refresh refuses", func(t *testing.T) {
		c := NewContext(nil)
		transport := newScriptedTransport(map[string][]string{
			at.CmdEpsRegQuery: {"+CEREG: 0,0\r\nOK\r\n"},
			at.CmdRegQuery:    {"+CREG: 0,2\r\nOK\r\n"},
		})

		config, err := NewConfigBuilder().
			WithDialer(scriptedDialer{transport}).
			WithModule(ModuleSaraR410M02B).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		handle, err := c.Add(context.Background(), config)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer c.Remove(handle)

		if err := c.RefreshRadioParameters(context.Background(), handle); !errors.Is(err, ErrNotRegistered) {
			t.Errorf("expected ErrNotRegistered, got: %v", err)
		}
	})

	t.Run("Dialer error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDialer := NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, errors.New("connection failed"))

		c := NewContext(nil)
		config, err := NewConfigBuilder().
			WithDialer(mockDialer).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		if _, err := c.Add(context.Background(), config); err == nil {
			t.Error("expected error from dialer failure")
		}
	})

	t.Run("No dialer", func(t *testing.T) {
		c := NewContext(nil)
		if _, err := c.Add(context.Background(), Config{}); !errors.Is(err, ErrNoDialer) {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})
}

func TestRemove(t *testing.T) {
	c := NewContext(nil)
	transport := newScriptedTransport(nil)
	inst := newTestInstance(t, c, ModuleSaraR5, transport)

	if err := c.Remove(inst.handle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Remove(inst.handle); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter on double remove, got: %v", err)
	}
	if _, err := c.RssiDbm(inst.handle); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected accessors to fail after remove, got: %v", err)
	}
}

func TestParseRegistration(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		reply      bool
		registered bool
		rat        Rat
	}{
		{"Reply registered home with AcT", `0,1,"e8fe","1a2d001",7`, true, true, RatLte},
		{"Reply registered roaming", "0,5", true, true, RatUnknown},
		{"Reply searching", "0,2", true, false, RatUnknown},
		{"Reply denied", "0,3", true, false, RatUnknown},
		{"URC registered", "1", false, true, RatUnknown},
		{"URC registered with AcT", `1,"e8fe","1a2d001",9`, false, true, RatNB1},
		{"URC deregistered", "0", false, false, RatUnknown},
		{"Garbage", "banana", false, false, RatUnknown},
		{"Empty", "", true, false, RatUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			registered, rat := parseRegistration(tc.line, tc.reply)
			if registered != tc.registered {
				t.Errorf("registered = %v, want %v", registered, tc.registered)
			}
			if rat != tc.rat {
				t.Errorf("rat = %v, want %v", rat, tc.rat)
			}
		})
	}
}

func TestConfigBuilder(t *testing.T) {
	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		_, err := NewConfigBuilder().Build()

		if err != ErrNoDialer {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})

	t.Run("Defaults applied", func(t *testing.T) {
		config, err := NewConfigBuilder().
			WithDialer(scriptedDialer{}).
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.ATTimeout == 0 || config.InitTimeout == 0 || config.UcgedSettleTime == 0 {
			t.Errorf("expected defaults to be applied, got %+v", config)
		}
	})
}

func TestParseModuleType(t *testing.T) {
	for _, m := range []ModuleType{ModuleSaraU201, ModuleSaraR410M02B, ModuleSaraR412M02B, ModuleSaraR412M03B, ModuleSaraR5} {
		got, ok := ParseModuleType(m.String())
		if !ok || got != m {
			t.Errorf("ParseModuleType(%q) = %v, %v", m.String(), got, ok)
		}
	}
	if _, ok := ParseModuleType("LARA-R6"); ok {
		t.Error("expected unknown module name to be rejected")
	}
}
