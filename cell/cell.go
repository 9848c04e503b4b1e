// Package cell implements a driver for u-blox SARA cellular modules. It
// issues AT commands over a serial transport, decodes the module dependent
// reply formats and exposes normalized, typed network quality metrics.
package cell

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/AarC10/ubxlib-dev/at"
)

// Context owns the cellular subsystem: the table of device instances and the
// single mutex guarding it. Every public operation locks the mutex for its
// entire duration, so refreshes and accessors are mutually exclusive across
// the whole subsystem and a reader can never observe a partially updated
// radio parameter record.
type Context struct {
	mu     sync.Mutex
	logger *slog.Logger

	nextHandle int
	instances  map[int]*Instance
}

// Instance is one attached cellular module: its AT client, static module
// metadata and the latest decoded radio parameters.
type Instance struct {
	handle    int
	config    Config
	transport Transport
	client    *at.Client
	cancel    context.CancelFunc

	// registered and rat track the network attachment state, fed by the
	// +CEREG/+CREG replies and URCs.
	registered bool
	rat        Rat

	radio RadioParameters
}

// NewContext creates an empty cellular subsystem context. The logger may be
// nil, in which case slog.Default() is used.
func NewContext(logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		logger:    logger,
		instances: make(map[int]*Instance),
	}
}

// Add brings up a cellular module instance: it dials the transport, starts
// the AT client loop, runs the probe sequence (echo off, verbose errors,
// registration URCs) and seeds the registration state. It returns an opaque
// integer handle identifying the instance in all other operations.
func (c *Context) Add(ctx context.Context, config Config) (int, error) {
	if c == nil {
		return 0, ErrNotInitialized
	}
	if err := config.validate(); err != nil {
		return 0, err
	}
	config.setDefaults()

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return 0, err
	}

	client := at.NewClient(transport, at.WithTimeout(config.ATTimeout))
	loopCtx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := client.Loop(loopCtx); err != nil && err != context.Canceled && err != io.EOF {
			c.logger.Error("AT client loop stopped", "error", err)
		}
	}()

	inst := &Instance{
		config:    config,
		transport: transport,
		client:    client,
		cancel:    cancel,
	}

	initCtx := ctx
	if config.InitTimeout > 0 {
		var initCancel context.CancelFunc
		initCtx, initCancel = context.WithTimeout(ctx, config.InitTimeout)
		defer initCancel()
	}

	if err := inst.init(initCtx); err != nil {
		cancel()
		client.Close()
		return 0, fmt.Errorf("initialize module: %w", err)
	}

	c.mu.Lock()
	c.nextHandle++
	inst.handle = c.nextHandle
	c.instances[inst.handle] = inst
	// Snapshot the seeded state here: once the watcher goroutine starts it
	// owns these fields and they may only be read under the mutex.
	handle := inst.handle
	registered, rat := inst.registered, inst.rat
	c.mu.Unlock()

	go c.watchRegistration(loopCtx, inst)

	c.logger.Info("cellular instance added",
		"handle", handle,
		"module", config.Module.String(),
		"registered", registered,
		"rat", rat.String())

	return handle, nil
}

// Remove tears down the instance identified by handle, stopping its AT
// client loop and closing the transport.
func (c *Context) Remove(handle int) error {
	if c == nil {
		return ErrNotInitialized
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	inst, ok := c.instances[handle]
	if !ok {
		return ErrInvalidParameter
	}
	delete(c.instances, handle)
	inst.cancel()
	return inst.client.Close()
}

// Close removes every instance. The context cannot be reused afterwards.
func (c *Context) Close() error {
	if c == nil {
		return ErrNotInitialized
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for handle, inst := range c.instances {
		delete(c.instances, handle)
		inst.cancel()
		if err := inst.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// instance looks up a handle. Callers must hold c.mu.
func (c *Context) instance(handle int) *Instance {
	return c.instances[handle]
}

// init runs the bring-up sequence on a fresh instance.
func (i *Instance) init(ctx context.Context) error {
	// Wake-up / sanity check
	if _, err := i.client.Command(ctx, at.CmdAT); err != nil {
		return fmt.Errorf("module not responding: %w", err)
	}

	if _, err := i.client.Command(ctx, at.CmdEchoOff); err != nil {
		return fmt.Errorf("could not disable echo: %w", err)
	}

	if _, err := i.client.Command(ctx, at.CmdVerboseErrors); err != nil {
		return fmt.Errorf("could not enable verbose errors: %w", err)
	}

	// Ask for registration URCs, then seed the registration state from an
	// explicit read. Some module states reject CEREG configuration, a
	// failure here is not fatal.
	i.client.Command(ctx, at.CmdEpsRegUrcOn)

	lines, err := i.client.Command(ctx, at.CmdEpsRegQuery)
	if err != nil {
		return fmt.Errorf("query registration: %w", err)
	}
	if line, ok := at.ResponseLine(lines, at.PrefixCEREG); ok {
		i.registered, i.rat = parseRegistration(line, true)
	}
	if !i.registered {
		// Fall back to the circuit-switched registration state for the
		// 2G/3G capable variants.
		if lines, err := i.client.Command(ctx, at.CmdRegQuery); err == nil {
			if line, ok := at.ResponseLine(lines, at.PrefixCREG); ok {
				i.registered, i.rat = parseRegistration(line, true)
			}
		}
	}

	return nil
}

// watchRegistration consumes URCs from the instance's AT client and keeps
// the registration state current.
func (c *Context) watchRegistration(ctx context.Context, inst *Instance) {
	for {
		select {
		case <-ctx.Done():
			return
		case urc, ok := <-inst.client.URC():
			if !ok {
				return
			}
			var line string
			switch {
			case strings.HasPrefix(urc, at.PrefixCEREG):
				line = strings.TrimSpace(strings.TrimPrefix(urc, at.PrefixCEREG))
			case strings.HasPrefix(urc, at.PrefixCREG):
				line = strings.TrimSpace(strings.TrimPrefix(urc, at.PrefixCREG))
			default:
				continue
			}
			registered, rat := parseRegistration(line, false)
			c.mu.Lock()
			inst.registered = registered
			if rat != RatUnknown {
				inst.rat = rat
			}
			c.mu.Unlock()
			c.logger.Debug("registration state changed",
				"handle", inst.handle,
				"registered", registered,
				"rat", rat.String())
		}
	}
}

// parseRegistration decodes the body of a +CEREG/+CREG line. The read reply
// carries a leading <n> mode parameter which the unsolicited form omits:
//
//	reply: <n>,<stat>[,<tac>,<ci>[,<AcT>]]
//	URC:   <stat>[,<tac>,<ci>[,<AcT>]]
//
// Registered means <stat> is 1 (home network) or 5 (roaming).
func parseRegistration(line string, reply bool) (bool, Rat) {
	fields := at.Fields(line)
	statIdx := 0
	if reply {
		statIdx = 1
	}
	if len(fields) <= statIdx {
		return false, RatUnknown
	}

	stat, err := strconv.Atoi(fields[statIdx])
	if err != nil {
		return false, RatUnknown
	}
	registered := stat == 1 || stat == 5

	rat := RatUnknown
	if actIdx := statIdx + 3; registered && len(fields) > actIdx {
		if act, err := strconv.Atoi(fields[actIdx]); err == nil {
			rat = ratFromAct(act)
		}
	}
	return registered, rat
}
