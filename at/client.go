package at

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrClosed is returned when an operation is attempted on a Client that
	// has already been closed.
	ErrClosed = errors.New("at: client closed")

	// ErrLoopRunning is returned when Loop is called while a previous Loop
	// invocation is still active.
	ErrLoopRunning = errors.New("at: loop already running")
)

// Client drives the AT command protocol over an established, bidirectional
// byte stream to a cellular module. It provides thread-safe command execution
// through a centralized event loop that handles all transport I/O.
type Client struct {
	// transport provides the physical connection to the module (serial, TCP, etc.)
	transport io.ReadWriteCloser
	// timeout is the default timeout for AT command responses
	timeout time.Duration
	// closed indicates if the client has been shut down
	closed bool
	// loopRunning indicates if the Loop is currently running
	loopRunning bool

	// urcChan receives Unsolicited Result Codes from the module
	urcChan chan string
	// commands queues AT command requests for the Loop to process
	commands chan *commandRequest
}

// commandRequest represents an AT command request to be executed by the Loop.
type commandRequest struct {
	// cmd is the AT command string to send to the module
	cmd string
	// respChan receives the command response from the Loop
	respChan chan commandResponse
	// ctx provides timeout and cancellation control for the command
	ctx context.Context
}

// commandResponse contains the result of an AT command execution.
type commandResponse struct {
	// lines contains the intermediate response lines from the module
	lines []string
	// err contains any error that occurred during command execution
	err error
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the default per-command response timeout. It applies
// whenever the context passed to Command carries no deadline of its own.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// NewClient creates a Client over the given transport. The transport is
// assumed to be already connected. Loop must be started before Command
// can be used.
func NewClient(transport io.ReadWriteCloser, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		timeout:   5 * time.Second,
		urcChan:   make(chan string, 100), // Buffered to prevent blocking on URCs
		// No queue for commands
		commands: make(chan *commandRequest),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Loop is the main event loop that handles all transport I/O operations.
// It must be called exactly once after NewClient and before any Command call.
// The Loop coordinates all communication with the module:
//
// 1. Processes command requests from Command() calls
// 2. Writes AT commands to the transport
// 3. Reads and parses response lines from the transport
// 4. Dispatches URCs (Unsolicited Result Codes) to subscribers
// 5. Returns command responses to waiting Command() calls
//
// The Loop runs until the provided context is cancelled. It's the ONLY
// goroutine that reads from the transport, preventing race conditions and
// ensuring URCs are never lost.
func (c *Client) Loop(ctx context.Context) error {
	if c.loopRunning {
		return ErrLoopRunning
	}
	c.loopRunning = true
	defer func() {
		c.loopRunning = false
	}()
	scanner := bufio.NewScanner(c.transport)
	scanner.Split(Splitter)

	// Channels for tokens and errors from the scanner goroutine
	tokens := make(chan string, 10)
	scanErrs := make(chan error, 1)

	go func() {
		defer close(tokens)
		for scanner.Scan() {
			token := scanner.Text()
			if token != "" {
				select {
				case tokens <- token:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case scanErrs <- err:
			case <-ctx.Done():
			}
		}
	}()

	// Current command being processed
	var currentCmd *commandRequest
	var currentLines []string

	for {
		select {
		case <-ctx.Done():
			if currentCmd != nil {
				currentCmd.respChan <- commandResponse{err: ctx.Err()}
			}
			return ctx.Err()

		case req := <-c.commands:
			currentCmd = req
			currentLines = nil

			wire := strings.TrimSpace(req.cmd) + "\r"
			if _, err := c.transport.Write([]byte(wire)); err != nil {
				req.respChan <- commandResponse{err: fmt.Errorf("write command %q: %w", req.cmd, err)}
				currentCmd = nil
				continue
			}

		case token, ok := <-tokens:
			if !ok {
				// Token channel closed - scanner stopped
				if currentCmd != nil {
					currentCmd.respChan <- commandResponse{lines: currentLines, err: io.EOF}
					currentCmd = nil
					currentLines = nil
				}
				return io.EOF
			}

			switch Classify(token) {
			case TypeURC:
				// Registration lines classify as URCs but are also the body
				// of the AT+CEREG?/AT+CREG? read replies, so while a command
				// is in flight they belong to its response.
				if currentCmd != nil {
					currentLines = append(currentLines, token)
					break
				}
				select {
				case c.urcChan <- token:
				default:
					// URC channel is full - drop the URC
				}

			case TypeFinal:
				if currentCmd != nil {
					if token == OK {
						currentCmd.respChan <- commandResponse{lines: currentLines}
					} else {
						currentCmd.respChan <- commandResponse{lines: currentLines, err: errors.New(token)}
					}
					currentCmd = nil
					currentLines = nil
				}
				// If no current command, ignore the final response (orphaned)

			case TypeData:
				if currentCmd != nil {
					currentLines = append(currentLines, token)
				}
				// If no current command, ignore the data (orphaned)
			}

			// Check if current command has timed out
			if currentCmd != nil {
				select {
				case <-currentCmd.ctx.Done():
					currentCmd.respChan <- commandResponse{err: fmt.Errorf("command timeout: %w", currentCmd.ctx.Err())}
					currentCmd = nil
					currentLines = nil
				default:
				}
			}

		case err := <-scanErrs:
			if currentCmd != nil {
				currentCmd.respChan <- commandResponse{err: fmt.Errorf("read error: %w", err)}
				currentCmd = nil
				currentLines = nil
			}
			return fmt.Errorf("scanner error: %w", err)
		}
	}
}

// Command sends an AT command to the module and waits for its final result
// code, returning the intermediate response lines. The Loop must be running.
func (c *Client) Command(ctx context.Context, cmd string) ([]string, error) {
	if c.closed {
		return nil, ErrClosed
	}

	// Apply per-command timeout if context has none
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := &commandRequest{
		cmd:      cmd,
		respChan: make(chan commandResponse, 1), // Buffered to prevent blocking
		ctx:      ctx,
	}

	select {
	case c.commands <- req:
	case <-ctx.Done():
		return nil, fmt.Errorf("command cancelled before sending: %w", ctx.Err())
	}

	select {
	case resp := <-req.respChan:
		return resp.lines, resp.err
	case <-ctx.Done():
		return nil, fmt.Errorf("command timeout: %w", ctx.Err())
	}
}

// URC returns a read-only channel that receives Unsolicited Result Codes.
// These are asynchronous notifications from the module (network registration
// changes and the like). The channel is buffered, but may drop some URC if
// not consumed fast enough.
func (c *Client) URC() <-chan string {
	return c.urcChan
}

// Close shuts down the client and closes the transport connection. After
// calling Close, the client cannot be reused.
func (c *Client) Close() error {
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	return c.transport.Close()
}
