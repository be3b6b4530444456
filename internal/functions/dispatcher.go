package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"voice-bridge/pkg/logger"
)

const (
	DefaultTimeout = 10 * time.Second
	// MaxOutputBytes caps what is fed back to the model.
	MaxOutputBytes = 4096

	genericFailure = "Sorry, that action could not be completed right now."
)

// Result is what goes back to the model as function_call_output.
type Result struct {
	Output   string
	Err      error
	TimedOut bool
	Duration time.Duration
}

// Dispatcher executes registry tools with a bounded run time.
type Dispatcher struct {
	registry       *Registry
	defaultTimeout time.Duration
}

func NewDispatcher(reg *Registry, defaultTimeout time.Duration) *Dispatcher {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	return &Dispatcher{registry: reg, defaultTimeout: defaultTimeout}
}

func (d *Dispatcher) Registry() *Registry { return d.registry }

// WithTools returns a dispatcher over the registry extended with extra.
// Skipped tools are logged at ERROR by the caller's logger.
func (d *Dispatcher) WithTools(ctx context.Context, extra ...Tool) *Dispatcher {
	if len(extra) == 0 {
		return d
	}
	reg, skipped := d.registry.With(extra...)
	for _, err := range skipped {
		logger.From(ctx).Error("custom tool rejected", "err", err)
	}
	return &Dispatcher{registry: reg, defaultTimeout: d.defaultTimeout}
}

// Dispatch runs name with args. It never blocks longer than the tool timeout:
// the handler runs in its own goroutine and is abandoned (its context canceled)
// at the deadline.
func (d *Dispatcher) Dispatch(ctx context.Context, call CallContext, name string, args json.RawMessage) Result {
	start := time.Now()
	t, ok := d.registry.Lookup(name)
	if !ok {
		return Result{
			Output:   fmt.Sprintf("Unknown function %q. Available functions: %s.", name, strings.Join(d.registry.sortedNames(), ", ")),
			Err:      fmt.Errorf("%w: %s", ErrUnknownFunction, name),
			Duration: time.Since(start),
		}
	}
	if len(args) == 0 || !json.Valid(args) {
		args = json.RawMessage(`{}`)
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("functions: %s panicked: %v", name, p)}
			}
		}()
		out, err := t.Handler(hctx, call, args)
		done <- outcome{out: out, err: err}
	}()

	failure := t.FailureMessage
	if failure == "" {
		failure = genericFailure
	}

	select {
	case o := <-done:
		r := Result{Duration: time.Since(start)}
		if o.err != nil {
			r.Err = o.err
			r.Output = failure
			return r
		}
		r.Output = Truncate(o.out, MaxOutputBytes)
		return r
	case <-hctx.Done():
		err := hctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("functions: %s timed out after %s: %w", name, timeout, err)
		}
		return Result{Output: failure, Err: err, TimedOut: true, Duration: time.Since(start)}
	}
}

// Truncate cuts s to at most max bytes on a rune boundary.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
