package record

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// State is the lifecycle position of a Call.
type State int32

const (
	StateIdle State = iota
	StatePrepared
	StateExecuting
	StateConverted
	StateFailed
)

var stateNames = [...]string{"idle", "prepared", "executing", "converted", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Guard is the caller-owned exclusivity around typed values. It is held
// during Prepare and Convert and released for exactly the Execute phase of a
// blocking call.
type Guard interface {
	Release()
	Reacquire()
}

// LockGuard adapts a sync.Locker the caller holds while calling into a Table.
func LockGuard(l sync.Locker) Guard { return lockGuard{l: l} }

type lockGuard struct{ l sync.Locker }

func (g lockGuard) Release()   { g.l.Unlock() }
func (g lockGuard) Reacquire() { g.l.Lock() }

type nopGuard struct{}

func (nopGuard) Release()   {}
func (nopGuard) Reacquire() {}

// Call runs one logical request through Prepare, Execute and Convert.
// Prepare and Convert touch caller values and never block; Execute only sees
// encoded requests and is the single phase that performs I/O.
//
// A Call that reached StateFailed is finished; callers re-prepare with a new
// Call instead of resuming.
type Call[T any] struct {
	state    atomic.Int32
	executed atomic.Bool
	err      error

	prepare func() error
	execute func(ctx context.Context) error
	convert func() (T, error)
}

// NewCall assembles a Call from its three phases.
func NewCall[T any](prepare func() error, execute func(ctx context.Context) error, convert func() (T, error)) *Call[T] {
	return &Call[T]{prepare: prepare, execute: execute, convert: convert}
}

// State returns the current state.
func (c *Call[T]) State() State { return State(c.state.Load()) }

// Prepare moves Idle to Prepared.
func (c *Call[T]) Prepare() error {
	if err := c.expect(StateIdle); err != nil {
		return err
	}
	if err := c.prepare(); err != nil {
		return c.fail(err)
	}
	c.state.Store(int32(StatePrepared))
	return nil
}

// Execute moves Prepared to Executing and performs the network call(s).
func (c *Call[T]) Execute(ctx context.Context) error {
	if err := c.expect(StatePrepared); err != nil {
		return err
	}
	c.state.Store(int32(StateExecuting))
	if err := c.execute(ctx); err != nil {
		return c.fail(err)
	}
	c.executed.Store(true)
	return nil
}

// Convert decodes the response and moves Executing to Converted. A partial
// batch failure still converts; the error is returned alongside the value.
func (c *Call[T]) Convert() (T, error) {
	var zero T
	if err := c.expect(StateExecuting); err != nil {
		return zero, err
	}
	if !c.executed.Load() {
		return zero, NewError("convert before execute finished", WithCode(CodeInvalidState))
	}
	v, err := c.convert()
	if err != nil {
		var partial *PartialBatchError
		if !errors.As(err, &partial) {
			return v, c.fail(err)
		}
	}
	c.state.Store(int32(StateConverted))
	return v, err
}

// Do is the blocking surface: the guard is released while Execute waits on
// the network and reacquired before Convert.
func (c *Call[T]) Do(ctx context.Context, guard Guard) (T, error) {
	var zero T
	if guard == nil {
		guard = nopGuard{}
	}
	if err := c.Prepare(); err != nil {
		return zero, err
	}
	if err := c.unguarded(ctx, guard); err != nil {
		return zero, err
	}
	return c.Convert()
}

func (c *Call[T]) unguarded(ctx context.Context, guard Guard) error {
	guard.Release()
	defer guard.Reacquire()
	return c.Execute(ctx)
}

func (c *Call[T]) expect(want State) error {
	got := c.State()
	if got == want {
		return nil
	}
	if got == StateFailed {
		return NewError("call already failed", WithCode(CodeInvalidState), WithCause(c.err))
	}
	return NewError(fmt.Sprintf("call is %s, want %s", got, want), WithCode(CodeInvalidState))
}

func (c *Call[T]) fail(err error) error {
	c.err = err
	c.state.Store(int32(StateFailed))
	return err
}
