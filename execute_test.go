package record

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingGuard struct {
	events []string
}

func (g *recordingGuard) Release()   { g.events = append(g.events, "release") }
func (g *recordingGuard) Reacquire() { g.events = append(g.events, "reacquire") }

func TestCall_Phases(t *testing.T) {
	var order []string
	guard := &recordingGuard{}
	call := NewCall(
		func() error { order = append(order, "prepare"); return nil },
		func(context.Context) error {
			order = append(order, "execute")
			assert.Equal(t, []string{"release"}, guard.events)
			return nil
		},
		func() (int, error) { order = append(order, "convert"); return 7, nil },
	)
	assert.Equal(t, StateIdle, call.State())

	v, err := call.Do(bg(), guard)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, []string{"prepare", "execute", "convert"}, order)
	assert.Equal(t, []string{"release", "reacquire"}, guard.events)
	assert.Equal(t, StateConverted, call.State())
}

func TestCall_PrepareFailureSkipsIO(t *testing.T) {
	executed := false
	guard := &recordingGuard{}
	call := NewCall(
		func() error { return NewError("bad", WithCode(CodeTypeMismatch)) },
		func(context.Context) error { executed = true; return nil },
		func() (int, error) { return 0, nil },
	)
	_, err := call.Do(bg(), guard)
	requireCode(t, err, CodeTypeMismatch)
	assert.False(t, executed)
	assert.Empty(t, guard.events)
	assert.Equal(t, StateFailed, call.State())
}

func TestCall_NotResumable(t *testing.T) {
	call := NewCall(
		func() error { return nil },
		func(context.Context) error { return errors.New("network down") },
		func() (int, error) { return 0, nil },
	)
	_, err := call.Do(bg(), nil)
	require.EqualError(t, err, "network down")
	assert.Equal(t, StateFailed, call.State())

	err = call.Prepare()
	e := requireCode(t, err, CodeInvalidState)
	assert.EqualError(t, e.Cause, "network down")

	_, err = call.Convert()
	requireCode(t, err, CodeInvalidState)
}

func TestCall_OutOfOrder(t *testing.T) {
	call := NewCall(func() error { return nil }, func(context.Context) error { return nil },
		func() (int, error) { return 1, nil })
	requireCode(t, call.Execute(bg()), CodeInvalidState)
	_, err := call.Convert()
	requireCode(t, err, CodeInvalidState)
	// still usable
	v, err := call.Do(bg(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestCall_PartialBatchStillConverts(t *testing.T) {
	call := NewCall(func() error { return nil }, func(context.Context) error { return nil },
		func() (string, error) { return "partial", &PartialBatchError{Unprocessed: []int{2}} })
	v, err := call.Do(bg(), nil)
	assert.Equal(t, "partial", v)
	assert.ErrorIs(t, err, ErrPartialBatchFailure)
	assert.Equal(t, StateConverted, call.State())
}

// A blocking call releases the guard so other goroutines can use the guarded
// values while it waits on the network.
func TestCall_GuardReleasedDuringExecute(t *testing.T) {
	var mu sync.Mutex
	entered := make(chan struct{})
	proceed := make(chan struct{})
	call := NewCall(
		func() error { return nil },
		func(context.Context) error {
			close(entered)
			<-proceed
			return nil
		},
		func() (int, error) { return 1, nil },
	)

	mu.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := call.Do(bg(), LockGuard(&mu))
		assert.NoError(t, err)
		mu.Unlock()
	}()
	<-entered

	acquired := make(chan struct{})
	go func() {
		mu.Lock()
		close(acquired)
		mu.Unlock()
	}()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("guard was held during execute")
	}
	close(proceed)
	<-done
}

func TestFuture_Await(t *testing.T) {
	call := NewCall(func() error { return nil }, func(context.Context) error { return nil },
		func() (string, error) { return "ok", nil })
	f := call.Start(bg())
	v, err := f.Await(bg())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, StateConverted, f.State())

	// a second await returns the same outcome
	v, err = f.Await(bg())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestFuture_PrepareErrorSurfacesOnAwait(t *testing.T) {
	call := NewCall(func() error { return NewError("nope", WithCode(CodeUnknownAttribute)) },
		func(context.Context) error { return nil }, func() (int, error) { return 0, nil })
	f := call.Start(bg())
	<-f.Done()
	_, err := f.Await(bg())
	requireCode(t, err, CodeUnknownAttribute)
}

func TestFuture_AbandonCancelsTransport(t *testing.T) {
	cancelled := make(chan struct{})
	call := NewCall(
		func() error { return nil },
		func(ctx context.Context) error {
			<-ctx.Done()
			close(cancelled)
			return ctx.Err()
		},
		func() (int, error) { return 1, nil },
	)
	f := call.Start(bg())

	ctx, cancel := context.WithTimeout(bg(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("transport context was not cancelled")
	}
	<-f.Done()
	assert.Equal(t, StateFailed, f.State())
}
