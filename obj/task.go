package obj

import (
	"context"
	"encoding/json"
	"sync"
)

// Task is the pending result of a model operation. It is resolved with the model for fetch and
// save, with a boolean for delete, or rejected with an error.
//
// Operations that request the data source return before the request finished. The response is
// applied to the model by the goroutine owning it when it calls Wait on the task or Settle on
// the model. Until then the model stays busy and ignores further fetch, save and delete events.
type Task struct {
	ctx  context.Context
	done chan struct{}
	once sync.Once
	val  interface{}
	err  error

	// reply is closed when the data source request returned raw and rerr.
	reply  chan struct{}
	raw    json.RawMessage
	rerr   error
	finish func(json.RawMessage, error)
	fin    sync.Once
}

func newTask(ctx context.Context) *Task {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Task{ctx: ctx, done: make(chan struct{})}
}

func (t *Task) resolve(v interface{}) {
	t.once.Do(func() {
		t.val = v
		close(t.done)
	})
}

func (t *Task) reject(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

func (t *Task) settled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// start calls req on a new goroutine and notes finish to apply its result.
func (t *Task) start(req func(context.Context) (json.RawMessage, error), finish func(json.RawMessage, error)) {
	t.reply = make(chan struct{})
	t.finish = finish
	go func() {
		t.raw, t.rerr = req(t.ctx)
		close(t.reply)
	}()
}

// apply calls the finish function with the request result once.
func (t *Task) apply() {
	t.fin.Do(func() { t.finish(t.raw, t.rerr) })
}

// Context returns the context the task was started with.
func (t *Task) Context() context.Context { return t.ctx }

// Pending reports whether the task waits for a data source request.
func (t *Task) Pending() bool {
	if t.reply == nil {
		return false
	}
	select {
	case <-t.reply:
		return false
	default:
		return true
	}
}

// Done returns a channel that is closed when the task is settled.
func (t *Task) Done() <-chan struct{} { return t.done }

// Value returns the result of a settled task or nil.
func (t *Task) Value() interface{} {
	if !t.settled() {
		return nil
	}
	return t.val
}

// Err returns the error of a rejected task or nil.
func (t *Task) Err() error {
	if !t.settled() {
		return nil
	}
	return t.err
}

// Wait blocks until the task is settled or ctx is done and returns the result. A request
// response is applied to the model by the waiting goroutine, which must own the model.
func (t *Task) Wait(ctx context.Context) (interface{}, error) {
	reply := t.reply
	for {
		select {
		case <-t.done:
			return t.val, t.err
		case <-reply:
			t.apply()
			reply = nil
			if t.settled() {
				return t.val, t.err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
