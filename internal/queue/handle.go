package queue

import "context"

// Handle settles when its action completes.
//
// result and err are written once, before done is closed, and only read
// after it, so no lock is needed.
type Handle struct {
	done   chan struct{} // closed by settle
	result any
	err    error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) settle(result any, err error) {
	h.result = result
	h.err = err
	close(h.done)
}

// Done is closed once the action has completed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the action completes and returns its outcome. If ctx
// ends first, Wait returns ctx's error; the action still runs.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
