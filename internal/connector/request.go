package connector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/patchsync/internal/evented"
	"github.com/roach88/patchsync/internal/source"
	"github.com/roach88/patchsync/internal/transform"
	"github.com/roach88/patchsync/internal/value"
)

// Mode selects when the secondary source is consulted.
type Mode int

const (
	// Assist asks the secondary before the primary's own handler runs.
	Assist Mode = iota + 1
	// Rescue asks the secondary only after the primary's handler failed.
	Rescue
)

func (m Mode) String() string {
	switch m {
	case Assist:
		return "assist"
	case Rescue:
		return "rescue"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "assist" or "rescue".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "assist":
		return Assist, nil
	case "rescue":
		return Rescue, nil
	default:
		return 0, fmt.Errorf("unknown request mode %q", s)
	}
}

// RequestConnector answers a primary source's requests of one verb from a
// secondary source, either ahead of the primary (Assist) or as a fallback
// (Rescue).
type RequestConnector struct {
	primary   *source.Source
	secondary *source.Source
	verb      evented.Verb
	mode      Mode
	logger    *slog.Logger

	mu         sync.Mutex
	active     bool
	listenerID evented.ListenerID
}

// RequestOption configures a RequestConnector.
type RequestOption func(*RequestConnector)

// WithRequestLogger sets the logger.
func WithRequestLogger(logger *slog.Logger) RequestOption {
	return func(c *RequestConnector) {
		c.logger = logger
	}
}

// NewRequestConnector creates an inactive connector.
func NewRequestConnector(primary, secondary *source.Source, verb evented.Verb, mode Mode, opts ...RequestOption) *RequestConnector {
	c := &RequestConnector{
		primary:   primary,
		secondary: secondary,
		verb:      verb,
		mode:      mode,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("primary", primary.Name(), "secondary", secondary.Name(),
		"verb", verb.String(), "mode", mode.String())
	return c
}

func (c *RequestConnector) kind() evented.Kind {
	if c.mode == Assist {
		return c.verb.Assist()
	}
	return c.verb.Rescue()
}

// Activate subscribes to the primary. Calling it again is a no-op.
func (c *RequestConnector) Activate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return
	}
	c.listenerID = c.primary.On(c.handle, c.kind())
	c.active = true
}

// Deactivate unsubscribes. Calling it again is a no-op.
func (c *RequestConnector) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return
	}
	c.primary.Off(c.listenerID, c.kind())
	c.active = false
}

// Active reports whether the connector is subscribed.
func (c *RequestConnector) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// handle forwards the request to the secondary. An empty answer (no
// value, no transforms, an empty result) is no answer: it lets the next
// listener, or the primary's own handler, respond.
func (c *RequestConnector) handle(ctx context.Context, ev evented.Event) (any, error) {
	var (
		res any
		err error
	)
	switch c.verb {
	case evented.VerbQuery, evented.VerbPull:
		q, ok := evented.Arg[source.Query](ev, 0)
		if !ok {
			return nil, nil
		}
		if c.verb == evented.VerbQuery {
			var v value.Value
			if v, err = c.secondary.Query(ctx, q); v != nil {
				res = v
			}
		} else {
			var ts []*transform.Transform
			if ts, err = c.secondary.Pull(ctx, q); len(ts) > 0 {
				res = ts
			}
		}
	case evented.VerbUpdate, evented.VerbPush:
		t, ok := evented.Arg[*transform.Transform](ev, 0)
		if !ok {
			return nil, nil
		}
		if c.verb == evented.VerbUpdate {
			var r *transform.Result
			if r, err = c.secondary.Update(ctx, t); !r.IsEmpty() {
				res = r
			}
		} else {
			var ts []*transform.Transform
			if ts, err = c.secondary.Push(ctx, t); len(ts) > 0 {
				res = ts
			}
		}
	default:
		return nil, nil
	}

	if err != nil {
		c.logger.Debug("secondary failed", "error", err)
		return nil, err
	}
	if res == nil {
		c.logger.Debug("secondary had no answer", "verb", c.verb.String())
	}
	return res, nil
}
