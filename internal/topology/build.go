package topology

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/patchsync/internal/connector"
	"github.com/roach88/patchsync/internal/evented"
	"github.com/roach88/patchsync/internal/source"
	"github.com/roach88/patchsync/internal/transform"
	"github.com/roach88/patchsync/internal/value"
)

// Connector is the activation surface shared by both connector types.
type Connector interface {
	Activate()
	Deactivate()
	Active() bool
}

// SeedRecorder is implemented by journals that keep each source's seed.
type SeedRecorder interface {
	WriteSeed(ctx context.Context, src string, seed value.Value) (bool, error)
}

// SeqReader is implemented by journals that know the last sequence number
// written for a source, so a rebuilt source keeps counting from there.
type SeqReader interface {
	LastSeq(ctx context.Context, src string) (int64, error)
}

// Topology is a running set of sources and connectors.
type Topology struct {
	sources    map[string]*source.Source
	order      []string
	connectors map[string]Connector
	names      []string
	transforms []*connector.TransformConnector
}

type buildConfig struct {
	journal source.Journal
	ids     transform.IDGenerator
	logger  *slog.Logger
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

// WithJournal journals every source's transforms.
func WithJournal(j source.Journal) BuildOption {
	return func(c *buildConfig) {
		c.journal = j
	}
}

// WithIDGenerator sets the id generator shared by sources and connectors.
func WithIDGenerator(gen transform.IDGenerator) BuildOption {
	return func(c *buildConfig) {
		c.ids = gen
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) BuildOption {
	return func(c *buildConfig) {
		c.logger = logger
	}
}

// Build validates cfg, creates its sources and activates its connectors.
func Build(ctx context.Context, cfg *Config, opts ...BuildOption) (*Topology, error) {
	if verrs := Validate(cfg); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return nil, fmt.Errorf("build topology: %w", errors.Join(errs...))
	}

	bc := &buildConfig{
		ids:    transform.UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(bc)
	}

	t := &Topology{
		sources:    make(map[string]*source.Source, len(cfg.Sources)),
		connectors: make(map[string]Connector, len(cfg.Connectors)),
	}

	for _, spec := range cfg.Sources {
		src, err := bc.source(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("build topology: %w", err)
		}
		t.sources[spec.Name] = src
		t.order = append(t.order, spec.Name)
	}

	for _, spec := range cfg.Connectors {
		from, to := t.sources[spec.From], t.sources[spec.To]
		logger := bc.logger.With("connector", spec.Name)

		var c Connector
		switch spec.Type {
		case TypeTransform:
			tc := connector.NewTransformConnector(from, to,
				connector.WithBlocking(spec.Blocking),
				connector.WithIDGenerator(bc.ids),
				connector.WithLogger(logger))
			t.transforms = append(t.transforms, tc)
			c = tc
		case TypeRequest:
			verb, _ := evented.ParseVerb(spec.Verb)
			mode, _ := connector.ParseMode(spec.Mode)
			c = connector.NewRequestConnector(from, to, verb, mode,
				connector.WithRequestLogger(logger))
		}
		c.Activate()
		t.connectors[spec.Name] = c
		t.names = append(t.names, spec.Name)
	}

	bc.logger.Debug("topology built",
		"sources", len(t.sources),
		"connectors", len(t.connectors))
	return t, nil
}

func (bc *buildConfig) source(ctx context.Context, spec SourceSpec) (*source.Source, error) {
	seed := spec.Seed
	if seed == nil {
		seed = value.Object{}
	}

	opts := []source.Option{
		source.WithIDGenerator(bc.ids),
		source.WithLogger(bc.logger),
		source.WithMaxOperations(spec.MaxOperations),
		source.WithMaxQueryPaths(spec.MaxQueryPaths),
	}
	if bc.journal != nil {
		opts = append(opts, source.WithJournal(bc.journal))
		if r, ok := bc.journal.(SeedRecorder); ok {
			if _, err := r.WriteSeed(ctx, spec.Name, seed); err != nil {
				return nil, fmt.Errorf("source %s: %w", spec.Name, err)
			}
		}
		if r, ok := bc.journal.(SeqReader); ok {
			last, err := r.LastSeq(ctx, spec.Name)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", spec.Name, err)
			}
			opts = append(opts, source.WithClock(source.NewClockAt(last)))
		}
	}
	return source.NewMemory(spec.Name, seed, opts...), nil
}

// Source returns the named source.
func (t *Topology) Source(name string) (*source.Source, bool) {
	s, ok := t.sources[name]
	return s, ok
}

// Sources returns the sources in declaration order.
func (t *Topology) Sources() []*source.Source {
	out := make([]*source.Source, len(t.order))
	for i, name := range t.order {
		out[i] = t.sources[name]
	}
	return out
}

// Connector returns the named connector.
func (t *Topology) Connector(name string) (Connector, bool) {
	c, ok := t.connectors[name]
	return c, ok
}

// Flush waits for every transform connector to drain. Propagations can
// trigger further propagations along a chain, so connectors are flushed
// in passes until a pass finds nothing pending.
func (t *Topology) Flush(ctx context.Context) error {
	for range len(t.transforms) + 1 {
		for _, c := range t.transforms {
			if err := c.Flush(ctx); err != nil {
				return err
			}
		}
		if t.settled() {
			return nil
		}
	}
	if !t.settled() {
		return fmt.Errorf("flush topology: propagations still pending")
	}
	return nil
}

func (t *Topology) settled() bool {
	for _, c := range t.transforms {
		if c.Pending() > 0 {
			return false
		}
	}
	for _, s := range t.sources {
		if s.Queue().Processing() {
			return false
		}
	}
	return true
}

// Close deactivates every connector in reverse declaration order.
func (t *Topology) Close() {
	for i := len(t.names) - 1; i >= 0; i-- {
		t.connectors[t.names[i]].Deactivate()
	}
}
