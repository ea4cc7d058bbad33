package store

import (
	"context"
	"fmt"

	"github.com/roach88/patchsync/internal/patch"
	"github.com/roach88/patchsync/internal/source"
	"github.com/roach88/patchsync/internal/value"
)

// Record is one journaled transform.
type Record struct {
	Source     string
	ID         string
	Seq        int64
	Ancestry   []string
	Operations []patch.Operation
	Inverse    []patch.Operation
	Checksum   string
}

// RecordFor converts a source journal entry. The checksum is filled in on
// write.
func RecordFor(e source.Entry) Record {
	rec := Record{
		Source:     e.Source,
		ID:         e.Transform.ID,
		Seq:        e.Seq,
		Ancestry:   e.Transform.Ancestry,
		Operations: e.Transform.Operations,
	}
	if e.Result != nil {
		rec.Inverse = e.Result.Inverse
	}
	return rec
}

var _ source.Journal = (*Store)(nil)

// Append journals an entry from a source. It satisfies source.Journal.
func (s *Store) Append(ctx context.Context, e source.Entry) error {
	if e.Transform == nil {
		return fmt.Errorf("append: entry for %s has no transform", e.Source)
	}
	_, err := s.WriteTransform(ctx, RecordFor(e))
	return err
}

// WriteTransform inserts a transform record and reports whether it was new.
// Uses ON CONFLICT DO NOTHING for idempotency - a (source, id) pair that is
// already journaled is silently ignored.
func (s *Store) WriteTransform(ctx context.Context, rec Record) (bool, error) {
	ops, err := marshalOperations(rec.Operations)
	if err != nil {
		return false, fmt.Errorf("write transform: %w", err)
	}
	inverse, err := marshalOperations(rec.Inverse)
	if err != nil {
		return false, fmt.Errorf("write transform: %w", err)
	}
	ancestry, err := marshalAncestry(rec.Ancestry)
	if err != nil {
		return false, fmt.Errorf("write transform: %w", err)
	}
	sum := rec.Checksum
	if sum == "" {
		if sum, err = checksum(rec.ID, rec.Operations); err != nil {
			return false, fmt.Errorf("write transform: %w", err)
		}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO transforms
		(source, id, seq, ancestry, operations, inverse, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, id) DO NOTHING
	`,
		rec.Source,
		rec.ID,
		rec.Seq,
		ancestry,
		ops,
		inverse,
		sum,
	)
	if err != nil {
		return false, fmt.Errorf("write transform: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write transform: rows affected: %w", err)
	}
	if n == 0 {
		s.logger.Debug("transform already journaled", "source", rec.Source, "transform_id", rec.ID)
	}
	return n > 0, nil
}

// WriteSeed records the document a source started from. The first seed
// written for a source wins.
func (s *Store) WriteSeed(ctx context.Context, src string, seed value.Value) (bool, error) {
	data, err := value.MarshalCanonical(seed)
	if err != nil {
		return false, fmt.Errorf("write seed: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO seeds (source, data)
		VALUES (?, ?)
		ON CONFLICT(source) DO NOTHING
	`, src, string(data))
	if err != nil {
		return false, fmt.Errorf("write seed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write seed: rows affected: %w", err)
	}
	return n > 0, nil
}
