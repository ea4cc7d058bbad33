package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/patchsync/internal/patch"
	"github.com/roach88/patchsync/internal/source"
	"github.com/roach88/patchsync/internal/transform"
	"github.com/roach88/patchsync/internal/value"
)

// ErrChecksumMismatch is returned when a journaled transform's operations
// no longer match the checksum written with them.
var ErrChecksumMismatch = errors.New("transform checksum mismatch")

// ErrNotInvertible is returned by Rewind when a transform it would undo was
// journaled without an inverse, as happens for transforms an adapter
// reported through source.Source.Transformed.
var ErrNotInvertible = errors.New("transform has no inverse")

// ReplayResult is a source rebuilt from its journal.
type ReplayResult struct {
	Source   string
	Document *patch.Document
	Log      []string
	LastSeq  int64
}

// Replay rebuilds a source's document and log by applying every journaled
// transform, in order, to seed. A nil seed uses the seed recorded for the
// source, or an empty object when none was recorded.
//
// Each record's checksum is verified before it is applied; a mismatch
// stops the replay with ErrChecksumMismatch.
func (s *Store) Replay(ctx context.Context, src string, seed value.Value) (*ReplayResult, error) {
	if seed == nil {
		recorded, ok, err := s.ReadSeed(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("replay %s: %w", src, err)
		}
		seed = value.Object{}
		if ok {
			seed = recorded
		}
	}

	records, err := s.ReadTransforms(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", src, err)
	}

	res := &ReplayResult{
		Source:   src,
		Document: patch.NewDocument(seed),
		Log:      make([]string, 0, len(records)),
	}
	for _, rec := range records {
		if err := verify(rec); err != nil {
			return nil, fmt.Errorf("replay %s: %w", src, err)
		}
		if _, err := res.Document.ApplyAll(rec.Operations, false); err != nil {
			return nil, fmt.Errorf("replay %s: transform %s (seq %d): %w", src, rec.ID, rec.Seq, err)
		}
		res.Log = append(res.Log, rec.ID)
		res.LastSeq = rec.Seq
	}

	s.logger.Debug("journal replayed", "source", src, "transforms", len(records), "last_seq", res.LastSeq)
	return res, nil
}

// Rewind undoes, newest first, every transform journaled for src after
// the transform id, using the stored inverses. It returns the undone ids
// in the order they were undone.
//
// If any of those transforms has operations but no stored inverse, Rewind
// fails with ErrNotInvertible before touching doc.
func (s *Store) Rewind(ctx context.Context, src string, doc *patch.Document, id string) ([]string, error) {
	records, err := s.ReadTransforms(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("rewind %s: %w", src, err)
	}

	at := -1
	for i, rec := range records {
		if rec.ID == id {
			at = i
			break
		}
	}
	if at < 0 {
		return nil, fmt.Errorf("rewind %s: transform %s not journaled", src, id)
	}

	for _, rec := range records[at+1:] {
		if len(rec.Operations) > 0 && len(rec.Inverse) == 0 {
			return nil, fmt.Errorf("rewind %s: transform %s: %w", src, rec.ID, ErrNotInvertible)
		}
	}

	undone := make([]string, 0, len(records)-at-1)
	for i := len(records) - 1; i > at; i-- {
		rec := records[i]
		if _, err := doc.ApplyAll(rec.Inverse, false); err != nil {
			return undone, fmt.Errorf("rewind %s: undo %s: %w", src, rec.ID, err)
		}
		undone = append(undone, rec.ID)
	}
	return undone, nil
}

// Restore feeds a source's journal back through target.Transform, so its
// log, events and connectors see every journaled transform again.
// Transforms target has already logged are skipped. It returns the number
// applied.
func (s *Store) Restore(ctx context.Context, target *source.Source) (int, error) {
	records, err := s.ReadTransforms(ctx, target.Name())
	if err != nil {
		return 0, fmt.Errorf("restore %s: %w", target.Name(), err)
	}

	applied := 0
	for _, rec := range records {
		if target.Log().Contains(rec.ID) {
			continue
		}
		if err := verify(rec); err != nil {
			return applied, fmt.Errorf("restore %s: %w", target.Name(), err)
		}
		t := transform.New(rec.Operations,
			transform.WithID(rec.ID),
			transform.WithAncestry(rec.Ancestry...))
		if _, err := target.Transform(ctx, t); err != nil {
			return applied, fmt.Errorf("restore %s: transform %s: %w", target.Name(), rec.ID, err)
		}
		applied++
	}
	return applied, nil
}

func verify(rec Record) error {
	sum, err := checksum(rec.ID, rec.Operations)
	if err != nil {
		return err
	}
	if sum != rec.Checksum {
		return fmt.Errorf("transform %s: %w", rec.ID, ErrChecksumMismatch)
	}
	return nil
}
