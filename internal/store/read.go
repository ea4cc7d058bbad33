package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/patchsync/internal/value"
)

// ReadTransforms returns every record journaled for a source in
// application order: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing is journaled.
func (s *Store) ReadTransforms(ctx context.Context, src string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, id, seq, ancestry, operations, inverse, checksum
		FROM transforms
		WHERE source = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, src)
	if err != nil {
		return nil, fmt.Errorf("query transforms: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transforms: %w", err)
	}

	return records, nil
}

// ReadTransform retrieves a single record.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadTransform(ctx context.Context, src, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source, id, seq, ancestry, operations, inverse, checksum
		FROM transforms
		WHERE source = ? AND id = ?
	`, src, id)
	return scanRecord(row)
}

// HasTransform reports whether a source journaled id.
func (s *Store) HasTransform(ctx context.Context, src, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transforms WHERE source = ? AND id = ?
	`, src, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has transform: %w", err)
	}
	return n > 0, nil
}

// Sources returns the names of every source with journaled transforms or
// a recorded seed, sorted.
func (s *Store) Sources(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source FROM transforms
		UNION
		SELECT source FROM seeds
		ORDER BY source COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return names, nil
}

// LastSeq returns the highest sequence number journaled for a source, or
// 0 when there is none.
func (s *Store) LastSeq(ctx context.Context, src string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM transforms WHERE source = ?
	`, src).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// ReadSeed returns the seed recorded for a source. ok is false when none
// was written.
func (s *Store) ReadSeed(ctx context.Context, src string) (seed value.Value, ok bool, err error) {
	var data string
	err = s.db.QueryRowContext(ctx, `SELECT data FROM seeds WHERE source = ?`, src).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read seed: %w", err)
	}
	seed, err = value.Parse([]byte(data))
	if err != nil {
		return nil, false, fmt.Errorf("read seed: %w", err)
	}
	return seed, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var ancestry, ops, inverse string
	if err := row.Scan(&rec.Source, &rec.ID, &rec.Seq, &ancestry, &ops, &inverse, &rec.Checksum); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan transform: %w", err)
	}

	var err error
	if rec.Ancestry, err = unmarshalAncestry(ancestry); err != nil {
		return Record{}, err
	}
	if rec.Operations, err = unmarshalOperations(ops); err != nil {
		return Record{}, err
	}
	if rec.Inverse, err = unmarshalOperations(inverse); err != nil {
		return Record{}, err
	}
	return rec, nil
}
