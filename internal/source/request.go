package source

import (
	"context"
	"fmt"

	"github.com/roach88/patchsync/internal/evented"
	"github.com/roach88/patchsync/internal/syncerr"
	"github.com/roach88/patchsync/internal/transform"
	"github.com/roach88/patchsync/internal/value"
)

// request runs the lifecycle shared by every verb:
//
//  1. settle Before<Verb>
//  2. resolve Assist<Verb>; a result short-circuits the source's handler
//  3. run the source's own handler
//  4. on failure, resolve Rescue<Verb>; if that fails too the handler's
//     error stands
//  5. settle <Verb> with the result, or <Verb>Fail with the error
func (s *Source) request(ctx context.Context, verb evented.Verb, arg any, own func(context.Context) (any, error)) (any, error) {
	s.events.Settle(ctx, verb.Before(), arg)

	res, err := s.events.Resolve(ctx, verb.Assist(), arg)
	if err != nil {
		if !syncerr.IsNoResolution(err) {
			s.logger.Debug("assist failed", "verb", verb.String(), "error", err)
		}
		res, err = own(ctx)
		if err != nil {
			rescued, rescueErr := s.events.Resolve(ctx, verb.Rescue(), arg)
			if rescueErr == nil {
				res, err = rescued, nil
			} else if !syncerr.IsNoResolution(rescueErr) {
				s.logger.Debug("rescue failed", "verb", verb.String(), "error", rescueErr)
			}
		}
	}

	if err != nil {
		s.events.Settle(ctx, verb.DidNot(), arg, err)
		return nil, err
	}
	s.events.Settle(ctx, verb.Did(), arg, res)
	return res, nil
}

// Query answers q from the backend, unless an AssistQuery listener answers
// first.
func (s *Source) Query(ctx context.Context, q Query) (value.Value, error) {
	if s.maxQueryPaths > 0 && len(q.Paths) > s.maxQueryPaths {
		return nil, syncerr.QueryNotAllowed(len(q.Paths), s.maxQueryPaths)
	}
	res, err := s.request(ctx, evented.VerbQuery, q, func(ctx context.Context) (any, error) {
		querier, ok := s.backend.(Querier)
		if !ok {
			return nil, syncerr.NotSupported(s.name, "query")
		}
		return s.turn(ctx, func(ctx context.Context) (any, error) {
			return querier.Query(ctx, q)
		})
	})
	if err != nil {
		return nil, err
	}
	return asValue(res)
}

// Update applies input as a transform through the request lifecycle.
func (s *Source) Update(ctx context.Context, input any) (*transform.Result, error) {
	t, err := s.Normalize(input)
	if err != nil {
		return nil, err
	}
	res, err := s.request(ctx, evented.VerbUpdate, t, func(ctx context.Context) (any, error) {
		return s.Transform(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	r, ok := res.(*transform.Result)
	if !ok {
		return nil, fmt.Errorf("update %s: unexpected result %T", s.name, res)
	}
	return r, nil
}

// Push sends input to the backend. A Pusher backend reports what changed
// and those transforms are folded into the log. Other backends apply the
// transform locally and report it back.
func (s *Source) Push(ctx context.Context, input any) ([]*transform.Transform, error) {
	t, err := s.Normalize(input)
	if err != nil {
		return nil, err
	}
	if s.log.Contains(t.ID) {
		return nil, nil
	}
	res, err := s.request(ctx, evented.VerbPush, t, func(ctx context.Context) (any, error) {
		if s.maxOperations > 0 && len(t.Operations) > s.maxOperations {
			return nil, syncerr.TransformNotAllowed(len(t.Operations), s.maxOperations)
		}
		return s.turn(ctx, func(ctx context.Context) (any, error) {
			pusher, ok := s.backend.(Pusher)
			if !ok {
				if _, err := s.apply(ctx, t); err != nil {
					return nil, err
				}
				return []*transform.Transform{t}, nil
			}
			ts, err := pusher.Push(ctx, t)
			if err != nil {
				return nil, err
			}
			if err := s.Transformed(ctx, ts...); err != nil {
				return nil, err
			}
			return ts, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return asTransforms(res)
}

// Pull fetches the changes matching q from the backend and folds them into
// the log.
func (s *Source) Pull(ctx context.Context, q Query) ([]*transform.Transform, error) {
	if s.maxQueryPaths > 0 && len(q.Paths) > s.maxQueryPaths {
		return nil, syncerr.QueryNotAllowed(len(q.Paths), s.maxQueryPaths)
	}
	res, err := s.request(ctx, evented.VerbPull, q, func(ctx context.Context) (any, error) {
		puller, ok := s.backend.(Puller)
		if !ok {
			return nil, syncerr.NotSupported(s.name, "pull")
		}
		return s.turn(ctx, func(ctx context.Context) (any, error) {
			ts, err := puller.Pull(ctx, q)
			if err != nil {
				return nil, err
			}
			if err := s.Transformed(ctx, ts...); err != nil {
				return nil, err
			}
			return ts, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return asTransforms(res)
}

func asValue(res any) (value.Value, error) {
	switch v := res.(type) {
	case value.Value:
		return v, nil
	case nil:
		return nil, nil
	default:
		return value.FromNative(v)
	}
}

func asTransforms(res any) ([]*transform.Transform, error) {
	switch v := res.(type) {
	case []*transform.Transform:
		return v, nil
	case *transform.Transform:
		return []*transform.Transform{v}, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected transforms result %T", res)
	}
}
