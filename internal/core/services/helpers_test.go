package services

import (
	"context"
	"errors"
	"iter"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// recorder counts acquisitions and releases across fake Sources.
type recorder struct {
	acquired []string
	released []string
}

// fakeSource is a root Source whose Acquire can open dependencies.
type fakeSource struct {
	name       string
	rec        *recorder
	deps       []driven.Source
	failWith   error
	releaseErr error
}

func (s *fakeSource) CrunchName() string { return "FakeSource" }
func (s *fakeSource) CrunchProperties() []domain.Property {
	return []domain.Property{{Name: "_name", Value: s.name}}
}
func (s *fakeSource) Type() string                   { return "fake" }
func (s *fakeSource) YieldsIndependentSources() bool { return false }
func (s *fakeSource) Handle() driven.Handle          { return nil }
func (s *fakeSource) Censor() driven.Source          { return s }
func (s *fakeSource) ToJSON() map[string]any {
	return map[string]any{"type": "fake", "name": s.name}
}

func (s *fakeSource) Handles(ctx context.Context, sm driven.StateManager) iter.Seq2[driven.Handle, error] {
	return func(yield func(driven.Handle, error) bool) {}
}

func (s *fakeSource) Acquire(ctx context.Context, sm driven.StateManager) (any, func() error, error) {
	for _, d := range s.deps {
		if _, err := sm.Open(ctx, d); err != nil {
			return nil, nil, err
		}
	}
	if s.failWith != nil {
		return nil, nil, s.failWith
	}
	if s.rec != nil {
		s.rec.acquired = append(s.rec.acquired, s.name)
	}
	release := func() error {
		if s.rec != nil {
			s.rec.released = append(s.rec.released, s.name)
		}
		return s.releaseErr
	}
	return "cookie:" + s.name, release, nil
}

var errAcquire = errors.New("acquire failed")

func newFake(rec *recorder, name string, deps ...driven.Source) *fakeSource {
	return &fakeSource{name: name, rec: rec, deps: deps}
}
