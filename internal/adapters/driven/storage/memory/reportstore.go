package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Ensure ReportStore implements the interface.
var _ driven.ReportStore = (*ReportStore)(nil)

type reportKey struct {
	pk   int
	path string
}

// ReportStore is an in-memory implementation of driven.ReportStore.
type ReportStore struct {
	mu      sync.RWMutex
	reports map[reportKey]domain.DocumentReport
	ids     map[string]reportKey
	aliases map[string]domain.Alias
	links   map[string]map[string]bool
}

// NewReportStore creates a new in-memory report store.
func NewReportStore() *ReportStore {
	return &ReportStore{
		reports: make(map[reportKey]domain.DocumentReport),
		ids:     make(map[string]reportKey),
		aliases: make(map[string]domain.Alias),
		links:   make(map[string]map[string]bool),
	}
}

// GetReport retrieves the report for (scannerPK, path).
func (s *ReportStore) GetReport(_ context.Context, scannerPK int, path string) (*domain.DocumentReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[reportKey{scannerPK, path}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

// SaveReport stores or replaces a report. An existing report keeps its ID.
func (s *ReportStore) SaveReport(_ context.Context, r *domain.DocumentReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := reportKey{r.ScannerJobPK, r.Path}
	if existing, ok := s.reports[k]; ok {
		r.ID = existing.ID
	} else if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.reports[k] = *r
	s.ids[r.ID] = k
	return nil
}

// ListReports returns the reports of a scanner ordered by scan time.
func (s *ReportStore) ListReports(_ context.Context, scannerPK int) ([]*domain.DocumentReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*domain.DocumentReport
	for k, r := range s.reports {
		if k.pk == scannerPK {
			result = append(result, &r)
		}
	}
	slices.SortFunc(result, func(a, b *domain.DocumentReport) int {
		if c := a.ScanTime.Compare(b.ScanTime); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
	return result, nil
}

// SaveAlias stores an alias, reusing the ID of an identical one.
func (s *ReportStore) SaveAlias(_ context.Context, a *domain.Alias) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		for id, existing := range s.aliases {
			if existing.Type == a.Type && existing.Value == a.Value {
				a.ID = id
				break
			}
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.aliases[a.ID] = *a
	return nil
}

// FindAliases returns the aliases of aliasType matching value.
func (s *ReportStore) FindAliases(_ context.Context, aliasType domain.AliasType, value string) ([]domain.Alias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Alias
	for _, a := range s.aliases {
		if a.Type != aliasType {
			continue
		}
		if a.Value == value || aliasType == domain.AliasEmail && strings.EqualFold(a.Value, value) {
			result = append(result, a)
		}
	}
	sortAliases(result)
	return result, nil
}

// LinkAlias relates a report to an alias.
func (s *ReportStore) LinkAlias(_ context.Context, reportID, aliasID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[reportID]; !ok {
		return fmt.Errorf("%w: report %s", domain.ErrNotFound, reportID)
	}
	if _, ok := s.aliases[aliasID]; !ok {
		return fmt.Errorf("%w: alias %s", domain.ErrNotFound, aliasID)
	}
	if s.links[reportID] == nil {
		s.links[reportID] = make(map[string]bool)
	}
	s.links[reportID][aliasID] = true
	return nil
}

// ReportAliases returns the aliases linked to a report.
func (s *ReportStore) ReportAliases(_ context.Context, reportID string) ([]domain.Alias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Alias
	for id := range s.links[reportID] {
		result = append(result, s.aliases[id])
	}
	sortAliases(result)
	return result, nil
}

func sortAliases(aliases []domain.Alias) {
	slices.SortFunc(aliases, func(a, b domain.Alias) int { return strings.Compare(a.ID, b.ID) })
}
