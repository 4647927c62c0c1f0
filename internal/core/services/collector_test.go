package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/datascanner/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/datascanner/internal/connectors/filesystem"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

var (
	scan1    = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	scan2    = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	resolved = time.Date(2024, 2, 1, 11, 0, 0, 0, time.UTC)
)

func setupCollector(t *testing.T) (*ResultCollector, *memory.ReportStore, driven.Handle) {
	t.Helper()
	sources := NewSourceRegistry()
	filesystem.Register(sources)
	sources.Freeze()

	store := memory.NewReportStore()
	c := NewResultCollector(store, sources)
	c.now = func() time.Time { return resolved }

	h, err := filesystem.MakeHandle("/srv/share/secret.txt")
	require.NoError(t, err)
	return c, store, h
}

func scanTag(when time.Time) map[string]any {
	return map[string]any{
		"time":         domain.FormatTime(when),
		"scanner":      map[string]any{"pk": 1, "name": "File scan", "test": false},
		"organisation": map[string]any{"uuid": "org-1", "name": "Org"},
	}
}

func encode(t *testing.T, v map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func matchesMessage(t *testing.T, h driven.Handle, when time.Time, matched bool, fragments ...map[string]any) []byte {
	t.Helper()
	if fragments == nil {
		fragments = []map[string]any{}
	}
	return encode(t, map[string]any{
		"origin":    domain.OriginMatches,
		"scan_spec": map[string]any{"scan_tag": scanTag(when)},
		"handle":    h.ToJSON(),
		"matched":   matched,
		"matches":   fragments,
	})
}

func cprFragment(probabilities ...float64) map[string]any {
	matches := []map[string]any{}
	for _, p := range probabilities {
		matches = append(matches, map[string]any{"match": "1111111118", "probability": p})
	}
	return map[string]any{"rule": map[string]any{"type": "cpr", "sensitivity": 1000}, "matches": matches}
}

func problemMessage(t *testing.T, h driven.Handle, when time.Time, missing bool) []byte {
	t.Helper()
	return encode(t, map[string]any{
		"origin":   domain.OriginProblems,
		"scan_tag": scanTag(when),
		"handle":   h.ToJSON(),
		"missing":  missing,
		"message":  "could not read",
	})
}

func metadataMessage(t *testing.T, h driven.Handle, when time.Time, metadata map[string]any) []byte {
	t.Helper()
	return encode(t, map[string]any{
		"origin":   domain.OriginMetadata,
		"scan_tag": scanTag(when),
		"handle":   h.ToJSON(),
		"metadata": metadata,
	})
}

func report(t *testing.T, store *memory.ReportStore, h driven.Handle) *domain.DocumentReport {
	t.Helper()
	r, err := store.GetReport(context.Background(), 1, domain.CrunchHash(h.Censor()))
	require.NoError(t, err)
	return r
}

func TestResultCollector_NewMatches(t *testing.T) {
	c, store, h := setupCollector(t)
	ctx := context.Background()

	require.NoError(t, c.Collect(ctx, matchesMessage(t, h, scan1, true, cprFragment(0.2, 0.9))))

	r := report(t, store, h)
	assert.True(t, scan1.Equal(r.ScanTime))
	assert.Equal(t, "File scan", r.ScannerName)
	assert.Equal(t, "org-1", r.Organisation)
	assert.Equal(t, filesystem.TypeLabel, r.SourceType)
	assert.Equal(t, "secret.txt", r.Name)
	require.NotNil(t, r.Probability)
	assert.InDelta(t, 0.9, *r.Probability, 1e-9)
	require.NotNil(t, r.Sensitivity)
	assert.Equal(t, 1000, *r.Sensitivity)
	assert.Nil(t, r.ResolutionStatus)

	var stored domain.ResultMessage
	require.NoError(t, json.Unmarshal(r.RawMatches, &stored))
	assert.InDelta(t, 0.9, stored.Matches[0].Matches[0]["probability"], 1e-9)
}

func TestResultCollector_NoMatchesMarksEdited(t *testing.T) {
	c, store, h := setupCollector(t)
	ctx := context.Background()

	require.NoError(t, c.Collect(ctx, matchesMessage(t, h, scan1, true, cprFragment(0.8))))
	require.NoError(t, c.Collect(ctx, matchesMessage(t, h, scan2, false, cprFragment())))

	r := report(t, store, h)
	require.NotNil(t, r.ResolutionStatus)
	assert.Equal(t, domain.ResolutionEdited, *r.ResolutionStatus)
	require.NotNil(t, r.ResolutionTime)
	assert.True(t, resolved.Equal(*r.ResolutionTime))
	assert.True(t, scan1.Equal(r.ScanTime))
	assert.NotEmpty(t, r.RawMatches)

	reports, err := store.ListReports(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestResultCollector_UnchangedUpdatesScanTime(t *testing.T) {
	c, store, h := setupCollector(t)
	ctx := context.Background()

	lastModified := map[string]any{"rule": map[string]any{"type": domain.LastModifiedRuleType}, "matches": []any{}}
	require.NoError(t, c.Collect(ctx, matchesMessage(t, h, scan1, true, cprFragment(0.8))))
	require.NoError(t, c.Collect(ctx, matchesMessage(t, h, scan2, false, lastModified)))

	r := report(t, store, h)
	assert.Nil(t, r.ResolutionStatus)
	assert.True(t, scan2.Equal(r.ScanTime))
	assert.NotEmpty(t, r.RawMatches)
}

func TestResultCollector_StillMatchingReplacesReport(t *testing.T) {
	c, store, h := setupCollector(t)
	ctx := context.Background()

	require.NoError(t, c.Collect(ctx, matchesMessage(t, h, scan1, true, cprFragment(0.8))))
	first := report(t, store, h)
	require.NoError(t, c.Collect(ctx, matchesMessage(t, h, scan2, true, cprFragment(0.4))))

	r := report(t, store, h)
	assert.Equal(t, first.ID, r.ID)
	assert.Nil(t, r.ResolutionStatus)
	assert.True(t, scan2.Equal(r.ScanTime))
	require.NotNil(t, r.Probability)
	assert.InDelta(t, 0.4, *r.Probability, 1e-9)
}

func TestResultCollector_NoMatchesWithoutPriorStoresNothing(t *testing.T) {
	c, store, h := setupCollector(t)

	require.NoError(t, c.Collect(context.Background(), matchesMessage(t, h, scan1, false, cprFragment())))
	_, err := store.GetReport(context.Background(), 1, domain.CrunchHash(h.Censor()))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResultCollector_Problems(t *testing.T) {
	t.Run("missing without prior is dropped", func(t *testing.T) {
		c, store, h := setupCollector(t)
		require.NoError(t, c.Collect(context.Background(), problemMessage(t, h, scan1, true)))
		_, err := store.GetReport(context.Background(), 1, domain.CrunchHash(h.Censor()))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("missing with prior marks removed", func(t *testing.T) {
		c, store, h := setupCollector(t)
		ctx := context.Background()
		require.NoError(t, c.Collect(ctx, matchesMessage(t, h, scan1, true, cprFragment(0.8))))
		require.NoError(t, c.Collect(ctx, problemMessage(t, h, scan2, true)))

		r := report(t, store, h)
		require.NotNil(t, r.ResolutionStatus)
		assert.Equal(t, domain.ResolutionRemoved, *r.ResolutionStatus)
		assert.Nil(t, r.RawProblem)
	})

	t.Run("new problem is stored", func(t *testing.T) {
		c, store, h := setupCollector(t)
		require.NoError(t, c.Collect(context.Background(), problemMessage(t, h, scan1, false)))

		r := report(t, store, h)
		assert.NotEmpty(t, r.RawProblem)
		assert.Equal(t, "secret.txt", r.Name)
		assert.Equal(t, h.SortKey(), r.SortKey)
		assert.Equal(t, filesystem.TypeLabel, r.SourceType)
		assert.Nil(t, r.RawMatches)
	})

	t.Run("problem on known report replaces its content", func(t *testing.T) {
		c, store, h := setupCollector(t)
		ctx := context.Background()
		require.NoError(t, c.Collect(ctx, matchesMessage(t, h, scan1, true, cprFragment(0.8))))
		require.NoError(t, c.Collect(ctx, problemMessage(t, h, scan2, false)))

		r := report(t, store, h)
		assert.NotEmpty(t, r.RawProblem)
		assert.Nil(t, r.RawMatches)
		assert.Nil(t, r.RawMetadata)
		assert.Nil(t, r.ResolutionStatus)
	})

	t.Run("problem on resolved report is ignored", func(t *testing.T) {
		c, store, h := setupCollector(t)
		ctx := context.Background()
		require.NoError(t, c.Collect(ctx, matchesMessage(t, h, scan1, true, cprFragment(0.8))))
		require.NoError(t, c.Collect(ctx, matchesMessage(t, h, scan2, false, cprFragment())))
		require.NoError(t, c.Collect(ctx, problemMessage(t, h, scan2, false)))

		r := report(t, store, h)
		assert.Nil(t, r.RawProblem)
		assert.NotEmpty(t, r.RawMatches)
	})
}

func TestResultCollector_Metadata(t *testing.T) {
	c, store, h := setupCollector(t)
	ctx := context.Background()

	alias, err := c.AddAlias(ctx, domain.AliasEmail, "Owner@Example.com")
	require.NoError(t, err)
	other, err := c.AddAlias(ctx, domain.AliasSID, "S-1-5-21-9")
	require.NoError(t, err)

	lm := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.Collect(ctx, metadataMessage(t, h, scan1, map[string]any{
		domain.MetaEmailAccount: "owner@example.com",
		domain.MetaLastModified: domain.FormatTime(lm),
	})))

	r := report(t, store, h)
	assert.Equal(t, "owner@example.com", r.Owner)
	require.NotNil(t, r.DatasourceLastModified)
	assert.True(t, lm.Equal(*r.DatasourceLastModified))
	assert.NotEmpty(t, r.RawMetadata)

	linked, err := store.ReportAliases(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Alias{*alias}, linked)
	assert.NotEqual(t, other.ID, linked[0].ID)
}

func TestResultCollector_MetadataDefaultsToScanTime(t *testing.T) {
	c, store, h := setupCollector(t)

	require.NoError(t, c.Collect(context.Background(), metadataMessage(t, h, scan1, map[string]any{
		domain.MetaEmailAccount:       "owner@example.com",
		domain.MetaFilesystemOwnerSID: "S-1-5-21-9",
	})))

	r := report(t, store, h)
	require.NotNil(t, r.DatasourceLastModified)
	assert.True(t, scan1.Equal(*r.DatasourceLastModified))
	assert.Equal(t, "S-1-5-21-9", r.Owner)
}

func TestResultCollector_Ignored(t *testing.T) {
	c, store, h := setupCollector(t)
	ctx := context.Background()

	require.NoError(t, c.Collect(ctx, encode(t, map[string]any{
		"origin": "os2ds_checkups", "scan_tag": scanTag(scan1), "handle": h.ToJSON(),
	})))
	require.NoError(t, c.Collect(ctx, encode(t, map[string]any{
		"origin": domain.OriginMetadata, "scan_tag": scanTag(scan1),
	})))

	reports, err := store.ListReports(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestResultCollector_Malformed(t *testing.T) {
	c, _, _ := setupCollector(t)

	err := c.Collect(context.Background(), []byte("{not json"))
	assert.ErrorIs(t, err, domain.ErrDeserialisation)
}

func TestResultCollector_AddAlias(t *testing.T) {
	c, _, _ := setupCollector(t)
	ctx := context.Background()

	_, err := c.AddAlias(ctx, domain.AliasType("phone"), "123")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = c.AddAlias(ctx, domain.AliasGeneric, "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	a, err := c.AddAlias(ctx, domain.AliasGeneric, " example.org ")
	require.NoError(t, err)
	assert.Equal(t, "example.org", a.Value)
}
