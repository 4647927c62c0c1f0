package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/core/ports/driving"
	"github.com/custodia-labs/datascanner/internal/logger"
)

// Ensure ResultCollector implements the interface.
var _ driving.ResultCollector = (*ResultCollector)(nil)

var collectLog = logger.Named("collector")

// ResultCollector applies scanner result messages to a report store. Each
// scanned object has at most one report per scanner, keyed by the hash of
// its censored Handle.
type ResultCollector struct {
	store driven.ReportStore
	dec   driven.Decoder
	now   func() time.Time
}

// NewResultCollector creates a collector writing to store. dec rebuilds the
// Handles and Sources carried by messages.
func NewResultCollector(store driven.ReportStore, dec driven.Decoder) *ResultCollector {
	return &ResultCollector{store: store, dec: dec, now: time.Now}
}

// AddAlias registers an owner identity. Adding an existing alias returns it.
func (c *ResultCollector) AddAlias(ctx context.Context, aliasType domain.AliasType, value string) (*domain.Alias, error) {
	switch aliasType {
	case domain.AliasEmail, domain.AliasSID, domain.AliasGeneric:
	default:
		return nil, fmt.Errorf("%w: alias type %q", domain.ErrInvalidInput, aliasType)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: empty alias value", domain.ErrInvalidInput)
	}
	alias := &domain.Alias{Type: aliasType, Value: value}
	if err := c.store.SaveAlias(ctx, alias); err != nil {
		return nil, err
	}
	return alias, nil
}

// message is a decoded result message together with what the collector
// derives from it.
type message struct {
	domain.ResultMessage
	body    map[string]any
	tag     domain.ScanTag
	handle  driven.Handle
	top     driven.Source
	path    string
	scanned time.Time
}

// Collect applies one JSON result message. Messages of unknown origin, or
// without a scan tag or an object reference, are ignored.
func (c *ResultCollector) Collect(ctx context.Context, body []byte) error {
	var m message
	if err := json.Unmarshal(body, &m.ResultMessage); err != nil {
		return fmt.Errorf("%w: result message: %v", domain.ErrDeserialisation, err)
	}
	if err := json.Unmarshal(body, &m.body); err != nil {
		return fmt.Errorf("%w: result message: %v", domain.ErrDeserialisation, err)
	}

	kind, rawTag, ok := m.Identify()
	if !ok || (len(m.Handle) == 0 && len(m.Source) == 0) {
		collectLog.Debug("ignoring message with origin %q", m.Origin)
		return nil
	}
	if err := json.Unmarshal(rawTag, &m.tag); err != nil {
		return fmt.Errorf("%w: scan tag: %v", domain.ErrDeserialisation, err)
	}
	m.scanned = m.tag.ScanTime()
	if err := c.locate(&m); err != nil {
		return err
	}

	collectLog.Debug("%s message for %s (scanner %d)", kind, m.path, m.tag.Scanner.PK)
	switch kind {
	case domain.KindMatches:
		return c.matches(ctx, &m)
	case domain.KindProblem:
		return c.problem(ctx, &m)
	case domain.KindMetadata:
		return c.metadata(ctx, &m)
	}
	return nil
}

// locate decodes the message's Handle, or its Source when it has none, and
// computes the report path.
func (c *ResultCollector) locate(m *message) error {
	if len(m.Handle) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(m.Handle, &obj); err != nil {
			return fmt.Errorf("%w: handle: %v", domain.ErrDeserialisation, err)
		}
		h, err := c.dec.HandleFromJSON(obj)
		if err != nil {
			return err
		}
		m.handle = h
		m.top = driven.TopSource(h)
		m.path = domain.CrunchHash(h.Censor())
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal(m.Source, &obj); err != nil {
		return fmt.Errorf("%w: source: %v", domain.ErrDeserialisation, err)
	}
	s, err := c.dec.SourceFromJSON(obj)
	if err != nil {
		return err
	}
	m.top = s
	for m.top.Handle() != nil {
		m.top = m.top.Handle().Source()
	}
	m.path = domain.CrunchHash(s.Censor())
	return nil
}

// previous returns the existing report for the message's object, or nil.
func (c *ResultCollector) previous(ctx context.Context, m *message) (*domain.DocumentReport, error) {
	r, err := c.store.GetReport(ctx, m.tag.Scanner.PK, m.path)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return r, err
}

// fresh returns a new report for the message's object.
func (c *ResultCollector) fresh(m *message) *domain.DocumentReport {
	return &domain.DocumentReport{ScannerJobPK: m.tag.Scanner.PK, Path: m.path}
}

// stamp copies the scan tag's details into r.
func (c *ResultCollector) stamp(r *domain.DocumentReport, m *message, rawTag json.RawMessage) {
	r.ScanTime = m.scanned
	r.RawScanTag = rawTag
	r.ScannerName = m.tag.Scanner.Name
	r.OnlyNotifySuperadmin = m.tag.Scanner.Test
	r.Organisation = m.tag.Organisation.UUID
}

func (c *ResultCollector) resolve(r *domain.DocumentReport, status domain.ResolutionStatus) {
	now := c.now()
	r.ResolutionStatus = &status
	r.ResolutionTime = &now
	r.RawProblem = nil
}

func (c *ResultCollector) matches(ctx context.Context, m *message) error {
	prev, err := c.previous(ctx, m)
	if err != nil {
		return err
	}
	_, rawTag, _ := m.Identify()

	// A report from this very scan is being rewritten, not superseded.
	if prev != nil && !prev.Resolved() && !prev.ScanTime.Equal(m.scanned) {
		switch {
		case !m.Matched && m.OnlyLastModified():
			collectLog.Debug("%s not changed: updating scan timestamp", m.path)
			prev.ScanTime = m.scanned
			prev.RawProblem = nil
			return c.store.SaveReport(ctx, prev)
		case !m.Matched:
			collectLog.Debug("%s changed and no longer matches: edited", m.path)
			c.resolve(prev, domain.ResolutionEdited)
			return c.store.SaveReport(ctx, prev)
		default:
			collectLog.Debug("%s changed but still matches: edited", m.path)
			c.resolve(prev, domain.ResolutionEdited)
		}
	}
	if !m.Matched {
		return nil
	}
	if m.handle == nil {
		return fmt.Errorf("%w: matches message without a handle", domain.ErrDeserialisation)
	}

	r := prev
	if r == nil {
		r = c.fresh(m)
	}
	m.SortMatchesByProbability()
	m.body["matches"] = m.Matches
	rawMatches, err := json.Marshal(m.body)
	if err != nil {
		return err
	}

	c.stamp(r, m, rawTag)
	r.SourceType = m.top.Type()
	r.Name = m.handle.PresentationName()
	r.SortKey = m.handle.SortKey()
	r.Sensitivity = m.Sensitivity()
	r.Probability = m.Probability()
	r.RawMatches = rawMatches
	r.RawProblem = nil
	r.ResolutionStatus = nil
	r.ResolutionTime = nil
	return c.store.SaveReport(ctx, r)
}

func (c *ResultCollector) problem(ctx context.Context, m *message) error {
	prev, err := c.previous(ctx, m)
	if err != nil {
		return err
	}
	_, rawTag, _ := m.Identify()

	switch {
	case prev == nil && m.Missing:
		collectLog.Debug("%s is missing but unknown: dropping", m.path)
		return nil
	case prev != nil && m.Missing && unresolvedOrOther(prev):
		collectLog.Debug("%s deleted: removed", m.path)
		c.resolve(prev, domain.ResolutionRemoved)
		return c.store.SaveReport(ctx, prev)
	case prev != nil && m.Missing:
		return nil
	case prev != nil && prev.Resolved():
		if prev.ScanTime.Equal(m.scanned) {
			collectLog.Warn("duplicated problem message for %s in scan %s", m.path, m.tag.Time)
		}
		return nil
	}

	raw, err := json.Marshal(m.body)
	if err != nil {
		return err
	}
	r := prev
	if r == nil {
		r = c.fresh(m)
		c.stamp(r, m, rawTag)
		r.SourceType = m.top.Type()
		r.SortKey = "(source)"
		if m.handle != nil {
			r.Name = m.handle.PresentationName()
			r.SortKey = m.handle.SortKey()
		}
	}
	r.RawProblem = raw
	r.RawMatches = nil
	r.RawMetadata = nil
	return c.store.SaveReport(ctx, r)
}

func unresolvedOrOther(r *domain.DocumentReport) bool {
	return r.ResolutionStatus == nil || *r.ResolutionStatus == domain.ResolutionOther
}

func (c *ResultCollector) metadata(ctx context.Context, m *message) error {
	prev, err := c.previous(ctx, m)
	if err != nil {
		return err
	}
	_, rawTag, _ := m.Identify()

	r := prev
	if r == nil {
		r = c.fresh(m)
	}
	raw, err := json.Marshal(m.body)
	if err != nil {
		return err
	}

	lm := m.scanned
	if s, ok := m.Metadata[domain.MetaLastModified].(string); ok {
		if t, err := domain.ParseTime(s); err == nil {
			lm = t
		} else {
			collectLog.Warn("bad last-modified %q for %s: %v", s, m.path, err)
		}
	}
	if lm.IsZero() {
		lm = c.now()
	}

	c.stamp(r, m, rawTag)
	r.RawMetadata = raw
	r.DatasourceLastModified = &lm
	r.ResolutionStatus = nil
	r.ResolutionTime = nil
	r.Owner = owner(m.Metadata)
	if err := c.store.SaveReport(ctx, r); err != nil {
		return err
	}
	return c.link(ctx, r, m.Metadata)
}

// owner picks the most specific owner identity in metadata.
func owner(metadata map[string]any) string {
	var o string
	if email := metadataString(metadata, domain.MetaEmailAccount, domain.MetaMSGraphOwnerAccount); email != "" {
		o = email
	}
	if sid := metadataString(metadata, domain.MetaFilesystemOwnerSID); sid != "" {
		o = sid
	}
	if web := metadataString(metadata, domain.MetaWebDomain); web != "" {
		o = web
	}
	return o
}

func metadataString(metadata map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := metadata[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// link attaches r to every known Alias matching its owner metadata. A
// failure to link one alias is logged and does not stop the others.
func (c *ResultCollector) link(ctx context.Context, r *domain.DocumentReport, metadata map[string]any) error {
	lookups := []struct {
		aliasType domain.AliasType
		value     string
	}{
		{domain.AliasEmail, metadataString(metadata, domain.MetaEmailAccount, domain.MetaMSGraphOwnerAccount)},
		{domain.AliasSID, metadataString(metadata, domain.MetaFilesystemOwnerSID)},
		{domain.AliasGeneric, metadataString(metadata, domain.MetaWebDomain)},
	}
	for _, l := range lookups {
		if l.value == "" {
			continue
		}
		aliases, err := c.store.FindAliases(ctx, l.aliasType, l.value)
		if err != nil {
			return err
		}
		for _, a := range aliases {
			if err := c.store.LinkAlias(ctx, r.ID, a.ID); err != nil {
				collectLog.Error("linking %s to alias %s: %v", r.Path, a.Value, err)
			}
		}
	}
	return nil
}
