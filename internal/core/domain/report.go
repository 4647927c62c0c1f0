package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// Message origins of scanner results.
const (
	OriginMatches  = "os2ds_matches"
	OriginProblems = "os2ds_problems"
	OriginMetadata = "os2ds_metadata"
)

// MessageKind classifies a result message.
type MessageKind string

// Result message kinds.
const (
	KindMatches  MessageKind = "matches"
	KindProblem  MessageKind = "problem"
	KindMetadata MessageKind = "metadata"
)

// LastModifiedRuleType is the rule type label whose lone fragment means
// "the object has not changed since the previous scan".
const LastModifiedRuleType = "last-modified"

// ScannerRef identifies the scanner job a result belongs to.
type ScannerRef struct {
	PK   int    `json:"pk"`
	Name string `json:"name"`
	Test bool   `json:"test,omitempty"`
}

// OrganisationRef identifies the organisation owning a scanner.
type OrganisationRef struct {
	UUID string `json:"uuid"`
	Name string `json:"name,omitempty"`
}

// ScanTag identifies one run of a scanner.
type ScanTag struct {
	Time         string          `json:"time"`
	Scanner      ScannerRef      `json:"scanner"`
	Organisation OrganisationRef `json:"organisation"`
}

// ScanTime parses Time, returning the zero time if it is absent or invalid.
func (t ScanTag) ScanTime() time.Time {
	ts, err := ParseTime(t.Time)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// MatchFragment is the outcome of one rule applied to one object.
type MatchFragment struct {
	Rule    map[string]any   `json:"rule"`
	Matches []map[string]any `json:"matches"`
}

// RuleType returns the rule's type label.
func (f MatchFragment) RuleType() string {
	s, _ := f.Rule["type"].(string)
	return s
}

// ScanSpec carries the scan tag of a matches message.
type ScanSpec struct {
	ScanTag json.RawMessage `json:"scan_tag"`
}

// ResultMessage is a scanner result as it arrives at the collector. Only
// the fields relevant to its origin are populated. Handles and Sources are
// kept raw; the collector decodes them through the Source registry.
type ResultMessage struct {
	Origin   string          `json:"origin"`
	ScanTag  json.RawMessage `json:"scan_tag,omitempty"`
	ScanSpec *ScanSpec       `json:"scan_spec,omitempty"`
	Handle   json.RawMessage `json:"handle,omitempty"`
	Source   json.RawMessage `json:"source,omitempty"`
	Matched  bool            `json:"matched,omitempty"`
	Matches  []MatchFragment `json:"matches,omitempty"`
	Missing  bool            `json:"missing,omitempty"`
	Message  string          `json:"message,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// Identify returns the message kind and its raw scan tag, or ok=false for
// messages of unknown origin.
func (m ResultMessage) Identify() (MessageKind, json.RawMessage, bool) {
	switch m.Origin {
	case OriginProblems:
		return KindProblem, m.ScanTag, len(m.ScanTag) > 0
	case OriginMetadata:
		return KindMetadata, m.ScanTag, len(m.ScanTag) > 0
	case OriginMatches:
		if m.ScanSpec == nil {
			return "", nil, false
		}
		return KindMatches, m.ScanSpec.ScanTag, len(m.ScanSpec.ScanTag) > 0
	}
	return "", nil, false
}

// OnlyLastModified reports whether the message's single fragment came from
// the last-modified rule.
func (m ResultMessage) OnlyLastModified() bool {
	return len(m.Matches) == 1 && m.Matches[0].RuleType() == LastModifiedRuleType
}

// Probability returns the highest match probability, or nil without matches.
func (m ResultMessage) Probability() *float64 {
	if len(m.Matches) == 0 {
		return nil
	}
	best := 0.0
	for _, f := range m.Matches {
		for _, match := range f.Matches {
			if p, ok := number(match["probability"]); ok && p > best {
				best = p
			}
		}
	}
	return &best
}

// Sensitivity returns the highest fragment sensitivity, where a match can
// only lower its rule's sensitivity. Nil without matches.
func (m ResultMessage) Sensitivity() *int {
	if len(m.Matches) == 0 {
		return nil
	}
	best := 0
	for _, f := range m.Matches {
		ruleSens, hasRule := number(f.Rule["sensitivity"])
		v := 0
		if hasRule {
			v = int(ruleSens)
			maxSub, found := 0.0, false
			for _, match := range f.Matches {
				if s, ok := number(match["sensitivity"]); ok && (!found || s > maxSub) {
					maxSub, found = s, true
				}
			}
			if found && int(maxSub) < v {
				v = int(maxSub)
			}
		}
		if v > best {
			best = v
		}
	}
	return &best
}

// SortMatchesByProbability orders every fragment's matches by descending
// probability.
func (m *ResultMessage) SortMatchesByProbability() {
	for _, f := range m.Matches {
		sort.SliceStable(f.Matches, func(i, j int) bool {
			pi, _ := number(f.Matches[i]["probability"])
			pj, _ := number(f.Matches[j]["probability"])
			return pi > pj
		})
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// ResolutionStatus records how a report was resolved.
type ResolutionStatus int

// Resolution statuses.
const (
	ResolutionOther ResolutionStatus = iota
	ResolutionEdited
	ResolutionMoved
	ResolutionRemoved
	ResolutionNoAction
)

// String returns the string representation.
func (s ResolutionStatus) String() string {
	switch s {
	case ResolutionOther:
		return "other"
	case ResolutionEdited:
		return "edited"
	case ResolutionMoved:
		return "moved"
	case ResolutionRemoved:
		return "removed"
	case ResolutionNoAction:
		return "no-action"
	default:
		return "unknown"
	}
}

// DocumentReport is the stored state of one scanned object for one scanner.
// (ScannerJobPK, Path) is unique.
type DocumentReport struct {
	ID           string
	ScannerJobPK int
	Path         string

	ScanTime             time.Time
	RawScanTag           json.RawMessage
	ScannerName          string
	OnlyNotifySuperadmin bool
	Organisation         string

	SourceType  string
	Name        string
	SortKey     string
	Sensitivity *int
	Probability *float64

	RawMatches  json.RawMessage
	RawProblem  json.RawMessage
	RawMetadata json.RawMessage

	DatasourceLastModified *time.Time
	Owner                  string

	ResolutionStatus *ResolutionStatus
	ResolutionTime   *time.Time
}

// Resolved returns true if the report carries a resolution status.
func (r *DocumentReport) Resolved() bool {
	return r.ResolutionStatus != nil
}

// AliasType is the kind of identity an Alias matches.
type AliasType string

// Alias types.
const (
	AliasEmail   AliasType = "email"
	AliasSID     AliasType = "SID"
	AliasGeneric AliasType = "generic"
)

// Alias links an identity value (email address, security identifier, web
// domain) to the reports it owns.
type Alias struct {
	ID    string
	Type  AliasType
	Value string
}

// Well-known owner metadata keys.
const (
	MetaEmailAccount        = "email-account"
	MetaMSGraphOwnerAccount = "msgraph-owner-account"
	MetaFilesystemOwnerSID  = "filesystem-owner-sid"
	MetaWebDomain           = "web-domain"
	MetaLastModified        = "last-modified"
)
