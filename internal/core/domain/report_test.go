package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultMessage_Identify(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		kind   MessageKind
		wantOK bool
	}{
		{"problem", `{"origin":"os2ds_problems","scan_tag":{"time":"x"}}`, KindProblem, true},
		{"metadata", `{"origin":"os2ds_metadata","scan_tag":{"time":"x"}}`, KindMetadata, true},
		{"matches", `{"origin":"os2ds_matches","scan_spec":{"scan_tag":{"time":"x"}}}`, KindMatches, true},
		{"matches without scan_spec", `{"origin":"os2ds_matches"}`, "", false},
		{"unknown", `{"origin":"os2ds_checkups","scan_tag":{}}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m ResultMessage
			require.NoError(t, json.Unmarshal([]byte(tt.body), &m))
			kind, tag, ok := m.Identify()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.kind, kind)
			if ok {
				assert.NotEmpty(t, tag)
			}
		})
	}
}

func TestResultMessage_ProbabilityAndSensitivity(t *testing.T) {
	body := `{
		"origin": "os2ds_matches",
		"matches": [
			{"rule": {"type": "cpr", "sensitivity": 1000},
			 "matches": [{"probability": 0.2, "sensitivity": 500}, {"probability": 0.9}]},
			{"rule": {"type": "regex"}, "matches": [{"probability": 0.5}]}
		]
	}`
	var m ResultMessage
	require.NoError(t, json.Unmarshal([]byte(body), &m))

	require.NotNil(t, m.Probability())
	assert.InDelta(t, 0.9, *m.Probability(), 1e-9)
	require.NotNil(t, m.Sensitivity())
	assert.Equal(t, 500, *m.Sensitivity())

	m.SortMatchesByProbability()
	assert.InDelta(t, 0.9, m.Matches[0].Matches[0]["probability"], 1e-9)
}

func TestResultMessage_NoMatches(t *testing.T) {
	var m ResultMessage
	assert.Nil(t, m.Probability())
	assert.Nil(t, m.Sensitivity())
	assert.False(t, m.OnlyLastModified())
}

func TestResultMessage_OnlyLastModified(t *testing.T) {
	m := ResultMessage{Matches: []MatchFragment{{Rule: map[string]any{"type": "last-modified"}}}}
	assert.True(t, m.OnlyLastModified())
}

func TestScanTag_ScanTime(t *testing.T) {
	tag := ScanTag{Time: "2024-01-02T03:04:05+0000"}
	assert.Equal(t, 2024, tag.ScanTime().Year())
	assert.True(t, ScanTag{}.ScanTime().IsZero())
}

func TestResolutionStatus_String(t *testing.T) {
	assert.Equal(t, "edited", ResolutionEdited.String())
	assert.Equal(t, "removed", ResolutionRemoved.String())
	assert.Equal(t, "unknown", ResolutionStatus(99).String())
}
