package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func defaultProfiles() []EndpointProfile {
	return []EndpointProfile{
		{
			Endpoint:   EndpointAnalytics,
			Priority:   10,
			Indicators: []string{"trend", "analysis", "correlation", "insight", "detail", "breakdown"},
		},
		{
			Endpoint:   EndpointSummarization,
			Priority:   20,
			Indicators: []string{"summary", "overview", "report", "brief"},
		},
		{
			Endpoint:   EndpointGeneral,
			Priority:   30,
			Indicators: []string{"question", "query", "what", "why", "how", "when", "where"},
		},
	}
}

// ==========================
// Explicit Task Mapping
// ==========================

func TestRoute_ExplicitTask(t *testing.T) {
	tests := []struct {
		name     string
		task     TaskType
		expected string
	}{
		{"analytics", TaskAnalytics, EndpointAnalytics},
		{"summarization", TaskSummarization, EndpointSummarization},
		{"general", TaskGeneral, EndpointGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint, trace, err := Route("", "", tt.task, defaultProfiles())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, endpoint)
			assert.Equal(t, tt.expected, trace.Selected)
		})
	}
}

func TestRoute_ExplicitTaskMissingProfile(t *testing.T) {
	profiles := []EndpointProfile{{Endpoint: EndpointAnalytics, Priority: 10}}
	_, _, err := Route("", "", TaskGeneral, profiles)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestRoute_NoProfiles(t *testing.T) {
	_, _, err := Route("", "", TaskAuto, nil)
	assert.ErrorIs(t, err, ErrNoProfiles)
}

// ==========================
// Auto Scoring
// ==========================

func TestRoute_QuestionBoostsGeneral(t *testing.T) {
	payload := `{"question":"What drove sales?","worksheets":[{"name":"A","data":{}}]}`
	profiles := []EndpointProfile{
		{Endpoint: EndpointGeneral, Priority: 100},
		{Endpoint: EndpointAnalytics, Priority: 10},
	}

	endpoint, trace, err := Route(payload, "What drove sales?", TaskAuto, profiles)
	require.NoError(t, err)
	assert.Equal(t, EndpointGeneral, endpoint)
	assert.Greater(t, trace.Scores[EndpointGeneral], trace.Scores[EndpointAnalytics])
}

func TestRoute_QuestionReadFromPayload(t *testing.T) {
	payload := `{"question":"what happened last month?","worksheets":[]}`
	endpoint, _, err := Route(payload, "", TaskAuto, defaultProfiles())
	require.NoError(t, err)
	assert.Equal(t, EndpointGeneral, endpoint)
}

func TestRoute_FewWorksheetsFavorSummarization(t *testing.T) {
	payload := `{"worksheets":[{"name":"Only Sheet","data":{}}]}`
	profiles := []EndpointProfile{
		{Endpoint: EndpointSummarization, Priority: 100},
		{Endpoint: EndpointAnalytics, Priority: 10},
	}

	// summarization: +10 heuristic + 90 bias = 100; analytics: 99 bias.
	endpoint, trace, err := Route(payload, "", TaskAuto, profiles)
	require.NoError(t, err)
	assert.Equal(t, EndpointSummarization, endpoint)
	assert.InDelta(t, 100, trace.Scores[EndpointSummarization], 0.001)
	assert.InDelta(t, 99, trace.Scores[EndpointAnalytics], 0.001)
}

func TestRoute_ManyWorksheetsFavorAnalytics(t *testing.T) {
	payload := `{"worksheets":[{"name":"a"},{"name":"b"},{"name":"c"}]}`
	endpoint, trace, err := Route(payload, "", TaskAuto, defaultProfiles())
	require.NoError(t, err)
	assert.Equal(t, EndpointAnalytics, endpoint)
	assert.Contains(t, trace.Reasons[EndpointAnalytics][0], "worksheets")
}

func TestRoute_IndicatorMatching(t *testing.T) {
	payload := `{"dashboardName":"Quarterly Overview","worksheets":[{"name":"Summary Sheet"},{"name":"b"},{"name":"c"}]}`
	profiles := []EndpointProfile{
		{Endpoint: EndpointAnalytics, Priority: 100, Indicators: []string{"trend"}},
		{Endpoint: EndpointSummarization, Priority: 100, Indicators: []string{"summary", "overview", "sheet"}},
	}

	// Three indicator hits (+15) outscore analytics' +10 worksheet heuristic.
	endpoint, trace, err := Route(payload, "", TaskAuto, profiles)
	require.NoError(t, err)
	assert.Equal(t, EndpointSummarization, endpoint)
	assert.InDelta(t, 105, trace.Scores[EndpointSummarization], 0.001)
}

func TestRoute_IndicatorMatchIsCaseInsensitive(t *testing.T) {
	profiles := []EndpointProfile{
		{Endpoint: EndpointAnalytics, Priority: 100, Indicators: []string{"TREND"}},
		{Endpoint: EndpointSummarization, Priority: 100},
	}
	endpoint, _, err := Route("", "show me the Trend please", TaskAuto, profiles)
	require.NoError(t, err)
	assert.Equal(t, EndpointAnalytics, endpoint)
}

func TestRoute_PriorityBiasAlwaysApplies(t *testing.T) {
	profiles := []EndpointProfile{
		{Endpoint: "/a", Priority: 10},
		{Endpoint: "/b", Priority: 500},
	}
	endpoint, trace, err := Route("not even json", "", TaskAuto, profiles)
	require.NoError(t, err)
	assert.Equal(t, "/a", endpoint)
	assert.InDelta(t, 99, trace.Scores["/a"], 0.001)
	assert.InDelta(t, 50, trace.Scores["/b"], 0.001)
}

func TestRoute_PriorityBiasNeverNegative(t *testing.T) {
	profiles := []EndpointProfile{
		{Endpoint: "/a", Priority: 2000},
		{Endpoint: "/b", Priority: 1000},
	}
	_, trace, err := Route("", "", TaskAuto, profiles)
	require.NoError(t, err)
	assert.Equal(t, 0.0, trace.Scores["/a"])
	assert.Equal(t, 0.0, trace.Scores["/b"])
}

func TestRoute_MalformedPayloadSkipsHeuristics(t *testing.T) {
	endpoint, trace, err := Route(`{"worksheets": "oops"`, "", TaskAuto, defaultProfiles())
	require.NoError(t, err)
	assert.Equal(t, EndpointAnalytics, endpoint)
	for _, reasons := range trace.Reasons {
		for _, r := range reasons {
			assert.NotContains(t, r, "worksheet")
		}
	}
}

// ==========================
// Tie-Breaking
// ==========================

func TestRoute_TieBreakLowestPriorityThenEndpoint(t *testing.T) {
	profiles := []EndpointProfile{
		{Endpoint: "/z", Priority: 50},
		{Endpoint: "/m", Priority: 50},
		{Endpoint: "/a", Priority: 50},
	}
	endpoint, _, err := Route("", "", TaskAuto, profiles)
	require.NoError(t, err)
	assert.Equal(t, "/a", endpoint)

	profiles[1].Priority = 40
	endpoint, _, err = Route("", "", TaskAuto, profiles)
	require.NoError(t, err)
	assert.Equal(t, "/m", endpoint)
}

func TestRoute_TotalForAnyProfileSet(t *testing.T) {
	profiles := defaultProfiles()
	endpoint, _, err := Route("", "", TaskAuto, profiles)
	require.NoError(t, err)

	found := false
	for _, p := range profiles {
		if p.Endpoint == endpoint {
			found = true
		}
	}
	assert.True(t, found)
}
