// Package routing scores endpoint profiles against an inbound payload and
// picks the one that should handle the request.
package routing

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Route decides which endpoint profile handles a request. Explicit tasks map
// straight onto their conventional endpoint; auto requests are scored. The
// only hard failure is an explicit task with no matching profile, or an empty
// profile list.
func Route(rawData, question string, task TaskType, profiles []EndpointProfile) (endpoint string, trace Trace, err error) {
	trace = newTrace()

	if len(profiles) == 0 {
		return "", trace, ErrNoProfiles
	}

	if task != TaskAuto {
		target := taskEndpoint(task)
		for _, p := range profiles {
			if p.Endpoint == target {
				trace.Selected = target
				trace.Reasons[target] = []string{fmt.Sprintf("explicit task %q", task)}
				return target, trace, nil
			}
		}
		return "", trace, fmt.Errorf("%w: %s", ErrProfileNotFound, task)
	}

	// Scoring must never take the request down with it. A malformed profile
	// or payload degrades to the default endpoint instead.
	defer func() {
		if r := recover(); r != nil {
			endpoint = fallbackEndpoint(profiles)
			trace.Selected = endpoint
			trace.Fallback = fmt.Sprintf("internal routing error: %v", r)
			err = nil
		}
	}()

	payload := parsePayload(rawData)
	if question == "" {
		question = payload.question
	}
	searchText := buildSearchText(question, payload)

	for _, p := range profiles {
		trace.Scores[p.Endpoint] = 0

		if question != "" && p.Endpoint == EndpointGeneral {
			trace.add(p.Endpoint, 100, "question present: +100")
		}

		if payload.dashboard {
			if payload.worksheets <= 2 && p.Endpoint == EndpointSummarization {
				trace.add(p.Endpoint, 10, fmt.Sprintf("%d worksheet(s): +10", payload.worksheets))
			}
			if payload.worksheets > 2 && p.Endpoint == EndpointAnalytics {
				trace.add(p.Endpoint, 10, fmt.Sprintf("%d worksheets: +10", payload.worksheets))
			}
		}

		if matched := matchIndicators(p.Indicators, searchText); matched > 0 {
			trace.add(p.Endpoint, float64(5*matched), fmt.Sprintf("%d indicator(s) matched: +%d", matched, 5*matched))
		}

		bias := math.Max(0, float64(1000-p.Priority)/10)
		trace.add(p.Endpoint, bias, fmt.Sprintf("priority %d bias: +%.1f", p.Priority, bias))
	}

	selected := selectBest(profiles, trace.Scores)
	trace.Selected = selected
	return selected, trace, nil
}

func taskEndpoint(task TaskType) string {
	switch task {
	case TaskSummarization:
		return EndpointSummarization
	case TaskGeneral:
		return EndpointGeneral
	default:
		return EndpointAnalytics
	}
}

// fallbackEndpoint prefers the conventional analytics profile, then the first
// registered one.
func fallbackEndpoint(profiles []EndpointProfile) string {
	for _, p := range profiles {
		if p.Endpoint == EndpointAnalytics {
			return p.Endpoint
		}
	}
	if len(profiles) > 0 {
		return profiles[0].Endpoint
	}
	return ""
}

// payloadInfo is what the router needs to know about the raw payload. Parse
// failures leave everything zero-valued, which disables the shape heuristics.
type payloadInfo struct {
	dashboard      bool
	worksheets     int
	dashboardName  string
	worksheetNames []string
	question       string
}

func parsePayload(rawData string) payloadInfo {
	var info payloadInfo
	if strings.TrimSpace(rawData) == "" {
		return info
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(rawData), &parsed); err != nil {
		return info
	}

	if q, ok := parsed["question"].(string); ok {
		info.question = q
	}
	if name, ok := parsed["dashboardName"].(string); ok {
		info.dashboardName = name
	}

	worksheets, ok := parsed["worksheets"].([]interface{})
	if !ok {
		return info
	}
	info.dashboard = true
	info.worksheets = len(worksheets)
	for _, ws := range worksheets {
		if wsMap, ok := ws.(map[string]interface{}); ok {
			if name, ok := wsMap["name"].(string); ok {
				info.worksheetNames = append(info.worksheetNames, name)
			}
		}
	}
	return info
}

func buildSearchText(question string, payload payloadInfo) string {
	parts := []string{question, payload.dashboardName}
	parts = append(parts, payload.worksheetNames...)
	return strings.ToLower(strings.Join(parts, " "))
}

func matchIndicators(indicators []string, searchText string) int {
	matched := 0
	for _, indicator := range indicators {
		indicator = strings.ToLower(strings.TrimSpace(indicator))
		if indicator != "" && strings.Contains(searchText, indicator) {
			matched++
		}
	}
	return matched
}

// selectBest picks the highest score. Equal totals resolve by lowest priority
// number, then lexicographically smallest endpoint.
func selectBest(profiles []EndpointProfile, scores map[string]float64) string {
	ranked := make([]EndpointProfile, len(profiles))
	copy(ranked, profiles)

	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := scores[ranked[i].Endpoint], scores[ranked[j].Endpoint]
		if si != sj {
			return si > sj
		}
		if ranked[i].Priority != ranked[j].Priority {
			return ranked[i].Priority < ranked[j].Priority
		}
		return ranked[i].Endpoint < ranked[j].Endpoint
	})

	return ranked[0].Endpoint
}
