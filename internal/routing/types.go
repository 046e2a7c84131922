package routing

import "errors"

// TaskType names the processing mode a caller can pin a request to.
type TaskType string

const (
	TaskAnalytics     TaskType = "analytics"
	TaskSummarization TaskType = "summarization"
	TaskGeneral       TaskType = "general"
	TaskAuto          TaskType = "auto"
)

// ParseTaskType maps a request string onto a TaskType, defaulting to auto.
func ParseTaskType(s string) TaskType {
	switch TaskType(s) {
	case TaskAnalytics, TaskSummarization, TaskGeneral:
		return TaskType(s)
	default:
		return TaskAuto
	}
}

// Fixed task ↔ endpoint naming convention.
const (
	EndpointAnalytics     = "/analytics"
	EndpointSummarization = "/summarization"
	EndpointGeneral       = "/general"
)

var (
	ErrProfileNotFound = errors.New("no profile registered for task")
	ErrNoProfiles      = errors.New("no endpoint profiles registered")
)

// EndpointProfile describes one processing persona: where a request lands,
// which model answers it, and the keywords that attract requests to it.
type EndpointProfile struct {
	Endpoint     string   `json:"endpoint"`
	AgentID      string   `json:"agent_id,omitempty"`
	Name         string   `json:"name,omitempty"`
	Description  string   `json:"description,omitempty"`
	Indicators   []string `json:"indicators"`
	Priority     int      `json:"priority"`
	Model        string   `json:"model,omitempty"`
	Temperature  float64  `json:"temperature,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty"`
	UpdatedAt    string   `json:"updated_at,omitempty"`
}

// Trace records how each profile scored during one routing decision. It is
// built fresh per request and never persisted.
type Trace struct {
	Scores   map[string]float64  `json:"scores"`
	Reasons  map[string][]string `json:"reasons"`
	Selected string              `json:"selected"`
	Fallback string              `json:"fallback,omitempty"`
}

func newTrace() Trace {
	return Trace{
		Scores:  map[string]float64{},
		Reasons: map[string][]string{},
	}
}

func (t *Trace) add(endpoint string, points float64, reason string) {
	t.Scores[endpoint] += points
	t.Reasons[endpoint] = append(t.Reasons[endpoint], reason)
}
