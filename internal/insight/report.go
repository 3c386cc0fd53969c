package insight

// Status represents overall patient trajectory health.
type Status string

const (
	StatusOK       Status = "OK"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
)

// Severity grades a single signal.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeveritySuccess  Severity = "success"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Signal is one finding about the current trajectory.
type Signal struct {
	Severity       Severity `json:"severity"`
	Metric         string   `json:"metric,omitempty"`
	Title          string   `json:"title"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation,omitempty"`
	ActionRequired bool     `json:"action_required"`
}

// Report is the advisory summary of a snapshot.
type Report struct {
	OverallStatus   Status   `json:"overall_status"`
	OverallHealth   int      `json:"overall_health"`
	Summary         string   `json:"summary"`
	Signals         []Signal `json:"signals"`
	Recommendations []string `json:"recommendations"`
}

// Count returns the number of signals with severity s.
func (r Report) Count(s Severity) int {
	n := 0
	for _, sig := range r.Signals {
		if sig.Severity == s {
			n++
		}
	}
	return n
}
