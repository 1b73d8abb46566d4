package domain

import "time"

// FeedbackState tracks a feedback run through detect → fix → measure → verify.
type FeedbackState int

const (
	FeedbackDetecting FeedbackState = iota // Measuring the "before" window
	FeedbackFixing                         // Applying the affinity fix
	FeedbackMeasuring                      // Measuring the "after" window
	FeedbackVerified                       // Verdict computed
	FeedbackSkipped                        // Thresholds not met, nothing applied
	FeedbackFailed                         // Aborted on error
)

// String returns the state label.
func (s FeedbackState) String() string {
	switch s {
	case FeedbackDetecting:
		return "DETECTING"
	case FeedbackFixing:
		return "FIXING"
	case FeedbackMeasuring:
		return "MEASURING"
	case FeedbackVerified:
		return "VERIFIED"
	case FeedbackSkipped:
		return "SKIPPED"
	case FeedbackFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal returns true once the run can no longer change.
func (s FeedbackState) IsTerminal() bool {
	return s == FeedbackVerified || s == FeedbackSkipped || s == FeedbackFailed
}

// WindowStats summarizes one measurement window of a feedback run.
type WindowStats struct {
	ComponentMean    float64 `json:"component_mean_mw"`
	TotalMean        float64 `json:"total_mean_mw"`
	BurstFraction    float64 `json:"burst_fraction"`
	PerformanceShare float64 `json:"performance_share"`
	PowerTax         float64 `json:"power_tax_mw"`
	AR               float64 `json:"attribution_ratio"`
	Samples          int     `json:"samples"`
}

// FeedbackRun is the persisted record of one automated loop.
type FeedbackRun struct {
	ID          string        `json:"id"`
	Component   string        `json:"component"`
	PIDs        []int         `json:"pids,omitempty"`
	State       FeedbackState `json:"state"`
	Before      WindowStats   `json:"before"`
	After       *WindowStats  `json:"after,omitempty"`
	Verdict     string        `json:"verdict,omitempty"`
	Realization float64       `json:"realization"`
	Reverted    bool          `json:"reverted"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at,omitempty"`
}

// ParseFeedbackState is the inverse of String.
func ParseFeedbackState(s string) FeedbackState {
	for st := FeedbackDetecting; st <= FeedbackFailed; st++ {
		if st.String() == s {
			return st
		}
	}
	return FeedbackFailed
}
