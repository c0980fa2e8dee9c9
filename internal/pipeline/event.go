// Package pipeline orchestrates the multi-agent generation loop: research,
// draft, critique, revise and dedupe, streamed to the caller as events.
package pipeline

import "time"

// EventType classifies stream events.
type EventType string

const (
	// EventProgress is a human-readable stage update.
	EventProgress EventType = "progress"
	// EventQuestion carries one approved question.
	EventQuestion EventType = "question"
	// EventDone closes a successful job and carries the summary.
	EventDone EventType = "done"
	// EventError reports a failure. Attempt-level errors are followed by
	// more events; a terminal error is the last event of the stream.
	EventError EventType = "error"
)

// Stages reported in progress events.
const (
	StageInit     = "init"
	StageStyle    = "style"
	StageResearch = "research"
	StageDraft    = "draft"
	StageCritic   = "critic"
	StageRevise   = "revise"
	StageApprove  = "approve"
	StageReject   = "reject"
	StageSkip     = "skip"
	StageSuccess  = "success"
	StageError    = "error"
)

// Event is one item on a job's stream.
type Event struct {
	Type      EventType `json:"type"`
	JobID     string    `json:"job_id"`
	Stage     string    `json:"stage,omitempty"`
	Message   string    `json:"message,omitempty"`
	Question  *Question `json:"question,omitempty"`
	Summary   *Summary  `json:"summary,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary describes a finished job. Generated below Requested is a normal
// outcome when the attempt budget runs out.
type Summary struct {
	Requested   int `json:"requested"`
	Generated   int `json:"generated"`
	MultiSelect int `json:"multi_select"`
	Attempts    int `json:"attempts"`
}
