package orchestrator

import (
	"fmt"
	"slices"
	"time"
)

// Phase is one stage of a training run.
type Phase string

const (
	// PhaseSetup builds the collaborators. No environment interaction.
	PhaseSetup Phase = "setup"

	// PhasePrefill fills the replay buffer with experience.
	PhasePrefill Phase = "prefill"

	// PhasePretrain trains on the prefilled buffer only.
	PhasePretrain Phase = "pretrain"

	// PhaseOnline interleaves collection, training, logging and evaluation.
	PhaseOnline Phase = "online"

	// PhaseZeroShot trains and evaluates without collecting experience.
	PhaseZeroShot Phase = "zero_shot"

	// PhaseDone is terminal.
	PhaseDone Phase = "done"
)

func (p Phase) String() string { return string(p) }

// Phases returns the phases Run executes, in order.
func Phases(zeroShot bool) []Phase {
	if zeroShot {
		return []Phase{PhaseZeroShot}
	}
	return []Phase{PhasePrefill, PhasePretrain, PhaseOnline}
}

// PhaseStatus represents the completion status of a phase
type PhaseStatus string

const (
	StatusPending    PhaseStatus = "pending"
	StatusInProgress PhaseStatus = "in_progress"
	StatusCompleted  PhaseStatus = "completed"
	StatusFailed     PhaseStatus = "failed"
)

// PhaseResult captures the outcome of a phase execution
type PhaseResult struct {
	Phase       Phase       `json:"phase"`
	Status      PhaseStatus `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at,omitempty"`
	Steps       int         `json:"steps"`
	Error       string      `json:"error,omitempty"`
}

// Duration is how long the phase ran.
func (r *PhaseResult) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// RunState is the bookkeeping of one run.
type RunState struct {
	Phase     Phase                  `json:"current_phase"`
	Status    PhaseStatus            `json:"status"`
	Results   map[Phase]*PhaseResult `json:"results"`
	StartedAt time.Time              `json:"started_at"`

	EnvSteps   int `json:"env_steps"`
	Resets     int `json:"resets"`
	Flushes    int `json:"flushes"`
	TrainCalls int `json:"train_calls"`
	Updates    int `json:"updates"`
}

// NewRunState creates a state positioned at setup.
func NewRunState() *RunState {
	return &RunState{
		Phase:     PhaseSetup,
		Status:    StatusPending,
		Results:   make(map[Phase]*PhaseResult),
		StartedAt: time.Now(),
	}
}

// Completed reports whether phase finished successfully.
func (s *RunState) Completed(phase Phase) bool {
	r, ok := s.Results[phase]
	return ok && r.Status == StatusCompleted
}

// CanTransition checks that next directly follows the current phase in
// order and that the current phase, unless it is setup, completed.
func (s *RunState) CanTransition(next Phase, order []Phase) error {
	nextIdx := slices.Index(order, next)
	if nextIdx == -1 {
		return fmt.Errorf("phase %s is not part of this run", next)
	}
	if s.Phase == PhaseSetup {
		if nextIdx != 0 {
			return fmt.Errorf("cannot transition from %s to %s: must start with %s", s.Phase, next, order[0])
		}
		return nil
	}
	curIdx := slices.Index(order, s.Phase)
	if curIdx == -1 {
		return fmt.Errorf("invalid current phase: %s", s.Phase)
	}
	if nextIdx != curIdx+1 {
		return fmt.Errorf("cannot transition from %s to %s: must follow sequential order", s.Phase, next)
	}
	if !s.Completed(s.Phase) {
		return fmt.Errorf("cannot transition from %s: phase not completed", s.Phase)
	}
	return nil
}

// PhaseProgress reports progress during execution
type PhaseProgress struct {
	Phase   Phase       `json:"phase"`
	Status  PhaseStatus `json:"status"`
	Message string      `json:"message,omitempty"`
	Current int         `json:"current"`
	Total   int         `json:"total"`
}

// Percentage returns progress in [0, 100].
func (p PhaseProgress) Percentage() int {
	if p.Total <= 0 {
		return 100
	}
	pct := p.Current * 100 / p.Total
	return min(max(pct, 0), 100)
}

// ProgressCallback receives progress updates during execution
type ProgressCallback func(progress PhaseProgress)
