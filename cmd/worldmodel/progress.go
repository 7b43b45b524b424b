package main

import (
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/fyrsmithlabs/worldmodel/internal/http"
	"github.com/fyrsmithlabs/worldmodel/internal/orchestrator"
)

// progressBars shows one bar per phase. A nil *progressBars is a no-op.
type progressBars struct {
	w     io.Writer
	phase orchestrator.Phase
	bar   *progressbar.ProgressBar
}

func newProgressBars(w io.Writer) *progressBars {
	return &progressBars{w: w}
}

func (p *progressBars) update(pr orchestrator.PhaseProgress) {
	if p == nil {
		return
	}
	if pr.Phase != p.phase || p.bar == nil {
		p.finish()
		p.phase = pr.Phase
		p.bar = p.newBar(pr)
	}
	switch pr.Status {
	case orchestrator.StatusCompleted:
		_ = p.bar.Set(pr.Total)
		p.finish()
	default:
		_ = p.bar.Set(pr.Current)
	}
}

func (p *progressBars) newBar(pr orchestrator.PhaseProgress) *progressbar.ProgressBar {
	total := int64(pr.Total)
	if total <= 0 {
		total = -1 // spinner
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(string(pr.Phase)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(p.w, "\n") }),
	)
}

func (p *progressBars) finish() {
	if p == nil || p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	p.bar = nil
}

// statusTracker keeps the last progress report for the status endpoint,
// which reads it from server goroutines.
type statusTracker struct {
	mu     sync.Mutex
	status http.StatusResponse
}

func newStatusTracker(env string) *statusTracker {
	return &statusTracker{status: http.StatusResponse{
		Status:  "starting",
		Version: version,
		Env:     env,
		Phase:   string(orchestrator.PhaseSetup),
	}}
}

func (s *statusTracker) update(p orchestrator.PhaseProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Phase = string(p.Phase)
	s.status.Current = p.Current
	s.status.Total = p.Total
	s.status.Progress = p.Percentage()
	if p.Status == orchestrator.StatusFailed {
		s.status.Status = "failed"
	} else {
		s.status.Status = "running"
	}
}

func (s *statusTracker) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.status.Status = "failed"
		return
	}
	s.status.Status = "completed"
	s.status.Phase = string(orchestrator.PhaseDone)
}

func (s *statusTracker) snapshot() http.StatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
