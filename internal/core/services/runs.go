package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"spatialization-module/internal/core/domain"
)

// Pipeline runs a PipelineRequest to completion.
type Pipeline interface {
	Run(ctx context.Context, req domain.PipelineRequest) (*domain.RunReport, error)
}

// RunService executes pipeline runs in the background and keeps their state in
// memory for the lifetime of the process.
type RunService struct {
	pipeline Pipeline

	mu   sync.RWMutex
	runs map[uuid.UUID]*domain.Run
	done map[uuid.UUID]chan struct{}
	wg   sync.WaitGroup
}

func NewRunService(pipeline Pipeline) *RunService {
	return &RunService{
		pipeline: pipeline,
		runs:     make(map[uuid.UUID]*domain.Run),
		done:     make(map[uuid.UUID]chan struct{}),
	}
}

// Submit validates req and starts it. The run is detached from ctx: it keeps
// going after the submitting request returns.
func (s *RunService) Submit(ctx context.Context, req domain.PipelineRequest) (*domain.Run, error) {
	if req.Mode == "" {
		req.Mode = domain.JobModeTree
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	run := &domain.Run{
		ID:          uuid.New(),
		Status:      domain.RunStatusPending,
		SubmittedAt: time.Now().UTC(),
	}
	done := make(chan struct{})

	s.mu.Lock()
	s.runs[run.ID] = run
	s.done[run.ID] = done
	submitted := *run
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		s.execute(context.WithoutCancel(ctx), run.ID, req)
	}()

	return &submitted, nil
}

func (s *RunService) execute(ctx context.Context, id uuid.UUID, req domain.PipelineRequest) {
	s.setStatus(id, func(r *domain.Run) { r.Status = domain.RunStatusRunning })

	report, err := s.pipeline.Run(ctx, req)
	s.setStatus(id, func(r *domain.Run) {
		switch {
		case err != nil:
			r.Status = domain.RunStatusFailed
			r.Error = err.Error()
		case report.Failed():
			r.Status = domain.RunStatusFailed
			r.Error = "one or more units failed"
			r.Report = report
		default:
			r.Status = domain.RunStatusCompleted
			r.Report = report
		}
	})
	if err != nil {
		log.WithError(err).WithField("run", id).Error("Pipeline run rejected")
	}
}

func (s *RunService) setStatus(id uuid.UUID, fn func(r *domain.Run)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[id]; ok {
		fn(r)
	}
}

func (s *RunService) snapshot(r *domain.Run) *domain.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := *r
	return &cp
}

func (s *RunService) Get(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	s.mu.RLock()
	r, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return s.snapshot(r), nil
}

// List returns all runs, newest first.
func (s *RunService) List(ctx context.Context) ([]*domain.Run, error) {
	s.mu.RLock()
	out := make([]*domain.Run, 0, len(s.runs))
	for _, r := range s.runs {
		cp := *r
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}

// Wait blocks until the run finishes or ctx is done.
func (s *RunService) Wait(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	s.mu.RLock()
	done, ok := s.done[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	select {
	case <-done:
		return s.Get(ctx, id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown waits for in-flight runs.
func (s *RunService) Shutdown(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
