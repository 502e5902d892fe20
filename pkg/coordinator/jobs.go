package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/edp1096/circuit-engine/pkg/analysis"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type job struct {
	kind analysis.Kind
	done chan struct{}
	resp *Response
	err  error
}

// HistoryEntry records one finished request.
type HistoryEntry struct {
	ID       string
	Kind     analysis.Kind
	Status   Status
	Cached   bool
	Error    string
	Started  time.Time
	Duration time.Duration
}

// Submit starts req in the background and returns its id at once. The run
// is bound to ctx and to service_timeout. A finished job stays queryable
// while its id is within the last history_limit requests.
func (c *Coordinator) Submit(ctx context.Context, req Request) string {
	id := uuid.NewString()
	j := &job{kind: req.Spec.Kind, done: make(chan struct{})}

	c.mu.Lock()
	c.jobs[id] = j
	c.mu.Unlock()

	go func() {
		j.resp, j.err = c.execute(ctx, id, req)
		close(j.done)
	}()
	return id
}

// Status reports the state of a submitted request.
func (c *Coordinator) Status(id string) (Status, bool) {
	c.mu.Lock()
	j, ok := c.jobs[id]
	c.mu.Unlock()
	if !ok {
		return "", false
	}
	select {
	case <-j.done:
		if j.err != nil {
			return StatusFailed, true
		}
		return StatusCompleted, true
	default:
		return StatusRunning, true
	}
}

// Result returns a submitted request's outcome without blocking.
func (c *Coordinator) Result(id string) (*Response, error) {
	c.mu.Lock()
	j, ok := c.jobs[id]
	c.mu.Unlock()
	if !ok {
		return nil, ErrUnknownRequest
	}
	select {
	case <-j.done:
		return j.resp, j.err
	default:
		return nil, ErrPending
	}
}

// Wait blocks until a submitted request finishes or ctx ends.
func (c *Coordinator) Wait(ctx context.Context, id string) (*Response, error) {
	c.mu.Lock()
	j, ok := c.jobs[id]
	c.mu.Unlock()
	if !ok {
		return nil, ErrUnknownRequest
	}
	select {
	case <-j.done:
		return j.resp, j.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) record(id string, kind analysis.Kind, cached bool, start time.Time, err error) {
	h := HistoryEntry{
		ID:       id,
		Kind:     kind,
		Status:   StatusCompleted,
		Cached:   cached,
		Started:  start,
		Duration: time.Since(start),
	}
	if err != nil {
		h.Status = StatusFailed
		h.Error = err.Error()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, h)
	limit := c.cfg.Service.HistoryLimit
	if limit <= 0 || len(c.history) <= limit {
		return
	}
	cut := len(c.history) - limit
	for _, old := range c.history[:cut] {
		delete(c.jobs, old.ID)
	}
	c.history = append(c.history[:0:0], c.history[cut:]...)
}

// ClearJobs forgets every finished submitted request and returns how many
// were dropped. Running ones are kept.
func (c *Coordinator) ClearJobs() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for id, j := range c.jobs {
		select {
		case <-j.done:
			delete(c.jobs, id)
			n++
		default:
		}
	}
	return n
}

// History returns up to limit most recent entries, oldest first. limit <= 0
// returns everything retained.
func (c *Coordinator) History(limit int) []HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]HistoryEntry(nil), h...)
}
