package web

import (
	"sync"
	"time"

	"stemprep/internal/pipeline"
)

// RunStatus is the state of the monitored run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
)

// Event is pushed to websocket subscribers.
type Event struct {
	Type   string               `json:"type"`
	Status RunStatus            `json:"status"`
	RunID  string               `json:"run_id,omitempty"`
	Done   int                  `json:"done"`
	Total  int                  `json:"total"`
	File   *pipeline.FileReport `json:"file,omitempty"`
}

const (
	EventStart = "start"
	EventFile  = "file"
	EventDone  = "done"
)

// Monitor follows one batch run and fans its progress out to subscribers.
type Monitor struct {
	mu         sync.RWMutex
	report     *pipeline.BatchReport
	status     RunStatus
	done       int
	total      int
	finishedAt *time.Time
	listeners  []chan Event
}

func NewMonitor() *Monitor {
	return &Monitor{status: StatusPending}
}

// Hooks returns pipeline hooks that feed the monitor before calling next.
func (m *Monitor) Hooks(next pipeline.Hooks) pipeline.Hooks {
	return pipeline.Hooks{
		OnStart: func(r *pipeline.BatchReport) {
			m.Start(r)
			if next.OnStart != nil {
				next.OnStart(r)
			}
		},
		OnFile: func(f pipeline.FileReport) {
			m.FileDone(f)
			if next.OnFile != nil {
				next.OnFile(f)
			}
		},
		OnWarning: next.OnWarning,
	}
}

// Start attaches the live report of a run.
func (m *Monitor) Start(r *pipeline.BatchReport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.report = r
	m.status = StatusRunning
	m.total = r.Total
	m.notifyListeners(m.event(EventStart, nil))
}

// FileDone records one finished file.
func (m *Monitor) FileDone(f pipeline.FileReport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.done++
	m.notifyListeners(m.event(EventFile, &f))
}

// Finish marks the run complete and releases subscribers.
func (m *Monitor) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == StatusCompleted {
		return
	}
	now := time.Now()
	m.finishedAt = &now
	m.status = StatusCompleted
	m.notifyListeners(m.event(EventDone, nil))
}

// Snapshot returns a copy of the report so far, nil before the run starts.
func (m *Monitor) Snapshot() (*pipeline.BatchReport, RunStatus) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.report == nil {
		return nil, m.status
	}
	return m.report.Snapshot(), m.status
}

// State is the event a new subscriber starts from.
func (m *Monitor) State() Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.event("state", nil)
}

// Subscribe subscribes to run events. Slow subscribers miss events rather
// than stalling workers.
func (m *Monitor) Subscribe() <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Event, 64)
	m.listeners = append(m.listeners, ch)
	return ch
}

// Unsubscribe removes a listener
func (m *Monitor) Unsubscribe(ch <-chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, listener := range m.listeners {
		if listener == ch {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			close(listener)
			break
		}
	}
}

func (m *Monitor) event(typ string, f *pipeline.FileReport) Event {
	e := Event{Type: typ, Status: m.status, Done: m.done, Total: m.total, File: f}
	if m.report != nil {
		e.RunID = m.report.RunID
	}
	return e
}

func (m *Monitor) notifyListeners(e Event) {
	for _, ch := range m.listeners {
		select {
		case ch <- e:
		default:
		}
	}
}
