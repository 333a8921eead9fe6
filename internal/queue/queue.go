// Package queue is the orchestrator run queue: a priority min-heap with
// FSM-validated transitions and a per-run retry budget. Every transition and
// retry decision appends an execution trace.
package queue

import (
	"container/heap"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/lonalabs/lona/internal/fsm"
	"github.com/lonalabs/lona/internal/model"
	"github.com/lonalabs/lona/internal/store"
)

// Trace events emitted by the queue.
const (
	EventEnqueued        = "run_enqueued"
	EventDequeued        = "run_dequeued"
	EventAwaitingTool    = "run_awaiting_tool"
	EventAwaitingConfirm = "run_awaiting_user_confirmation"
	EventResumed         = "run_resumed"
	EventCompleted       = "run_completed"
	EventFailed          = "run_failed"
	EventCancelled       = "run_cancelled"
)

type item struct {
	runID    string
	tenantID string
	userID   string
	priority int
	seq      int
}

// Lower priority first; FIFO within equal priority via insertion sequence.
type runHeap []*item

func (h runHeap) Len() int { return len(h) }
func (h runHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h runHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *runHeap) Push(x any)        { *h = append(*h, x.(*item)) }
func (h *runHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue schedules orchestrator runs.
type Queue struct {
	mu     sync.Mutex
	heap   runHeap
	seq    int
	st     *store.Store
	logger *slog.Logger
}

// New creates an empty queue backed by the store.
func New(st *store.Store, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{st: st, logger: logger}
	heap.Init(&q.heap)
	return q
}

func transitionError(err error) *model.PlatformError {
	return model.NewPlatformError(model.ErrCodeInvalidTransition, http.StatusConflict, err.Error())
}

func (q *Queue) trace(rctx model.RequestContext, run model.OrchestratorRun, event string,
	from model.RunState, metadata map[string]any) {
	q.st.AppendTrace(model.ExecutionTrace{
		RunID:     run.ID,
		Event:     event,
		Step:      run.Attempts,
		FromState: from,
		ToState:   run.State,
		RequestID: rctx.RequestID,
		Metadata:  metadata,
		TenantID:  run.TenantID,
		UserID:    run.UserID,
	})
}

// move validates and applies a single FSM transition on a stored run.
func (q *Queue) move(rctx model.RequestContext, runID string, to model.RunState,
	event string, metadata map[string]any, mutate func(*model.OrchestratorRun)) (model.OrchestratorRun, error) {

	run, err := q.st.GetRun(rctx, runID)
	if err != nil {
		return model.OrchestratorRun{}, model.NotFound(model.ErrCodeRunNotFound, runID)
	}
	from := run.State
	if _, err := fsm.OrchestratorTransition(from, to); err != nil {
		return model.OrchestratorRun{}, transitionError(err)
	}

	updated, err := q.st.UpdateRun(rctx, runID, func(r *model.OrchestratorRun) {
		r.State = to
		if mutate != nil {
			mutate(r)
		}
	})
	if err != nil {
		return model.OrchestratorRun{}, model.Internal(err)
	}
	q.trace(rctx, updated, event, from, metadata)
	return updated, nil
}

// Enqueue accepts a new run and schedules it.
func (q *Queue) Enqueue(rctx model.RequestContext, req model.EnqueueRunRequest) (model.OrchestratorRun, error) {
	run := q.st.CreateRun(rctx, model.OrchestratorRun{
		State:    model.RunReceived,
		Priority: req.Priority,
		Intent:   req.Intent,
		Metadata: req.Metadata,
	})

	queued, err := q.move(rctx, run.ID, model.RunQueued, EventEnqueued, nil, nil)
	if err != nil {
		return model.OrchestratorRun{}, err
	}

	q.mu.Lock()
	q.seq++
	heap.Push(&q.heap, &item{
		runID:    run.ID,
		tenantID: rctx.TenantID,
		userID:   rctx.UserID,
		priority: req.Priority,
		seq:      q.seq,
	})
	q.mu.Unlock()

	q.logger.Info("run enqueued", "runId", run.ID, "priority", req.Priority,
		"tenantId", rctx.TenantID, "requestId", rctx.RequestID)
	return queued, nil
}

// DequeueNext pops the highest-priority queued run and moves it to executing.
// Runs cancelled while waiting are skipped. Returns false when the queue is
// drained.
func (q *Queue) DequeueNext() (model.OrchestratorRun, bool) {
	for {
		q.mu.Lock()
		if q.heap.Len() == 0 {
			q.mu.Unlock()
			return model.OrchestratorRun{}, false
		}
		it := heap.Pop(&q.heap).(*item)
		q.mu.Unlock()

		rctx := model.RequestContext{TenantID: it.tenantID, UserID: it.userID}
		run, err := q.st.GetRun(rctx, it.runID)
		if err != nil || run.State != model.RunQueued {
			continue
		}
		executing, err := q.move(rctx, it.runID, model.RunExecuting, EventDequeued, nil,
			func(r *model.OrchestratorRun) { r.Attempts++ })
		if err != nil {
			continue
		}
		return executing, true
	}
}

// MarkAwaitingTool suspends an executing run on a tool call.
func (q *Queue) MarkAwaitingTool(rctx model.RequestContext, runID string) (model.OrchestratorRun, error) {
	return q.move(rctx, runID, model.RunAwaitingTool, EventAwaitingTool, nil, nil)
}

// MarkAwaitingUserConfirmation suspends an executing run on a confirmation.
func (q *Queue) MarkAwaitingUserConfirmation(rctx model.RequestContext, runID string) (model.OrchestratorRun, error) {
	return q.move(rctx, runID, model.RunAwaitingConfirm, EventAwaitingConfirm, nil, nil)
}

// Resume returns a suspended run to executing.
func (q *Queue) Resume(rctx model.RequestContext, runID string) (model.OrchestratorRun, error) {
	return q.move(rctx, runID, model.RunExecuting, EventResumed, nil, nil)
}

// Complete finishes a run.
func (q *Queue) Complete(rctx model.RequestContext, runID string) (model.OrchestratorRun, error) {
	return q.move(rctx, runID, model.RunCompleted, EventCompleted, nil, nil)
}

// Fail moves a run to the terminal failed state.
func (q *Queue) Fail(rctx model.RequestContext, runID string, reason string) (model.OrchestratorRun, error) {
	run, err := q.move(rctx, runID, model.RunFailed, EventFailed, nil, nil)
	if err != nil {
		return model.OrchestratorRun{}, err
	}
	q.logger.Warn("run failed", "runId", runID, "reason", reason)
	return run, nil
}

// Cancel cancels a run from any non-terminal state, recording the reason.
func (q *Queue) Cancel(rctx model.RequestContext, runID, reason string) (model.OrchestratorRun, error) {
	run, err := q.st.GetRun(rctx, runID)
	if err != nil {
		return model.OrchestratorRun{}, model.NotFound(model.ErrCodeRunNotFound, runID)
	}
	if run.Terminal() {
		return model.OrchestratorRun{}, transitionError(
			fmt.Errorf("run %s is already %s", runID, run.State))
	}
	return q.move(rctx, runID, model.RunCancelled, EventCancelled, nil,
		func(r *model.OrchestratorRun) { r.CancellationReason = reason })
}

// Requeue puts an executing run back on the heap for a retry.
func (q *Queue) Requeue(rctx model.RequestContext, runID string, event string, metadata map[string]any) (model.OrchestratorRun, error) {
	run, err := q.move(rctx, runID, model.RunQueued, event, metadata, nil)
	if err != nil {
		return model.OrchestratorRun{}, err
	}
	q.mu.Lock()
	q.seq++
	heap.Push(&q.heap, &item{
		runID:    run.ID,
		tenantID: run.TenantID,
		userID:   run.UserID,
		priority: run.Priority,
		seq:      q.seq,
	})
	q.mu.Unlock()
	return run, nil
}

// Len reports how many runs are waiting on the heap.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}
