package updates

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/drblury/viewbridge/internal/runtime/config"
	errspkg "github.com/drblury/viewbridge/internal/runtime/errors"
	"github.com/drblury/viewbridge/internal/runtime/ids"
	"github.com/drblury/viewbridge/internal/runtime/logging"
)

// Shell executes view updates outside the page.
type Shell interface {
	RequestViewUpdate(ctx context.Context, req ShellRequest) (*Monitor, error)
	CancelViewRequest(ctx context.Context, nodeID string, sequence int64, invokeCatch bool) error
}

// Responder delivers responses and monitor updates into a view.
type Responder interface {
	RespondToView(ctx context.Context, nodeID string, resp ResponseContainer) error
	UpdateViewMonitor(ctx context.Context, nodeID string, monitor *Monitor) error
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxSequence sets the value after which sequences wrap to zero.
func WithMaxSequence(max int64) Option {
	return func(q *Queue) {
		if max > 0 {
			q.maxSequence = max
		}
	}
}

// WithResponder routes responses and monitor updates back into views.
func WithResponder(r Responder) Option {
	return func(q *Queue) { q.responder = r }
}

// WithLogger sets the queue logger.
func WithLogger(log logging.ServiceLogger) Option {
	return func(q *Queue) { q.log = logging.OrNop(log) }
}

// WithPendingObserver is called with the pending count after every change.
func WithPendingObserver(fn func(pending int)) Option {
	return func(q *Queue) { q.observe = fn }
}

// Queue tracks view-update requests handed to the native shell. Each
// Resolvable is removed exactly once: by a response, a terminal monitor
// update, or a cancellation.
type Queue struct {
	shell       Shell
	responder   Responder
	log         logging.ServiceLogger
	observe     func(int)
	maxSequence int64

	mu       sync.Mutex
	sequence int64
	pending  []*Resolvable
}

// NewQueue creates a queue for one page session.
func NewQueue(shell Shell, opts ...Option) (*Queue, error) {
	if shell == nil {
		return nil, errspkg.ErrShellRequired
	}
	q := &Queue{
		shell:       shell,
		log:         logging.NopLogger(),
		maxSequence: config.MaxSafeInteger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// nextSequenceLocked advances the counter, wrapping after maxSequence and
// skipping values still held by a pending Resolvable.
func (q *Queue) nextSequenceLocked() int64 {
	for attempts := len(q.pending); ; attempts-- {
		q.sequence++
		if q.sequence > q.maxSequence {
			q.sequence = 0
		}
		if attempts == 0 || q.indexLocked(q.sequence) < 0 {
			return q.sequence
		}
	}
}

func (q *Queue) indexLocked(sequence int64) int {
	for i, r := range q.pending {
		if r.Sequence == sequence {
			return i
		}
	}
	return -1
}

// removeLocked removes the Resolvable with sequence. It is a no-op when the
// Resolvable was already removed.
func (q *Queue) removeLocked(sequence int64) (*Resolvable, bool) {
	i := q.indexLocked(sequence)
	if i < 0 {
		return nil, false
	}
	r := q.pending[i]
	q.pending = append(q.pending[:i:i], q.pending[i+1:]...)
	return r, true
}

func (q *Queue) notifyLocked() {
	if q.observe != nil {
		q.observe(len(q.pending))
	}
}

// RequestViewUpdate registers a request and hands it to the shell. The
// returned monitor is never nil. When the shell fails the request is
// dropped again and the error is returned with a failed monitor. A monitor
// that is already terminal settles the request right away.
func (q *Queue) RequestViewUpdate(ctx context.Context, frameID string, request any, requestSequence int64) (*Monitor, error) {
	if frameID == "" {
		return nil, errspkg.ErrNodeIDRequired
	}

	q.mu.Lock()
	r := &Resolvable{
		Sequence:        q.nextSequenceLocked(),
		NodeID:          frameID,
		RequestSequence: requestSequence,
	}
	q.pending = append(q.pending, r)
	q.notifyLocked()
	q.mu.Unlock()

	fields := logging.LogFields{"node_id": frameID, "sequence": r.Sequence, "request_sequence": requestSequence}
	monitor, err := q.shell.RequestViewUpdate(ctx, ShellRequest{
		NodeID:          frameID,
		Sequence:        r.Sequence,
		RequestSequence: requestSequence,
		Request:         request,
	})
	if err != nil {
		q.log.Error("Native shell rejected view update", err, fields)
		q.mu.Lock()
		q.removeLocked(r.Sequence)
		q.notifyLocked()
		q.mu.Unlock()
		return &Monitor{
			NodeID:          frameID,
			RequestSequence: requestSequence,
			ExecutionFailed: true,
			ErrorMessage:    err.Error(),
		}, fmt.Errorf("request view update: %w", err)
	}

	if monitor == nil {
		monitor = &Monitor{}
	} else {
		monitor = monitor.clone()
	}
	if monitor.ID == "" {
		monitor.ID = ids.CreateULID()
	}
	monitor.NodeID = frameID
	monitor.RequestSequence = requestSequence

	q.mu.Lock()
	r.Monitor = monitor.clone()
	if monitor.Terminal() {
		if _, ok := q.removeLocked(r.Sequence); ok {
			q.notifyLocked()
		}
	}
	q.mu.Unlock()

	fields["monitor_id"] = monitor.ID
	q.log.Debug("View update requested", fields)
	return monitor, nil
}

// RespondToViewRequest removes the Resolvable matching resp.Sequence and
// forwards the response to its view. It reports whether a request matched.
func (q *Queue) RespondToViewRequest(ctx context.Context, resp ResponseContainer) (bool, error) {
	q.mu.Lock()
	r, ok := q.removeLocked(resp.Sequence)
	if ok {
		q.notifyLocked()
	}
	q.mu.Unlock()
	if !ok {
		q.log.Debug("No pending view update for response", logging.LogFields{"sequence": resp.Sequence})
		return false, nil
	}

	resp.NodeID = r.NodeID
	resp.RequestSequence = r.RequestSequence
	if q.responder == nil {
		return true, nil
	}
	if err := q.responder.RespondToView(ctx, r.NodeID, resp); err != nil {
		return true, fmt.Errorf("respond to view %s: %w", r.NodeID, err)
	}
	return true, nil
}

// UpdateResponseMonitor stores a monitor update. The Resolvable is matched
// by monitor id, or by node id and request sequence when the monitor has no
// id, and removed only once the monitor reaches a terminal state.
func (q *Queue) UpdateResponseMonitor(ctx context.Context, monitor *Monitor) (bool, error) {
	if monitor == nil {
		return false, nil
	}

	q.mu.Lock()
	r := q.matchMonitorLocked(monitor)
	if r == nil {
		q.mu.Unlock()
		q.log.Debug("No pending view update for monitor", logging.LogFields{
			"monitor_id":       monitor.ID,
			"request_sequence": monitor.RequestSequence,
		})
		return false, nil
	}
	updated := monitor.clone()
	if updated.ID == "" && r.Monitor != nil {
		updated.ID = r.Monitor.ID
	}
	updated.NodeID = r.NodeID
	updated.RequestSequence = r.RequestSequence
	r.Monitor = updated
	if updated.Terminal() {
		q.removeLocked(r.Sequence)
		q.notifyLocked()
	}
	nodeID := r.NodeID
	q.mu.Unlock()

	if q.responder == nil {
		return true, nil
	}
	if err := q.responder.UpdateViewMonitor(ctx, nodeID, updated.clone()); err != nil {
		return true, fmt.Errorf("update monitor of view %s: %w", nodeID, err)
	}
	return true, nil
}

// matchMonitorLocked finds the Resolvable a monitor update belongs to. A
// monitor with an id only ever matches that id. Request sequences are
// numbered per view, so matching by sequence needs the node id as well.
func (q *Queue) matchMonitorLocked(m *Monitor) *Resolvable {
	if m.ID != "" {
		for _, r := range q.pending {
			if r.Monitor != nil && r.Monitor.ID == m.ID {
				return r
			}
		}
		return nil
	}
	if m.NodeID == "" {
		return nil
	}
	for _, r := range q.pending {
		if r.RequestSequence == m.RequestSequence && r.NodeID == m.NodeID {
			return r
		}
	}
	return nil
}

// CancelViewRequest cancels the request identified by monitorID, which is
// either a monitor id or the request sequence of a request from frameID.
// Unless invokeCatch is set the Resolvable is removed right away; otherwise
// removal waits for the terminal monitor update.
func (q *Queue) CancelViewRequest(ctx context.Context, frameID, monitorID string, invokeCatch bool) error {
	q.mu.Lock()
	r := q.resolveLocked(frameID, monitorID)
	q.mu.Unlock()
	if r == nil {
		q.log.Debug("No pending view update to cancel", logging.LogFields{"node_id": frameID, "monitor_id": monitorID})
		return nil
	}

	fields := logging.LogFields{"node_id": r.NodeID, "sequence": r.Sequence, "invoke_catch": invokeCatch}
	if err := q.shell.CancelViewRequest(ctx, r.NodeID, r.Sequence, invokeCatch); err != nil {
		q.log.Error("Native shell failed to cancel view update", err, fields)
		return fmt.Errorf("cancel view request: %w", err)
	}
	if invokeCatch {
		return nil
	}

	q.mu.Lock()
	removed, ok := q.removeLocked(r.Sequence)
	if ok {
		q.notifyLocked()
	}
	q.mu.Unlock()
	if !ok {
		return nil
	}

	q.log.Debug("View update cancelled", fields)
	if q.responder == nil {
		return nil
	}
	cancelled := removed.Monitor.clone()
	if cancelled == nil {
		cancelled = &Monitor{NodeID: removed.NodeID, RequestSequence: removed.RequestSequence}
	}
	cancelled.Cancelled = true
	return q.responder.UpdateViewMonitor(ctx, removed.NodeID, cancelled)
}

func (q *Queue) resolveLocked(frameID, monitorID string) *Resolvable {
	for _, r := range q.pending {
		if r.Monitor != nil && r.Monitor.ID == monitorID {
			return r
		}
	}
	requestSequence, err := strconv.ParseInt(monitorID, 10, 64)
	if err != nil {
		return nil
	}
	for _, r := range q.pending {
		if r.NodeID == frameID && r.RequestSequence == requestSequence {
			return r
		}
	}
	return nil
}

// Pending returns copies of the pending Resolvables in insertion order.
func (q *Queue) Pending() []Resolvable {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Resolvable, 0, len(q.pending))
	for _, r := range q.pending {
		c := *r
		c.Monitor = r.Monitor.clone()
		out = append(out, c)
	}
	return out
}

// Len returns the number of pending Resolvables.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Reset drops every pending Resolvable. The sequence counter keeps running.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
	q.notifyLocked()
}
