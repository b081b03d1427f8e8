// Package history persists conversation turns out of band from the chat stream.
package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/observability"
)

const writeTimeout = 5 * time.Second

// Store is the persistence the recorder needs.
type Store interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	InsertTurn(ctx context.Context, turn *domain.Turn) error
	ListTurns(ctx context.Context, ownerID, agentID string, limit int) ([]domain.Turn, error)
}

// Recorder writes turns through a bounded queue drained by one worker.
// Record and FetchHistory never return errors; failures are logged and counted.
type Recorder struct {
	store        Store
	logger       *slog.Logger
	defaultLimit int

	mu     sync.RWMutex // guards closed and sends on queue
	closed bool
	queue  chan []domain.Turn
	done   chan struct{}
}

// NewRecorder starts the background writer.
func NewRecorder(store Store, queueSize, defaultLimit int, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if defaultLimit <= 0 {
		defaultLimit = 50
	}

	r := &Recorder{
		store:        store,
		logger:       logger,
		defaultLimit: defaultLimit,
		queue:        make(chan []domain.Turn, queueSize),
		done:         make(chan struct{}),
	}
	go r.run()
	return r
}

// Record persists one turn synchronously. It returns nil when the owner is
// missing or unauthenticated, or when the store fails.
func (r *Recorder) Record(ctx context.Context, role domain.Role, content, agentID, ownerID, extractedText string) *domain.Turn {
	if ownerID == "" {
		r.logger.Debug("Skipping history write without owner", "agent_id", agentID)
		observability.RecordHistoryWrite(false)
		return nil
	}

	user, err := r.store.GetUser(ctx, ownerID)
	if err != nil {
		r.logger.Warn("History owner lookup failed", "user_id", ownerID, "error", err)
		observability.RecordHistoryWrite(false)
		return nil
	}
	if !user.CanOwnHistory() {
		r.logger.Debug("Skipping history write for unauthenticated owner", "user_id", ownerID)
		observability.RecordHistoryWrite(false)
		return nil
	}

	turn := &domain.Turn{
		Role:          role,
		Content:       content,
		OwnerID:       ownerID,
		AgentID:       agentID,
		ExtractedText: extractedText,
	}
	if err := r.store.InsertTurn(ctx, turn); err != nil {
		r.logger.Warn("History write failed",
			"user_id", ownerID,
			"agent_id", agentID,
			"error", &domain.TransportError{Op: "insert turn", Err: err},
		)
		observability.RecordHistoryWrite(false)
		return nil
	}

	observability.RecordHistoryWrite(true)
	return turn
}

// Enqueue hands turns to the background writer without blocking.
// The batch is written in order. A full or closed queue drops it.
func (r *Recorder) Enqueue(turns ...domain.Turn) bool {
	if len(turns) == 0 {
		return true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Warn("History recorder closed, dropping turns", "count", len(turns))
		observability.RecordHistoryDropped()
		return false
	}

	batch := append([]domain.Turn(nil), turns...)
	select {
	case r.queue <- batch:
		observability.SetHistoryQueueSize(len(r.queue))
		return true
	default:
		r.logger.Warn("History queue full, dropping turns",
			"count", len(turns),
			"user_id", turns[0].OwnerID,
			"queue_len", len(r.queue),
		)
		observability.RecordHistoryDropped()
		return false
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	for batch := range r.queue {
		observability.SetHistoryQueueSize(len(r.queue))
		for _, t := range batch {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			r.Record(ctx, t.Role, t.Content, t.AgentID, t.OwnerID, t.ExtractedText)
			cancel()
		}
	}
}

// FetchHistory returns the most recent limit turns, oldest first.
// A non-positive limit uses the configured default and an empty agentID spans every agent.
func (r *Recorder) FetchHistory(ctx context.Context, ownerID, agentID string, limit int) []domain.Turn {
	if ownerID == "" {
		return []domain.Turn{}
	}
	if limit <= 0 {
		limit = r.defaultLimit
	}

	turns, err := r.store.ListTurns(ctx, ownerID, agentID, limit)
	if err != nil {
		r.logger.Warn("History fetch failed",
			"user_id", ownerID,
			"agent_id", agentID,
			"error", &domain.TransportError{Op: "list turns", Err: err},
		)
		return []domain.Turn{}
	}
	return turns
}

// Close stops accepting turns and waits for queued batches to be written.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		r.logger.Info("History recorder drained")
		return nil
	case <-ctx.Done():
		r.logger.Warn("History recorder shutdown timeout", "queue_remaining", len(r.queue))
		return errors.Join(errors.New("history recorder did not drain"), ctx.Err())
	}
}
