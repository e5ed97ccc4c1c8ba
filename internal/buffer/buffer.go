// Package buffer provides the per-user inbound message buffer used to
// coalesce bursts of rapid consecutive messages into one logical turn.
//
// The buffer is in-memory only: losing at most one in-flight turn on
// process restart is an accepted trade-off. Debounce timing (when "enough
// time has passed" to consume) is the caller's policy; the buffer keeps no
// timers.
package buffer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cresceapp/cresce/internal/models"
)

// Buffer holds the ephemeral per-user message queues.
type Buffer struct {
	mu     sync.Mutex
	queues map[string][]models.BufferedMessage
}

// New creates an empty Buffer.
func New() *Buffer {
	return &Buffer{queues: make(map[string][]models.BufferedMessage)}
}

// Add appends a message to the user's queue with a receipt timestamp.
// It always succeeds and returns the stored message.
func (b *Buffer) Add(userID, content string) models.BufferedMessage {
	msg := models.BufferedMessage{Content: content, ReceivedAt: time.Now()}
	b.mu.Lock()
	b.queues[userID] = append(b.queues[userID], msg)
	depth := len(b.queues[userID])
	b.mu.Unlock()
	slog.Debug("Buffer.Add: message queued", "user_id", userID, "queue_depth", depth)
	return msg
}

// Get returns a non-destructive snapshot of the user's queue in arrival order.
func (b *Buffer) Get(userID string) []models.BufferedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	queue := b.queues[userID]
	out := make([]models.BufferedMessage, len(queue))
	copy(out, queue)
	return out
}

// Consume atomically returns the user's full queue in arrival order and
// clears it. Concurrent consumers never double-deliver: exactly one caller
// receives the queued messages, the others see an empty result. An empty
// buffer is a valid, non-error result.
func (b *Buffer) Consume(userID string) []models.BufferedMessage {
	b.mu.Lock()
	queue := b.queues[userID]
	delete(b.queues, userID)
	b.mu.Unlock()
	if len(queue) > 0 {
		slog.Debug("Buffer.Consume: queue drained", "user_id", userID, "count", len(queue))
	}
	return queue
}

// Len reports the current depth of the user's queue.
func (b *Buffer) Len(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[userID])
}
