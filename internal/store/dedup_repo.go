package store

import (
	"context"
	"time"
)

// DefaultDedupRetention is how long processed message ids are kept.
// Transports stop redelivering long before this.
const DefaultDedupRetention = 7 * 24 * time.Hour

// DedupRecord is one inbound message id seen by a transport.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	SenderID    string     `json:"sender_id"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo guards against processing a redelivered message twice, which
// would advance a conversation by two steps.
type DedupRepo interface {
	// IsDuplicate reports whether messageID has been recorded.
	IsDuplicate(ctx context.Context, messageID string) (bool, error)

	// RecordInbound records messageID and reports whether it was new.
	RecordInbound(ctx context.Context, messageID, senderID string) (bool, error)

	// MarkProcessed stamps processed_at once the reply has been handled.
	MarkProcessed(ctx context.Context, messageID string) error

	// PruneDedup deletes processed records received before cutoff.
	PruneDedup(ctx context.Context, cutoff time.Time) (int64, error)
}
