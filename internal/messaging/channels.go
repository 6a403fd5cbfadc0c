package messaging

import (
	"log/slog"
	"sync"
	"time"

	"github.com/venuefarm/bookingbot/internal/models"
)

// channelHub owns the inbound and receipt channels of a Service.
// Emitters hold the read lock across their send so Stop cannot close a channel
// underneath them; a send that cannot complete within DefaultChannelTimeout is
// dropped.
type channelHub struct {
	name      string
	responses chan models.Response
	receipts  chan models.Receipt
	mu        sync.RWMutex
	stopped   bool
}

func newChannelHub(name string) *channelHub {
	return &channelHub{
		name:      name,
		responses: make(chan models.Response, DefaultChannelBufferSize),
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
	}
}

// ValidateAndCanonicalizeRecipient reduces a phone number to its digits.
func (h *channelHub) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// Responses returns the inbound message channel. It is closed by Stop.
func (h *channelHub) Responses() <-chan models.Response {
	return h.responses
}

// Receipts returns the delivery receipt channel. It is closed by Stop.
func (h *channelHub) Receipts() <-chan models.Receipt {
	return h.receipts
}

// Stop closes both channels. Further calls are no-ops.
func (h *channelHub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil
	}
	h.stopped = true
	close(h.receipts)
	close(h.responses)
	slog.Info(h.name+": stopped and channels closed")
	return nil
}

func (h *channelHub) isStopped() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stopped
}

// emitResponse forwards an inbound message and reports whether it was accepted.
func (h *channelHub) emitResponse(resp models.Response) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		slog.Warn(h.name+": dropping inbound message, service stopped", "from", resp.From, "messageID", resp.MessageID)
		return false
	}
	select {
	case h.responses <- resp:
		slog.Debug(h.name+": inbound message forwarded", "from", resp.From, "messageID", resp.MessageID, "body_length", len(resp.Body))
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(h.name+": responses channel blocked, dropping message", "from", resp.From, "timeout", DefaultChannelTimeout)
		return false
	}
}

func (h *channelHub) emitReceipt(receipt models.Receipt) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}
	select {
	case h.receipts <- receipt:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(h.name+": receipts channel blocked, dropping receipt", "to", receipt.To, "status", receipt.Status)
	}
}

func sentReceipt(to string) models.Receipt {
	return models.Receipt{To: to, Status: models.MessageStatusSent, Time: time.Now().Unix()}
}
