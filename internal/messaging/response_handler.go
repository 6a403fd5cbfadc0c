package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/venuefarm/bookingbot/internal/flow"
	"github.com/venuefarm/bookingbot/internal/metrics"
	"github.com/venuefarm/bookingbot/internal/models"
	"github.com/venuefarm/bookingbot/internal/store"
)

// Defaults for outbound reply delivery.
const (
	DefaultSendAttempts = 3
	DefaultSendBackoff  = 500 * time.Millisecond
)

// MessageProcessor runs one inbound message through the conversation.
type MessageProcessor interface {
	ProcessChannel(ctx context.Context, channel, identifier, text string) (models.EngineResult, error)
}

var _ MessageProcessor = (*flow.Processor)(nil)

// ResponseHandler drains a Service's inbound messages through the processor
// and sends each reply back on the same Service. Each sender has one FIFO
// worker, so a user's messages are processed in arrival order while different
// users proceed in parallel.
type ResponseHandler struct {
	msgService   Service
	processor    MessageProcessor
	dedup        store.DedupRepo
	metrics      *metrics.Metrics
	channel      string
	sendAttempts int
	sendBackoff  time.Duration

	wg     sync.WaitGroup
	qmu    sync.Mutex
	queues map[string][]models.Response
}

// ResponseHandlerOption configures a ResponseHandler.
type ResponseHandlerOption func(*ResponseHandler)

// WithDedup drops inbound messages whose transport message id was already seen.
func WithDedup(d store.DedupRepo) ResponseHandlerOption {
	return func(rh *ResponseHandler) { rh.dedup = d }
}

// WithHandlerMetrics records outbound delivery outcomes.
func WithHandlerMetrics(m *metrics.Metrics) ResponseHandlerOption {
	return func(rh *ResponseHandler) { rh.metrics = m }
}

// WithChannel sets the channel label passed to the processor and metrics.
func WithChannel(channel string) ResponseHandlerOption {
	return func(rh *ResponseHandler) { rh.channel = channel }
}

// WithSendRetry sets how many times a reply is attempted and the base
// backoff, which grows linearly with each attempt.
func WithSendRetry(attempts int, backoff time.Duration) ResponseHandlerOption {
	return func(rh *ResponseHandler) {
		if attempts > 0 {
			rh.sendAttempts = attempts
		}
		if backoff >= 0 {
			rh.sendBackoff = backoff
		}
	}
}

// NewResponseHandler creates a new ResponseHandler with the given messaging service.
func NewResponseHandler(msgService Service, processor MessageProcessor, opts ...ResponseHandlerOption) *ResponseHandler {
	rh := &ResponseHandler{
		msgService:   msgService,
		processor:    processor,
		channel:      flow.ChannelUnknown,
		sendAttempts: DefaultSendAttempts,
		sendBackoff:  DefaultSendBackoff,
		queues:       make(map[string][]models.Response),
	}
	for _, opt := range opts {
		opt(rh)
	}
	return rh
}

// ProcessResponse handles one inbound message end to end: dedup, process,
// reply. It returns an error only when the reply could not be delivered.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	canonicalFrom, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler.ProcessResponse: invalid sender", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}

	if rh.dedup != nil && response.MessageID != "" {
		inserted, err := rh.dedup.RecordInbound(ctx, response.MessageID, canonicalFrom)
		if err != nil {
			// Processing twice beats not answering.
			slog.Error("ResponseHandler.ProcessResponse: dedup record failed", "error", err, "messageID", response.MessageID)
		} else if !inserted {
			slog.Info("ResponseHandler.ProcessResponse: duplicate message dropped", "identifier", canonicalFrom, "messageID", response.MessageID)
			rh.metrics.ObserveMessage(rh.channel, "duplicate")
			return nil
		}
	}

	reply := flow.SessionFailureReply
	result, err := rh.processor.ProcessChannel(ctx, rh.channel, canonicalFrom, response.Body)
	if err != nil {
		slog.Error("ResponseHandler.ProcessResponse: processing failed", "error", err, "identifier", canonicalFrom)
	} else {
		reply = result.ReplyText
	}

	sendErr := rh.sendWithRetry(ctx, canonicalFrom, reply)

	if rh.dedup != nil && response.MessageID != "" {
		if err := rh.dedup.MarkProcessed(ctx, response.MessageID); err != nil {
			slog.Error("ResponseHandler.ProcessResponse: mark processed failed", "error", err, "messageID", response.MessageID)
		}
	}
	return sendErr
}

func (rh *ResponseHandler) sendWithRetry(ctx context.Context, to, body string) error {
	var err error
	for attempt := 1; attempt <= rh.sendAttempts; attempt++ {
		if err = rh.msgService.SendMessage(ctx, to, body); err == nil {
			rh.metrics.ObserveOutbound(rh.channel, "sent")
			slog.Debug("ResponseHandler reply sent", "identifier", to, "attempt", attempt)
			return nil
		}
		if errors.Is(err, ErrServiceStopped) {
			break
		}
		slog.Warn("ResponseHandler reply send failed", "identifier", to, "attempt", attempt, "error", err)
		if attempt == rh.sendAttempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * rh.sendBackoff):
		case <-ctx.Done():
			rh.metrics.ObserveOutbound(rh.channel, "failed")
			return fmt.Errorf("send reply to %s: %w", to, ctx.Err())
		}
	}
	rh.metrics.ObserveOutbound(rh.channel, "failed")
	return fmt.Errorf("send reply to %s: %w", to, err)
}

// Start begins processing responses and receipts from the messaging service
// until ctx is cancelled or the service's channels close. A message that was
// accepted before cancellation is still processed to completion: its work runs
// on a context detached from ctx, bounded only by the per-call timeouts.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler starting response processing", "channel", rh.channel)
	workCtx := context.WithoutCancel(ctx)

	rh.wg.Add(1)
	go func() {
		defer rh.wg.Done()
		defer slog.Info("ResponseHandler stopped response processing")

		responses := rh.msgService.Responses()
		receipts := rh.msgService.Receipts()
		for responses != nil || receipts != nil {
			select {
			case response, ok := <-responses:
				if !ok {
					responses = nil
					continue
				}
				rh.enqueue(workCtx, response)
			case receipt, ok := <-receipts:
				if !ok {
					receipts = nil
					continue
				}
				slog.Debug("ResponseHandler receipt", "to", receipt.To, "status", receipt.Status)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// queueKey groups messages by canonical sender; an unparsable sender is
// keyed by its raw value and rejected when processed.
func (rh *ResponseHandler) queueKey(from string) string {
	if key, err := rh.msgService.ValidateAndCanonicalizeRecipient(from); err == nil {
		return key
	}
	return from
}

// enqueue appends response to its sender's queue, starting a worker when the
// sender has none.
func (rh *ResponseHandler) enqueue(ctx context.Context, response models.Response) {
	key := rh.queueKey(response.From)

	rh.qmu.Lock()
	pending, running := rh.queues[key]
	rh.queues[key] = append(pending, response)
	if !running {
		rh.wg.Add(1)
	}
	rh.qmu.Unlock()

	if !running {
		go rh.drain(ctx, key)
	}
}

// drain processes key's queue in order and exits once it is empty.
func (rh *ResponseHandler) drain(ctx context.Context, key string) {
	defer rh.wg.Done()
	for {
		rh.qmu.Lock()
		pending := rh.queues[key]
		if len(pending) == 0 {
			delete(rh.queues, key)
			rh.qmu.Unlock()
			return
		}
		next := pending[0]
		rh.queues[key] = pending[1:]
		rh.qmu.Unlock()

		if err := rh.ProcessResponse(ctx, next); err != nil {
			slog.Error("ResponseHandler failed to process response", "error", err, "from", next.From)
		}
	}
}

// Wait blocks until the processing loop and every accepted message finish.
func (rh *ResponseHandler) Wait() {
	rh.wg.Wait()
}
