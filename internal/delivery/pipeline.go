// Package delivery implements the outbound send-then-persist pipeline.
// The platform send happens first; local state is written only after the
// platform acknowledged. A message the customer saw but the store missed
// is recoverable later; a stored message that never reached the customer
// would mislead operators, so that ordering is fixed.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/inboxpilot/inboxd/internal/platform"
	"github.com/inboxpilot/inboxd/internal/store"
)

// Outcome classifies one pipeline run. Callers pattern-match on this
// instead of parsing warning strings.
type Outcome int

const (
	// Failed: the platform rejected or errored; nothing was persisted.
	Failed Outcome = iota
	// Delivered: platform acknowledged and the commit path succeeded.
	Delivered
	// DeliveredNotPersisted: platform acknowledged but the commit path
	// failed. Degraded success; the send must not be retried.
	DeliveredNotPersisted
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case DeliveredNotPersisted:
		return "delivered_not_persisted"
	default:
		return "failed"
	}
}

// ErrNotDeliverable marks a conversation missing the platform
// identifiers outbound delivery needs.
var ErrNotDeliverable = errors.New("delivery: conversation has no platform identifiers")

// ErrNoAcknowledgment marks a non-error platform response that carried
// neither a message id nor a recipient id. Treated as a delivery
// failure: a malformed 200 is not a delivery.
var ErrNoAcknowledgment = errors.New("delivery: platform returned no message or recipient id")

// Result is the pipeline's answer for one outbound send.
type Result struct {
	Outcome           Outcome
	PlatformMessageID string
	Warning           string // set for DeliveredNotPersisted
	PersistErr        error  // the swallowed commit failure, for logging
}

// CommitFunc runs the post-delivery commit: persist the message row,
// bump conversation timestamps, apply escalation side effects, pause
// automation sessions, fire metrics. It runs at most once, only after a
// successful platform acknowledgment.
type CommitFunc func(ctx context.Context, ack *platform.SendResult) error

// Pipeline delivers outbound messages through the platform client with
// send-then-persist semantics and outbound pacing.
type Pipeline struct {
	client  platform.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewPipeline creates a pipeline. sendsPerSecond bounds outbound pacing
// toward the platform; zero disables the limiter.
func NewPipeline(client platform.Client, sendsPerSecond float64, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if sendsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(sendsPerSecond), int(sendsPerSecond)+1)
	}
	return &Pipeline{client: client, limiter: limiter, logger: logger.With("component", "delivery")}
}

// Send runs the full pipeline for a text message.
//
// On platform failure the error is returned and nothing is persisted.
// On commit failure after a successful send, the platform call is NOT
// retried: the caller gets DeliveredNotPersisted with a warning, and a
// small window of platform/store divergence is accepted instead of a
// duplicate customer-facing message.
func (p *Pipeline) Send(ctx context.Context, conv *store.ConversationData, text string, opts platform.SendOptions, commit CommitFunc) (*Result, error) {
	if !conv.Deliverable() {
		return &Result{Outcome: Failed}, ErrNotDeliverable
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return &Result{Outcome: Failed}, err
		}
	}

	ack, err := p.client.Send(ctx, conv.PlatformUserID, text, opts)
	if err != nil && opts.Tag != "" && errors.Is(err, platform.ErrUnsupportedTag) {
		// The only automatic retry in the pipeline: the rejection was
		// about the notification tag, not the message. Strip the tag
		// and try once more; no policy re-run, no state touched.
		p.logger.Info("retrying send without delivery tag",
			"conversation", conv.ID, "tag", opts.Tag)
		ack, err = p.client.Send(ctx, conv.PlatformUserID, text, platform.SendOptions{})
	}
	if err != nil {
		return &Result{Outcome: Failed}, fmt.Errorf("platform send: %w", err)
	}
	if !ack.Acknowledged() {
		return &Result{Outcome: Failed}, ErrNoAcknowledgment
	}

	res := &Result{Outcome: Delivered, PlatformMessageID: ack.MessageID}
	if commit == nil {
		return res, nil
	}

	if err := commit(ctx, ack); err != nil {
		p.logger.Error("message sent but commit failed",
			"conversation", conv.ID, "platformMessageId", ack.MessageID, "error", err)
		res.Outcome = DeliveredNotPersisted
		res.Warning = "sent but not recorded"
		res.PersistErr = err
	}
	return res, nil
}
