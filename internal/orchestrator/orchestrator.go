// Package orchestrator wires the policy engine, escalation manager,
// delivery pipeline, automation coordinator, and metrics tracker into
// the operations the API layer calls.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/inboxpilot/inboxd/internal/automation"
	"github.com/inboxpilot/inboxd/internal/delivery"
	"github.com/inboxpilot/inboxd/internal/escalation"
	"github.com/inboxpilot/inboxd/internal/generator"
	"github.com/inboxpilot/inboxd/internal/metrics"
	"github.com/inboxpilot/inboxd/internal/platform"
	"github.com/inboxpilot/inboxd/internal/policy"
	"github.com/inboxpilot/inboxd/internal/store"
)

// Caller-facing failure categories. Remediation differs: a generation
// failure points at model configuration, a delivery failure at the
// platform; callers should not have to parse messages to tell them apart.
var (
	ErrGenerationFailed  = errors.New("failed to generate reply")
	ErrDeliveryFailed    = errors.New("failed to deliver to platform")
	ErrAutoReplyDisabled = errors.New("auto-reply is disabled for this conversation")
	ErrHoldActive        = errors.New("automated replies are on hold for this conversation")
)

// ReplyOutcome is the result of an AI reply run.
type ReplyOutcome struct {
	Message          *store.MessageData `json:"message,omitempty"`
	Delivery         *delivery.Result   `json:"delivery"`
	Escalated        bool               `json:"escalated"`
	EscalationReason string             `json:"escalationReason,omitempty"`
}

// Orchestrator exposes the conversation automation operations.
type Orchestrator struct {
	stores      *store.Stores
	escalations *escalation.Manager
	coordinator *automation.Coordinator
	tracker     *metrics.Tracker
	pipeline    *delivery.Pipeline
	generator   generator.Generator

	historyLimit int
	locks        convLocks
	tracer       trace.Tracer
	logger       *slog.Logger
	now          func() time.Time // test hook
}

// Config wires an Orchestrator.
type Config struct {
	Stores       *store.Stores
	Escalations  *escalation.Manager
	Coordinator  *automation.Coordinator
	Tracker      *metrics.Tracker
	Pipeline     *delivery.Pipeline
	Generator    generator.Generator
	HistoryLimit int
	Logger       *slog.Logger
}

func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &Orchestrator{
		stores:       cfg.Stores,
		escalations:  cfg.Escalations,
		coordinator:  cfg.Coordinator,
		tracker:      cfg.Tracker,
		pipeline:     cfg.Pipeline,
		generator:    cfg.Generator,
		historyLimit: historyLimit,
		tracer:       otel.Tracer("inboxd/orchestrator"),
		logger:       logger.With("component", "orchestrator"),
		now:          time.Now,
	}
}

// HandleInboundCustomerMessage ingests one customer message: persists
// it, refreshes the conversation timestamps, and bumps the day's
// inbound counter. The turn is logged against any active ticket later,
// inside the next reply turn, so the ticket's follow-up count reflects
// only turns the policy engine has already seen.
func (o *Orchestrator) HandleInboundCustomerMessage(ctx context.Context, conversationID uuid.UUID, text string) (*store.MessageData, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.HandleInboundCustomerMessage",
		trace.WithAttributes(attribute.String("conversation.id", conversationID.String())))
	defer span.End()

	unlock := o.locks.lock(conversationID)
	defer unlock()

	conv, err := o.stores.Conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	now := o.now()
	msg := &store.MessageData{
		ConversationID: conversationID,
		Direction:      store.DirectionInbound,
		Sender:         store.SenderCustomer,
		Text:           text,
		SentAt:         now,
	}
	if err := o.stores.Messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist inbound message: %w", err)
	}

	if err := o.stores.Conversations.Update(ctx, conversationID, store.ConversationPatch{
		LastMessage:           &text,
		LastMessageAt:         &now,
		LastCustomerMessageAt: &now,
	}); err != nil {
		o.logger.Warn("conversation timestamp update failed", "conversation", conversationID, "error", err)
	}

	inc := new(metrics.Increments).Add(store.MetricInboundMessages, 1)
	o.tracker.TrackBestEffort(ctx, conv.WorkspaceID, now, inc)

	return msg, nil
}

// GenerateAndSendAIReply runs the full automation turn: generate a
// candidate, apply the reply policy, deliver, then commit escalation
// state, session pauses, and metrics.
func (o *Orchestrator) GenerateAndSendAIReply(ctx context.Context, conversationID uuid.UUID) (*ReplyOutcome, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.GenerateAndSendAIReply",
		trace.WithAttributes(attribute.String("conversation.id", conversationID.String())))
	defer span.End()

	unlock := o.locks.lock(conversationID)
	defer unlock()

	conv, err := o.stores.Conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv.AutoReplyDisabled {
		return nil, ErrAutoReplyDisabled
	}

	settings, err := o.stores.Workspaces.Get(ctx, conv.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("load workspace settings: %w", err)
	}

	now := o.now()
	if conv.HoldActive(now) && settings.HumanEscalationBehavior == store.EscalationBehaviorAISilent {
		return nil, ErrHoldActive
	}

	candidate, err := o.generator.Generate(ctx, conversationID, conv.WorkspaceID, o.historyLimit)
	if err != nil {
		// No platform call was attempted; nothing was mutated.
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	activeTicket, err := o.escalations.GetActiveTicket(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("active ticket lookup: %w", err)
	}

	decision := policy.Decide(candidate, activeTicket)
	span.SetAttributes(
		attribute.Bool("reply.escalate", decision.Escalate),
		attribute.Bool("reply.followup", decision.FollowUp),
	)

	var committed *store.MessageData
	result, err := o.pipeline.Send(ctx, conv, decision.ReplyText, platform.SendOptions{}, func(ctx context.Context, ack *platform.SendResult) error {
		msg, err := o.commitAIReply(ctx, conv, settings, candidate, decision, activeTicket, ack)
		committed = msg
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	return &ReplyOutcome{
		Message:          committed,
		Delivery:         result,
		Escalated:        decision.Escalate,
		EscalationReason: decision.EscalationReason,
	}, nil
}

// commitAIReply is the post-delivery commit for an AI turn. A failure to
// persist the message or mutate the conversation bubbles up (the
// pipeline downgrades it to a warning success); ticket, pause, and
// metric failures are logged only; they are enrichments of an already
// customer-visible message.
func (o *Orchestrator) commitAIReply(ctx context.Context, conv *store.ConversationData, settings *store.WorkspaceSettingsData, candidate *generator.CandidateReply, decision policy.Decision, activeTicket *store.TicketData, ack *platform.SendResult) (*store.MessageData, error) {
	now := o.now()
	msg := &store.MessageData{
		ConversationID:    conv.ID,
		Direction:         store.DirectionOutbound,
		Sender:            store.SenderAI,
		Text:              decision.ReplyText,
		PlatformMessageID: ack.MessageID,
		SentAt:            now,
	}
	if err := o.stores.Messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	inc := new(metrics.Increments).
		Add(store.MetricOutboundMessages, 1).
		Add(store.MetricAIReplies, 1)
	metrics.AddResponseTime(inc, conv, now)
	for _, tag := range candidate.Tags {
		inc.AddKeyed(store.MetricMapTagCounts, tag, 1)
	}
	if len(candidate.KnowledgeItemsUsed) > 0 {
		inc.Add(store.MetricKBBackedReplies, 1)
		for _, item := range candidate.KnowledgeItemsUsed {
			inc.AddKeyed(store.MetricMapKBArticleCounts, item, 1)
		}
	}
	if decision.FollowUp {
		inc.Add(store.MetricFollowupsSent, 1)
	}

	patch := store.ConversationPatch{
		LastMessage:           &decision.ReplyText,
		LastMessageAt:         &now,
		LastBusinessMessageAt: &now,
	}

	ticket := activeTicket
	if decision.Escalate && ticket == nil {
		created, err := o.escalations.CreateTicket(ctx, escalation.CreateTicketParams{
			ConversationID:  conv.ID,
			WorkspaceID:     conv.WorkspaceID,
			TopicSummary:    conv.LastMessage,
			Reason:          decision.EscalationReason,
			CreatedBy:       store.TicketCreatedByAI,
			CustomerMessage: conv.LastMessage,
		})
		if err != nil {
			// Escalation-state fields depend on the ticket; surface this
			// through the degraded-success path rather than swallowing it.
			return msg, fmt.Errorf("create escalation ticket: %w", err)
		}
		ticket = created
		trueVal := true
		patch.HumanRequired = &trueVal
		patch.HumanRequiredReason = &decision.EscalationReason
		patch.HumanTriggeredAt = &now
		patch.HumanTriggeredByMessage = &msg.ID
		patch.HumanHoldUntil = policy.HoldUntil(now, settings)
	}

	if err := o.stores.Conversations.Update(ctx, conv.ID, patch); err != nil {
		return msg, fmt.Errorf("update conversation: %w", err)
	}

	// A pre-existing ticket gets the customer turn logged here, after
	// the policy engine read the prior follow-up count; a new ticket
	// seeds it at creation.
	if activeTicket != nil && customerAwaitingReply(conv) {
		if err := o.escalations.AddUpdate(ctx, activeTicket.ID, store.TicketUpdate{
			From: store.SenderCustomer,
			Text: conv.LastMessage,
			At:   *conv.LastCustomerMessageAt,
		}); err != nil {
			o.logger.Warn("ticket update failed", "ticket", activeTicket.ID, "error", err)
		}
	}
	if ticket != nil {
		if err := o.escalations.AddUpdate(ctx, ticket.ID, store.TicketUpdate{
			From:      store.SenderAI,
			Text:      decision.ReplyText,
			MessageID: msg.ID,
			At:        now,
		}); err != nil {
			o.logger.Warn("ticket update failed", "ticket", ticket.ID, "error", err)
		}
	}

	o.coordinator.PauseForReply(ctx, conv.ID)
	o.tracker.TrackBestEffort(ctx, conv.WorkspaceID, now, inc)

	return msg, nil
}

// customerAwaitingReply reports whether the conversation's newest
// message is an unanswered customer turn.
func customerAwaitingReply(conv *store.ConversationData) bool {
	if conv.LastCustomerMessageAt == nil {
		return false
	}
	return conv.LastBusinessMessageAt == nil || conv.LastCustomerMessageAt.After(*conv.LastBusinessMessageAt)
}

// SendHumanReply delivers an operator-written message through the same
// pipeline (no policy engine), pauses automation sessions, and records
// the human-reply metrics.
func (o *Orchestrator) SendHumanReply(ctx context.Context, conversationID uuid.UUID, text string) (*store.MessageData, *delivery.Result, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.SendHumanReply",
		trace.WithAttributes(attribute.String("conversation.id", conversationID.String())))
	defer span.End()

	unlock := o.locks.lock(conversationID)
	defer unlock()

	conv, err := o.stores.Conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("load conversation: %w", err)
	}

	var committed *store.MessageData
	result, err := o.pipeline.Send(ctx, conv, text, platform.SendOptions{}, func(ctx context.Context, ack *platform.SendResult) error {
		now := o.now()
		msg := &store.MessageData{
			ConversationID:    conversationID,
			Direction:         store.DirectionOutbound,
			Sender:            store.SenderHuman,
			Text:              text,
			PlatformMessageID: ack.MessageID,
			SentAt:            now,
		}
		if err := o.stores.Messages.Create(ctx, msg); err != nil {
			return fmt.Errorf("persist message: %w", err)
		}
		committed = msg

		inc := new(metrics.Increments).
			Add(store.MetricOutboundMessages, 1).
			Add(store.MetricHumanReplies, 1)
		metrics.AddResponseTime(inc, conv, now)

		if err := o.stores.Conversations.Update(ctx, conversationID, store.ConversationPatch{
			LastMessage:           &text,
			LastMessageAt:         &now,
			LastBusinessMessageAt: &now,
		}); err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}

		if ticket, err := o.escalations.GetActiveTicket(ctx, conversationID); err != nil {
			o.logger.Warn("active ticket lookup failed", "conversation", conversationID, "error", err)
		} else if ticket != nil {
			if err := o.escalations.AddUpdate(ctx, ticket.ID, store.TicketUpdate{
				From:      store.SenderHuman,
				Text:      text,
				MessageID: msg.ID,
				At:        now,
			}); err != nil {
				o.logger.Warn("ticket update failed", "ticket", ticket.ID, "error", err)
			}
		}

		o.coordinator.PauseForReply(ctx, conversationID)
		o.tracker.TrackBestEffort(ctx, conv.WorkspaceID, now, inc)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	return committed, result, nil
}

// ResolveEscalation closes a ticket on explicit human action.
func (o *Orchestrator) ResolveEscalation(ctx context.Context, ticketID uuid.UUID) (*store.TicketData, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.ResolveEscalation",
		trace.WithAttributes(attribute.String("ticket.id", ticketID.String())))
	defer span.End()

	return o.escalations.Resolve(ctx, ticketID, store.TicketStatusResolved)
}
