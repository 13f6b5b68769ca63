package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxd/internal/automation"
	"github.com/inboxpilot/inboxd/internal/delivery"
	"github.com/inboxpilot/inboxd/internal/escalation"
	"github.com/inboxpilot/inboxd/internal/generator"
	"github.com/inboxpilot/inboxd/internal/metrics"
	"github.com/inboxpilot/inboxd/internal/platform"
	"github.com/inboxpilot/inboxd/internal/store"
	"github.com/inboxpilot/inboxd/internal/store/sqlite"
)

// scriptedClient acknowledges every send with a fresh message id unless
// an error is scripted.
type scriptedClient struct {
	sends int
	err   error
}

func (c *scriptedClient) Send(context.Context, string, string, platform.SendOptions) (*platform.SendResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.sends++
	return &platform.SendResult{MessageID: fmt.Sprintf("mid.%d", c.sends)}, nil
}

func (c *scriptedClient) SendWithAttachment(context.Context, string, string, platform.Attachment) (*platform.SendResult, error) {
	return nil, errors.New("not implemented")
}

func (c *scriptedClient) SendTemplateButtons(context.Context, string, string, []platform.Button) (*platform.SendResult, error) {
	return nil, errors.New("not implemented")
}

func (c *scriptedClient) SendPrivateReplyToComment(context.Context, string, string) (*platform.SendResult, error) {
	return nil, errors.New("not implemented")
}

// stubGenerator returns a fixed candidate.
type stubGenerator struct {
	candidate *generator.CandidateReply
	err       error
}

func (g *stubGenerator) Generate(context.Context, uuid.UUID, uuid.UUID, int) (*generator.CandidateReply, error) {
	return g.candidate, g.err
}

type env struct {
	orch   *Orchestrator
	stores *store.Stores
	client *scriptedClient
	gen    *stubGenerator
	conv   *store.ConversationData
}

func newEnv(t *testing.T, behavior string) *env {
	t.Helper()

	stores, err := sqlite.NewSQLiteStores(store.StoreConfig{
		SQLitePath:                ":memory:",
		DefaultEscalationBehavior: behavior,
		DefaultHoldMinutes:        60,
	})
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}

	client := &scriptedClient{}
	gen := &stubGenerator{candidate: &generator.CandidateReply{ReplyText: "Happy to help!"}}

	tracker := metrics.NewTracker(stores.Reports, nil)
	escalations := escalation.NewManager(stores.Tickets, stores.Conversations, tracker, nil)
	coordinator := automation.NewCoordinator(stores.Automation, nil)
	pipeline := delivery.NewPipeline(client, 0, nil)

	orch := New(Config{
		Stores:      stores,
		Escalations: escalations,
		Coordinator: coordinator,
		Tracker:     tracker,
		Pipeline:    pipeline,
		Generator:   gen,
	})

	conv := &store.ConversationData{
		WorkspaceID:    uuid.New(),
		PlatformUserID: "igsid-1",
		PlatformPageID: "page-1",
	}
	if err := stores.Conversations.Create(context.Background(), conv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	return &env{orch: orch, stores: stores, client: client, gen: gen, conv: conv}
}

func (e *env) reload(t *testing.T) *store.ConversationData {
	t.Helper()
	conv, err := e.stores.Conversations.Get(context.Background(), e.conv.ID)
	if err != nil {
		t.Fatalf("reload conversation: %v", err)
	}
	return conv
}

func (e *env) activeTicket(t *testing.T) *store.TicketData {
	t.Helper()
	ticket, err := e.stores.Tickets.GetActive(context.Background(), e.conv.ID)
	if err != nil {
		t.Fatalf("get active ticket: %v", err)
	}
	return ticket
}

func (e *env) todayReport(t *testing.T) *store.DailyReportData {
	t.Helper()
	report, err := e.stores.Reports.GetDaily(context.Background(), e.conv.WorkspaceID, store.DayOf(time.Now()))
	if err != nil {
		t.Fatalf("get daily report: %v", err)
	}
	return report
}

func TestInboundThenEscalatingAIReply(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, store.EscalationBehaviorAISilent)

	if _, err := e.orch.HandleInboundCustomerMessage(ctx, e.conv.ID, "I want a refund NOW"); err != nil {
		t.Fatalf("inbound: %v", err)
	}

	e.gen.candidate = &generator.CandidateReply{
		ShouldEscalate:   true,
		EscalationReason: "refund_request",
	}

	outcome, err := e.orch.GenerateAndSendAIReply(ctx, e.conv.ID)
	if err != nil {
		t.Fatalf("ai reply: %v", err)
	}
	if !outcome.Escalated || outcome.EscalationReason != "refund_request" {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.Delivery.Outcome != delivery.Delivered {
		t.Fatalf("Delivery.Outcome = %v", outcome.Delivery.Outcome)
	}
	if outcome.Message == nil || outcome.Message.Text == "" {
		t.Fatal("empty generator output should fall back to the escalation template")
	}

	ticket := e.activeTicket(t)
	if ticket == nil {
		t.Fatal("expected an active ticket")
	}
	if ticket.CreatedBy != store.TicketCreatedByAI {
		t.Fatalf("CreatedBy = %q", ticket.CreatedBy)
	}
	if ticket.TopicSummary != "I want a refund NOW" {
		t.Fatalf("TopicSummary = %q", ticket.TopicSummary)
	}
	if ticket.LastAiMessage == "" {
		t.Fatal("ai turn missing from ticket denormalized fields")
	}

	conv := e.reload(t)
	if !conv.HumanRequired || conv.HumanRequiredReason != "refund_request" {
		t.Fatalf("conversation flags = %+v", conv)
	}
	if !conv.HoldActive(time.Now()) {
		t.Fatal("ai_silent escalation must set a hold window")
	}
	if conv.LastBusinessMessageAt == nil {
		t.Fatal("LastBusinessMessageAt not set")
	}

	// The hold now blocks further automated replies.
	if _, err := e.orch.GenerateAndSendAIReply(ctx, e.conv.ID); !errors.Is(err, ErrHoldActive) {
		t.Fatalf("err = %v, want ErrHoldActive", err)
	}

	report := e.todayReport(t)
	if report.InboundMessages != 1 || report.OutboundMessages != 1 || report.AIReplies != 1 {
		t.Fatalf("report = %+v", report)
	}
	if report.EscalationsOpened != 1 {
		t.Fatalf("EscalationsOpened = %d", report.EscalationsOpened)
	}
	if report.EscalationReasonCounts["refund_request"] != 1 {
		t.Fatalf("EscalationReasonCounts = %v", report.EscalationReasonCounts)
	}
	if report.FirstResponseTimeCount != 1 {
		t.Fatalf("FirstResponseTimeCount = %d", report.FirstResponseTimeCount)
	}
}

func TestNonEscalatingReplyDuringActiveTicket(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, store.EscalationBehaviorAIAllowed)

	if _, err := e.orch.HandleInboundCustomerMessage(ctx, e.conv.ID, "my order is broken"); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	e.gen.candidate = &generator.CandidateReply{ShouldEscalate: true, EscalationReason: "damaged_item"}
	if _, err := e.orch.GenerateAndSendAIReply(ctx, e.conv.ID); err != nil {
		t.Fatalf("escalating reply: %v", err)
	}
	first := e.activeTicket(t)
	if first == nil {
		t.Fatal("expected a ticket")
	}

	// ai_allowed: no hold, so the assistant can answer a side question.
	e.gen.candidate = &generator.CandidateReply{ReplyText: "We close at 6pm."}
	outcome, err := e.orch.GenerateAndSendAIReply(ctx, e.conv.ID)
	if err != nil {
		t.Fatalf("second reply: %v", err)
	}
	if outcome.Escalated {
		t.Fatal("non-escalating candidate must not escalate")
	}
	if !strings.HasPrefix(outcome.Message.Text, "We close at 6pm.") {
		t.Fatalf("Text = %q", outcome.Message.Text)
	}
	if !strings.HasSuffix(outcome.Message.Text, escalation.ActiveTicketDisclaimer()) {
		t.Fatalf("missing disclaimer: %q", outcome.Message.Text)
	}

	second := e.activeTicket(t)
	if second == nil || second.ID != first.ID {
		t.Fatalf("a second ticket was opened: %+v", second)
	}

	report := e.todayReport(t)
	if report.EscalationsOpened != 1 {
		t.Fatalf("EscalationsOpened = %d, want 1", report.EscalationsOpened)
	}
}

func TestEscalatingFollowUpCountsAsFollowUp(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, store.EscalationBehaviorAIAllowed)

	if _, err := e.orch.HandleInboundCustomerMessage(ctx, e.conv.ID, "refund please"); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	e.gen.candidate = &generator.CandidateReply{ShouldEscalate: true, EscalationReason: "refund_request"}
	if _, err := e.orch.GenerateAndSendAIReply(ctx, e.conv.ID); err != nil {
		t.Fatalf("first escalation: %v", err)
	}

	if _, err := e.orch.HandleInboundCustomerMessage(ctx, e.conv.ID, "any update??"); err != nil {
		t.Fatalf("follow-up inbound: %v", err)
	}
	e.gen.candidate = &generator.CandidateReply{ShouldEscalate: true}
	outcome, err := e.orch.GenerateAndSendAIReply(ctx, e.conv.ID)
	if err != nil {
		t.Fatalf("follow-up reply: %v", err)
	}
	if !outcome.Escalated {
		t.Fatal("expected escalation")
	}
	if outcome.EscalationReason != "refund_request" {
		t.Fatalf("reason = %q, want the ticket's", outcome.EscalationReason)
	}

	report := e.todayReport(t)
	if report.EscalationsOpened != 1 {
		t.Fatalf("EscalationsOpened = %d, follow-up must not open a second ticket", report.EscalationsOpened)
	}
	if report.FollowupsSent != 1 {
		t.Fatalf("FollowupsSent = %d, want 1", report.FollowupsSent)
	}
}

func TestFollowUpTemplateRotationStartsAtZero(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, store.EscalationBehaviorAIAllowed)

	if _, err := e.orch.HandleInboundCustomerMessage(ctx, e.conv.ID, "Where is my order?"); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	e.gen.candidate = &generator.CandidateReply{ShouldEscalate: true, EscalationReason: "order_status"}
	if _, err := e.orch.GenerateAndSendAIReply(ctx, e.conv.ID); err != nil {
		t.Fatalf("first escalation: %v", err)
	}
	if ticket := e.activeTicket(t); ticket.FollowUpCount != 0 {
		t.Fatalf("FollowUpCount = %d after the opening turn, want 0", ticket.FollowUpCount)
	}

	// The second customer message must see the pre-turn count of 0 and
	// get the first template; the count reaches 1 only afterwards.
	if _, err := e.orch.HandleInboundCustomerMessage(ctx, e.conv.ID, "Still waiting"); err != nil {
		t.Fatalf("second inbound: %v", err)
	}
	e.gen.candidate = &generator.CandidateReply{ShouldEscalate: true}
	outcome, err := e.orch.GenerateAndSendAIReply(ctx, e.conv.ID)
	if err != nil {
		t.Fatalf("first follow-up: %v", err)
	}
	if got, want := outcome.Message.Text, escalation.SelectFollowUp(0); got != want {
		t.Fatalf("follow-up text = %q, want %q", got, want)
	}
	ticket := e.activeTicket(t)
	if ticket.FollowUpCount != 1 {
		t.Fatalf("FollowUpCount = %d after the follow-up turn, want 1", ticket.FollowUpCount)
	}
	var loggedCustomer bool
	for _, u := range ticket.Updates {
		if u.From == store.SenderCustomer && u.Text == "Still waiting" {
			loggedCustomer = true
		}
	}
	if !loggedCustomer {
		t.Fatalf("customer turn missing from ticket updates: %+v", ticket.Updates)
	}

	if _, err := e.orch.HandleInboundCustomerMessage(ctx, e.conv.ID, "Hello???"); err != nil {
		t.Fatalf("third inbound: %v", err)
	}
	outcome, err = e.orch.GenerateAndSendAIReply(ctx, e.conv.ID)
	if err != nil {
		t.Fatalf("second follow-up: %v", err)
	}
	if got, want := outcome.Message.Text, escalation.SelectFollowUp(1); got != want {
		t.Fatalf("second follow-up text = %q, want %q", got, want)
	}
}

func TestHumanReplyPausesAutomationAndLogsTicket(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, store.EscalationBehaviorAISilent)

	if err := e.stores.Automation.Create(ctx, &store.AutomationSessionData{
		ConversationID: e.conv.ID,
		Status:         store.SessionStatusActive,
	}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := e.orch.HandleInboundCustomerMessage(ctx, e.conv.ID, "I need a human"); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	e.gen.candidate = &generator.CandidateReply{ShouldEscalate: true, EscalationReason: "human_request"}
	if _, err := e.orch.GenerateAndSendAIReply(ctx, e.conv.ID); err != nil {
		t.Fatalf("escalation: %v", err)
	}

	msg, res, err := e.orch.SendHumanReply(ctx, e.conv.ID, "Hi, Maria here, let me sort this out.")
	if err != nil {
		t.Fatalf("human reply: %v", err)
	}
	if res.Outcome != delivery.Delivered {
		t.Fatalf("Outcome = %v", res.Outcome)
	}
	if msg.Sender != store.SenderHuman || msg.Direction != store.DirectionOutbound {
		t.Fatalf("message = %+v", msg)
	}

	sessions, err := e.stores.Automation.ListByConversation(ctx, e.conv.ID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Status != store.SessionStatusPaused {
		t.Fatalf("sessions = %+v", sessions)
	}
	if sessions[0].PauseReason != store.PauseReasonHumanReply {
		t.Fatalf("PauseReason = %q", sessions[0].PauseReason)
	}

	ticket := e.activeTicket(t)
	if ticket == nil {
		t.Fatal("expected the ticket to stay active (human reply does not resolve)")
	}
	var humanLogged bool
	for _, u := range ticket.Updates {
		if u.From == store.SenderHuman {
			humanLogged = true
		}
	}
	if !humanLogged {
		t.Fatalf("human turn missing from ticket updates: %+v", ticket.Updates)
	}

	report := e.todayReport(t)
	if report.HumanReplies != 1 {
		t.Fatalf("HumanReplies = %d", report.HumanReplies)
	}
}

func TestPlatformFailurePersistsNothing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, store.EscalationBehaviorAISilent)

	if _, err := e.orch.HandleInboundCustomerMessage(ctx, e.conv.ID, "hello"); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	e.client.err = errors.New("platform 500")
	e.gen.candidate = &generator.CandidateReply{ShouldEscalate: true, EscalationReason: "refund_request"}

	_, err := e.orch.GenerateAndSendAIReply(ctx, e.conv.ID)
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("err = %v, want ErrDeliveryFailed", err)
	}

	msgs, err := e.stores.Messages.ListByConversation(ctx, e.conv.ID, 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	for _, m := range msgs {
		if m.Direction == store.DirectionOutbound {
			t.Fatalf("outbound message persisted after failed send: %+v", m)
		}
	}
	if e.activeTicket(t) != nil {
		t.Fatal("ticket created despite failed send")
	}
	conv := e.reload(t)
	if conv.HumanRequired || conv.LastBusinessMessageAt != nil {
		t.Fatalf("conversation mutated after failed send: %+v", conv)
	}
}

func TestGenerationFailure(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, store.EscalationBehaviorAISilent)

	e.gen.err = errors.New("model timeout")
	_, err := e.orch.GenerateAndSendAIReply(ctx, e.conv.ID)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	if e.client.sends != 0 {
		t.Fatal("platform must not be called when generation fails")
	}
}

func TestAutoReplyDisabled(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, store.EscalationBehaviorAISilent)

	disabled := true
	if err := e.stores.Conversations.Update(ctx, e.conv.ID, store.ConversationPatch{
		AutoReplyDisabled: &disabled,
	}); err != nil {
		t.Fatalf("disable: %v", err)
	}

	if _, err := e.orch.GenerateAndSendAIReply(ctx, e.conv.ID); !errors.Is(err, ErrAutoReplyDisabled) {
		t.Fatalf("err = %v, want ErrAutoReplyDisabled", err)
	}
}

func TestResolveEscalationLiftsHold(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, store.EscalationBehaviorAISilent)

	if _, err := e.orch.HandleInboundCustomerMessage(ctx, e.conv.ID, "talk to a person"); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	e.gen.candidate = &generator.CandidateReply{ShouldEscalate: true, EscalationReason: "human_request"}
	if _, err := e.orch.GenerateAndSendAIReply(ctx, e.conv.ID); err != nil {
		t.Fatalf("escalation: %v", err)
	}

	ticket := e.activeTicket(t)
	if ticket == nil {
		t.Fatal("expected a ticket")
	}

	resolved, err := e.orch.ResolveEscalation(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != store.TicketStatusResolved {
		t.Fatalf("Status = %q", resolved.Status)
	}
	if e.activeTicket(t) != nil {
		t.Fatal("ticket still active after resolution")
	}

	conv := e.reload(t)
	if conv.HumanRequired {
		t.Fatal("HumanRequired not cleared")
	}
	if conv.HumanHoldUntil != nil {
		t.Fatal("hold window not cleared")
	}

	// Automation resumes: the next AI turn goes through.
	e.gen.candidate = &generator.CandidateReply{ReplyText: "Anything else I can help with?"}
	if _, err := e.orch.GenerateAndSendAIReply(ctx, e.conv.ID); err != nil {
		t.Fatalf("post-resolution reply: %v", err)
	}

	report := e.todayReport(t)
	if report.EscalationsClosed != 1 {
		t.Fatalf("EscalationsClosed = %d", report.EscalationsClosed)
	}
}

func TestTagAndKnowledgeMetrics(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, store.EscalationBehaviorAISilent)

	if _, err := e.orch.HandleInboundCustomerMessage(ctx, e.conv.ID, "what sizes do you carry?"); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	e.gen.candidate = &generator.CandidateReply{
		ReplyText:          "We carry S through XXL.",
		Tags:               []string{"sales", "sizing"},
		KnowledgeItemsUsed: []string{"kb-size-chart"},
	}
	if _, err := e.orch.GenerateAndSendAIReply(ctx, e.conv.ID); err != nil {
		t.Fatalf("reply: %v", err)
	}

	report := e.todayReport(t)
	if report.KBBackedReplies != 1 {
		t.Fatalf("KBBackedReplies = %d", report.KBBackedReplies)
	}
	if report.TagCounts["sales"] != 1 || report.TagCounts["sizing"] != 1 {
		t.Fatalf("TagCounts = %v", report.TagCounts)
	}
	if report.KBArticleCounts["kb-size-chart"] != 1 {
		t.Fatalf("KBArticleCounts = %v", report.KBArticleCounts)
	}
}
