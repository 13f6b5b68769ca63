package policy

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxd/internal/escalation"
	"github.com/inboxpilot/inboxd/internal/generator"
	"github.com/inboxpilot/inboxd/internal/store"
)

func ticketWith(reason string, followUps int) *store.TicketData {
	return &store.TicketData{
		ID:            store.GenNewID(),
		WorkspaceID:   uuid.New(),
		Status:        store.TicketStatusPending,
		Reason:        reason,
		FollowUpCount: followUps,
	}
}

func TestDecide_PassThrough(t *testing.T) {
	d := Decide(&generator.CandidateReply{ReplyText: "Your order ships Monday."}, nil)

	if d.Escalate {
		t.Fatal("no escalation expected")
	}
	if d.FollowUp {
		t.Fatal("no follow-up expected")
	}
	if d.ReplyText != "Your order ships Monday." {
		t.Fatalf("ReplyText = %q", d.ReplyText)
	}
}

func TestDecide_NewEscalation_KeepsGeneratorText(t *testing.T) {
	d := Decide(&generator.CandidateReply{
		ReplyText:        "Let me get a teammate to help with that refund.",
		ShouldEscalate:   true,
		EscalationReason: "refund_request",
	}, nil)

	if !d.Escalate {
		t.Fatal("expected escalation")
	}
	if d.FollowUp {
		t.Fatal("first escalation is not a follow-up")
	}
	if d.EscalationReason != "refund_request" {
		t.Fatalf("EscalationReason = %q", d.EscalationReason)
	}
	if d.ReplyText != "Let me get a teammate to help with that refund." {
		t.Fatalf("generator text should win over the template, got %q", d.ReplyText)
	}
}

func TestDecide_NewEscalation_EmptyTextFallsBackToTemplate(t *testing.T) {
	d := Decide(&generator.CandidateReply{ShouldEscalate: true, EscalationReason: "angry_customer"}, nil)

	if d.ReplyText != escalation.InitialEscalationText() {
		t.Fatalf("ReplyText = %q, want initial escalation template", d.ReplyText)
	}
	if !d.Escalate || d.FollowUp {
		t.Fatalf("Escalate = %v, FollowUp = %v", d.Escalate, d.FollowUp)
	}
}

func TestDecide_ActiveTicket_AppendsDisclaimer(t *testing.T) {
	d := Decide(&generator.CandidateReply{ReplyText: "We close at 6pm."}, ticketWith("refund_request", 0))

	if d.Escalate {
		t.Fatal("non-escalating candidate must not escalate")
	}
	if !strings.HasPrefix(d.ReplyText, "We close at 6pm.") {
		t.Fatalf("ReplyText = %q, want generator text first", d.ReplyText)
	}
	if !strings.HasSuffix(d.ReplyText, escalation.ActiveTicketDisclaimer()) {
		t.Fatalf("ReplyText = %q, want disclaimer suffix", d.ReplyText)
	}
}

func TestDecide_ActiveTicket_EmptyTextIsBareDisclaimer(t *testing.T) {
	d := Decide(&generator.CandidateReply{ReplyText: "   "}, ticketWith("refund_request", 0))

	if d.Escalate {
		t.Fatal("non-escalating candidate must not escalate")
	}
	want := strings.TrimSpace(escalation.ActiveTicketDisclaimer())
	if d.ReplyText != want {
		t.Fatalf("ReplyText = %q, want the disclaimer alone", d.ReplyText)
	}
	if strings.HasPrefix(d.ReplyText, " ") {
		t.Fatalf("ReplyText = %q, leading whitespace", d.ReplyText)
	}
}

func TestDecide_ActiveTicket_FollowUp(t *testing.T) {
	ticket := ticketWith("refund_request", 2)
	d := Decide(&generator.CandidateReply{ShouldEscalate: true}, ticket)

	if !d.Escalate || !d.FollowUp {
		t.Fatalf("Escalate = %v, FollowUp = %v, want both", d.Escalate, d.FollowUp)
	}
	if d.ReplyText != escalation.SelectFollowUp(2) {
		t.Fatalf("ReplyText = %q, want follow-up template for count 2", d.ReplyText)
	}
	if d.EscalationReason != "refund_request" {
		t.Fatalf("empty candidate reason should default to the ticket's, got %q", d.EscalationReason)
	}
}

func TestDecide_FollowUp_CandidateReasonWins(t *testing.T) {
	d := Decide(&generator.CandidateReply{
		ReplyText:        "A teammate is on it.",
		ShouldEscalate:   true,
		EscalationReason: "second_complaint",
	}, ticketWith("refund_request", 0))

	if d.EscalationReason != "second_complaint" {
		t.Fatalf("EscalationReason = %q, want candidate's reason", d.EscalationReason)
	}
	if d.ReplyText != "A teammate is on it." {
		t.Fatalf("ReplyText = %q", d.ReplyText)
	}
}

func TestDecide_WhitespaceOnlyTextCountsAsEmpty(t *testing.T) {
	d := Decide(&generator.CandidateReply{ReplyText: "  \n ", ShouldEscalate: true}, nil)

	if d.ReplyText != escalation.InitialEscalationText() {
		t.Fatalf("whitespace-only text should fall back to the template, got %q", d.ReplyText)
	}
}
