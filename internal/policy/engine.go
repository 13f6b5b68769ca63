// Package policy decides what an automated reply actually says. It is
// pure: the engine reads the candidate reply, the active ticket, and the
// workspace settings, and produces final text plus an escalation verdict.
// All I/O (ticket creation, delivery, conversation mutation) happens on
// the commit path after delivery succeeds.
package policy

import (
	"strings"

	"github.com/inboxpilot/inboxd/internal/escalation"
	"github.com/inboxpilot/inboxd/internal/generator"
	"github.com/inboxpilot/inboxd/internal/store"
)

// Decision is the engine's output for one turn.
type Decision struct {
	ReplyText        string
	Escalate         bool
	EscalationReason string

	// FollowUp marks an escalating turn against an already-open ticket
	// (counts toward followupsSent rather than escalationsOpened).
	FollowUp bool
}

// Decide applies the decision table, in priority order:
//
//  1. active ticket + escalating candidate → follow-up message
//  2. active ticket + non-escalating candidate → reply with disclaimer
//  3. no ticket + escalating candidate → initial escalation message
//  4. no ticket, no escalation → pass through
//
// The engine never overrides the generator's escalation signal; an
// active ticket only selects the template and decoration.
func Decide(candidate *generator.CandidateReply, activeTicket *store.TicketData) Decision {
	text := strings.TrimSpace(candidate.ReplyText)

	switch {
	case activeTicket != nil && candidate.ShouldEscalate:
		// Templates are a fallback for empty generator output, not the
		// default text.
		if text == "" {
			text = escalation.SelectFollowUp(activeTicket.FollowUpCount)
		}
		reason := candidate.EscalationReason
		if reason == "" {
			reason = activeTicket.Reason
		}
		return Decision{ReplyText: text, Escalate: true, EscalationReason: reason, FollowUp: true}

	case activeTicket != nil:
		if text == "" {
			return Decision{ReplyText: strings.TrimSpace(escalation.ActiveTicketDisclaimer())}
		}
		return Decision{ReplyText: text + escalation.ActiveTicketDisclaimer()}

	case candidate.ShouldEscalate:
		if text == "" {
			text = escalation.InitialEscalationText()
		}
		return Decision{ReplyText: text, Escalate: true, EscalationReason: candidate.EscalationReason}

	default:
		return Decision{ReplyText: text}
	}
}
