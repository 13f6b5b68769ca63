package escalation

// Canned copy used when the generator produced no usable text. Follow-ups
// rotate so a customer nudging an open ticket several times does not see
// the same sentence every turn.
var followUpTemplates = []string{
	"Thanks for following up — your request is still with our team, and someone will get back to you as soon as possible.",
	"Just to confirm, a teammate is looking into this for you. We appreciate your patience.",
	"We haven't forgotten about you — your request is in our team's queue and we'll reply the moment there's an update.",
}

// initialEscalationText is the fallback first reply when a new escalation
// opens with empty generator output.
const initialEscalationText = "Thanks for reaching out — this needs a teammate to take a look, so I've passed it along. Someone will get back to you shortly."

// activeTicketDisclaimer is appended to non-escalating replies while a
// ticket is open: the assistant cannot speak for the human handling it.
const activeTicketDisclaimer = " Please note your earlier request is with a member of our team; I can't confirm its status myself."

// SelectFollowUp returns the follow-up template for the given prior
// follow-up count. Selection is cyclic: count and count+N pick the same
// template.
func SelectFollowUp(count int) string {
	if count < 0 {
		count = 0
	}
	return followUpTemplates[count%len(followUpTemplates)]
}

// FollowUpTemplateCount returns the rotation length.
func FollowUpTemplateCount() int { return len(followUpTemplates) }

// InitialEscalationText returns the fixed first-escalation fallback.
func InitialEscalationText() string { return initialEscalationText }

// ActiveTicketDisclaimer returns the sentence appended to replies sent
// while a ticket is open.
func ActiveTicketDisclaimer() string { return activeTicketDisclaimer }
