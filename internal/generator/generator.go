// Package generator abstracts the AI reply generator. The orchestrator
// depends on the Generator interface; the default implementation calls
// an OpenAI-compatible chat endpoint and expects structured JSON back.
package generator

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// CandidateReply is the generator's proposal for one conversation turn.
// The policy engine may rewrite ReplyText before anything is sent.
type CandidateReply struct {
	ReplyText          string   `json:"replyText"`
	ShouldEscalate     bool     `json:"shouldEscalate"`
	EscalationReason   string   `json:"escalationReason,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	KnowledgeItemsUsed []string `json:"knowledgeItemsUsed,omitempty"`
}

// HasText reports whether the generator produced non-whitespace output.
func (c *CandidateReply) HasText() bool {
	return strings.TrimSpace(c.ReplyText) != ""
}

// Generator produces a candidate reply from recent conversation history.
type Generator interface {
	Generate(ctx context.Context, conversationID, workspaceID uuid.UUID, historyLimit int) (*CandidateReply, error)
}
