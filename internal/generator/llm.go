package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxd/internal/store"
)

const systemPrompt = `You are a support assistant replying on behalf of a business.
Answer the customer's latest message. Respond with JSON only:
{"replyText": string, "shouldEscalate": bool, "escalationReason": string, "tags": [string]}
Set shouldEscalate when the request needs a human (refunds, complaints,
account changes, anything you cannot resolve from the conversation).`

// LLMGenerator implements Generator against an OpenAI-compatible
// chat-completions endpoint.
type LLMGenerator struct {
	apiBase  string
	apiKey   string
	model    string
	messages store.MessageStore
	client   *http.Client
}

// NewLLMGenerator creates a generator. apiBase defaults to the OpenAI
// endpoint when empty.
func NewLLMGenerator(apiBase, apiKey, model string, messages store.MessageStore) *LLMGenerator {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	return &LLMGenerator{
		apiBase:  strings.TrimRight(apiBase, "/"),
		apiKey:   apiKey,
		model:    model,
		messages: messages,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *LLMGenerator) Generate(ctx context.Context, conversationID, workspaceID uuid.UUID, historyLimit int) (*CandidateReply, error) {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	history, err := g.messages.ListByConversation(ctx, conversationID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	msgs := []chatMessage{{Role: "system", Content: systemPrompt}}
	// History comes back newest-first; replay oldest-first.
	for i := len(history) - 1; i >= 0; i-- {
		role := "assistant"
		if history[i].Sender == store.SenderCustomer {
			role = "user"
		}
		msgs = append(msgs, chatMessage{Role: role, Content: history[i].Text})
	}

	req := chatRequest{Model: g.model, Messages: msgs, Temperature: 0.3}
	req.ResponseFormat = &struct {
		Type string `json:"type"`
	}{Type: "json_object"}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiBase+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generator request: %w", err)
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode generator response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("generator: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("generator: empty response")
	}

	var candidate CandidateReply
	content := parsed.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &candidate); err != nil {
		// Model ignored the JSON instruction; treat the raw text as the reply.
		candidate = CandidateReply{ReplyText: strings.TrimSpace(content)}
	}
	return &candidate, nil
}
