package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GraphClient sends messages through a Graph-style messaging HTTP API.
// It implements Client; the wire details beyond "POST JSON, read ids
// back" are deliberately thin: this layer treats the platform as an
// opaque capability.
type GraphClient struct {
	apiBase string
	pageID  string
	token   string // access token, from env only
	client  *http.Client
}

// NewGraphClient creates a platform client for one business page.
func NewGraphClient(apiBase, pageID, token string) *GraphClient {
	apiBase = strings.TrimRight(apiBase, "/")
	return &GraphClient{
		apiBase: apiBase,
		pageID:  pageID,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type graphSendRequest struct {
	Recipient struct {
		ID        string `json:"id,omitempty"`
		CommentID string `json:"comment_id,omitempty"`
	} `json:"recipient"`
	Message struct {
		Text       string          `json:"text,omitempty"`
		Attachment json.RawMessage `json:"attachment,omitempty"`
	} `json:"message"`
	Tag string `json:"tag,omitempty"`
}

type graphSendResponse struct {
	MessageID   string `json:"message_id"`
	RecipientID string `json:"recipient_id"`
	Error       *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (c *GraphClient) Send(ctx context.Context, recipientID, text string, opts SendOptions) (*SendResult, error) {
	var req graphSendRequest
	req.Recipient.ID = recipientID
	req.Message.Text = text
	req.Tag = opts.Tag
	return c.post(ctx, req)
}

func (c *GraphClient) SendWithAttachment(ctx context.Context, recipientID, text string, att Attachment) (*SendResult, error) {
	payload, err := json.Marshal(map[string]any{
		"type":    att.Type,
		"payload": map[string]string{"url": att.URL},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal attachment: %w", err)
	}
	var req graphSendRequest
	req.Recipient.ID = recipientID
	req.Message.Text = text
	req.Message.Attachment = payload
	return c.post(ctx, req)
}

func (c *GraphClient) SendTemplateButtons(ctx context.Context, recipientID, text string, buttons []Button) (*SendResult, error) {
	payload, err := json.Marshal(map[string]any{
		"type": "template",
		"payload": map[string]any{
			"template_type": "button",
			"text":          text,
			"buttons":       buttons,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal buttons: %w", err)
	}
	var req graphSendRequest
	req.Recipient.ID = recipientID
	req.Message.Attachment = payload
	return c.post(ctx, req)
}

func (c *GraphClient) SendPrivateReplyToComment(ctx context.Context, commentID, text string) (*SendResult, error) {
	var req graphSendRequest
	req.Recipient.CommentID = commentID
	req.Message.Text = text
	return c.post(ctx, req)
}

func (c *GraphClient) post(ctx context.Context, payload graphSendRequest) (*SendResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.apiBase, c.pageID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("platform request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read platform response: %w", err)
	}

	var parsed graphSendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("decode platform response: %w", err)
	}

	if resp.StatusCode >= 300 || parsed.Error != nil {
		msg := string(respBody)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		if isUnsupportedTagError(msg) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedTag, msg)
		}
		return nil, &Error{StatusCode: resp.StatusCode, Body: msg}
	}

	return &SendResult{MessageID: parsed.MessageID, RecipientID: parsed.RecipientID}, nil
}

// isUnsupportedTagError recognizes the platform's rejection of a
// notification-priority tag the account has not been approved for.
func isUnsupportedTagError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "tag") &&
		(strings.Contains(lower, "not supported") || strings.Contains(lower, "not approved") || strings.Contains(lower, "invalid"))
}
