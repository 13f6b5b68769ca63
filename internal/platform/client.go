// Package platform abstracts the external messaging platform. The
// delivery pipeline talks to the Client interface only; the concrete
// wire client (Graph-style HTTP, or a test stub) is injected at startup.
package platform

import (
	"context"
	"errors"
	"fmt"
)

// Delivery tags. TagPriority requires prior platform approval; sends
// carrying it can be rejected with ErrUnsupportedTag and are retried
// once without the tag by the delivery pipeline.
const (
	TagPriority = "priority"
)

// ErrUnsupportedTag marks a rejection caused solely by a delivery tag
// the account is not approved for. Wrap it so errors.Is works across
// adapter boundaries.
var ErrUnsupportedTag = errors.New("platform: unsupported delivery tag")

// SendOptions carries optional delivery settings.
type SendOptions struct {
	Tag string // "" or TagPriority
}

// SendResult is the platform's acknowledgment. A success must carry at
// least one identifier; an acknowledgment with neither is treated as a
// delivery failure by the pipeline.
type SendResult struct {
	MessageID   string `json:"messageId,omitempty"`
	RecipientID string `json:"recipientId,omitempty"`
}

// Acknowledged reports whether the platform returned any identifier.
func (r *SendResult) Acknowledged() bool {
	return r != nil && (r.MessageID != "" || r.RecipientID != "")
}

// Attachment is an outbound media attachment.
type Attachment struct {
	Type string `json:"type"` // image | video | audio | file
	URL  string `json:"url"`
}

// Button is one option in a template-button message.
type Button struct {
	Title   string `json:"title"`
	Payload string `json:"payload,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Client is the outbound capability of the messaging platform. All
// methods return a transport/auth error on failure; a nil error with an
// id-less result is still not a delivery (see SendResult.Acknowledged).
type Client interface {
	Send(ctx context.Context, recipientID, text string, opts SendOptions) (*SendResult, error)
	SendWithAttachment(ctx context.Context, recipientID, text string, att Attachment) (*SendResult, error)
	SendTemplateButtons(ctx context.Context, recipientID, text string, buttons []Button) (*SendResult, error)
	SendPrivateReplyToComment(ctx context.Context, commentID, text string) (*SendResult, error)
}

// Error wraps a platform-side failure with the upstream status code so
// callers can log it without parsing strings.
type Error struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("platform: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("platform: status %d: %s", e.StatusCode, e.Body)
}

func (e *Error) Unwrap() error { return e.Err }
