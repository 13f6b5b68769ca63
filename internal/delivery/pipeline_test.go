package delivery

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxd/internal/platform"
	"github.com/inboxpilot/inboxd/internal/store"
)

// stubClient records sends and replays scripted responses.
type stubClient struct {
	calls   []platform.SendOptions
	results []*platform.SendResult
	errs    []error
}

func (c *stubClient) Send(_ context.Context, _, _ string, opts platform.SendOptions) (*platform.SendResult, error) {
	n := len(c.calls)
	c.calls = append(c.calls, opts)
	var res *platform.SendResult
	var err error
	if n < len(c.results) {
		res = c.results[n]
	}
	if n < len(c.errs) {
		err = c.errs[n]
	}
	return res, err
}

func (c *stubClient) SendWithAttachment(context.Context, string, string, platform.Attachment) (*platform.SendResult, error) {
	return nil, errors.New("not implemented")
}

func (c *stubClient) SendTemplateButtons(context.Context, string, string, []platform.Button) (*platform.SendResult, error) {
	return nil, errors.New("not implemented")
}

func (c *stubClient) SendPrivateReplyToComment(context.Context, string, string) (*platform.SendResult, error) {
	return nil, errors.New("not implemented")
}

func deliverableConv() *store.ConversationData {
	return &store.ConversationData{
		ID:             store.GenNewID(),
		WorkspaceID:    uuid.New(),
		PlatformUserID: "igsid-1",
		PlatformPageID: "page-1",
	}
}

func TestSend_PersistsOnlyAfterAcknowledgment(t *testing.T) {
	client := &stubClient{
		results: []*platform.SendResult{{MessageID: "mid.123"}},
	}
	p := NewPipeline(client, 0, nil)

	committed := false
	res, err := p.Send(context.Background(), deliverableConv(), "hi", platform.SendOptions{},
		func(_ context.Context, ack *platform.SendResult) error {
			if ack.MessageID != "mid.123" {
				t.Fatalf("commit saw ack %+v", ack)
			}
			committed = true
			return nil
		})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Outcome != Delivered {
		t.Fatalf("Outcome = %v, want Delivered", res.Outcome)
	}
	if !committed {
		t.Fatal("commit did not run")
	}
	if res.PlatformMessageID != "mid.123" {
		t.Fatalf("PlatformMessageID = %q", res.PlatformMessageID)
	}
}

func TestSend_PlatformFailureSkipsCommit(t *testing.T) {
	client := &stubClient{errs: []error{errors.New("boom")}}
	p := NewPipeline(client, 0, nil)

	res, err := p.Send(context.Background(), deliverableConv(), "hi", platform.SendOptions{},
		func(context.Context, *platform.SendResult) error {
			t.Fatal("commit must not run after a failed send")
			return nil
		})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Outcome != Failed {
		t.Fatalf("Outcome = %v, want Failed", res.Outcome)
	}
}

func TestSend_EmptyAcknowledgmentIsFailure(t *testing.T) {
	client := &stubClient{results: []*platform.SendResult{{}}}
	p := NewPipeline(client, 0, nil)

	res, err := p.Send(context.Background(), deliverableConv(), "hi", platform.SendOptions{},
		func(context.Context, *platform.SendResult) error {
			t.Fatal("commit must not run on an id-less acknowledgment")
			return nil
		})
	if !errors.Is(err, ErrNoAcknowledgment) {
		t.Fatalf("err = %v, want ErrNoAcknowledgment", err)
	}
	if res.Outcome != Failed {
		t.Fatalf("Outcome = %v, want Failed", res.Outcome)
	}
}

func TestSend_CommitFailureIsDegradedSuccess(t *testing.T) {
	client := &stubClient{results: []*platform.SendResult{{MessageID: "mid.9"}}}
	p := NewPipeline(client, 0, nil)

	persistErr := errors.New("db down")
	res, err := p.Send(context.Background(), deliverableConv(), "hi", platform.SendOptions{},
		func(context.Context, *platform.SendResult) error { return persistErr })
	if err != nil {
		t.Fatalf("a delivered message must not surface as an error, got %v", err)
	}
	if res.Outcome != DeliveredNotPersisted {
		t.Fatalf("Outcome = %v, want DeliveredNotPersisted", res.Outcome)
	}
	if res.Warning == "" {
		t.Fatal("expected a warning")
	}
	if !errors.Is(res.PersistErr, persistErr) {
		t.Fatalf("PersistErr = %v", res.PersistErr)
	}
	if len(client.calls) != 1 {
		t.Fatalf("platform called %d times, want 1 (no retry after commit failure)", len(client.calls))
	}
}

func TestSend_UnsupportedTagRetriesOnceWithoutTag(t *testing.T) {
	tagErr := fmt.Errorf("graph send: %w", platform.ErrUnsupportedTag)
	client := &stubClient{
		results: []*platform.SendResult{nil, {MessageID: "mid.2"}},
		errs:    []error{tagErr, nil},
	}
	p := NewPipeline(client, 0, nil)

	res, err := p.Send(context.Background(), deliverableConv(), "hi",
		platform.SendOptions{Tag: platform.TagPriority}, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Outcome != Delivered {
		t.Fatalf("Outcome = %v, want Delivered", res.Outcome)
	}
	if len(client.calls) != 2 {
		t.Fatalf("platform called %d times, want 2", len(client.calls))
	}
	if client.calls[0].Tag != platform.TagPriority {
		t.Fatalf("first call tag = %q", client.calls[0].Tag)
	}
	if client.calls[1].Tag != "" {
		t.Fatalf("retry kept the tag: %q", client.calls[1].Tag)
	}
}

func TestSend_UnsupportedTagWithoutTagDoesNotRetry(t *testing.T) {
	tagErr := fmt.Errorf("graph send: %w", platform.ErrUnsupportedTag)
	client := &stubClient{errs: []error{tagErr}}
	p := NewPipeline(client, 0, nil)

	_, err := p.Send(context.Background(), deliverableConv(), "hi", platform.SendOptions{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(client.calls) != 1 {
		t.Fatalf("platform called %d times, want 1", len(client.calls))
	}
}

func TestSend_MissingPlatformIdentifiers(t *testing.T) {
	client := &stubClient{}
	p := NewPipeline(client, 0, nil)

	conv := &store.ConversationData{ID: store.GenNewID(), WorkspaceID: uuid.New()}
	_, err := p.Send(context.Background(), conv, "hi", platform.SendOptions{}, nil)
	if !errors.Is(err, ErrNotDeliverable) {
		t.Fatalf("err = %v, want ErrNotDeliverable", err)
	}
	if len(client.calls) != 0 {
		t.Fatal("platform must not be called for an undeliverable conversation")
	}
}
