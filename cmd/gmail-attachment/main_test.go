package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"golang.org/x/oauth2"

	"github.com/jarrod-lowe/docfetch-lambdas/internal/fault"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/gmail"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/invocation"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/response"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/retrieval"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/secrets"
)

type mockResolver struct {
	resolveFunc func(ctx context.Context) (secrets.CredentialBundle, error)
	calls       int
}

func (m *mockResolver) Resolve(ctx context.Context) (secrets.CredentialBundle, error) {
	m.calls++
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx)
	}
	return secrets.CredentialBundle{ClientID: "cid", ClientSecret: "cs", RefreshToken: "rt"}, nil
}

func (m *mockResolver) SecretName() string {
	return "gmail-oauth-credentials"
}

type mockMailbox struct {
	listFunc          func(ctx context.Context, query string, max int64) ([]string, error)
	getMessageFunc    func(ctx context.Context, id string) (*gmail.Message, error)
	getAttachmentFunc func(ctx context.Context, messageID, attachmentID string) (string, error)
	listCalls         int
	lastQuery         string
	lastMax           int64
}

func (m *mockMailbox) ListMessageIDs(ctx context.Context, query string, max int64) ([]string, error) {
	m.listCalls++
	m.lastQuery, m.lastMax = query, max
	if m.listFunc != nil {
		return m.listFunc(ctx, query, max)
	}
	return nil, nil
}

func (m *mockMailbox) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	if m.getMessageFunc != nil {
		return m.getMessageFunc(ctx, id)
	}
	return &gmail.Message{ID: id, Payload: &gmail.Part{MimeType: "text/plain"}}, nil
}

func (m *mockMailbox) GetAttachment(ctx context.Context, messageID, attachmentID string) (string, error) {
	if m.getAttachmentFunc != nil {
		return m.getAttachmentFunc(ctx, messageID, attachmentID)
	}
	return "AA-_", nil
}

type mockPublisher struct {
	publishFunc func(ctx context.Context, requestID string, messageIDs []string, res retrieval.Result) error
	calls       int
	lastIDs     []string
	lastReqID   string
}

func (m *mockPublisher) PublishRetrieval(ctx context.Context, requestID string, messageIDs []string, res retrieval.Result) error {
	m.calls++
	m.lastIDs, m.lastReqID = messageIDs, requestID
	if m.publishFunc != nil {
		return m.publishFunc(ctx, requestID, messageIDs, res)
	}
	return nil
}

func factoryFor(mb *mockMailbox, calls *int) MailboxFactory {
	return mailboxFactoryFunc(func(context.Context, secrets.CredentialBundle) (Mailbox, error) {
		if calls != nil {
			*calls++
		}
		return mb, nil
	})
}

func objectEvent(t *testing.T, body any) invocation.Event {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return invocation.Event{Body: raw}
}

func proxyEvent(t *testing.T, body string) invocation.Event {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return invocation.Event{Body: raw}
}

func decodeResult(t *testing.T, resp events.APIGatewayProxyResponse) retrieval.Result {
	t.Helper()
	var res retrieval.Result
	if err := json.Unmarshal([]byte(resp.Body), &res); err != nil {
		t.Fatalf("unmarshal result %q: %v", resp.Body, err)
	}
	return res
}

func decodeError(t *testing.T, resp events.APIGatewayProxyResponse) response.ErrorBody {
	t.Helper()
	var eb response.ErrorBody
	if err := json.Unmarshal([]byte(resp.Body), &eb); err != nil {
		t.Fatalf("unmarshal error %q: %v", resp.Body, err)
	}
	return eb
}

func twoAttachmentMessage(_ context.Context, id string) (*gmail.Message, error) {
	return &gmail.Message{ID: id, Payload: &gmail.Part{
		MimeType: "multipart/mixed",
		Parts: []*gmail.Part{
			{MimeType: "text/plain"},
			{Filename: "a.pdf", MimeType: "application/pdf", AttachmentID: "att-a", Size: 10},
			{MimeType: "multipart/mixed", Parts: []*gmail.Part{
				{Filename: "b.png", MimeType: "image/png", AttachmentID: "att-b", Size: 20},
			}},
		},
	}}, nil
}

func TestHandle_EmptyBodyIsMissingFilter(t *testing.T) {
	resolver := &mockResolver{}
	h := newHandler(resolver, factoryFor(&mockMailbox{}, nil), nil, 10)

	resp, err := h.handle(context.Background(), objectEvent(t, map[string]any{}))
	if err != nil {
		t.Fatalf("handle error = %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", resp.StatusCode)
	}
	eb := decodeError(t, resp)
	if eb.Error != "Missing required filter" {
		t.Errorf("error = %q", eb.Error)
	}
	if eb.Message != "At least one of from, subject, or message_id must be provided" {
		t.Errorf("message = %q", eb.Message)
	}
	if resolver.calls != 0 {
		t.Errorf("resolver called %d times before validation passed", resolver.calls)
	}
}

func TestHandle_NoBodyIsMissingFilter(t *testing.T) {
	h := newHandler(&mockResolver{}, factoryFor(&mockMailbox{}, nil), nil, 10)

	resp, _ := h.handle(context.Background(), invocation.Event{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", resp.StatusCode)
	}
}

func TestHandle_MalformedBody(t *testing.T) {
	resolver := &mockResolver{}
	h := newHandler(resolver, factoryFor(&mockMailbox{}, nil), nil, 10)

	resp, _ := h.handle(context.Background(), proxyEvent(t, "{not json"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", resp.StatusCode)
	}
	if eb := decodeError(t, resp); eb.Error != "Invalid request body" {
		t.Errorf("error = %q", eb.Error)
	}
	if resolver.calls != 0 {
		t.Error("resolver should not be called")
	}
}

func TestHandle_InvalidYearMonth(t *testing.T) {
	resolver := &mockResolver{}
	h := newHandler(resolver, factoryFor(&mockMailbox{}, nil), nil, 10)

	resp, _ := h.handle(context.Background(), objectEvent(t, map[string]any{"from": "a@example.com", "year_month": "2024-13"}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", resp.StatusCode)
	}
	if resolver.calls != 0 {
		t.Error("resolver should not be called")
	}
}

func TestHandle_EmptySearchResult(t *testing.T) {
	mb := &mockMailbox{}
	h := newHandler(&mockResolver{}, factoryFor(mb, nil), nil, 10)

	resp, err := h.handle(context.Background(), objectEvent(t, map[string]any{"from": "nobody@example.com"}))
	if err != nil {
		t.Fatalf("handle error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200 (body %s)", resp.StatusCode, resp.Body)
	}
	want := `{"attachments":[],"total_messages_scanned":0,"total_attachments":0}`
	if resp.Body != want {
		t.Errorf("Body = %s, want %s", resp.Body, want)
	}
	if mb.lastQuery != "from:nobody@example.com has:attachment" || mb.lastMax != 10 {
		t.Errorf("list called with %q/%d", mb.lastQuery, mb.lastMax)
	}
}

func TestHandle_SearchAggregatesAcrossMessages(t *testing.T) {
	mb := &mockMailbox{
		listFunc: func(context.Context, string, int64) ([]string, error) {
			return []string{"m-1", "m-2"}, nil
		},
		getMessageFunc: twoAttachmentMessage,
	}
	pub := &mockPublisher{}
	h := newHandler(&mockResolver{}, factoryFor(mb, nil), pub, 10)

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-1"})
	body := `{"subject":"invoice","year_month":"2023-12","max_messages":2}`
	resp, err := h.handle(ctx, proxyEvent(t, body))
	if err != nil {
		t.Fatalf("handle error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, body %s", resp.StatusCode, resp.Body)
	}
	if mb.lastQuery != "subject:invoice after:2023/12/1 before:2024/1/1 has:attachment" {
		t.Errorf("query = %q", mb.lastQuery)
	}
	if mb.lastMax != 2 {
		t.Errorf("max = %d, want 2", mb.lastMax)
	}

	res := decodeResult(t, resp)
	if res.TotalMessagesScanned != 2 || res.TotalAttachments != 4 || len(res.Attachments) != 4 {
		t.Errorf("result counts = %d/%d/%d", res.TotalMessagesScanned, res.TotalAttachments, len(res.Attachments))
	}
	for _, a := range res.Attachments {
		if a.DataBase64 != "AA+/" {
			t.Errorf("DataBase64 = %q, want AA+/", a.DataBase64)
		}
	}
	if res.Attachments[0].MessageID != "m-1" || res.Attachments[3].MessageID != "m-2" {
		t.Errorf("attachments not in message order: %+v", res.Attachments)
	}

	if pub.calls != 1 || pub.lastReqID != "req-1" || len(pub.lastIDs) != 2 {
		t.Errorf("publisher calls = %d, reqID = %q, ids = %v", pub.calls, pub.lastReqID, pub.lastIDs)
	}
}

func TestHandle_MaxMessagesAcceptsAnyNumber(t *testing.T) {
	tests := []struct {
		body    string
		wantMax int64
	}{
		{body: `{"from":"a@example.com","max_messages":5.0}`, wantMax: 5},
		{body: `{"from":"a@example.com","max_messages":3.7}`, wantMax: 3},
		{body: `{"from":"a@example.com","max_messages":1e3}`, wantMax: 500},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			mb := &mockMailbox{}
			h := newHandler(&mockResolver{}, factoryFor(mb, nil), nil, 10)

			resp, err := h.handle(context.Background(), proxyEvent(t, tt.body))
			if err != nil {
				t.Fatalf("handle error = %v", err)
			}
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("StatusCode = %d, body %s", resp.StatusCode, resp.Body)
			}
			if mb.lastMax != tt.wantMax {
				t.Errorf("max = %d, want %d", mb.lastMax, tt.wantMax)
			}
		})
	}
}

func TestHandle_NonNumericMaxMessagesRejected(t *testing.T) {
	resolver := &mockResolver{}
	h := newHandler(resolver, factoryFor(&mockMailbox{}, nil), nil, 10)

	resp, _ := h.handle(context.Background(), proxyEvent(t, `{"from":"a@example.com","max_messages":"five"}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", resp.StatusCode)
	}
	if eb := decodeError(t, resp); eb.Error != "Invalid request body" {
		t.Errorf("error = %q", eb.Error)
	}
	if resolver.calls != 0 {
		t.Error("resolver should not be called")
	}
}

func TestHandle_ExplicitMessageIDSkipsSearch(t *testing.T) {
	mb := &mockMailbox{getMessageFunc: twoAttachmentMessage}
	h := newHandler(&mockResolver{}, factoryFor(mb, nil), nil, 10)

	event := objectEvent(t, map[string]any{"message_id": "m-42"})
	first, _ := h.handle(context.Background(), event)
	second, _ := h.handle(context.Background(), event)

	if first.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, body %s", first.StatusCode, first.Body)
	}
	if mb.listCalls != 0 {
		t.Errorf("list calls = %d, want 0", mb.listCalls)
	}
	if first.Body != second.Body {
		t.Errorf("explicit retrieval not idempotent:\n%s\n%s", first.Body, second.Body)
	}
	res := decodeResult(t, first)
	if res.TotalMessagesScanned != 1 || res.TotalAttachments != 2 {
		t.Errorf("counts = %d/%d, want 1/2", res.TotalMessagesScanned, res.TotalAttachments)
	}
}

func TestHandle_PublishFailureDoesNotChangeResponse(t *testing.T) {
	mb := &mockMailbox{
		listFunc:       func(context.Context, string, int64) ([]string, error) { return []string{"m-1"}, nil },
		getMessageFunc: twoAttachmentMessage,
	}
	pub := &mockPublisher{publishFunc: func(context.Context, string, []string, retrieval.Result) error {
		return errors.New("queue unavailable")
	}}
	h := newHandler(&mockResolver{}, factoryFor(mb, nil), pub, 10)

	resp, err := h.handle(context.Background(), objectEvent(t, map[string]any{"from": "a@example.com"}))
	if err != nil {
		t.Fatalf("handle error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
}

func TestHandle_NoPublishOnEmptyResult(t *testing.T) {
	pub := &mockPublisher{}
	h := newHandler(&mockResolver{}, factoryFor(&mockMailbox{}, nil), pub, 10)

	_, _ = h.handle(context.Background(), objectEvent(t, map[string]any{"from": "a@example.com"}))
	if pub.calls != 0 {
		t.Errorf("publisher calls = %d, want 0", pub.calls)
	}
}

func TestHandle_SecretNotFound(t *testing.T) {
	factoryCalls := 0
	resolver := &mockResolver{resolveFunc: func(context.Context) (secrets.CredentialBundle, error) {
		return secrets.CredentialBundle{}, fault.New(fault.KindSecretNotFound, "secrets.Resolve",
			&types.ResourceNotFoundException{Message: strPtr("Secrets Manager can't find the specified secret.")})
	}}
	h := newHandler(resolver, factoryFor(&mockMailbox{}, &factoryCalls), nil, 10)

	resp, _ := h.handle(context.Background(), objectEvent(t, map[string]any{"from": "a@example.com"}))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", resp.StatusCode)
	}
	eb := decodeError(t, resp)
	if eb.Error != "Secrets retrieval failed" || eb.Message != "Secret 'gmail-oauth-credentials' not found" {
		t.Errorf("error body = %+v", eb)
	}
	if factoryCalls != 0 {
		t.Error("factory should not be called after secret failure")
	}
}

func TestHandle_InvalidGrantIsAuthenticationFailure(t *testing.T) {
	mb := &mockMailbox{listFunc: func(context.Context, string, int64) ([]string, error) {
		return nil, fault.New(fault.KindAuthentication, "gmail.ListMessages",
			&oauth2.RetrieveError{ErrorCode: "invalid_grant", ErrorDescription: "Token has been expired or revoked."})
	}}
	h := newHandler(&mockResolver{}, factoryFor(mb, nil), nil, 10)

	resp, _ := h.handle(context.Background(), objectEvent(t, map[string]any{"from": "a@example.com"}))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", resp.StatusCode)
	}
	if eb := decodeError(t, resp); eb.Error != "Authentication failed" {
		t.Errorf("error = %q", eb.Error)
	}
}

func TestHandle_UntypedInvalidGrantText(t *testing.T) {
	mb := &mockMailbox{listFunc: func(context.Context, string, int64) ([]string, error) {
		return nil, errors.New(`oauth2: cannot fetch token: 400 Bad Request Response: {"error": "invalid_grant"}`)
	}}
	h := newHandler(&mockResolver{}, factoryFor(mb, nil), nil, 10)

	resp, _ := h.handle(context.Background(), objectEvent(t, map[string]any{"from": "a@example.com"}))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", resp.StatusCode)
	}
}

func TestHandle_RateLimitedAttachmentFetch(t *testing.T) {
	mb := &mockMailbox{
		getMessageFunc: twoAttachmentMessage,
		getAttachmentFunc: func(context.Context, string, string) (string, error) {
			return "", fault.New(fault.KindRateLimited, "gmail.GetAttachment", errors.New("quota"))
		},
	}
	h := newHandler(&mockResolver{}, factoryFor(mb, nil), nil, 10)

	resp, _ := h.handle(context.Background(), objectEvent(t, map[string]any{"message_id": "m-1"}))
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", resp.StatusCode)
	}
	if eb := decodeError(t, resp); eb.Error != "Rate limited" || eb.Message != "Gmail API quota exceeded" {
		t.Errorf("error body = %+v", eb)
	}
}

func TestHandle_UnclassifiedFailureIsInternal(t *testing.T) {
	mb := &mockMailbox{getMessageFunc: func(context.Context, string) (*gmail.Message, error) {
		return nil, fault.New(fault.KindInternal, "gmail.GetMessage", errors.New("backend error"))
	}}
	h := newHandler(&mockResolver{}, factoryFor(mb, nil), nil, 10)

	resp, err := h.handle(context.Background(), objectEvent(t, map[string]any{"message_id": "m-1"}))
	if err != nil {
		t.Fatalf("handle returned error %v, want shaped response", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", resp.StatusCode)
	}
	eb := decodeError(t, resp)
	if eb.Error != "Internal error" || !strings.Contains(eb.Message, "backend error") || eb.Details != "gmail.GetMessage" {
		t.Errorf("error body = %+v", eb)
	}
}

func TestHandle_FactoryFailure(t *testing.T) {
	factory := mailboxFactoryFunc(func(context.Context, secrets.CredentialBundle) (Mailbox, error) {
		return nil, errors.New("create gmail service: boom")
	})
	h := newHandler(&mockResolver{}, factory, nil, 10)

	resp, _ := h.handle(context.Background(), objectEvent(t, map[string]any{"from": "a@example.com"}))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", resp.StatusCode)
	}
}

func strPtr(s string) *string {
	return &s
}
