// Package gmail adapts the Gmail REST API to the narrow mailbox surface the
// attachment pipeline needs: list, get message, get attachment.
package gmail

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/jarrod-lowe/docfetch-lambdas/internal/secrets"
)

// userMe addresses the mailbox of the authenticated user.
const userMe = "me"

// MaxListResults is the largest page Gmail returns from messages.list.
const MaxListResults = 500

// Factory builds authenticated Mailboxes from credential bundles.
type Factory struct {
	// HTTPClient carries token refresh and API calls. Defaults to an
	// otelhttp-instrumented client.
	HTTPClient *http.Client
	// Endpoint overrides the Gmail API base URL.
	Endpoint string
	// TokenURL overrides the OAuth token endpoint.
	TokenURL string
}

// OAuthConfig returns the read-only Gmail OAuth client configuration.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmailv1.GmailReadonlyScope},
	}
}

// NewMailbox binds a Mailbox to the user the refresh token was issued for.
// No network call is made; an unusable refresh token surfaces on first use.
// ctx must outlive every call made through the Mailbox.
func (f *Factory) NewMailbox(ctx context.Context, bundle secrets.CredentialBundle) (*Mailbox, error) {
	cfg := OAuthConfig(bundle.ClientID, bundle.ClientSecret)
	if f.TokenURL != "" {
		cfg.Endpoint.TokenURL = f.TokenURL
	}

	base := f.HTTPClient
	if base == nil {
		base = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	ts := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: bundle.RefreshToken})
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if f.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.Endpoint))
	}

	svc, err := gmailv1.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Mailbox{users: svc.Users}, nil
}

// Mailbox reads messages and attachments from one Gmail mailbox.
type Mailbox struct {
	users *gmailv1.UsersService
}

// ListMessageIDs runs query and returns at most max message ids in the
// order Gmail returns them. Only the first page is read.
func (m *Mailbox) ListMessageIDs(ctx context.Context, query string, max int64) ([]string, error) {
	res, err := m.users.Messages.List(userMe).Q(query).MaxResults(max).Context(ctx).Do()
	if err != nil {
		return nil, wrapError("gmail.ListMessages", err)
	}
	ids := make([]string, 0, len(res.Messages))
	for _, msg := range res.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, nil
}

// GetMessage fetches a message with its full part tree.
func (m *Mailbox) GetMessage(ctx context.Context, id string) (*Message, error) {
	msg, err := m.users.Messages.Get(userMe, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, wrapError("gmail.GetMessage", err)
	}
	return &Message{ID: msg.Id, Payload: convertPart(msg.Payload)}, nil
}

// GetAttachment returns an attachment body as Gmail sends it: URL-safe base64.
func (m *Mailbox) GetAttachment(ctx context.Context, messageID, attachmentID string) (string, error) {
	body, err := m.users.Messages.Attachments.Get(userMe, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return "", wrapError("gmail.GetAttachment", err)
	}
	return body.Data, nil
}
