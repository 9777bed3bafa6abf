package fetcher

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/sirupsen/logrus"

	"smart-mail-assistant-go/internal/config"
	"smart-mail-assistant-go/internal/workspace"
)

const maxListResults = 100

// GmailAPIFetcher implements EmailFetcher using Gmail API
type GmailAPIFetcher struct {
	service   *gmail.Service
	userEmail string
	lastCheck time.Time
}

// NewGmailAPIFetcher creates a new Gmail API fetcher
func NewGmailAPIFetcher(ctx context.Context, cfg config.GmailConfig) (*GmailAPIFetcher, error) {
	ts := workspace.TokenSource(ctx, cfg, workspace.OAuthScopes[workspace.ScopeMailboxRead])
	return NewGmailAPIFetcherWithOptions(ctx, cfg.UserEmail, option.WithTokenSource(ts))
}

// NewGmailAPIFetcherWithOptions creates a fetcher with explicit client options
func NewGmailAPIFetcherWithOptions(ctx context.Context, user string, opts ...option.ClientOption) (*GmailAPIFetcher, error) {
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	if user == "" {
		user = "me"
	}
	return &GmailAPIFetcher{
		service:   service,
		userEmail: user,
		lastCheck: time.Now().Add(-24 * time.Hour), // Start with emails from last 24 hours
	}, nil
}

// FetchNewEmails fetches new emails using Gmail API
func (f *GmailAPIFetcher) FetchNewEmails(ctx context.Context) ([]Email, error) {
	started := time.Now()
	query := fmt.Sprintf("after:%d", f.lastCheck.Unix())

	response, err := f.service.Users.Messages.List(f.userEmail).Q(query).MaxResults(maxListResults).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	var emails []Email
	for _, ref := range response.Messages {
		msg, err := f.service.Users.Messages.Get(f.userEmail, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			logrus.Warnf("Failed to get message %s: %v", ref.Id, err)
			continue
		}
		email, err := parseGmailMessage(msg)
		if err != nil {
			logrus.Warnf("Failed to parse message %s: %v", ref.Id, err)
			continue
		}
		emails = append(emails, email)
	}

	f.lastCheck = started
	return emails, nil
}

func parseGmailMessage(msg *gmail.Message) (Email, error) {
	email := Email{
		ID:         msg.Id,
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
	}
	for _, label := range msg.LabelIds {
		if label == "UNREAD" {
			email.Unread = true
		}
	}
	if msg.Payload == nil {
		return email, nil
	}

	for _, header := range msg.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "subject":
			email.Subject = header.Value
		case "from":
			email.From = header.Value
		}
	}

	if err := parseGmailBody(msg.Payload, &email); err != nil {
		return email, err
	}
	return email, nil
}

// parseGmailBody recursively parses Gmail message body parts
func parseGmailBody(part *gmail.MessagePart, email *Email) error {
	if part.Body != nil && part.Body.Data != "" && part.Filename == "" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return fmt.Errorf("failed to decode body data: %w", err)
		}
		switch part.MimeType {
		case "text/plain":
			if email.Body == "" {
				email.Body = string(data)
			}
		case "text/html":
			if email.HTMLBody == "" {
				email.HTMLBody = string(data)
			}
		}
	}

	for _, sub := range part.Parts {
		if err := parseGmailBody(sub, email); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the Gmail API fetcher
func (f *GmailAPIFetcher) Close() error {
	return nil
}
