package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"smart-mail-assistant-go/internal/config"
)

// IMAPFetcher implements EmailFetcher using IMAP
type IMAPFetcher struct {
	client    *client.Client
	lastCheck time.Time
}

// NewIMAPFetcher creates a new IMAP fetcher
func NewIMAPFetcher(cfg config.GmailConfig) (*IMAPFetcher, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(cfg.IMAPUser, cfg.IMAPPassword); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	return &IMAPFetcher{
		client:    c,
		lastCheck: time.Now().Add(-24 * time.Hour), // Start with emails from last 24 hours
	}, nil
}

// FetchNewEmails fetches messages received since the last check
func (f *IMAPFetcher) FetchNewEmails(ctx context.Context) ([]Email, error) {
	started := time.Now()
	if _, err := f.client.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = f.lastCheck
	uids, err := f.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	if len(uids) == 0 {
		f.lastCheck = started
		return []Email{}, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- f.client.UidFetch(seqset, items, messages)
	}()

	var emails []Email
	for msg := range messages {
		if ctx.Err() != nil {
			continue
		}
		email, err := parseIMAPMessage(msg, section)
		if err != nil {
			logrus.Warnf("Failed to parse IMAP message %d: %v", msg.Uid, err)
			continue
		}
		emails = append(emails, email)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.lastCheck = started
	return emails, nil
}

func parseIMAPMessage(msg *imap.Message, section *imap.BodySectionName) (Email, error) {
	email := Email{
		ID:         fmt.Sprintf("imap-%d", msg.Uid),
		ReceivedAt: msg.InternalDate.UTC(),
		Unread:     true,
	}
	for _, flag := range msg.Flags {
		if flag == imap.SeenFlag {
			email.Unread = false
		}
	}

	if env := msg.Envelope; env != nil {
		email.Subject = env.Subject
		if env.MessageId != "" {
			email.ID = env.MessageId
		}
		if len(env.From) > 0 {
			email.From = env.From[0].Address()
		}
		if email.ReceivedAt.IsZero() {
			email.ReceivedAt = env.Date.UTC()
		}
	}

	r := msg.GetBody(section)
	if r == nil {
		return email, nil
	}
	plain, html, err := readBodies(r)
	if err != nil {
		return email, fmt.Errorf("failed to read message body: %w", err)
	}
	email.Body, email.HTMLBody = plain, html
	return email, nil
}

// Close closes the IMAP fetcher
func (f *IMAPFetcher) Close() error {
	return f.client.Logout()
}
