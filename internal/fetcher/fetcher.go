package fetcher

import (
	"context"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/sirupsen/logrus"
)

// Email is a fetched message reduced to what the assistant stores
type Email struct {
	ID         string
	From       string
	Subject    string
	Body       string
	HTMLBody   string
	ReceivedAt time.Time
	Unread     bool
}

// PlainText returns the text body, falling back to the HTML body with tags removed
func (e Email) PlainText() string {
	if strings.TrimSpace(e.Body) != "" {
		return e.Body
	}
	return htmlToPlainText(e.HTMLBody)
}

// EmailFetcher interface for fetching emails
type EmailFetcher interface {
	FetchNewEmails(ctx context.Context) ([]Email, error)
	Close() error
}

var (
	breakTags = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/li|/tr)\s*/?>`)
	anyTag    = regexp.MustCompile(`<[^>]*>`)
	blankRuns = regexp.MustCompile(`\n{3,}`)
)

func htmlToPlainText(html string) string {
	text := breakTags.ReplaceAllString(html, "\n")
	text = anyTag.ReplaceAllString(text, "")
	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'").Replace(text)
	return strings.TrimSpace(blankRuns.ReplaceAllString(text, "\n\n"))
}

// readBodies walks a MIME entity and collects the first text/plain and text/html parts
func readBodies(r io.Reader) (plain, html string, err error) {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return "", "", err
	}
	err = entity.Walk(func(path []int, part *message.Entity, err error) error {
		if err != nil {
			if message.IsUnknownCharset(err) {
				logrus.Debugf("Unknown charset in part %v: %v", path, err)
			} else {
				return err
			}
		}
		contentType, _, _ := part.Header.ContentType()
		if contentType != "text/plain" && contentType != "text/html" {
			return nil
		}
		if disp, _, _ := part.Header.ContentDisposition(); disp == "attachment" {
			return nil
		}
		content, err := io.ReadAll(part.Body)
		if err != nil {
			return err
		}
		switch {
		case contentType == "text/plain" && plain == "":
			plain = string(content)
		case contentType == "text/html" && html == "":
			html = string(content)
		}
		return nil
	})
	return plain, html, err
}
