package workspace

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Email is an outgoing plain-text message
type Email struct {
	From      string
	To        []string
	Cc        []string
	Subject   string
	Body      string
	InReplyTo string
	Date      time.Time
}

// BuildRaw renders the email as an RFC 5322 message
func BuildRaw(e Email) ([]byte, error) {
	if len(e.To) == 0 {
		return nil, fmt.Errorf("email has no recipients")
	}

	var h mail.Header
	date := e.Date
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)
	if e.From != "" {
		h.SetAddressList("From", []*mail.Address{{Address: e.From}})
	}
	h.SetAddressList("To", addresses(e.To))
	if len(e.Cc) > 0 {
		h.SetAddressList("Cc", addresses(e.Cc))
	}
	h.SetSubject(e.Subject)
	if e.InReplyTo != "" {
		id := strings.Trim(e.InReplyTo, "<>")
		h.SetMsgIDList("In-Reply-To", []string{id})
		h.SetMsgIDList("References", []string{id})
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := w.Write([]byte(e.Body)); err != nil {
		return nil, fmt.Errorf("failed to write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}

// ReplySubject prefixes subject with "Re: " once
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:") {
		return subject
	}
	return "Re: " + subject
}

func addresses(list []string) []*mail.Address {
	out := make([]*mail.Address, 0, len(list))
	for _, a := range list {
		if addr, err := mail.ParseAddress(a); err == nil {
			out = append(out, addr)
			continue
		}
		out = append(out, &mail.Address{Address: strings.TrimSpace(a)})
	}
	return out
}
