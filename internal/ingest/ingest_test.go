package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-assistant-go/internal/db"
	"smart-mail-assistant-go/internal/fetcher"
	"smart-mail-assistant-go/internal/metrics"
	"smart-mail-assistant-go/internal/model"
	"smart-mail-assistant-go/internal/repository"
)

type stubFetcher struct {
	emails []fetcher.Email
	err    error
}

func (s *stubFetcher) FetchNewEmails(ctx context.Context) ([]fetcher.Email, error) {
	return s.emails, s.err
}

func (s *stubFetcher) Close() error { return nil }

func TestRunUpsertsByExternalID(t *testing.T) {
	repo := repository.New(db.NewTestDB(t))
	m := metrics.NewMetrics(prometheus.NewRegistry())
	received := time.Date(2025, 11, 23, 9, 0, 0, 0, time.UTC)
	f := &stubFetcher{emails: []fetcher.Email{
		{ID: "m1", From: "Boss <boss@example.com>", Subject: " Q4 plan ", Body: "Send the deck", ReceivedAt: received, Unread: true},
		{ID: "m2", From: "news@example.com", Subject: "Digest", HTMLBody: "<p>Weekly</p>", ReceivedAt: received},
	}}
	svc := NewService(f, repo, "u1", m)

	require.NoError(t, svc.Run(context.Background()))
	require.NoError(t, svc.Run(context.Background()))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.IngestedMessages))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.IngestRuns))

	msgs, err := repo.ListRecentMessages("u1", received.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	var first model.InboundMessage
	for _, msg := range msgs {
		if msg.ExternalID == "m1" {
			first = msg
		}
	}
	assert.Equal(t, "boss@example.com", first.Sender)
	assert.Equal(t, "Q4 plan", first.Subject)
	assert.False(t, first.IsRead)
	assert.Equal(t, model.StateUnprocessed, first.State)
}

func TestRunReportsFetchError(t *testing.T) {
	repo := repository.New(db.NewTestDB(t))
	svc := NewService(&stubFetcher{err: errors.New("imap down")}, repo, "u1", nil)
	assert.ErrorContains(t, svc.Run(context.Background()), "imap down")
}

func TestToMessageUsesHTMLWhenNoText(t *testing.T) {
	msg := ToMessage(fetcher.Email{ID: "x", From: "not an address", HTMLBody: "<b>Hi</b>"}, "u1")
	assert.Equal(t, "Hi", msg.BodyPlain)
	assert.Equal(t, "not an address", msg.Sender)
	assert.True(t, msg.IsRead)
}
