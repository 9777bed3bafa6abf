// Package ingest stores newly fetched mail as inbound messages.
package ingest

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/sirupsen/logrus"

	"smart-mail-assistant-go/internal/fetcher"
	"smart-mail-assistant-go/internal/metrics"
	"smart-mail-assistant-go/internal/model"
	"smart-mail-assistant-go/internal/repository"
)

// Service pulls mail from a fetcher into the store
type Service struct {
	fetcher fetcher.EmailFetcher
	repo    *repository.Repository
	userID  string
	metrics *metrics.Metrics
}

// NewService creates an ingestion service storing messages under userID
func NewService(f fetcher.EmailFetcher, repo *repository.Repository, userID string, m *metrics.Metrics) *Service {
	return &Service{fetcher: f, repo: repo, userID: userID, metrics: m}
}

// Run fetches new mail once and upserts it by external id
func (s *Service) Run(ctx context.Context) error {
	if s.metrics != nil {
		s.metrics.IngestRuns.Inc()
	}

	emails, err := s.fetcher.FetchNewEmails(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch emails: %w", err)
	}

	created := 0
	for _, e := range emails {
		msg := ToMessage(e, s.userID)
		isNew, err := s.repo.UpsertMessage(msg)
		if err != nil {
			logrus.Errorf("Failed to store message %s: %v", e.ID, err)
			continue
		}
		if isNew {
			created++
		}
	}
	if s.metrics != nil {
		s.metrics.IngestedMessages.Add(float64(created))
	}
	logrus.Infof("Fetched %d emails, %d new", len(emails), created)
	return nil
}

// ToMessage maps a fetched email onto an inbound message row
func ToMessage(e fetcher.Email, userID string) *model.InboundMessage {
	return &model.InboundMessage{
		ExternalID: e.ID,
		UserID:     userID,
		Sender:     senderAddress(e.From),
		Subject:    strings.TrimSpace(e.Subject),
		BodyPlain:  e.PlainText(),
		ReceivedAt: e.ReceivedAt.UTC(),
		IsRead:     !e.Unread,
		State:      model.StateUnprocessed,
	}
}

func senderAddress(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(from)
}
