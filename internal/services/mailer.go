package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/MasterY0das/BikeForU/pkg/config"
)

// Mailer sends account emails. The daemon ships with a development
// implementation that logs instead of sending; production deployments plug
// in a real delivery backend.
type Mailer interface {
	SendVerification(ctx context.Context, email, link string) error
	SendRecovery(ctx context.Context, email, link string) error
}

// LogMailer writes emails to the structured log instead of delivering them.
// Used in development, where the verification link is copied out of the log.
type LogMailer struct {
	from string
}

// NewLogMailer creates a log-only mailer.
func NewLogMailer(cfg *config.MailConfig) *LogMailer {
	return &LogMailer{from: cfg.FromAddress}
}

func (m *LogMailer) SendVerification(ctx context.Context, email, link string) error {
	log.Info().
		Str("from", m.from).
		Str("to", email).
		Str("link", link).
		Msg("Verification email (dev mode, not delivered)")
	return nil
}

func (m *LogMailer) SendRecovery(ctx context.Context, email, link string) error {
	log.Info().
		Str("from", m.from).
		Str("to", email).
		Str("link", link).
		Msg("Recovery email (dev mode, not delivered)")
	return nil
}
