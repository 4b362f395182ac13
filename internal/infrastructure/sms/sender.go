package sms

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/peacelink/peacelink/internal/domain/notify"
)

// LogSender is the default notify.Sender: it records the message instead of
// delivering it. A gateway integration replaces this in deployments.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("service", "sms").Logger()}
}

func (s *LogSender) Send(_ context.Context, msg notify.Message) error {
	s.logger.Info().
		Str("recipient", msg.Recipient).
		Str("template", string(msg.Template)).
		Msg("sms queued")
	return nil
}
