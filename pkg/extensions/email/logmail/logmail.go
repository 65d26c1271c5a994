package logmail

import (
	"context"
	"log/slog"

	"github.com/flaboy/aira-checkout/pkg/extensions/email/types"
)

// LogMail only logs messages. Used in development.
type LogMail struct{}

func (l *LogMail) Init() error {
	return nil
}

func (l *LogMail) GetProviderName() string {
	return "log"
}

func (l *LogMail) Send(ctx context.Context, msg *types.Message) error {
	slog.Info("[LogMail] Email", "to", msg.To, "subject", msg.Subject, "bytes", len(msg.HTML))
	return nil
}
