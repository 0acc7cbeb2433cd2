package mail

import (
	"context"
	"sync"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// SentMail is a message captured by LogMailer
type SentMail struct {
	To      string
	Subject string
	Body    string
}

// LogMailer writes notices to the log instead of delivering them.
// Used in development and when delivery_mode is "log".
type LogMailer struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []SentMail
}

var _ invoicing.Mailer = (*LogMailer)(nil)

func NewLogMailer(zapLogger *zap.Logger) *LogMailer {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &LogMailer{logger: zapLogger.Named("log_mailer")}
}

func (m *LogMailer) SendEmail(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	m.sent = append(m.sent, SentMail{To: to, Subject: subject, Body: body})
	m.mu.Unlock()

	fields := []zap.Field{
		zap.String("recipient", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	}
	if id := logger.GetInstallmentID(ctx); id != "" {
		fields = append(fields, zap.String("installment_id", id))
	}
	m.logger.Info("Mail delivery skipped (log mode)", fields...)
	return nil
}

// Sent returns a copy of everything sent so far
func (m *LogMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMail, len(m.sent))
	copy(out, m.sent)
	return out
}
