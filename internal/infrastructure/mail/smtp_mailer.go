package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/erp/invoicing/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// implicitTLSPort is the submission port that expects TLS from the first byte
const implicitTLSPort = 465

// ErrHeaderInjection is returned when a recipient or subject carries line breaks
var ErrHeaderInjection = errors.New("mail: header value contains line break")

// SMTPMailer delivers notices through an SMTP relay
type SMTPMailer struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
	dialer net.Dialer
	// tlsConfig is nil in production; tests override it
	tlsConfig *tls.Config
}

var _ invoicing.Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer creates a mailer for the given relay
func NewSMTPMailer(cfg config.SMTPConfig, zapLogger *zap.Logger) *SMTPMailer {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &SMTPMailer{
		cfg:    cfg,
		logger: zapLogger.Named("smtp_mailer"),
		dialer: net.Dialer{Timeout: 10 * time.Second},
	}
}

// SendEmail sends a plain-text message. The context bounds the whole exchange.
func (m *SMTPMailer) SendEmail(ctx context.Context, to, subject, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("mail: empty recipient")
	}
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return ErrHeaderInjection
	}

	client, err := m.connect(ctx)
	if err != nil {
		return fmt.Errorf("mail: connect %s: %w", m.cfg.Addr(), err)
	}
	defer client.Close()

	if m.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("mail: auth: %w", err)
			}
		}
	}
	if err := client.Mail(parseAddress(m.cfg.From)); err != nil {
		return fmt.Errorf("mail: MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("mail: RCPT TO: %w", err)
	}
	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("mail: DATA: %w", err)
	}
	if _, err := writer.Write([]byte(buildMessage(m.cfg.From, to, subject, body))); err != nil {
		_ = writer.Close()
		return fmt.Errorf("mail: write body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("mail: finish body: %w", err)
	}
	if err := client.Quit(); err != nil {
		m.logger.Debug("SMTP quit failed", zap.Error(err))
	}

	logger.L(ctx).Debug("Mail handed to relay",
		zap.String("relay", m.cfg.Addr()),
		zap.String("recipient", to),
	)
	return nil
}

func (m *SMTPMailer) connect(ctx context.Context) (*smtp.Client, error) {
	conn, err := m.dialer.DialContext(ctx, "tcp", m.cfg.Addr())
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if m.cfg.Port == implicitTLSPort {
		conn = tls.Client(conn, m.tls())
	}
	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if m.cfg.Port != implicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(m.tls()); err != nil {
				_ = client.Close()
				return nil, err
			}
		}
	}
	return client, nil
}

func (m *SMTPMailer) tls() *tls.Config {
	if m.tlsConfig != nil {
		return m.tlsConfig
	}
	return &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
}

func buildMessage(from, to, subject, body string) string {
	headers := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"Date: " + time.Now().UTC().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"),
	}
	return strings.Join(headers, "\r\n")
}

// parseAddress extracts the bare address from "Name <addr>"
func parseAddress(from string) string {
	start := strings.Index(from, "<")
	end := strings.Index(from, ">")
	if start >= 0 && end > start {
		return strings.TrimSpace(from[start+1 : end])
	}
	return strings.TrimSpace(from)
}
