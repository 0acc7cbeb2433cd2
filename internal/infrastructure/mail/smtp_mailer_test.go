package mail

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRelay speaks just enough SMTP for net/smtp to deliver one message
type fakeRelay struct {
	listener net.Listener

	mu       sync.Mutex
	from     string
	rcpt     []string
	data     string
	rejectTo string
}

func startFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r := &fakeRelay{listener: ln}
	go r.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return r
}

func (r *fakeRelay) config() config.SMTPConfig {
	addr := r.listener.Addr().(*net.TCPAddr)
	return config.SMTPConfig{
		Host: "127.0.0.1",
		Port: addr.Port,
		From: "Billing <billing@example.com>",
	}
}

func (r *fakeRelay) serve() {
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			return
		}
		go r.handle(conn)
	}
}

func (r *fakeRelay) handle(conn net.Conn) {
	defer conn.Close()
	rd := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

	reply("220 fake ESMTP")
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(cmd)
		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			reply("250 fake")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			r.mu.Lock()
			r.from = cmd[len("MAIL FROM:"):]
			r.mu.Unlock()
			reply("250 OK")
		case strings.HasPrefix(upper, "RCPT TO:"):
			to := cmd[len("RCPT TO:"):]
			r.mu.Lock()
			reject := r.rejectTo != "" && strings.Contains(to, r.rejectTo)
			if !reject {
				r.rcpt = append(r.rcpt, to)
			}
			r.mu.Unlock()
			if reject {
				reply("550 no such user")
				continue
			}
			reply("250 OK")
		case upper == "DATA":
			reply("354 go ahead")
			var sb strings.Builder
			for {
				l, err := rd.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				sb.WriteString(l)
			}
			r.mu.Lock()
			r.data = sb.String()
			r.mu.Unlock()
			reply("250 queued")
		case upper == "QUIT":
			reply("221 bye")
			return
		case upper == "RSET", upper == "NOOP":
			reply("250 OK")
		default:
			reply("502 not implemented")
		}
	}
}

func (r *fakeRelay) snapshot() (string, []string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.from, append([]string(nil), r.rcpt...), r.data
}

func TestSMTPMailer_SendEmail(t *testing.T) {
	relay := startFakeRelay(t)
	mailer := NewSMTPMailer(relay.config(), zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := mailer.SendEmail(ctx, "ap@customer.test", "Payment overdue: invoice INV-7", "line one\nline two")
	require.NoError(t, err)

	from, rcpt, data := relay.snapshot()
	assert.Equal(t, "<billing@example.com>", from)
	assert.Equal(t, []string{"<ap@customer.test>"}, rcpt)
	assert.Contains(t, data, "Subject: Payment overdue: invoice INV-7\r\n")
	assert.Contains(t, data, "To: ap@customer.test\r\n")
	assert.Contains(t, data, "line one\r\nline two")
}

func TestSMTPMailer_RecipientRejected(t *testing.T) {
	relay := startFakeRelay(t)
	relay.mu.Lock()
	relay.rejectTo = "ghost@"
	relay.mu.Unlock()
	mailer := NewSMTPMailer(relay.config(), nil)

	err := mailer.SendEmail(context.Background(), "ghost@customer.test", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RCPT TO")
}

func TestSMTPMailer_RejectsHeaderInjection(t *testing.T) {
	mailer := NewSMTPMailer(config.SMTPConfig{Host: "127.0.0.1", Port: 1}, nil)

	err := mailer.SendEmail(context.Background(), "a@b.test\r\nBcc: x@y.test", "s", "b")
	assert.ErrorIs(t, err, ErrHeaderInjection)

	err = mailer.SendEmail(context.Background(), "a@b.test", "s\nBcc: x@y.test", "b")
	assert.ErrorIs(t, err, ErrHeaderInjection)
}

func TestSMTPMailer_EmptyRecipient(t *testing.T) {
	mailer := NewSMTPMailer(config.SMTPConfig{Host: "127.0.0.1", Port: 1}, nil)
	assert.Error(t, mailer.SendEmail(context.Background(), "  ", "s", "b"))
}

func TestSMTPMailer_ConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	mailer := NewSMTPMailer(config.SMTPConfig{Host: "127.0.0.1", Port: port}, nil)
	err = mailer.SendEmail(context.Background(), "a@b.test", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:"+strconv.Itoa(port))
}

func TestParseAddress(t *testing.T) {
	assert.Equal(t, "billing@example.com", parseAddress("Billing <billing@example.com>"))
	assert.Equal(t, "billing@example.com", parseAddress("  billing@example.com "))
	assert.Equal(t, "broken <x", parseAddress("broken <x"))
}

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("from@x.test", "to@y.test", "Hello", "a\nb")

	head, body, found := strings.Cut(msg, "\r\n\r\n")
	require.True(t, found)
	assert.Contains(t, head, "From: from@x.test")
	assert.Contains(t, head, "Content-Type: text/plain; charset=utf-8")
	assert.Equal(t, "a\r\nb", body)
}
