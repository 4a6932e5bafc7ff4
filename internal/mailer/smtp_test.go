package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-kit/grievance-service/internal/config"
)

type capturedSend struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func newTestMailer(t *testing.T, cfg config.NotificationConfig, sent *capturedSend, fail error) *SMTPMailer {
	t.Helper()
	m, err := NewSMTPMailer(cfg)
	require.NoError(t, err)
	require.NotNil(t, m)
	m.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		*sent = capturedSend{addr: addr, auth: a, from: from, to: to, msg: string(msg)}
		return fail
	}
	return m
}

func TestNewSMTPMailerDisabledWithoutHost(t *testing.T) {
	m, err := NewSMTPMailer(config.NotificationConfig{EmailFrom: "noreply@example.com"})
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = NewSMTPMailer(config.NotificationConfig{SMTPHost: "smtp.example.com", SMTPPort: 587, EmailFrom: "not an address"})
	assert.Error(t, err)
}

func TestSendComposesPlainTextMessage(t *testing.T) {
	var sent capturedSend
	m := newTestMailer(t, config.NotificationConfig{
		SMTPHost:     "smtp.example.com",
		SMTPPort:     587,
		SMTPUsername: "mailer",
		SMTPPassword: "secret",
		EmailFrom:    "Grievance Cell <noreply@example.com>",
	}, &sent, nil)

	err := m.Send(context.Background(), Message{
		To:      "citizen@example.org",
		Subject: "Update on complaint #abcd1234",
		Body:    "Your complaint has been escalated.\nWe will keep you posted.",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", sent.addr)
	assert.NotNil(t, sent.auth)
	assert.Equal(t, "noreply@example.com", sent.from)
	assert.Equal(t, []string{"citizen@example.org"}, sent.to)
	assert.Contains(t, sent.msg, "From: \"Grievance Cell\" <noreply@example.com>\r\n")
	assert.Contains(t, sent.msg, "To: <citizen@example.org>\r\n")
	assert.Contains(t, sent.msg, "Subject: Update on complaint #abcd1234\r\n")
	assert.Contains(t, sent.msg, "Date: Sat, 01 Jun 2024 09:00:00 +0000\r\n")
	assert.Contains(t, sent.msg, "Message-ID: <")
	assert.True(t, strings.HasSuffix(sent.msg, "\r\n\r\nYour complaint has been escalated.\r\nWe will keep you posted.\r\n"))
}

func TestSendRejectsBadInputAndWrapsFailures(t *testing.T) {
	var sent capturedSend
	cfg := config.NotificationConfig{SMTPHost: "smtp.example.com", SMTPPort: 25, EmailFrom: "noreply@example.com"}
	m := newTestMailer(t, cfg, &sent, errors.New("550 mailbox unavailable"))
	assert.Nil(t, m.auth)

	assert.Error(t, m.Send(context.Background(), Message{To: "nobody", Body: "hi"}))
	assert.Error(t, m.Send(context.Background(), Message{To: "citizen@example.org", Body: "  "}))

	err := m.Send(context.Background(), Message{To: "citizen@example.org", Subject: "s", Body: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "550 mailbox unavailable")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, Message{To: "citizen@example.org", Body: "hi"}), context.Canceled)
}
