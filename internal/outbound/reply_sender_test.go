package outbound

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskgo-io/deskgo/internal/models"
	"github.com/deskgo-io/deskgo/internal/repository"
)

type fakeTransport struct {
	err  error
	from string
	to   []string
	data []byte
}

func (t *fakeTransport) Send(_ context.Context, _ models.Mailbox, from string, to []string, data []byte) error {
	t.from = from
	t.to = to
	t.data = data
	return t.err
}

func configuredMailbox() *models.Mailbox {
	return &models.Mailbox{
		ID:           4,
		SMTPHost:     "smtp.example",
		SMTPPort:     587,
		SMTPUser:     "svc@deskgo.example",
		SMTPPassword: "secret",
		SMTPFrom:     "Suporte <suporte@deskgo.example>",
	}
}

func threadedTicket() *models.Ticket {
	return &models.Ticket{
		ID:         7,
		MessageID:  "abc@cliente.example",
		EmailFrom:  "maria@cliente.example",
		ReplyTo:    "suporte@cliente.example",
		References: "root@x mid@x",
	}
}

func TestSendReplyThreadsHeaders(t *testing.T) {
	transport := &fakeTransport{}
	sendLog := repository.NewMemorySendLogRepository()
	now := time.Date(2026, 7, 13, 12, 0, 0, 0, time.UTC)
	sender := NewReplySender(sendLog, WithTransport(transport), withSenderClock(func() time.Time { return now }))

	ticket := threadedTicket()
	err := sender.SendReply(context.Background(), ticket, configuredMailbox(), "Impressora parou", "Estamos verificando.")
	require.NoError(t, err)

	assert.Equal(t, []string{"suporte@cliente.example"}, transport.to)
	message := string(transport.data)
	assert.Contains(t, message, "Subject: Re: Impressora parou\r\n")
	assert.Contains(t, message, "In-Reply-To: <abc@cliente.example>\r\n")
	assert.Contains(t, message, "References: <root@x> <mid@x> <abc@cliente.example>\r\n")
	assert.True(t, strings.HasSuffix(message, "Estamos verificando."))

	entries, err := sendLog.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
	assert.Equal(t, "Re: Impressora parou", entries[0].Subject)
	assert.Nil(t, entries[0].Error)
}

func TestSendReplyKeepsExistingRePrefix(t *testing.T) {
	transport := &fakeTransport{}
	sender := NewReplySender(repository.NewMemorySendLogRepository(), WithTransport(transport))

	err := sender.SendReply(context.Background(), threadedTicket(), configuredMailbox(), "RE: ja respondido", "ok")
	require.NoError(t, err)
	assert.Contains(t, string(transport.data), "Subject: RE: ja respondido\r\n")
}

func TestSendReplyFallsBackToFromAddress(t *testing.T) {
	transport := &fakeTransport{}
	sender := NewReplySender(repository.NewMemorySendLogRepository(), WithTransport(transport))

	ticket := threadedTicket()
	ticket.ReplyTo = ""
	err := sender.SendReply(context.Background(), ticket, configuredMailbox(), "assunto", "corpo")
	require.NoError(t, err)
	assert.Equal(t, []string{"maria@cliente.example"}, transport.to)
}

func TestSendReplyMissingSMTPConfig(t *testing.T) {
	sendLog := repository.NewMemorySendLogRepository()
	sender := NewReplySender(sendLog, WithTransport(&fakeTransport{}))

	mailbox := configuredMailbox()
	mailbox.SMTPHost = ""
	ticket := threadedTicket()
	err := sender.SendReply(context.Background(), ticket, mailbox, "assunto", "corpo")
	assert.ErrorIs(t, err, ErrSMTPNotConfigured)

	// The failed attempt is still on record.
	entries, logErr := sendLog.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, logErr)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	require.NotNil(t, entries[0].Error)
}

func TestSendReplyTransportFailureIsLogged(t *testing.T) {
	sendLog := repository.NewMemorySendLogRepository()
	transport := &fakeTransport{err: errors.New("connection reset")}
	sender := NewReplySender(sendLog, WithTransport(transport))

	ticket := threadedTicket()
	err := sender.SendReply(context.Background(), ticket, configuredMailbox(), "assunto", "corpo")
	require.Error(t, err)

	entries, logErr := sendLog.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, logErr)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Contains(t, *entries[0].Error, "connection reset")
}

func TestSendReplyNoRecipient(t *testing.T) {
	sender := NewReplySender(repository.NewMemorySendLogRepository(), WithTransport(&fakeTransport{}))
	ticket := threadedTicket()
	ticket.ReplyTo = ""
	ticket.EmailFrom = ""
	err := sender.SendReply(context.Background(), ticket, configuredMailbox(), "assunto", "corpo")
	assert.Error(t, err)
}

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "Re: x", replySubject("x"))
	assert.Equal(t, "Re: x", replySubject("  x  "))
	assert.Equal(t, "re: x", replySubject("re: x"))
}
