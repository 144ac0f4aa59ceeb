package outbound

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net/smtp"
	"strings"
	"time"

	"github.com/deskgo-io/deskgo/internal/models"
	"github.com/deskgo-io/deskgo/internal/repository"
)

// ErrSMTPNotConfigured is returned when the mailbox is missing outbound
// credentials.
var ErrSMTPNotConfigured = errors.New("mailbox has no SMTP configuration")

// Transport delivers one prepared message.
type Transport interface {
	Send(ctx context.Context, mailbox models.Mailbox, from string, to []string, data []byte) error
}

// ReplySender sends threaded agent replies over the mailbox's own SMTP
// credentials and records every attempt in the send log.
type ReplySender struct {
	sendLog   repository.SendLogRepository
	transport Transport
	logger    *log.Logger
	clock     func() time.Time
}

// ReplySenderOption customizes a ReplySender.
type ReplySenderOption func(*ReplySender)

// WithSenderLogger overrides the logger.
func WithSenderLogger(logger *log.Logger) ReplySenderOption {
	return func(s *ReplySender) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTransport replaces the SMTP transport.
func WithTransport(transport Transport) ReplySenderOption {
	return func(s *ReplySender) {
		if transport != nil {
			s.transport = transport
		}
	}
}

func withSenderClock(clock func() time.Time) ReplySenderOption {
	return func(s *ReplySender) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewReplySender builds a ReplySender with the default SMTP transport.
func NewReplySender(sendLog repository.SendLogRepository, opts ...ReplySenderOption) *ReplySender {
	s := &ReplySender{
		sendLog:   sendLog,
		transport: &smtpTransport{},
		logger:    log.Default(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// SendReply sends body as a reply on the ticket's email thread. The attempt
// is recorded in the send log whether it succeeds or not.
func (s *ReplySender) SendReply(ctx context.Context, ticket *models.Ticket, mailbox *models.Mailbox, subject, body string) error {
	recipient := strings.TrimSpace(ticket.ReplyTo)
	if recipient == "" {
		recipient = strings.TrimSpace(ticket.EmailFrom)
	}
	if recipient == "" {
		return fmt.Errorf("ticket %d has no reply recipient", ticket.ID)
	}

	finalSubject := replySubject(subject)
	err := s.deliver(ctx, ticket, mailbox, recipient, finalSubject, body)
	s.record(ctx, ticket, mailbox, recipient, finalSubject, err)
	if err != nil {
		return err
	}
	s.logf("[OUTBOUND] ticket %d: reply sent to %s", ticket.ID, recipient)
	return nil
}

func (s *ReplySender) deliver(ctx context.Context, ticket *models.Ticket, mailbox *models.Mailbox, recipient, subject, body string) error {
	if mailbox.SMTPHost == "" || mailbox.SMTPUser == "" || mailbox.SMTPPassword == "" {
		return ErrSMTPNotConfigured
	}
	from := mailbox.SMTPFrom
	if from == "" {
		from = mailbox.SMTPUser
	}

	var message bytes.Buffer
	message.WriteString(fmt.Sprintf("From: %s\r\n", from))
	message.WriteString(fmt.Sprintf("To: %s\r\n", recipient))
	message.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	message.WriteString(fmt.Sprintf("Date: %s\r\n", s.clock().Format(time.RFC1123Z)))
	if ticket.MessageID != "" {
		message.WriteString(fmt.Sprintf("In-Reply-To: <%s>\r\n", ticket.MessageID))
		message.WriteString(fmt.Sprintf("References: %s\r\n", referencesHeader(ticket)))
	}
	message.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	message.WriteString("\r\n")
	message.WriteString(body)

	if err := s.transport.Send(ctx, *mailbox, from, []string{recipient}, message.Bytes()); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

func (s *ReplySender) record(ctx context.Context, ticket *models.Ticket, mailbox *models.Mailbox, recipient, subject string, sendErr error) {
	entry := &models.SendLog{
		TicketID:  ticket.ID,
		MailboxID: mailbox.ID,
		Recipient: recipient,
		Subject:   subject,
		Success:   sendErr == nil,
		CreatedAt: s.clock(),
	}
	if sendErr != nil {
		cause := sendErr.Error()
		entry.Error = &cause
	}
	if err := s.sendLog.Record(ctx, entry); err != nil {
		s.logf("[OUTBOUND] ticket %d: failed to record send log: %v", ticket.ID, err)
	}
}

func (s *ReplySender) logf(format string, args ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

// replySubject prefixes Re: unless the subject already carries one.
func replySubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToLower(trimmed), "re:") {
		return trimmed
	}
	return "Re: " + trimmed
}

// referencesHeader is the inbound reference chain plus the ticket's own message id.
func referencesHeader(ticket *models.Ticket) string {
	var parts []string
	for _, id := range strings.Fields(ticket.References) {
		parts = append(parts, "<"+strings.Trim(id, "<>")+">")
	}
	own := "<" + ticket.MessageID + ">"
	for _, part := range parts {
		if part == own {
			return strings.Join(parts, " ")
		}
	}
	parts = append(parts, own)
	return strings.Join(parts, " ")
}

// smtpTransport is the production transport over net/smtp. Port 465 gets an
// implicit TLS connection, everything else goes through SendMail which
// upgrades with STARTTLS when offered.
type smtpTransport struct{}

func (t *smtpTransport) Send(_ context.Context, mailbox models.Mailbox, from string, to []string, data []byte) error {
	addr := fmt.Sprintf("%s:%d", mailbox.SMTPHost, mailbox.SMTPPort)
	auth := smtp.PlainAuth("", mailbox.SMTPUser, mailbox.SMTPPassword, mailbox.SMTPHost)

	if mailbox.SMTPPort == 465 {
		return t.sendImplicitTLS(mailbox, addr, auth, from, to, data)
	}
	if err := smtp.SendMail(addr, auth, from, to, data); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

func (t *smtpTransport) sendImplicitTLS(mailbox models.Mailbox, addr string, auth smtp.Auth, from string, to []string, data []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: mailbox.SMTPHost})
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, mailbox.SMTPHost)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to add recipient %s: %w", recipient, err)
		}
	}
	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data transfer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close data transfer: %w", err)
	}
	return client.Quit()
}
