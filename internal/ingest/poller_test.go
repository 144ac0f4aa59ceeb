package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskgo-io/deskgo/internal/classify"
	"github.com/deskgo-io/deskgo/internal/ingest/connector"
	"github.com/deskgo-io/deskgo/internal/models"
	"github.com/deskgo-io/deskgo/internal/repository"
)

type fakeSession struct {
	status    connector.FolderStatus
	messages  []connector.RawMessage
	selectErr error
	fetchErr  error
	closed    int
}

func (s *fakeSession) Select(string) (connector.FolderStatus, error) {
	if s.selectErr != nil {
		return connector.FolderStatus{}, s.selectErr
	}
	return s.status, nil
}

func (s *fakeSession) FetchSince(_ context.Context, cursor uint32) ([]connector.RawMessage, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []connector.RawMessage
	for _, m := range s.messages {
		if m.UID > cursor {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeDialer struct {
	sessions map[string]*fakeSession
	dialErr  map[string]error
	dialed   []string
}

func (d *fakeDialer) Dial(_ context.Context, account connector.Account) (connector.Session, error) {
	d.dialed = append(d.dialed, account.Host)
	if err := d.dialErr[account.Host]; err != nil {
		return nil, err
	}
	session, ok := d.sessions[account.Host]
	if !ok {
		return nil, fmt.Errorf("no session for %s", account.Host)
	}
	return session, nil
}

type fakeClassifier struct {
	fn    func(classify.Input) (*classify.Decision, error)
	calls int
}

func (c *fakeClassifier) Classify(_ context.Context, input classify.Input) (*classify.Decision, error) {
	c.calls++
	if c.fn == nil {
		return &classify.Decision{AreaID: 1, CategoryID: 1, SubcategoryID: 11, Impact: models.ImpactMedio, Summary: input.Subject}, nil
	}
	return c.fn(input)
}

type pollerFixture struct {
	poller     *Poller
	mailboxes  *repository.MemoryMailboxRepository
	tickets    *repository.MemoryTicketRepository
	clients    *repository.MemoryClientRepository
	ingestLog  *repository.MemoryIngestLogRepository
	dialer     *fakeDialer
	classifier *fakeClassifier
}

func testMenu() models.Menu {
	return models.Menu{
		Areas: []models.Area{{ID: 1, OrganizationID: 1, Name: "TI"}},
		Categories: []models.Category{
			{ID: 1, OrganizationID: 1, Name: "Hardware", Subcategories: []models.Subcategory{{ID: 11, CategoryID: 1, Name: "Impressora"}}},
			{ID: 2, OrganizationID: 1, Name: "Software", Subcategories: []models.Subcategory{{ID: 21, CategoryID: 2, Name: "Sistema"}}},
		},
	}
}

func newPollerFixture(t *testing.T) *pollerFixture {
	t.Helper()
	f := &pollerFixture{
		mailboxes:  repository.NewMemoryMailboxRepository(),
		tickets:    repository.NewMemoryTicketRepository(),
		clients:    repository.NewMemoryClientRepository(),
		ingestLog:  repository.NewMemoryIngestLogRepository(),
		dialer:     &fakeDialer{sessions: map[string]*fakeSession{}, dialErr: map[string]error{}},
		classifier: &fakeClassifier{},
	}
	f.poller = NewPoller(PollerDeps{
		Mailboxes:   f.mailboxes,
		IngestLog:   f.ingestLog,
		Catalog:     repository.NewMemoryCatalogRepository(testMenu()),
		Dialer:      f.dialer,
		Classifier:  f.classifier,
		Synthesizer: NewSynthesizer(f.tickets, f.clients),
	})
	return f
}

func (f *pollerFixture) addMailbox(t *testing.T, host string, lastUID uint32) int {
	t.Helper()
	id, err := f.mailboxes.Create(context.Background(), &models.Mailbox{
		OrganizationID:    1,
		Name:              host,
		Enabled:           true,
		IMAPHost:          host,
		IMAPPort:          993,
		IMAPSecurity:      "imaps",
		IMAPUser:          "svc",
		IMAPPassword:      "secret",
		Folder:            "INBOX",
		LastUID:           lastUID,
		DefaultAreaID:     1,
		DefaultCategoryID: 1,
		DefaultImpact:     models.ImpactBaixo,
	})
	require.NoError(t, err)
	return id
}

func rawMessage(uid uint32, messageID, subject string) connector.RawMessage {
	lines := []string{
		"From: Maria <maria@cliente.example>",
		"Subject: " + subject,
	}
	if messageID != "" {
		lines = append(lines, "Message-Id: <"+messageID+">")
	}
	lines = append(lines, "Content-Type: text/plain; charset=utf-8", "", "corpo do chamado", "")
	return connector.RawMessage{UID: uid, ReceivedAt: time.Now(), Raw: []byte(strings.Join(lines, "\r\n"))}
}

func TestPollAllFirstPollSkipsBacklog(t *testing.T) {
	f := newPollerFixture(t)
	id := f.addMailbox(t, "mail.example", 0)
	session := &fakeSession{
		status:   connector.FolderStatus{HighWaterMark: 40},
		messages: []connector.RawMessage{rawMessage(39, "old@x", "antiga"), rawMessage(40, "older@x", "antiga2")},
	}
	f.dialer.sessions["mail.example"] = session

	require.NoError(t, f.poller.PollAll(context.Background()))

	mailbox, err := f.mailboxes.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uint32(40), mailbox.LastUID)
	assert.Equal(t, models.MailboxIdle, mailbox.Status)
	assert.Equal(t, 1, session.closed)

	tickets, err := f.tickets.ListByOrganization(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestPollAllProcessesNewMessages(t *testing.T) {
	f := newPollerFixture(t)
	id := f.addMailbox(t, "mail.example", 10)
	session := &fakeSession{
		messages: []connector.RawMessage{
			rawMessage(11, "m11@x", "chamado um"),
			rawMessage(12, "m12@x", "chamado dois"),
		},
	}
	f.dialer.sessions["mail.example"] = session

	require.NoError(t, f.poller.PollAll(context.Background()))

	tickets, err := f.tickets.ListByOrganization(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "chamado um", tickets[0].Title)
	assert.Equal(t, "m11@x", tickets[0].MessageID)

	mailbox, err := f.mailboxes.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uint32(12), mailbox.LastUID)
	assert.Equal(t, models.MailboxIdle, mailbox.Status)
	require.NotNil(t, mailbox.LastCheckedAt)
	assert.Equal(t, 1, session.closed)
}

func TestPollAllSkipsDuplicates(t *testing.T) {
	f := newPollerFixture(t)
	f.addMailbox(t, "mail.example", 10)
	session := &fakeSession{messages: []connector.RawMessage{rawMessage(11, "dup@x", "primeiro")}}
	f.dialer.sessions["mail.example"] = session

	require.NoError(t, f.poller.PollAll(context.Background()))

	// The same message shows up again under a new UID.
	session.messages = append(session.messages, rawMessage(12, "dup@x", "reenvio"))
	require.NoError(t, f.poller.PollAll(context.Background()))

	tickets, err := f.tickets.ListByOrganization(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, tickets, 1)
	assert.Equal(t, 1, f.classifier.calls)
}

func TestPollAllUsesUIDKeyWithoutMessageID(t *testing.T) {
	f := newPollerFixture(t)
	id := f.addMailbox(t, "mail.example", 10)
	f.dialer.sessions["mail.example"] = &fakeSession{
		messages: []connector.RawMessage{rawMessage(11, "", "sem message id")},
	}

	require.NoError(t, f.poller.PollAll(context.Background()))

	tickets, err := f.tickets.ListByOrganization(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, fmt.Sprintf("mailbox:%d:uid:11", id), tickets[0].MessageID)
}

func TestPollAllClassifierFailureFallsBackToDefaults(t *testing.T) {
	f := newPollerFixture(t)
	f.addMailbox(t, "mail.example", 10)
	f.dialer.sessions["mail.example"] = &fakeSession{
		messages: []connector.RawMessage{rawMessage(11, "m@x", "urgente")},
	}
	f.classifier.fn = func(classify.Input) (*classify.Decision, error) {
		return nil, errors.New("api unavailable")
	}

	require.NoError(t, f.poller.PollAll(context.Background()))

	tickets, err := f.tickets.ListByOrganization(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, 1, tickets[0].AreaID)
	assert.Equal(t, 1, tickets[0].CategoryID)
	assert.Equal(t, 11, tickets[0].SubcategoryID)
	assert.Equal(t, models.ImpactBaixo, tickets[0].Impact)
	assert.Equal(t, "urgente", tickets[0].Title)
}

func TestPollAllEnforcesCategoryAllowList(t *testing.T) {
	f := newPollerFixture(t)
	_, err := f.mailboxes.Create(context.Background(), &models.Mailbox{
		OrganizationID:     1,
		Name:               "restrita",
		Enabled:            true,
		IMAPHost:           "mail.example",
		Folder:             "INBOX",
		LastUID:            10,
		DefaultAreaID:      1,
		DefaultCategoryID:  1,
		AllowedCategoryIDs: []int{2},
		DefaultImpact:      models.ImpactMedio,
	})
	require.NoError(t, err)
	f.dialer.sessions["mail.example"] = &fakeSession{
		messages: []connector.RawMessage{rawMessage(11, "m@x", "fora da lista")},
	}
	f.classifier.fn = func(input classify.Input) (*classify.Decision, error) {
		return &classify.Decision{AreaID: 1, CategoryID: 1, SubcategoryID: 11, Impact: models.ImpactMedio}, nil
	}

	require.NoError(t, f.poller.PollAll(context.Background()))

	tickets, err := f.tickets.ListByOrganization(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, 2, tickets[0].CategoryID)
	assert.Equal(t, 21, tickets[0].SubcategoryID)
}

func TestPollAllConnectFailureLeavesCursor(t *testing.T) {
	f := newPollerFixture(t)
	brokenID := f.addMailbox(t, "broken.example", 10)
	healthyID := f.addMailbox(t, "mail.example", 10)
	f.dialer.dialErr["broken.example"] = errors.New("connection refused")
	f.dialer.sessions["mail.example"] = &fakeSession{
		messages: []connector.RawMessage{rawMessage(11, "m@x", "segue o jogo")},
	}

	require.NoError(t, f.poller.PollAll(context.Background()))

	broken, err := f.mailboxes.GetByID(context.Background(), brokenID)
	require.NoError(t, err)
	assert.Equal(t, models.MailboxError, broken.Status)
	assert.Equal(t, uint32(10), broken.LastUID)
	require.NotNil(t, broken.LastError)
	assert.Contains(t, *broken.LastError, "connection refused")

	healthy, err := f.mailboxes.GetByID(context.Background(), healthyID)
	require.NoError(t, err)
	assert.Equal(t, models.MailboxIdle, healthy.Status)
	assert.Equal(t, uint32(11), healthy.LastUID)
}

func TestPollAllIsolatesPerMessageFailures(t *testing.T) {
	f := newPollerFixture(t)
	id := f.addMailbox(t, "mail.example", 10)
	noSender := connector.RawMessage{
		UID: 11,
		Raw: []byte("Subject: sem remetente\r\nMessage-Id: <bad@x>\r\nContent-Type: text/plain\r\n\r\nx\r\n"),
	}
	f.dialer.sessions["mail.example"] = &fakeSession{
		messages: []connector.RawMessage{noSender, rawMessage(12, "ok@x", "valido")},
	}

	require.NoError(t, f.poller.PollAll(context.Background()))

	tickets, err := f.tickets.ListByOrganization(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "valido", tickets[0].Title)

	// Cursor still covers the failed message.
	mailbox, err := f.mailboxes.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uint32(12), mailbox.LastUID)

	entries, err := f.ingestLog.ListByMailbox(context.Background(), id, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.IngestProcessed, entries[0].Outcome)
	assert.Equal(t, models.IngestError, entries[1].Outcome)
	assert.Equal(t, "bad@x", entries[1].MessageID)
}

func TestPollAllSelectFailureClosesSession(t *testing.T) {
	f := newPollerFixture(t)
	id := f.addMailbox(t, "mail.example", 10)
	session := &fakeSession{selectErr: errors.New("no such folder")}
	f.dialer.sessions["mail.example"] = session

	require.NoError(t, f.poller.PollAll(context.Background()))

	assert.Equal(t, 1, session.closed)
	mailbox, err := f.mailboxes.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.MailboxError, mailbox.Status)
	assert.Equal(t, uint32(10), mailbox.LastUID)
}
