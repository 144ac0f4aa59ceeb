package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/deskgo-io/deskgo/internal/classify"
	"github.com/deskgo-io/deskgo/internal/ingest/connector"
	"github.com/deskgo-io/deskgo/internal/metrics"
	"github.com/deskgo-io/deskgo/internal/models"
	"github.com/deskgo-io/deskgo/internal/repository"
	"github.com/deskgo-io/deskgo/internal/storage"
)

// RoutingClassifier produces a routing decision for one message.
type RoutingClassifier interface {
	Classify(ctx context.Context, input classify.Input) (*classify.Decision, error)
}

// Poller runs the inbound mail cycle: for every enabled mailbox it connects,
// fetches messages past the cursor, routes each one into a ticket and then
// advances the cursor. Mailboxes are processed sequentially; one broken
// mailbox never blocks the others.
type Poller struct {
	mailboxes   repository.MailboxRepository
	ingestLog   repository.IngestLogRepository
	catalog     repository.CatalogRepository
	attachments repository.AttachmentRepository
	store       storage.Store
	dialer      connector.Dialer
	classifier  RoutingClassifier
	synthesizer *Synthesizer
	parser      *MessageParser
	metrics     *metrics.Ingest
	logger      *log.Logger
	clock       func() time.Time
}

// PollerOption customizes a Poller.
type PollerOption func(*Poller)

// WithPollerLogger overrides the logger.
func WithPollerLogger(logger *log.Logger) PollerOption {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPollerMetrics attaches an ingest metric set.
func WithPollerMetrics(m *metrics.Ingest) PollerOption {
	return func(p *Poller) {
		if m != nil {
			p.metrics = m
		}
	}
}

func withPollerClock(clock func() time.Time) PollerOption {
	return func(p *Poller) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// PollerDeps bundles the collaborators of a Poller.
type PollerDeps struct {
	Mailboxes   repository.MailboxRepository
	IngestLog   repository.IngestLogRepository
	Catalog     repository.CatalogRepository
	Attachments repository.AttachmentRepository
	Store       storage.Store
	Dialer      connector.Dialer
	Classifier  RoutingClassifier
	Synthesizer *Synthesizer
	Parser      *MessageParser
}

// NewPoller builds a Poller.
func NewPoller(deps PollerDeps, opts ...PollerOption) *Poller {
	p := &Poller{
		mailboxes:   deps.Mailboxes,
		ingestLog:   deps.IngestLog,
		catalog:     deps.Catalog,
		attachments: deps.Attachments,
		store:       deps.Store,
		dialer:      deps.Dialer,
		classifier:  deps.Classifier,
		synthesizer: deps.Synthesizer,
		parser:      deps.Parser,
		metrics:     metrics.NewIngestUnregistered(),
		logger:      log.Default(),
		clock:       time.Now,
	}
	if p.parser == nil {
		p.parser = NewMessageParser()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// PollAll runs one full cycle over every enabled mailbox.
func (p *Poller) PollAll(ctx context.Context) error {
	start := p.clock()
	mailboxes, err := p.mailboxes.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list mailboxes: %w", err)
	}

	for i := range mailboxes {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		mailbox := mailboxes[i]
		if err := p.pollMailbox(ctx, &mailbox); err != nil {
			p.metrics.PollFailures.WithLabelValues(mailbox.Name).Inc()
			p.logf("[POLLER] mailbox %s: %v", mailbox.Name, err)
			cause := err.Error()
			if statusErr := p.mailboxes.UpdateStatus(ctx, mailbox.ID, models.MailboxError, &cause, p.clock()); statusErr != nil {
				p.logf("[POLLER] mailbox %s: failed to record error state: %v", mailbox.Name, statusErr)
			}
			continue
		}
		if err := p.mailboxes.UpdateStatus(ctx, mailbox.ID, models.MailboxIdle, nil, p.clock()); err != nil {
			p.logf("[POLLER] mailbox %s: failed to record idle state: %v", mailbox.Name, err)
		}
	}

	p.metrics.PollCycles.Inc()
	p.metrics.CycleDuration.Observe(p.clock().Sub(start).Seconds())
	return nil
}

// pollMailbox runs the cycle for one mailbox. The returned error means the
// mailbox ends the cycle in error state; per-message failures are absorbed
// inside the loop and only logged.
func (p *Poller) pollMailbox(ctx context.Context, mailbox *models.Mailbox) error {
	if err := p.mailboxes.UpdateStatus(ctx, mailbox.ID, models.MailboxConnecting, nil, p.clock()); err != nil {
		p.logf("[POLLER] mailbox %s: failed to record connecting state: %v", mailbox.Name, err)
	}

	session, err := p.dialer.Dial(ctx, connector.Account{
		Host:     mailbox.IMAPHost,
		Port:     mailbox.IMAPPort,
		Security: mailbox.IMAPSecurity,
		Username: mailbox.IMAPUser,
		Password: mailbox.IMAPPassword,
		Folder:   mailbox.Folder,
	})
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer session.Close()

	status, err := session.Select(mailbox.Folder)
	if err != nil {
		return fmt.Errorf("select failed: %w", err)
	}

	// A brand new mailbox starts at the current high-water mark so the
	// existing backlog is never ingested.
	if mailbox.LastUID == 0 {
		if status.HighWaterMark > 0 {
			if err := p.mailboxes.UpdateCursor(ctx, mailbox.ID, status.HighWaterMark); err != nil {
				return fmt.Errorf("failed to initialize cursor: %w", err)
			}
			p.logf("[POLLER] mailbox %s: cursor initialized at %d", mailbox.Name, status.HighWaterMark)
		}
		return nil
	}

	messages, err := session.FetchSince(ctx, mailbox.LastUID)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	menu, defaults, err := p.routingContext(ctx, mailbox)
	if err != nil {
		return err
	}

	maxUID := mailbox.LastUID
	for _, message := range messages {
		if message.UID > maxUID {
			maxUID = message.UID
		}
		p.processMessage(ctx, mailbox, message, menu, defaults)
	}

	if maxUID > mailbox.LastUID {
		if err := p.mailboxes.UpdateCursor(ctx, mailbox.ID, maxUID); err != nil {
			return fmt.Errorf("failed to advance cursor: %w", err)
		}
		mailbox.LastUID = maxUID
	}
	return nil
}

// processMessage handles one raw message end to end. Failures are recorded in
// the ingest log and never abort the batch.
func (p *Poller) processMessage(ctx context.Context, mailbox *models.Mailbox, message connector.RawMessage, menu *models.Menu, defaults classify.Defaults) {
	env := p.parser.Parse(message.Raw)
	key := dedupKey(mailbox.ID, message.UID, env.MessageID)

	seen, err := p.ingestLog.Exists(ctx, mailbox.ID, key)
	if err != nil {
		p.failMessage(ctx, mailbox, key, fmt.Errorf("dedup check failed: %w", err))
		return
	}
	if seen {
		p.metrics.MessagesDeduplicated.WithLabelValues(mailbox.Name).Inc()
		p.logf("[POLLER] mailbox %s: skipping duplicate %s", mailbox.Name, key)
		return
	}

	decision := p.routeMessage(ctx, mailbox, env, menu, defaults)
	decision = applyCategoryPolicy(decision, mailbox, menu, defaults)

	ticket, err := p.synthesizer.Synthesize(ctx, TicketInput{
		Mailbox:  *mailbox,
		Envelope: env,
		Decision: decision,
		DedupKey: key,
	})
	if err != nil {
		p.failMessage(ctx, mailbox, key, err)
		return
	}

	p.storeAttachments(ctx, ticket.ID, env.Attachments)

	if err := p.ingestLog.RecordProcessed(ctx, mailbox.ID, key, ticket.ID); err != nil {
		// ErrDuplicateMessage here means another worker won the race after
		// our Exists check; the ticket stays, the log row does not repeat.
		p.logf("[POLLER] mailbox %s: failed to record %s: %v", mailbox.Name, key, err)
		return
	}
	p.metrics.MessagesProcessed.WithLabelValues(mailbox.Name).Inc()
}

// routeMessage asks the classifier for a decision and falls back to the
// mailbox defaults when the call fails. A failed classification never loses
// the message.
func (p *Poller) routeMessage(ctx context.Context, mailbox *models.Mailbox, env Envelope, menu *models.Menu, defaults classify.Defaults) classify.Decision {
	decision, err := p.classifier.Classify(ctx, classify.Input{
		Subject:  env.Subject,
		From:     env.From,
		Body:     env.Body,
		Menu:     *menu,
		Defaults: defaults,
	})
	if err != nil || decision == nil {
		p.metrics.ClassificationFallbacks.WithLabelValues(mailbox.Name).Inc()
		p.logf("[POLLER] mailbox %s: classification failed, using defaults: %v", mailbox.Name, err)
		return classify.Decision{
			AreaID:        defaults.AreaID,
			CategoryID:    defaults.CategoryID,
			SubcategoryID: defaults.SubcategoryID,
			Impact:        defaults.Impact,
			Summary:       env.Subject,
			Description:   env.Body,
		}
	}
	return *decision
}

func (p *Poller) storeAttachments(ctx context.Context, ticketID int, parts []AttachmentPart) {
	if p.store == nil || p.attachments == nil {
		return
	}
	for _, part := range parts {
		ref, err := p.store.Save(ctx, ticketID, part.Filename, part.Data)
		if err != nil {
			p.logf("[POLLER] ticket %d: failed to store attachment %s: %v", ticketID, part.Filename, err)
			continue
		}
		_, err = p.attachments.Create(ctx, &models.Attachment{
			TicketID:    ticketID,
			Filename:    part.Filename,
			StoredRef:   ref,
			ContentType: part.ContentType,
			Size:        int64(len(part.Data)),
		})
		if err != nil {
			p.logf("[POLLER] ticket %d: failed to record attachment %s: %v", ticketID, part.Filename, err)
		}
	}
}

func (p *Poller) failMessage(ctx context.Context, mailbox *models.Mailbox, key string, cause error) {
	p.metrics.MessagesFailed.WithLabelValues(mailbox.Name).Inc()
	p.logf("[POLLER] mailbox %s: message %s failed: %v", mailbox.Name, key, cause)
	if err := p.ingestLog.RecordError(ctx, mailbox.ID, key, cause.Error()); err != nil {
		p.logf("[POLLER] mailbox %s: failed to record ingest error: %v", mailbox.Name, err)
	}
}

// routingContext loads the organization menu and derives the mailbox default
// routing offered to the classifier.
func (p *Poller) routingContext(ctx context.Context, mailbox *models.Mailbox) (*models.Menu, classify.Defaults, error) {
	menu, err := p.catalog.Menu(ctx, mailbox.OrganizationID)
	if err != nil {
		return nil, classify.Defaults{}, fmt.Errorf("failed to load routing menu: %w", err)
	}
	defaults := classify.Defaults{
		AreaID:        mailbox.DefaultAreaID,
		CategoryID:    mailbox.DefaultCategoryID,
		SubcategoryID: firstSubcategoryID(menu, mailbox.DefaultCategoryID),
		Impact:        mailbox.DefaultImpact,
	}
	if defaults.Impact == "" {
		defaults.Impact = models.ImpactMedio
	}
	return menu, defaults, nil
}

// applyCategoryPolicy enforces the mailbox category allow-list and keeps the
// subcategory consistent with the final category.
func applyCategoryPolicy(decision classify.Decision, mailbox *models.Mailbox, menu *models.Menu, defaults classify.Defaults) classify.Decision {
	if len(mailbox.AllowedCategoryIDs) > 0 && !containsInt(mailbox.AllowedCategoryIDs, decision.CategoryID) {
		decision.CategoryID = mailbox.AllowedCategoryIDs[0]
		decision.SubcategoryID = 0
	}
	if decision.CategoryID == 0 {
		decision.CategoryID = defaults.CategoryID
	}
	if !subcategoryBelongs(menu, decision.CategoryID, decision.SubcategoryID) {
		decision.SubcategoryID = firstSubcategoryID(menu, decision.CategoryID)
	}
	return decision
}

func dedupKey(mailboxID int, uid uint32, messageID string) string {
	if strings.TrimSpace(messageID) != "" {
		return messageID
	}
	return fmt.Sprintf("mailbox:%d:uid:%d", mailboxID, uid)
}

func containsInt(haystack []int, needle int) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func firstSubcategoryID(menu *models.Menu, categoryID int) int {
	for _, category := range menu.Categories {
		if category.ID == categoryID && len(category.Subcategories) > 0 {
			return category.Subcategories[0].ID
		}
	}
	return 0
}

func subcategoryBelongs(menu *models.Menu, categoryID, subcategoryID int) bool {
	if subcategoryID == 0 {
		return false
	}
	for _, category := range menu.Categories {
		if category.ID != categoryID {
			continue
		}
		for _, sub := range category.Subcategories {
			if sub.ID == subcategoryID {
				return true
			}
		}
	}
	return false
}

func (p *Poller) logf(format string, args ...any) {
	if p == nil || p.logger == nil {
		return
	}
	p.logger.Printf(format, args...)
}
