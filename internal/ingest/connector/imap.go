package connector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

type imapClient interface {
	Login(username, password string) commandWaiter
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
}

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}

// IMAPDialer opens IMAP/IMAPS sessions for the mailbox poller.
type IMAPDialer struct {
	dialTimeout time.Duration
	now         func() time.Time
	logger      *log.Logger
	newClient   func(Account) (imapClient, error)
}

// IMAPDialerOption customizes dialer behavior.
type IMAPDialerOption func(*IMAPDialer)

// NewIMAPDialer returns an IMAP dialer ready for polling.
func NewIMAPDialer(opts ...IMAPDialerOption) *IMAPDialer {
	d := &IMAPDialer{
		dialTimeout: 10 * time.Second,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      log.Default(),
	}
	d.newClient = d.defaultClientFactory
	for _, opt := range opts {
		opt(d)
	}
	if d.newClient == nil {
		d.newClient = d.defaultClientFactory
	}
	return d
}

// WithIMAPLogger overrides the logger used for connector diagnostics.
func WithIMAPLogger(logger *log.Logger) IMAPDialerOption {
	return func(d *IMAPDialer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithIMAPDialTimeout overrides the socket dial timeout.
func WithIMAPDialTimeout(timeout time.Duration) IMAPDialerOption {
	return func(d *IMAPDialer) {
		if timeout > 0 {
			d.dialTimeout = timeout
		}
	}
}

// WithIMAPClock overrides the wall clock, primarily for tests.
func WithIMAPClock(now func() time.Time) IMAPDialerOption {
	return func(d *IMAPDialer) {
		if now != nil {
			d.now = now
		}
	}
}

func withIMAPClientFactory(factory func(Account) (imapClient, error)) IMAPDialerOption {
	return func(d *IMAPDialer) {
		d.newClient = factory
	}
}

// Dial connects and authenticates. The returned session still needs Select.
func (d *IMAPDialer) Dial(ctx context.Context, account Account) (Session, error) {
	if err := validateIMAPAccount(account); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := d.newClient(account)
	if err != nil {
		return nil, fmt.Errorf("imap connect: %w", err)
	}
	if err := client.Login(account.Username, account.Password).Wait(); err != nil {
		d.safeClose(client)
		return nil, fmt.Errorf("imap auth: %w", err)
	}
	return &imapSession{client: client, dialer: d}, nil
}

func (d *IMAPDialer) defaultClientFactory(account Account) (imapClient, error) {
	port := account.Port
	if port == 0 {
		if useIMAPTLS(account.Security) {
			port = 993
		} else {
			port = 143
		}
	}
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: d.dialTimeout}}
	addr := fmt.Sprintf("%s:%d", account.Host, port)
	var client *imapclient.Client
	var err error
	switch {
	case useIMAPTLS(account.Security):
		client, err = imapclient.DialTLS(addr, opts)
	case strings.EqualFold(account.Security, "starttls"):
		client, err = imapclient.DialStartTLS(addr, opts)
	default:
		client, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return nil, err
	}
	return &imapClientWrapper{Client: client}, nil
}

func (d *IMAPDialer) safeClose(client imapClient) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil && d.logger != nil {
		d.logger.Printf("imap close error: %v", err)
	}
}

type imapSession struct {
	client imapClient
	dialer *IMAPDialer
	closed bool
}

func (s *imapSession) Select(folder string) (FolderStatus, error) {
	if folder == "" {
		folder = "INBOX"
	}
	data, err := s.client.Select(folder, nil).Wait()
	if err != nil {
		return FolderStatus{}, fmt.Errorf("imap select %s: %w", folder, err)
	}
	var hwm uint32
	if data.UIDNext > 0 {
		hwm = uint32(data.UIDNext) - 1
	}
	return FolderStatus{HighWaterMark: hwm}, nil
}

func (s *imapSession) FetchSince(ctx context.Context, cursor uint32) ([]RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var uidRange imap.UIDSet
	uidRange.AddRange(imap.UID(cursor+1), 0)
	searchData, err := s.client.UIDSearch(&imap.SearchCriteria{UID: []imap.UIDSet{uidRange}}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	fetchOpts := &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{{}},
	}
	buffers, err := s.client.Fetch(imap.UIDSetNum(uids...), fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	messages := make([]RawMessage, 0, len(buffers))
	for _, buf := range buffers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body := buf.FindBodySection(&imap.FetchItemBodySection{})
		if body == nil {
			continue
		}
		received := buf.InternalDate
		if received.IsZero() {
			received = s.dialer.now()
		}
		messages = append(messages, RawMessage{
			UID:        uint32(buf.UID),
			ReceivedAt: received,
			Raw:        append([]byte(nil), body...),
		})
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].UID < messages[j].UID })
	return messages, nil
}

func (s *imapSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.client.Logout().Wait(); err != nil && s.dialer.logger != nil {
		s.dialer.logger.Printf("imap logout error: %v", err)
	}
	return s.client.Close()
}

type imapClientWrapper struct{ *imapclient.Client }

func (w *imapClientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}
func (w *imapClientWrapper) Logout() commandWaiter { return w.Client.Logout() }
func (w *imapClientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}
func (w *imapClientWrapper) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}
func (w *imapClientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}

func validateIMAPAccount(account Account) error {
	if account.Host == "" {
		return errors.New("imap account missing host")
	}
	if account.Username == "" {
		return errors.New("imap account missing username")
	}
	if account.Password == "" {
		return errors.New("imap account missing password")
	}
	return nil
}

func useIMAPTLS(security string) bool {
	switch strings.ToLower(strings.TrimSpace(security)) {
	case "imaps", "tls", "ssl":
		return true
	default:
		return false
	}
}
