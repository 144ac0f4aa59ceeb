package connector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/stretchr/testify/require"
)

type stubWaiter struct{ err error }

func (w stubWaiter) Wait() error { return w.err }

type fakeIMAPClient struct {
	uids         []imap.UID
	bodies       map[imap.UID][]byte
	internalDate map[imap.UID]time.Time
	uidNext      imap.UID

	loginErr  error
	selectErr error
	searchErr error
	fetchErr  error

	searchedSince imap.UID
	logoutCalls   int
	closeCalls    int
}

func (f *fakeIMAPClient) Login(username, password string) commandWaiter {
	return stubWaiter{err: f.loginErr}
}

func (f *fakeIMAPClient) Logout() commandWaiter {
	f.logoutCalls++
	return stubWaiter{}
}

func (f *fakeIMAPClient) Close() error {
	f.closeCalls++
	return nil
}

func (f *fakeIMAPClient) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return fakeSelect{data: &imap.SelectData{UIDNext: f.uidNext}, err: f.selectErr}
}

func (f *fakeIMAPClient) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	if len(criteria.UID) == 1 && len(criteria.UID[0]) == 1 {
		f.searchedSince = criteria.UID[0][0].Start
	}
	var matched []imap.UID
	for _, uid := range f.uids {
		if uid >= f.searchedSince {
			matched = append(matched, uid)
		}
	}
	data := &imap.SearchData{}
	data.All = imap.UIDSetNum(matched...)
	return fakeSearch{data: data, err: f.searchErr}
}

func (f *fakeIMAPClient) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	uidSet, _ := numSet.(imap.UIDSet)
	var buffers []*imapclient.FetchMessageBuffer
	for _, uid := range f.uids {
		if !uidSet.Contains(uid) {
			continue
		}
		buffers = append(buffers, &imapclient.FetchMessageBuffer{
			UID:          uid,
			InternalDate: f.internalDate[uid],
			BodySection: []imapclient.FetchBodySectionBuffer{
				{Section: &imap.FetchItemBodySection{}, Bytes: f.bodies[uid]},
			},
		})
	}
	return fakeFetch{buffers: buffers, err: f.fetchErr}
}

type fakeSelect struct {
	data *imap.SelectData
	err  error
}

func (f fakeSelect) Wait() (*imap.SelectData, error) { return f.data, f.err }

type fakeSearch struct {
	data *imap.SearchData
	err  error
}

func (f fakeSearch) Wait() (*imap.SearchData, error) { return f.data, f.err }

type fakeFetch struct {
	buffers []*imapclient.FetchMessageBuffer
	err     error
}

func (f fakeFetch) Collect() ([]*imapclient.FetchMessageBuffer, error) { return f.buffers, f.err }
func (f fakeFetch) Close() error                                       { return f.err }

func testAccount() Account {
	return Account{Host: "mail.example", Security: "imaps", Username: "agent", Password: "secret", Folder: "INBOX"}
}

func dialerFor(client *fakeIMAPClient, opts ...IMAPDialerOption) *IMAPDialer {
	opts = append(opts, withIMAPClientFactory(func(Account) (imapClient, error) { return client, nil }))
	return NewIMAPDialer(opts...)
}

func TestIMAPSessionFetchSince(t *testing.T) {
	client := &fakeIMAPClient{
		uids:    []imap.UID{11, 12, 13},
		bodies:  map[imap.UID][]byte{11: []byte("a"), 12: []byte("b"), 13: []byte("c")},
		uidNext: 14,
		internalDate: map[imap.UID]time.Time{
			12: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	}
	now := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	d := dialerFor(client, WithIMAPClock(func() time.Time { return now }))

	sess, err := d.Dial(context.Background(), testAccount())
	require.NoError(t, err)
	defer sess.Close()

	status, err := sess.Select("INBOX")
	require.NoError(t, err)
	require.Equal(t, uint32(13), status.HighWaterMark)

	msgs, err := sess.FetchSince(context.Background(), 11)
	require.NoError(t, err)
	require.Equal(t, imap.UID(12), client.searchedSince)
	require.Len(t, msgs, 2)
	require.Equal(t, uint32(12), msgs[0].UID)
	require.Equal(t, uint32(13), msgs[1].UID)
	require.Equal(t, []byte("b"), msgs[0].Raw)
	require.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), msgs[0].ReceivedAt)
	require.Equal(t, now, msgs[1].ReceivedAt, "missing internal date falls back to clock")
}

func TestIMAPSessionFetchSinceEmpty(t *testing.T) {
	client := &fakeIMAPClient{uidNext: 1}
	d := dialerFor(client)
	sess, err := d.Dial(context.Background(), testAccount())
	require.NoError(t, err)
	defer sess.Close()

	msgs, err := sess.FetchSince(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestIMAPDialAuthError(t *testing.T) {
	client := &fakeIMAPClient{loginErr: errors.New("bad creds")}
	d := dialerFor(client)
	_, err := d.Dial(context.Background(), testAccount())
	require.ErrorContains(t, err, "imap auth")
	require.Equal(t, 1, client.closeCalls, "client released on auth failure")
}

func TestIMAPSessionSelectError(t *testing.T) {
	client := &fakeIMAPClient{selectErr: errors.New("no such folder")}
	d := dialerFor(client)
	sess, err := d.Dial(context.Background(), testAccount())
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Select("Archive")
	require.ErrorContains(t, err, "imap select Archive")
}

func TestIMAPSessionCloseIsIdempotent(t *testing.T) {
	client := &fakeIMAPClient{uidNext: 1}
	d := dialerFor(client)
	sess, err := d.Dial(context.Background(), testAccount())
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	require.Equal(t, 1, client.logoutCalls)
	require.Equal(t, 1, client.closeCalls)
}

func TestIMAPAccountValidation(t *testing.T) {
	d := NewIMAPDialer()
	cases := []Account{
		{Username: "u", Password: "p"},
		{Host: "h", Password: "p"},
		{Host: "h", Username: "u"},
	}
	for _, acc := range cases {
		if _, err := d.Dial(context.Background(), acc); err == nil {
			t.Fatalf("expected validation error for account %+v", acc)
		}
	}
}
