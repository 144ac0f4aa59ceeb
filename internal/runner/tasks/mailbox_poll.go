package tasks

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"
)

// MailPoller is the ingest cycle the task drives.
type MailPoller interface {
	PollAll(ctx context.Context) error
}

// MailboxPollTask polls all enabled mailboxes on a fixed interval. A running
// flag guarantees cycles never overlap even when one runs long.
type MailboxPollTask struct {
	poller   MailPoller
	interval time.Duration
	timeout  time.Duration
	logger   *log.Logger
	running  atomic.Bool
}

// NewMailboxPollTask builds the poll task.
func NewMailboxPollTask(poller MailPoller, interval, timeout time.Duration) *MailboxPollTask {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &MailboxPollTask{
		poller:   poller,
		interval: interval,
		timeout:  timeout,
		logger:   log.New(log.Writer(), "[MAILBOX-POLL] ", log.LstdFlags),
	}
}

// Name returns the task name.
func (t *MailboxPollTask) Name() string {
	return "mailbox-poll"
}

// Schedule returns the cron schedule expression.
func (t *MailboxPollTask) Schedule() string {
	return fmt.Sprintf("@every %s", t.interval)
}

// Timeout returns the maximum cycle duration.
func (t *MailboxPollTask) Timeout() time.Duration {
	return t.timeout
}

// Run executes one poll cycle unless the previous one is still going.
func (t *MailboxPollTask) Run(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		t.logger.Println("previous cycle still running, skipping")
		return nil
	}
	defer t.running.Store(false)
	return t.poller.PollAll(ctx)
}
