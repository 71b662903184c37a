package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval matches the reference cadence for delta checks.
const DefaultPollInterval = 30 * time.Second

// Poller runs one cancellable delta task per watched conversation. Each task
// owns its own ticker, so a slow poll of one phone number never blocks
// another's.
type Poller struct {
	loader   *Loader
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	tasks   map[string]*pollTask
	stopped bool
}

type pollTask struct {
	wake     chan struct{}
	cancel   context.CancelFunc
	lastPoll time.Time // guarded by Poller.mu
}

func NewPoller(loader *Loader, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		loader:   loader,
		interval: interval,
		logger:   logger,
		tasks:    map[string]*pollTask{},
	}
}

// Watch starts delta polling for a phone number. Watching an already watched
// number is a no-op.
func (p *Poller) Watch(phoneNumber string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if _, ok := p.tasks[phoneNumber]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	task := &pollTask{
		wake:   make(chan struct{}, 1),
		cancel: cancel,
	}
	p.tasks[phoneNumber] = task
	go p.run(ctx, phoneNumber, task)
}

// Unwatch cancels the task for a phone number, e.g. when the conversation is
// deselected.
func (p *Poller) Unwatch(phoneNumber string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if task, ok := p.tasks[phoneNumber]; ok {
		task.cancel()
		delete(p.tasks, phoneNumber)
	}
}

// Wake forces an immediate re-check of every watched conversation whose own
// last poll is more than one interval old. Gating is per task: a recent poll
// of one phone number never suppresses the catch-up for another.
func (p *Poller) Wake() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, task := range p.tasks {
		if time.Since(task.lastPoll) <= p.interval {
			continue
		}
		select {
		case task.wake <- struct{}{}:
		default:
		}
	}
}

// Stop cancels every task. The poller cannot be restarted.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	for phone, task := range p.tasks {
		task.cancel()
		delete(p.tasks, phone)
	}
}

// Watching reports whether a phone number currently has a poll task.
func (p *Poller) Watching(phoneNumber string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.tasks[phoneNumber]
	return ok
}

func (p *Poller) run(ctx context.Context, phoneNumber string, task *pollTask) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOne(ctx, phoneNumber, task)
		case <-task.wake:
			p.pollOne(ctx, phoneNumber, task)
		}
	}
}

func (p *Poller) pollOne(ctx context.Context, phoneNumber string, task *pollTask) {
	p.mu.Lock()
	task.lastPoll = time.Now()
	p.mu.Unlock()

	// Cold keys have no cursor to poll from.
	if _, ok := p.loader.LastSeen(phoneNumber); !ok {
		return
	}
	delta, err := p.loader.PollConversation(ctx, phoneNumber)
	if err != nil {
		p.logger.Warn().Err(err).Str("phone_number", phoneNumber).Msg("delta poll failed")
		return
	}
	if delta.HasNewData {
		p.logger.Info().
			Str("phone_number", phoneNumber).
			Int("new_calls", len(delta.NewCalls)).
			Int("new_sms", len(delta.NewSMSMessages)).
			Msg("delta poll merged new records")
	}
}
