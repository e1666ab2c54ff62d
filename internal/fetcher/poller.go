// Package fetcher runs the background poll loop: at a fixed interval it
// asks the active service client for messages newer than the last stored
// one, persists them and publishes the batch to the UI layer.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/njavet/unichat/internal/browser"
	"github.com/njavet/unichat/internal/config"
	"github.com/njavet/unichat/internal/scraper"
	"github.com/njavet/unichat/internal/store"
)

// Batch is one poll result: the messages persisted in a single iteration.
type Batch struct {
	Service  string
	Messages []store.Message
}

// Poller polls one service client for new messages of the current target
// conversation. Per-iteration errors are logged and the loop continues;
// only a dead browser session stops it.
type Poller struct {
	client scraper.Client
	st     *store.Store
	cfg    *config.Provider
	log    *zap.Logger

	mu     sync.Mutex
	target string

	updates chan Batch
	stop    chan struct{}
	once    sync.Once
}

// New builds a poller for one client. It starts idle; nothing is polled
// until ChangeTarget sets a conversation.
func New(client scraper.Client, st *store.Store, cfg *config.Provider, log *zap.Logger) *Poller {
	return &Poller{
		client:  client,
		st:      st,
		cfg:     cfg,
		log:     log,
		updates: make(chan Batch, 16),
		stop:    make(chan struct{}),
	}
}

// Updates delivers the persisted batches. Closed when the loop exits.
func (p *Poller) Updates() <-chan Batch { return p.updates }

// ChangeTarget switches the polled conversation to the contact's linked
// chat. A nil contact idles the poller.
func (p *Poller) ChangeTarget(contact *store.Contact) error {
	if contact == nil {
		p.setTarget("")
		return nil
	}
	link, err := p.st.LinkByContact(p.client.Service(), contact.Name)
	if err != nil {
		return err
	}
	if link == nil {
		return fmt.Errorf("%w: %q", scraper.ErrNotLinked, contact.Name)
	}
	p.setTarget(link.Handle)
	return nil
}

func (p *Poller) setTarget(handle string) {
	p.mu.Lock()
	p.target = handle
	p.mu.Unlock()
}

func (p *Poller) currentTarget() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target
}

// Stop ends the loop. Safe to call more than once.
func (p *Poller) Stop() {
	p.once.Do(func() { close(p.stop) })
}

// Run is the poll loop. It blocks until the context is cancelled, Stop is
// called, or the browser session dies. The interval is re-read every
// iteration so config reloads take effect live.
func (p *Poller) Run(ctx context.Context) error {
	defer close(p.updates)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return nil
		case <-time.After(p.cfg.Get().Fetcher.PollInterval()):
		}

		target := p.currentTarget()
		if target == "" {
			continue
		}
		batch, err := p.poll(ctx, target)
		if err != nil {
			if errors.Is(err, browser.ErrSessionUnavailable) {
				p.log.Error("browser session lost, stopping poller",
					zap.String("service", p.client.Service()))
				return err
			}
			p.log.Warn("poll iteration failed",
				zap.String("service", p.client.Service()),
				zap.String("chat", target), zap.Error(err))
			continue
		}
		if len(batch.Messages) == 0 {
			continue
		}
		select {
		case p.updates <- batch:
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return nil
		}
	}
}

// poll fetches, persists and packages one iteration's worth of messages.
func (p *Poller) poll(ctx context.Context, target string) (Batch, error) {
	batch := Batch{Service: p.client.Service()}
	drafts, err := p.client.LatestMessages(ctx, target)
	if err != nil {
		return batch, err
	}
	for _, d := range drafts {
		msg, err := p.client.SaveMessage(d)
		if err != nil {
			return batch, fmt.Errorf("save message: %w", err)
		}
		batch.Messages = append(batch.Messages, *msg)
	}
	return batch, nil
}
