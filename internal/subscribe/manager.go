// Package subscribe keeps registered live queries current.
//
// Each client owns one live channel. Subscriptions are re-evaluated
// when the dataset advances and pushed over the channel only when the
// result actually changed. Recomputations fan out over a worker pool;
// advances arriving mid-recomputation are latched so a burst costs one
// extra pass, not one per advance.
package subscribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/leapstack-labs/livegate/internal/advance"
	"github.com/leapstack-labs/livegate/internal/paginate"
	"github.com/leapstack-labs/livegate/internal/validate"
)

// Options tune the manager.
type Options struct {
	PoolSize      int
	ChannelBuffer int
	SendTimeout   time.Duration
}

// Manager owns live channels and their subscriptions.
type Manager struct {
	validator *validate.Validator
	resolver  *paginate.Resolver
	bus       *advance.Bus
	pool      *ants.Pool
	opts      Options
	logger    *slog.Logger

	mu       sync.Mutex
	channels map[string]*Channel
	subs     map[string]*Subscription

	ctx context.Context
}

// NewManager creates a subscription manager.
func NewManager(v *validate.Validator, r *paginate.Resolver, bus *advance.Bus, opts Options, logger *slog.Logger) (*Manager, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 16
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := ants.NewPool(opts.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &Manager{
		validator: v,
		resolver:  r,
		bus:       bus,
		pool:      pool,
		opts:      opts,
		logger:    logger,
		channels:  map[string]*Channel{},
		subs:      map[string]*Subscription{},
		ctx:       context.Background(),
	}, nil
}

// Run consumes dataset advances until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	m.ctx = ctx
	listener := m.bus.Subscribe()
	defer listener.Close()
	defer m.pool.Release()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case adv := <-listener.C():
			m.onAdvance(adv)
		}
	}
}

// AttachChannel opens the live channel for a client. An existing
// channel for the same client is closed and replaced, taking its
// subscriptions with it.
func (m *Manager) AttachChannel(clientID string) *Channel {
	ch := newChannel(clientID, m.opts.ChannelBuffer, m.opts.SendTimeout)

	m.mu.Lock()
	old := m.channels[clientID]
	m.channels[clientID] = ch
	m.mu.Unlock()

	if old != nil {
		m.closeChannel(old)
	}
	m.logger.Debug("channel attached", "client", clientID)
	return ch
}

// DetachChannel closes the client's channel if it is still the given
// one. Subscriptions registered on it become closed.
func (m *Manager) DetachChannel(ch *Channel) {
	m.mu.Lock()
	if m.channels[ch.clientID] == ch {
		delete(m.channels, ch.clientID)
	}
	m.mu.Unlock()
	m.closeChannel(ch)
}

// Subscribe registers a live query on the client's channel, computes
// the first page, and pushes it immediately. The subscription is
// registered before the first page is computed so an advance landing
// mid-computation is latched instead of lost.
func (m *Manager) Subscribe(ctx context.Context, clientID string, req paginate.Request) (*Subscription, error) {
	sub := &Subscription{
		id:      uuid.NewString(),
		request: req,
		state:   StateRecomputing,
	}

	m.mu.Lock()
	ch, ok := m.channels[clientID]
	if ok {
		sub.channel = ch
		m.subs[sub.id] = sub
	}
	m.mu.Unlock()
	if !ok {
		return nil, &ChannelDisconnectedError{ClientID: clientID}
	}

	page, err := m.resolver.Resolve(ctx, req)
	if err != nil {
		m.drop(sub)
		return nil, err
	}
	sub.swapFingerprint(fingerprintPage(page))
	if err := ch.send(Push{SubscriptionID: sub.id, Page: page}); err != nil {
		m.drop(sub)
		return nil, err
	}

	if sub.settle() {
		if err := m.pool.Submit(func() { m.recompute(sub) }); err != nil {
			m.logger.Warn("failed to submit recomputation", "subscription", sub.id, "error", err)
			sub.settle()
		}
	}

	m.logger.Info("subscription registered", "client", clientID, "subscription", sub.id)
	return sub, nil
}

// drop removes a subscription whose registration did not complete.
func (m *Manager) drop(sub *Subscription) {
	m.mu.Lock()
	delete(m.subs, sub.id)
	m.mu.Unlock()
	sub.close()
}

// Unsubscribe removes a subscription owned by the client.
func (m *Manager) Unsubscribe(clientID, subID string) error {
	m.mu.Lock()
	sub, ok := m.subs[subID]
	if ok && sub.ClientID() == clientID {
		delete(m.subs, subID)
	}
	m.mu.Unlock()

	if !ok || sub.ClientID() != clientID {
		return fmt.Errorf("unknown subscription %q", subID)
	}
	sub.close()
	m.logger.Info("subscription removed", "client", clientID, "subscription", subID)
	return nil
}

// Subscriptions returns the number of live subscriptions.
func (m *Manager) Subscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Manager) onAdvance(adv advance.Advance) {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		if !sub.markDirty(adv.Seq) {
			continue
		}
		sub := sub
		if err := m.pool.Submit(func() { m.recompute(sub) }); err != nil {
			m.logger.Warn("failed to submit recomputation", "subscription", sub.id, "error", err)
			sub.settle()
		}
	}
}

// recompute re-evaluates a subscription, looping while advances were
// latched during the pass. The result is pushed only when its
// fingerprint changed, and discarded if the channel closed mid-flight.
func (m *Manager) recompute(sub *Subscription) {
	for {
		seq := sub.currentSeq()
		page, err := m.evaluate(sub)
		switch {
		case err == nil:
			if sub.swapFingerprint(fingerprintPage(page)) {
				if err := sub.channel.send(Push{SubscriptionID: sub.id, Seq: seq, Page: page}); err != nil {
					var cde *ChannelDisconnectedError
					if errors.As(err, &cde) {
						m.DetachChannel(sub.channel)
						return
					}
				}
			}
		case errors.Is(err, context.Canceled):
			return
		default:
			m.logger.Warn("recomputation failed", "subscription", sub.id, "error", err)
		}

		if !sub.settle() {
			return
		}
	}
}

func (m *Manager) evaluate(sub *Subscription) (*paginate.Page, error) {
	if verdict := m.validator.Validate(sub.request.Query); !verdict.OK {
		return nil, fmt.Errorf("query no longer valid: %s", verdict.Reason)
	}
	return m.resolver.Resolve(m.ctx, sub.request)
}

// closeChannel closes a channel and every subscription registered on
// it.
func (m *Manager) closeChannel(ch *Channel) {
	ch.close()

	m.mu.Lock()
	for id, sub := range m.subs {
		if sub.channel == ch {
			sub.close()
			delete(m.subs, id)
		}
	}
	m.mu.Unlock()
	m.logger.Debug("channel closed", "client", ch.clientID)
}
