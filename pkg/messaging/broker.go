package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentfabric/coordinator/pkg/clock"
	"github.com/agentfabric/coordinator/pkg/logger"
	"github.com/google/uuid"
)

// Broker routes Envelopes between subscribed agents. Send is a non-blocking
// enqueue (spec.md §5); a full internal queue fails fast rather than
// blocking the caller, matching the "non-durable, bounded-channel,
// drop/report-on-full" choice recorded in SPEC_FULL.md.
type Broker struct {
	subscribers   map[AgentID]chan *Envelope
	subscribersMu sync.RWMutex

	queue      chan *Envelope
	bufferSize int

	metrics   BrokerMetrics
	metricsMu sync.RWMutex

	clock  clock.Clock
	logger *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBroker creates a broker whose internal routing queue holds at most
// bufferSize pending envelopes.
func NewBroker(bufferSize int) *Broker {
	return NewBrokerWithClock(bufferSize, clock.NewRealClock())
}

// NewBrokerWithClock is NewBroker with an injectable clock, for
// deterministic latency-metric tests.
func NewBrokerWithClock(bufferSize int, clk clock.Clock) *Broker {
	ctx, cancel := context.WithCancel(context.Background())

	b := &Broker{
		subscribers: make(map[AgentID]chan *Envelope),
		queue:       make(chan *Envelope, bufferSize),
		bufferSize:  bufferSize,
		clock:       clk,
		logger:      logger.GetLogger().WithPrefix("messaging"),
		ctx:         ctx,
		cancel:      cancel,
	}

	b.wg.Add(1)
	go b.route()

	return b
}

// Subscribe registers an agent to receive envelopes on a bounded channel of
// its own. Receive is blocking on this channel per spec.md §5.
func (b *Broker) Subscribe(id AgentID, bufferSize int) (<-chan *Envelope, error) {
	b.subscribersMu.Lock()
	defer b.subscribersMu.Unlock()

	if _, exists := b.subscribers[id]; exists {
		return nil, fmt.Errorf("agent %s is already subscribed", id)
	}

	ch := make(chan *Envelope, bufferSize)
	b.subscribers[id] = ch
	b.logger.Info("agent subscribed (agent_id: %s)", id)

	return ch, nil
}

// Unsubscribe removes an agent from the broker and closes its channel.
func (b *Broker) Unsubscribe(id AgentID) error {
	b.subscribersMu.Lock()
	defer b.subscribersMu.Unlock()

	ch, exists := b.subscribers[id]
	if !exists {
		return fmt.Errorf("agent %s is not subscribed", id)
	}

	close(ch)
	delete(b.subscribers, id)
	b.logger.Info("agent unsubscribed (agent_id: %s)", id)

	return nil
}

// Send enqueues an envelope for routing to its recipients. It does not
// block: a full internal queue returns an error immediately.
func (b *Broker) Send(env *Envelope) error {
	select {
	case <-b.ctx.Done():
		return fmt.Errorf("broker is shutting down")
	default:
	}

	if env.ID == "" {
		env.ID = uuid.New().String()
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = b.clock.Now()
	}

	select {
	case b.queue <- env:
		return nil
	case <-b.ctx.Done():
		return fmt.Errorf("broker is shutting down")
	default:
		b.recordDelivery(false, 0)
		return fmt.Errorf("broker queue is full")
	}
}

// Broadcast sends env to every currently subscribed agent.
func (b *Broker) Broadcast(env *Envelope) error {
	b.subscribersMu.RLock()
	recipients := make([]AgentID, 0, len(b.subscribers))
	for id := range b.subscribers {
		recipients = append(recipients, id)
	}
	b.subscribersMu.RUnlock()

	env.Recipients = recipients
	return b.Send(env)
}

func (b *Broker) route() {
	defer b.wg.Done()

	for {
		select {
		case env := <-b.queue:
			b.deliver(env)
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Broker) deliver(env *Envelope) {
	start := b.clock.Now()

	b.subscribersMu.RLock()
	defer b.subscribersMu.RUnlock()

	for _, recipient := range env.Recipients {
		ch, exists := b.subscribers[recipient]
		if !exists {
			b.logger.Warn("no subscriber for envelope (recipient: %s, envelope_id: %s)", recipient, env.ID)
			b.recordDelivery(false, b.clock.Since(start))
			continue
		}

		select {
		case ch <- env:
			b.recordDelivery(true, b.clock.Since(start))
		case <-b.clock.After(5 * time.Second):
			b.logger.Error("envelope delivery timeout (recipient: %s, envelope_id: %s)", recipient, env.ID)
			b.recordDelivery(false, b.clock.Since(start))
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Broker) recordDelivery(success bool, latency time.Duration) {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()

	b.metrics.TotalEnvelopes++
	b.metrics.LastActivity = b.clock.Now()

	if success {
		b.metrics.SuccessfulDelivery++
		if b.metrics.AverageLatency == 0 {
			b.metrics.AverageLatency = latency
		} else {
			b.metrics.AverageLatency = (b.metrics.AverageLatency + latency) / 2
		}
	} else {
		b.metrics.FailedDelivery++
	}
}

// Metrics returns a point-in-time snapshot of broker throughput.
func (b *Broker) Metrics() BrokerMetrics {
	b.metricsMu.RLock()
	defer b.metricsMu.RUnlock()

	m := b.metrics
	b.subscribersMu.RLock()
	m.ActiveSubscribers = len(b.subscribers)
	b.subscribersMu.RUnlock()
	return m
}

// Close shuts the broker down, closing all subscriber channels.
func (b *Broker) Close() {
	b.cancel()

	b.subscribersMu.Lock()
	for id, ch := range b.subscribers {
		close(ch)
		b.logger.Debug("closed subscriber channel (agent_id: %s)", id)
	}
	b.subscribers = make(map[AgentID]chan *Envelope)
	b.subscribersMu.Unlock()

	b.wg.Wait()
}
