package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	applogger "FinCast/pkg/logger"
)

var (
	// ErrPublisherFull is returned when the event buffer cannot take more events.
	ErrPublisherFull   = errors.New("event publisher buffer full")
	ErrPublisherClosed = errors.New("event publisher closed")
)

type keyedProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaEventPublisher buffers events and writes them to Kafka from a single
// background goroutine, keyed by symbol.
type KafkaEventPublisher struct {
	producer keyedProducer
	topic    string
	queue    chan models.Event
	l        *applogger.Logger
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewKafkaEventPublisher(producer keyedProducer, topic string, buffer int, l *applogger.Logger) *KafkaEventPublisher {
	if buffer <= 0 {
		buffer = 1024
	}
	p := &KafkaEventPublisher{
		producer: producer,
		topic:    topic,
		queue:    make(chan models.Event, buffer),
		l:        l.Component("event-publisher"),
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

// Publish enqueues ev without waiting for Kafka.
func (p *KafkaEventPublisher) Publish(_ context.Context, ev models.Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.queue <- ev:
		return nil
	default:
		return ErrPublisherFull
	}
}

func (p *KafkaEventPublisher) loop() {
	defer p.wg.Done()
	for ev := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := p.producer.Publish(ctx, p.topic, []byte(ev.Symbol), ev); err != nil {
			p.l.Warn("event publish failed",
				applogger.String("type", ev.Type),
				applogger.String("symbol", ev.Symbol),
				applogger.Error(err),
			)
		}
		cancel()
	}
}

// Close drains queued events, then closes the producer.
func (p *KafkaEventPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	return p.producer.Close()
}

// NopEventPublisher discards events. Used when Kafka is disabled.
type NopEventPublisher struct{}

func (NopEventPublisher) Publish(context.Context, models.Event) error { return nil }

func (NopEventPublisher) Close() error { return nil }

var (
	_ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)
	_ domrepo.EventPublisher = NopEventPublisher{}
)
