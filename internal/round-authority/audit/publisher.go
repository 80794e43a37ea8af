package audit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/fastround-platform/internal/shared/config"
	"github.com/radieske/fastround-platform/internal/shared/kafka"
	"github.com/radieske/fastround-platform/pkg/contracts/events"
)

const (
	defaultQueueSize = 1024
	writeTimeout     = 5 * time.Second
)

// Topics nomeia os tópicos de auditoria
type Topics struct {
	BetPlaced       string
	BetRejected     string
	RoundSettled    string
	RoundSettledDLQ string
}

// Hooks para métricas; campos nil são ignorados
type Hooks struct {
	OnPublished func(topic string)
	OnFailed    func(topic string)
	OnDropped   func(topic string)
}

type item struct {
	topic   string
	key     string
	payload any
}

// Publisher publica os eventos de auditoria no Kafka sem bloquear as mesas.
// Os eventos entram numa fila e um único worker (Run) os escreve.
type Publisher struct {
	topics  Topics
	writers map[string]kafka.MessageWriter
	queue   chan item
	hooks   Hooks
	log     *zap.Logger
}

// New recebe um writer por tópico; o DLQ recebe round_settled que falhou
func New(topics Topics, writers map[string]kafka.MessageWriter, queueSize int, hooks Hooks, log *zap.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Publisher{
		topics:  topics,
		writers: writers,
		queue:   make(chan item, queueSize),
		hooks:   hooks,
		log:     log,
	}
}

// NewFromConfig monta um writer Kafka por tópico a partir da configuração
func NewFromConfig(cfg config.Config, hooks Hooks, log *zap.Logger) *Publisher {
	topics := Topics{
		BetPlaced:       cfg.TopicBetPlaced,
		BetRejected:     cfg.TopicBetRejected,
		RoundSettled:    cfg.TopicRoundSettled,
		RoundSettledDLQ: cfg.TopicRoundSettledDLQ,
	}
	writers := make(map[string]kafka.MessageWriter)
	for _, t := range []string{topics.BetPlaced, topics.BetRejected, topics.RoundSettled, topics.RoundSettledDLQ} {
		writers[t] = kafka.NewWriter(cfg.KafkaBrokers, t)
	}
	return New(topics, writers, defaultQueueSize, hooks, log)
}

func (p *Publisher) BetPlaced(e events.BetPlaced) {
	p.enqueue(p.topics.BetPlaced, e.WagerID, e)
}

func (p *Publisher) BetRejected(e events.BetRejected) {
	p.enqueue(p.topics.BetRejected, e.WagerID, e)
}

func (p *Publisher) RoundSettled(e events.RoundSettled) {
	p.enqueue(p.topics.RoundSettled, e.RoundID, e)
}

func (p *Publisher) enqueue(topic, key string, payload any) {
	select {
	case p.queue <- item{topic: topic, key: key, payload: payload}:
	default:
		if p.hooks.OnDropped != nil {
			p.hooks.OnDropped(topic)
		}
		p.log.Warn("audit queue full, dropping event", zap.String("topic", topic), zap.String("key", key))
	}
}

// Run escreve a fila até o contexto ser cancelado e então drena o que restou
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case it := <-p.queue:
			p.write(it)
		case <-ctx.Done():
			p.drain()
			return
		}
	}
}

func (p *Publisher) drain() {
	for {
		select {
		case it := <-p.queue:
			p.write(it)
		default:
			return
		}
	}
}

// write usa timeout próprio para que a drenagem no shutdown ainda publique
func (p *Publisher) write(it item) {
	w, ok := p.writers[it.topic]
	if !ok {
		p.log.Error("no writer for audit topic", zap.String("topic", it.topic))
		return
	}
	wctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := kafka.WriteJSON(wctx, w, it.topic, it.key, it.payload)
	if err == nil {
		if p.hooks.OnPublished != nil {
			p.hooks.OnPublished(it.topic)
		}
		return
	}
	if p.hooks.OnFailed != nil {
		p.hooks.OnFailed(it.topic)
	}
	p.log.Error("audit publish failed", zap.String("topic", it.topic), zap.String("key", it.key), zap.Error(err))

	if it.topic != p.topics.RoundSettled {
		return
	}
	if dlq, ok := p.writers[p.topics.RoundSettledDLQ]; ok {
		if err := kafka.WriteJSON(wctx, dlq, p.topics.RoundSettledDLQ, it.key, it.payload); err != nil {
			p.log.Error("audit dlq publish failed", zap.String("key", it.key), zap.Error(err))
		}
	}
}

// Close fecha os writers
func (p *Publisher) Close() error {
	var errs []error
	for _, w := range p.writers {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}

// Nop descarta os eventos; usado quando KAFKA_BROKERS está vazio
type Nop struct{}

func (Nop) BetPlaced(events.BetPlaced)       {}
func (Nop) BetRejected(events.BetRejected)   {}
func (Nop) RoundSettled(events.RoundSettled) {}
