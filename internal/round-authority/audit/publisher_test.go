package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/fastround-platform/internal/round-authority/rounds"
	sharedkafka "github.com/radieske/fastround-platform/internal/shared/kafka"
	"github.com/radieske/fastround-platform/pkg/contracts/events"
	"github.com/radieske/fastround-platform/pkg/contracts/topics"
)

var (
	_ rounds.Auditor = (*Publisher)(nil)
	_ rounds.Auditor = Nop{}
)

type memWriter struct {
	mu     sync.Mutex
	fail   bool
	msgs   []kafka.Message
	closed bool
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("broker down")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *memWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

var testTopics = Topics{
	BetPlaced:       topics.BetPlaced,
	BetRejected:     topics.BetRejected,
	RoundSettled:    topics.RoundSettled,
	RoundSettledDLQ: topics.RoundSettledDLQ,
}

func newWriters() (map[string]sharedkafka.MessageWriter, map[string]*memWriter) {
	mem := map[string]*memWriter{}
	out := map[string]sharedkafka.MessageWriter{}
	for _, t := range []string{topics.BetPlaced, topics.BetRejected, topics.RoundSettled, topics.RoundSettledDLQ} {
		mem[t] = &memWriter{}
		out[t] = mem[t]
	}
	return out, mem
}

func TestPublisher_WritesKeyedEvents(t *testing.T) {
	writers, mem := newWriters()
	var published []string
	var mu sync.Mutex
	p := New(testTopics, writers, 8, Hooks{OnPublished: func(topic string) {
		mu.Lock()
		published = append(published, topic)
		mu.Unlock()
	}}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	p.BetPlaced(events.BetPlaced{WagerID: "w1", Game: "wingo", Amount: decimal.NewFromInt(10)})
	p.BetRejected(events.BetRejected{WagerID: "w2", Reason: rounds.ReasonWindowClosed})
	p.RoundSettled(events.RoundSettled{RoundID: "wingo-30s-20261016-000001", Bets: 1})

	require.Eventually(t, func() bool {
		return mem[topics.BetPlaced].count() == 1 && mem[topics.BetRejected].count() == 1 && mem[topics.RoundSettled].count() == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	msg := mem[topics.BetPlaced].msgs[0]
	assert.Equal(t, "w1", string(msg.Key))
	var placed events.BetPlaced
	require.NoError(t, json.Unmarshal(msg.Value, &placed))
	assert.Equal(t, "wingo", placed.Game)
	assert.Equal(t, "wingo-30s-20261016-000001", string(mem[topics.RoundSettled].msgs[0].Key))
	assert.Zero(t, mem[topics.RoundSettledDLQ].count())
	assert.Len(t, published, 3)

	require.NoError(t, p.Close())
	assert.True(t, mem[topics.BetPlaced].closed)
}

func TestPublisher_FailedSettlementGoesToDLQ(t *testing.T) {
	writers, mem := newWriters()
	mem[topics.RoundSettled].fail = true
	mem[topics.BetPlaced].fail = true
	p := New(testTopics, writers, 8, Hooks{}, zap.NewNop())

	p.RoundSettled(events.RoundSettled{RoundID: "r1"})
	p.BetPlaced(events.BetPlaced{WagerID: "w1"})

	// contexto já cancelado: Run só drena a fila
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	require.Equal(t, 1, mem[topics.RoundSettledDLQ].count())
	assert.Equal(t, "r1", string(mem[topics.RoundSettledDLQ].msgs[0].Key))
}

func TestPublisher_DropsWhenQueueFull(t *testing.T) {
	writers, _ := newWriters()
	dropped := 0
	p := New(testTopics, writers, 1, Hooks{OnDropped: func(string) { dropped++ }}, zap.NewNop())

	p.BetPlaced(events.BetPlaced{WagerID: "w1"})
	p.BetPlaced(events.BetPlaced{WagerID: "w2"})
	assert.Equal(t, 1, dropped)
}
