package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisPublishQueue   = 64
	redisPublishTimeout = 500 * time.Millisecond
)

// RedisBroker implements EventBroker over Redis Pub/Sub so several dashboard
// instances can fan out one feed. Publish never waits on Redis: messages go
// through a bounded queue and are dropped when it is full.
type RedisBroker struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[chan SSEEvent]*redis.PubSub

	pub       chan redisMessage
	done      chan struct{}
	closeOnce sync.Once
}

type redisMessage struct {
	channel string
	data    []byte
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	b := &RedisBroker{
		rdb:  redis.NewClient(opt),
		subs: map[chan SSEEvent]*redis.PubSub{},
		pub:  make(chan redisMessage, redisPublishQueue),
		done: make(chan struct{}),
	}
	go b.publishLoop()
	return b, nil
}

// Ping checks the connection.
func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return b.rdb.Close()
}

func (b *RedisBroker) Subscribe(topic string) chan SSEEvent {
	ch := make(chan SSEEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(topic))
	// initial consume to ensure subscription
	_, _ = ps.Receive(ctx)
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt SSEEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

// Unsubscribe closes the PubSub; the forwarding goroutine then closes ch.
func (b *RedisBroker) Unsubscribe(_ string, ch chan SSEEvent) {
	b.mu.Lock()
	ps, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ok {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(topic string, evt SSEEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.pub <- redisMessage{channel: b.chanName(topic), data: data}:
	default:
	}
}

func (b *RedisBroker) publishLoop() {
	for {
		select {
		case <-b.done:
			return
		case m := <-b.pub:
			ctx, cancel := context.WithTimeout(context.Background(), redisPublishTimeout)
			_ = b.rdb.Publish(ctx, m.channel, m.data).Err()
			cancel()
		}
	}
}

func (b *RedisBroker) chanName(topic string) string { return "baechamap:" + topic }
