package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/cloudnine/checkin-server-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	Channel string
	Events  chan Event
	Done    chan struct{}
}

// Broker fans redis pub/sub messages out to connected SSE clients. One redis
// subscription is held per channel with at least one client.
type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // channel -> set of clients
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SubscribeHotel attaches a client to a hotel's event stream.
func (b *Broker) SubscribeHotel(hotelID string) *Client {
	return b.subscribe(redisclient.HotelChannel(hotelID))
}

// SubscribeAdmin attaches a client to the all-hotels admin stream.
func (b *Broker) SubscribeAdmin() *Client {
	return b.subscribe(redisclient.AdminChannel())
}

func (b *Broker) subscribe(channel string) *Client {
	client := &Client{
		Channel: channel,
		Events:  make(chan Event, 100),
		Done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[channel] == nil {
		b.clients[channel] = make(map[*Client]bool)
		go b.subscribeToRedis(channel)
	}
	b.clients[channel][client] = true
	clientCount := len(b.clients[channel])
	b.mu.Unlock()

	log.Info().
		Str("channel", channel).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.Channel]; ok {
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.Channel)
		}

		log.Info().
			Str("channel", client.Channel).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

func (b *Broker) subscribeToRedis(channel string) {
	pubsub := b.redis.Subscribe(b.ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				// Events are published as {"type":...,...} envelopes; pass the
				// whole payload through when it doesn't parse as one.
				event = Event{Type: "message", Data: json.RawMessage(msg.Payload)}
			}
			if event.Data == nil {
				event.Data = json.RawMessage(msg.Payload)
			}

			b.broadcast(channel, event)
		}
	}
}

func (b *Broker) broadcast(channel string, event Event) {
	b.mu.RLock()
	clients := b.clients[channel]
	b.mu.RUnlock()

	for client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("channel", channel).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
