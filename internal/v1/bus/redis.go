package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/waustin14/StoryFill/internal/v1/ident"
	"github.com/waustin14/StoryFill/internal/v1/logging"
	"github.com/waustin14/StoryFill/internal/v1/metrics"
)

// Channel carries every room event across instances. A single channel is
// enough at this fan-in; each instance filters locally by room id.
const Channel = "storyfill:events"

// relayEnvelope wraps an Event with the publishing instance's id so the
// publisher can drop its own echoes.
type relayEnvelope struct {
	InstanceID string `json:"instance_id"`
	Event      Event  `json:"event"`
}

// Relay bridges the in-process bus across instances via Redis pub/sub.
// All calls degrade gracefully: a down Redis never blocks room commands.
type Relay struct {
	client     *redis.Client
	cb         *gobreaker.CircuitBreaker
	instanceID string

	mu  sync.Mutex
	bus *Bus

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRelay connects to Redis and verifies the connection before returning.
func NewRelay(addr, password string) (*Relay, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
		},
	}

	logging.Info(context.Background(), "connected to Redis relay", zap.String("addr", addr))
	return &Relay{
		client:     rdb,
		cb:         gobreaker.NewCircuitBreaker(st),
		instanceID: ident.NewID("instance"),
		done:       make(chan struct{}),
	}, nil
}

// attach wires the relay to a bus and starts the listener loop.
func (r *Relay) attach(b *Bus) {
	r.mu.Lock()
	r.bus = b
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.listen(ctx)
}

// publish sends the event to the shared channel. Failures are dropped;
// local subscribers already got the event.
func (r *Relay) publish(ctx context.Context, ev Event) {
	if r == nil || r.client == nil {
		return
	}
	_, err := r.cb.Execute(func() (interface{}, error) {
		data, err := json.Marshal(relayEnvelope{InstanceID: r.instanceID, Event: ev})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal relay envelope: %w", err)
		}
		return nil, r.client.Publish(ctx, Channel, data).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			logging.Warn(ctx, "Redis circuit breaker open, dropping relay publish",
				zap.String("room_id", ev.RoomID))
			return
		}
		logging.Error(ctx, "Redis relay publish failed",
			zap.String("room_id", ev.RoomID), zap.Error(err))
	}
}

// listen consumes the shared channel and re-delivers foreign events to the
// local bus. Echoes from this instance are dropped by id.
func (r *Relay) listen(ctx context.Context) {
	defer close(r.done)

	pubsub := r.client.Subscribe(ctx, Channel)
	defer pubsub.Close()

	logging.Info(ctx, "subscribed to Redis relay channel", zap.String("channel", Channel))
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				logging.Warn(ctx, "Redis relay subscription closed", zap.String("channel", Channel))
				return
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logging.Error(ctx, "failed to unmarshal relay message", zap.Error(err))
				continue
			}
			if env.InstanceID == r.instanceID {
				continue
			}
			r.mu.Lock()
			b := r.bus
			r.mu.Unlock()
			if b != nil {
				b.deliverLocal(ctx, env.Event)
			}
		}
	}
}

// Ping checks Redis connectivity for the readiness probe.
func (r *Relay) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return nil
	}
	_, err := r.cb.Execute(func() (interface{}, error) {
		return nil, r.client.Ping(ctx).Err()
	})
	if err != nil && err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
	}
	return err
}

// Close stops the listener and releases the connection.
func (r *Relay) Close() error {
	if r == nil {
		return nil
	}
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
