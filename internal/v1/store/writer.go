package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/peercall/broker/internal/v1/logging"
	"github.com/peercall/broker/internal/v1/metrics"
)

// ChatPersister is the slice of RoomStore the writer needs. Split out so
// tests can drive the writer against a fake.
type ChatPersister interface {
	AppendChat(ctx context.Context, roomID string, msg ChatMessage) error
	AddReaction(ctx context.Context, roomID, messageID, emoji, userID string) error
}

type intentKind int

const (
	intentChat intentKind = iota
	intentReaction
)

type persistIntent struct {
	kind      intentKind
	roomID    string
	msg       ChatMessage
	messageID string
	emoji     string
	userID    string
}

// ChatWriter decouples chat persistence from fan-out. The relay enqueues
// intents and never waits on the database; a single drainer goroutine applies
// them through a circuit breaker. When the queue is full the oldest intent is
// dropped and counted, the relay is never back-pressured.
type ChatWriter struct {
	store ChatPersister
	queue chan persistIntent
	cb    *gobreaker.CircuitBreaker

	mu     sync.Mutex // serializes the drop-oldest shuffle on a full queue
	wg     sync.WaitGroup
	closed chan struct{}

	writeTimeout time.Duration
}

// NewChatWriter starts the drainer goroutine. queueSize bounds the number of
// in-flight persistence intents.
func NewChatWriter(store ChatPersister, queueSize int) *ChatWriter {
	if queueSize <= 0 {
		queueSize = 256
	}

	st := gobreaker.Settings{
		Name:        "chat-store",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
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

	w := &ChatWriter{
		store:        store,
		queue:        make(chan persistIntent, queueSize),
		cb:           gobreaker.NewCircuitBreaker(st),
		closed:       make(chan struct{}),
		writeTimeout: 5 * time.Second,
	}

	w.wg.Add(1)
	go w.run()

	return w
}

// EnqueueChat queues a chat message for persistence.
func (w *ChatWriter) EnqueueChat(roomID string, msg ChatMessage) {
	w.enqueue(persistIntent{kind: intentChat, roomID: roomID, msg: msg})
}

// EnqueueReaction queues a reaction for persistence.
func (w *ChatWriter) EnqueueReaction(roomID, messageID, emoji, userID string) {
	w.enqueue(persistIntent{
		kind:      intentReaction,
		roomID:    roomID,
		messageID: messageID,
		emoji:     emoji,
		userID:    userID,
	})
}

func (w *ChatWriter) enqueue(it persistIntent) {
	// The mutex serializes enqueues against Close so nothing sends on a
	// closed channel, and makes the drop-oldest shuffle atomic.
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.closed:
		return
	default:
	}

	select {
	case w.queue <- it:
		metrics.ChatPersistQueueDepth.Set(float64(len(w.queue)))
		return
	default:
	}

	// Full queue: drop the oldest intent to make room for the newest.
	select {
	case <-w.queue:
		metrics.ChatPersistDropped.Inc()
		logging.Warn(context.Background(), "Chat persistence queue full, dropped oldest intent",
			zap.String("room_id", it.roomID))
	default:
	}
	select {
	case w.queue <- it:
	default:
		metrics.ChatPersistDropped.Inc()
	}
	metrics.ChatPersistQueueDepth.Set(float64(len(w.queue)))
}

func (w *ChatWriter) run() {
	defer w.wg.Done()
	for it := range w.queue {
		w.apply(it)
		metrics.ChatPersistQueueDepth.Set(float64(len(w.queue)))
	}
}

func (w *ChatWriter) apply(it persistIntent) {
	ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
	defer cancel()

	_, err := w.cb.Execute(func() (interface{}, error) {
		switch it.kind {
		case intentChat:
			return nil, w.store.AppendChat(ctx, it.roomID, it.msg)
		case intentReaction:
			return nil, w.store.AddReaction(ctx, it.roomID, it.messageID, it.emoji, it.userID)
		}
		return nil, nil
	})
	if err != nil {
		// Transient by design: chat delivery already happened on the relay
		// path, the client is never told about store failures.
		if errors.Is(err, gobreaker.ErrOpenState) {
			metrics.CircuitBreakerFailures.WithLabelValues("chat-store").Inc()
			logging.Warn(ctx, "Chat store circuit open, dropping persistence intent",
				zap.String("room_id", it.roomID))
			return
		}
		logging.Error(ctx, "Chat persistence failed",
			zap.String("room_id", it.roomID), zap.Error(err))
	}
}

// Close stops accepting intents, drains the queue, and waits for the drainer.
func (w *ChatWriter) Close() {
	w.mu.Lock()
	select {
	case <-w.closed:
		w.mu.Unlock()
		return
	default:
	}
	close(w.closed)
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
}
