package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vetclinic/portal/internal/core/domain"
	"github.com/vetclinic/portal/internal/core/ports"
)

const (
	defaultWorkers  = 8
	channelBuffer   = 256
	deliveryTimeout = 10 * time.Second
	releaseTimeout  = 2 * time.Second
)

// Releaser forgets the de-dup claim of a message that could not be delivered.
type Releaser interface {
	Release(ctx context.Context, conversationID, clientMessageID string) error
}

// Observer receives delivery outcomes; the api layer turns them into metrics.
type Observer interface {
	Delivered(conversationID string, took time.Duration)
	Failed(conversationID string, err error)
	QueueDepth(worker string, depth int)
}

type nopObserver struct{}

func (nopObserver) Delivered(string, time.Duration) {}
func (nopObserver) Failed(string, error)            {}
func (nopObserver) QueueDepth(string, int)          {}

// Dispatcher relays outbound chat messages to the clinic API using a fixed
// set of workers sharded by conversation id, so messages of one conversation
// are posted in the order they were accepted.
type Dispatcher struct {
	workers  []chan domain.OutboundMessage
	poster   ports.ChatPoster
	releaser Releaser
	observer Observer
	log      zerolog.Logger
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used. A nil releaser or observer is
// allowed.
func NewDispatcher(numWorkers int, poster ports.ChatPoster, releaser Releaser, observer Observer, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	if observer == nil {
		observer = nopObserver{}
	}
	d := &Dispatcher{
		workers:  make([]chan domain.OutboundMessage, numWorkers),
		poster:   poster,
		releaser: releaser,
		observer: observer,
		log:      log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.OutboundMessage, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Close stops accepting messages. Workers deliver what is queued and return.
// Close is idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, ch := range d.workers {
		close(ch)
	}
}

// Wait blocks until every worker has returned.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Enqueue sends a message to the worker responsible for its conversation.
// The call is non-blocking up to channelBuffer capacity. After Close it
// returns domain.ErrChatUnavailable.
func (d *Dispatcher) Enqueue(msg domain.OutboundMessage) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return domain.ErrChatUnavailable
	}
	idx := d.shardIndex(msg.ConversationID)
	d.workers[idx] <- msg
	d.observer.QueueDepth(strconv.Itoa(idx), len(d.workers[idx]))
	return nil
}

// shardIndex maps a conversation id deterministically to a worker index.
func (d *Dispatcher) shardIndex(conversationID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.OutboundMessage) {
	defer d.wg.Done()
	worker := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			d.observer.QueueDepth(worker, len(ch))
			d.deliver(ctx, id, msg)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, worker int, msg domain.OutboundMessage) {
	start := time.Now()
	postCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	if err := d.poster.PostChatMessage(postCtx, msg.Token, msg.ConversationID, msg.Text); err != nil {
		d.observer.Failed(msg.ConversationID, err)
		d.log.Error().Err(err).
			Str("conversation", msg.ConversationID).
			Str("client_message_id", msg.ClientMessageID).
			Int("worker_id", worker).
			Msg("chat delivery failed")
		d.release(ctx, msg)
		return
	}
	d.observer.Delivered(msg.ConversationID, time.Since(start))
}

// release lets the sender retry a message that never reached the clinic API.
func (d *Dispatcher) release(ctx context.Context, msg domain.OutboundMessage) {
	if d.releaser == nil || msg.ClientMessageID == "" {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := d.releaser.Release(releaseCtx, msg.ConversationID, msg.ClientMessageID); err != nil {
		d.log.Warn().Err(err).
			Str("conversation", msg.ConversationID).
			Str("client_message_id", msg.ClientMessageID).
			Msg("failed to release dedup claim")
	}
}
