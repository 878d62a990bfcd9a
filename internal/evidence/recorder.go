package evidence

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xiaot623/deskdriver/internal/domain"
)

const defaultQueueSize = 1024

// subscriber receives live events for one request id.
type subscriber struct {
	requestID string
	ch        chan domain.EvidenceEvent
}

// Recorder is the evidence pipeline: producers enqueue without blocking, a
// single consumer assigns the per-request sequence, persists the event, and
// fans out to live subscribers. Overflow drops the event and counts it.
type Recorder struct {
	store   *Store
	queue   chan domain.EvidenceEvent
	dropped atomic.Uint64

	mu   sync.Mutex
	seqs map[string]uint64
	subs map[*subscriber]struct{}

	done chan struct{}
}

// NewRecorder starts the consumer goroutine.
func NewRecorder(store *Store, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	r := &Recorder{
		store: store,
		queue: make(chan domain.EvidenceEvent, queueSize),
		seqs:  map[string]uint64{},
		subs:  map[*subscriber]struct{}{},
		done:  make(chan struct{}),
	}
	go r.consume()
	return r
}

// EmitOption tweaks one emitted event.
type EmitOption func(*domain.EvidenceEvent)

// WithStep attaches the step index.
func WithStep(index int) EmitOption {
	return func(ev *domain.EvidenceEvent) { ev.StepIndex = &index }
}

// WithAttempt attaches the attempt number.
func WithAttempt(attempt int) EmitOption {
	return func(ev *domain.EvidenceEvent) { ev.Attempt = &attempt }
}

// WithArtifact attaches an artifact reference.
func WithArtifact(id string) EmitOption {
	return func(ev *domain.EvidenceEvent) { ev.ArtifactRef = id }
}

// Emit enqueues an event without ever blocking the producer. The payload is
// marshaled here so the caller can hand over live structs.
func (r *Recorder) Emit(requestID string, typ domain.EventType, payload any, opts ...EmitOption) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			log.Printf("evidence payload marshal failed for %s/%s: %v", requestID, typ, err)
		} else {
			raw = b
		}
	}
	ev := domain.EvidenceEvent{
		RequestID: requestID,
		Ts:        time.Now(),
		Type:      typ,
		Payload:   raw,
	}
	for _, opt := range opts {
		opt(&ev)
	}
	select {
	case r.queue <- ev:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of events lost to queue overflow.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Close stops the consumer after draining the queue.
func (r *Recorder) Close() {
	close(r.queue)
	<-r.done
}

func (r *Recorder) consume() {
	defer close(r.done)
	for ev := range r.queue {
		r.mu.Lock()
		seq, ok := r.seqs[ev.RequestID]
		if !ok {
			// First event for this request since startup: continue from the
			// durable log rather than restarting at 1.
			last, err := r.store.LastSeq(context.Background(), ev.RequestID)
			if err != nil {
				log.Printf("evidence seq recovery failed for %s: %v", ev.RequestID, err)
			}
			seq = last
		}
		seq++
		r.seqs[ev.RequestID] = seq
		ev.Seq = seq

		if err := r.store.AppendEvent(context.Background(), ev); err != nil {
			log.Printf("evidence persist failed for %s seq %d: %v", ev.RequestID, ev.Seq, err)
		}
		for sub := range r.subs {
			if sub.requestID != ev.RequestID {
				continue
			}
			select {
			case sub.ch <- ev:
			default:
				// A stalled subscriber loses live events; it can resume from
				// the durable log with after_seq.
			}
		}
		r.mu.Unlock()
	}
}

// Subscribe replays the durable log after the given cursor and then streams
// live events. The replay and the registration happen under the consumer's
// lock, so no event is skipped or delivered out of order across the
// transition. The returned cancel must be called to release the subscriber.
func (r *Recorder) Subscribe(ctx context.Context, requestID string, afterSeq uint64) (<-chan domain.EvidenceEvent, func(), error) {
	r.mu.Lock()
	replay, err := r.store.EventsAfter(ctx, requestID, afterSeq)
	if err != nil {
		r.mu.Unlock()
		return nil, nil, err
	}
	sub := &subscriber{
		requestID: requestID,
		ch:        make(chan domain.EvidenceEvent, 256),
	}
	r.subs[sub] = struct{}{}
	r.mu.Unlock()

	out := make(chan domain.EvidenceEvent, 64)
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, sub)
			r.mu.Unlock()
			close(stop)
		})
	}

	go func() {
		defer close(out)
		lastSeq := afterSeq
		for _, ev := range replay {
			select {
			case out <- ev:
				lastSeq = ev.Seq
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
		for {
			select {
			case ev := <-sub.ch:
				if ev.Seq <= lastSeq {
					continue
				}
				select {
				case out <- ev:
					lastSeq = ev.Seq
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}
