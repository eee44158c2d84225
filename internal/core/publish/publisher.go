package publish

import (
	"sync"
	"time"

	"github.com/rs/xid"

	"autoreg/internal/core/attempt"
)

// subscriberBuffer bounds how many non-terminal events a slow subscriber can
// fall behind by before the publisher starts dropping its oldest queued
// event (spec.md §4.6 publishing contract).
const subscriberBuffer = 64

// Publisher fans out Events, in publish order, to any number of
// subscribers. A slow subscriber never blocks the engine: once its buffer
// is full the publisher drops the oldest queued event, except KindDone
// which is never dropped (spec.md §4.6, P7).
type Publisher struct {
	mu    sync.Mutex
	subs  map[int]chan Event
	next  int
	runID string

	Now func() time.Time
}

// NewPublisher constructs an empty Publisher for one run.
func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[int]chan Event)}
}

func (p *Publisher) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Subscribe registers a new subscriber and returns its event channel and an
// Unsubscribe func. The channel is closed on Unsubscribe.
func (p *Publisher) Subscribe() (<-chan Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.next
	p.next++
	ch := make(chan Event, subscriberBuffer)
	p.subs[id] = ch

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if existing, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(existing)
		}
	}
}

// SetRunID tags every subsequently published event with runID, until the
// next call. The engine calls this once per Start, before spawning the
// control loop — there is at most one active run at a time (I3), so a
// single mutable field is sufficient rather than threading a run ID through
// every publish call site.
func (p *Publisher) SetRunID(runID string) {
	p.mu.Lock()
	p.runID = runID
	p.mu.Unlock()
}

// publish stamps and delivers e to every current subscriber.
func (p *Publisher) publish(e Event) {
	e.ID = xid.New().String()
	e.Timestamp = p.now().Unix()

	p.mu.Lock()
	e.RunID = p.runID
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		deliver(ch, e)
	}
}

// deliver sends e on ch, dropping the oldest buffered event to make room
// rather than blocking — except for KindDone, which retries until the
// subscriber drains a slot so the terminal event is never silently lost.
func deliver(ch chan Event, e Event) {
	if e.Kind == KindDone {
		for {
			select {
			case ch <- e:
				return
			default:
				select {
				case <-ch:
				default:
				}
			}
		}
	}
	select {
	case ch <- e:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- e:
		default:
		}
	}
}

// Log emits a KindLog event.
func (p *Publisher) Log(level Level, message string) {
	p.publish(Event{Kind: KindLog, Level: level, Message: message})
}

// State emits a KindState event marking a phase transition.
func (p *Publisher) State(phase string) {
	p.publish(Event{Kind: KindState, Phase: phase})
}

// Countdown emits a KindCountdown event with seconds remaining until fire.
func (p *Publisher) Countdown(remaining time.Duration) {
	p.publish(Event{Kind: KindCountdown, CountdownSeconds: remaining.Seconds()})
}

// Calibration emits a KindCalibration event with the latest calibration
// result.
func (p *Publisher) Calibration(c CalibrationPayload) {
	p.publish(Event{Kind: KindCalibration, Calibration: &c})
}

// CRNUpdate emits a KindCRNUpdate event with the cumulative per-CRN map.
// Implements attempt.Emitter so the attempt loop can publish directly.
func (p *Publisher) CRNUpdate(per map[string]attempt.CRNResult) {
	p.publish(Event{Kind: KindCRNUpdate, PerCRN: per})
}

// Done emits the terminal KindDone event with the final per-CRN map.
// Implements attempt.Emitter; this event is never dropped (P7).
func (p *Publisher) Done(per map[string]attempt.CRNResult) {
	p.publish(Event{Kind: KindDone, PerCRN: per})
}
