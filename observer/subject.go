package observer

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/pingcap/errors"
	"github.com/rcrowley/go-metrics"

	"notifier/log"
)

const (
	DefaultInterval      = 3 * time.Second
	DefaultMessagePrefix = "New Message: "
	DefaultTimeFormat    = "2006-01-02 15:04:05"
)

// Formatter builds the message published on a tick.
type Formatter func(now time.Time) string

// NewFormatter returns a Formatter producing prefix followed by now in layout.
func NewFormatter(prefix, layout string) Formatter {
	return func(now time.Time) string {
		return prefix + now.Format(layout)
	}
}

// DefaultFormatter renders "New Message: 2006-01-02 15:04:05".
var DefaultFormatter = NewFormatter(DefaultMessagePrefix, DefaultTimeFormat)

type Option func(*MessageSubject)

func WithInterval(interval time.Duration) Option {
	return func(s *MessageSubject) { s.interval = interval }
}

func WithFormatter(format Formatter) Option {
	return func(s *MessageSubject) { s.format = format }
}

// WithNotifyOnStart makes the loop publish once as soon as it starts,
// instead of waiting for the first interval to elapse.
func WithNotifyOnStart(notify bool) Option {
	return func(s *MessageSubject) { s.notifyOnStart = notify }
}

func WithMessage(message string) Option {
	return func(s *MessageSubject) { s.message = message }
}

func WithRegistry(r metrics.Registry) Option {
	return func(s *MessageSubject) { s.registry = r }
}

var _ Subject = (*MessageSubject)(nil)

// MessageSubject is a Subject whose message is refreshed by a periodic loop.
type MessageSubject struct {
	mu        sync.RWMutex
	message   string
	observers []Observer

	interval      time.Duration
	format        Formatter
	notifyOnStart bool
	registry      metrics.Registry
	metrics       *subjectMetrics

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMessageSubject creates a subject. The loop is not running until Start.
func NewMessageSubject(opts ...Option) (*MessageSubject, error) {
	s := &MessageSubject{
		interval: DefaultInterval,
		format:   DefaultFormatter,
		registry: metrics.DefaultRegistry,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if s.format == nil {
		s.format = DefaultFormatter
	}
	s.metrics = newSubjectMetrics(s.registry)
	return s, nil
}

func (s *MessageSubject) Attach(observer Observer) {
	if observer == nil {
		log.Log.Warnf("ignore attaching nil observer")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
	s.metrics.observers.Update(int64(len(s.observers)))
}

func (s *MessageSubject) UnAttach(observer Observer) {
	if observer == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.observers {
		if sameObserver(o, observer) {
			last := len(s.observers) - 1
			copy(s.observers[i:], s.observers[i+1:])
			s.observers[last] = nil
			s.observers = s.observers[:last]
			break
		}
	}
	s.metrics.observers.Update(int64(len(s.observers)))
}

// Observers returns a copy of the attached observers in attach order.
func (s *MessageSubject) Observers() []Observer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	return observers
}

// Notify delivers to a snapshot of the observers taken on entry, with no
// lock held, so observers may attach, detach or set the message from Update.
// A panicking observer is logged and skipped.
func (s *MessageSubject) Notify() {
	observers := s.Observers()
	for _, o := range observers {
		if err := s.deliver(o); err != nil {
			s.metrics.callbackFailures.Inc(1)
			log.Log.Errorw("notify observer error",
				"observer", fmt.Sprintf("%T", o),
				"err", err)
			continue
		}
		s.metrics.notifyEps.Mark(1)
	}
}

func (s *MessageSubject) deliver(o Observer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Annotatef(ErrObserverCallbackFailed, "panic: %v", r)
		}
	}()
	o.Update(s)
	return nil
}

func (s *MessageSubject) Message() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.message
}

func (s *MessageSubject) SetMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Start runs the notify loop until ctx is done or Stop is called.
// A subject whose loop has ended may be started again.
func (s *MessageSubject) Start(ctx context.Context) error {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()

	if s.done != nil {
		select {
		case <-s.done:
		default:
			return ErrAlreadyStarted
		}
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	return nil
}

// Stop cancels the loop and waits for it to exit. It must not be called
// from inside Update.
func (s *MessageSubject) Stop() {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()

	if s.done == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

// Done is closed when the running loop exits. It returns nil if the loop
// was never started or has been stopped.
func (s *MessageSubject) Done() <-chan struct{} {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	return s.done
}

func (s *MessageSubject) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Log.Infof("subject loop started, interval %s", s.interval)
	if s.notifyOnStart {
		s.tick(time.Now())
	}
	for {
		select {
		case <-ctx.Done():
			log.Log.Infof("subject loop exit, %v", ctx.Err())
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

func (s *MessageSubject) tick(now time.Time) {
	s.metrics.tickEps.Mark(1)
	s.SetMessage(s.format(now))
	s.Notify()
}

// sameObserver reports whether a and b are equal without panicking on
// observers whose dynamic type, or a value nested in it, is not comparable.
// Such observers are never equal.
func sameObserver(a, b Observer) (same bool) {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			same = false
		}
	}()
	return a == b
}
