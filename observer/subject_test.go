package observer

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// callLog records the order in which observers were updated.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type recorder struct {
	name string
	log  *callLog
}

func (r *recorder) Update(subject Subject) {
	r.log.add(r.name + ":" + subject.Message())
}

type panicker struct{}

func (panicker) Update(Subject) {
	panic("boom")
}

type funcObserver func(Subject)

func (f funcObserver) Update(subject Subject) {
	f(subject)
}

func newTestSubject(t *testing.T, opts ...Option) (*MessageSubject, metrics.Registry) {
	r := metrics.NewRegistry()
	s, err := NewMessageSubject(append([]Option{WithRegistry(r)}, opts...)...)
	require.NoError(t, err)
	return s, r
}

func TestNotifyInAttachOrder(t *testing.T) {
	s, _ := newTestSubject(t)
	calls := &callLog{}
	a := &recorder{name: "a", log: calls}
	b := &recorder{name: "b", log: calls}

	s.Attach(a)
	s.Attach(b)
	s.SetMessage("hello")
	s.Notify()

	assert.Equal(t, []string{"a:hello", "b:hello"}, calls.get())
}

func TestNotifyEachObserverOnce(t *testing.T) {
	s, r := newTestSubject(t)
	calls := &callLog{}
	var expected []string
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("o%d", i)
		s.Attach(&recorder{name: name, log: calls})
		expected = append(expected, name+":")
	}
	s.Notify()

	assert.Equal(t, expected, calls.get())
	assert.Equal(t, int64(10), metrics.GetOrRegisterMeter(notifyEpsName, r).Count())
	assert.Equal(t, int64(10), metrics.GetOrRegisterGauge(observersName, r).Value())
}

func TestUnAttachNotAttached(t *testing.T) {
	s, _ := newTestSubject(t)
	calls := &callLog{}
	a := &recorder{name: "a", log: calls}
	s.Attach(a)

	s.UnAttach(&recorder{name: "b", log: calls})
	s.UnAttach(nil)
	s.Notify()

	assert.Equal(t, []string{"a:"}, calls.get())
}

func TestAttachThenUnAttach(t *testing.T) {
	s, r := newTestSubject(t)
	calls := &callLog{}
	a := &recorder{name: "a", log: calls}

	s.Attach(a)
	s.UnAttach(a)
	s.Notify()

	assert.Empty(t, calls.get())
	assert.Empty(t, s.Observers())
	assert.Equal(t, int64(0), metrics.GetOrRegisterGauge(observersName, r).Value())
}

func TestDuplicateAttach(t *testing.T) {
	s, _ := newTestSubject(t)
	calls := &callLog{}
	a := &recorder{name: "a", log: calls}
	b := &recorder{name: "b", log: calls}

	s.Attach(a)
	s.Attach(b)
	s.Attach(a)
	s.Notify()
	assert.Equal(t, []string{"a:", "b:", "a:"}, calls.get())

	// only the first entry is removed
	s.UnAttach(a)
	assert.Equal(t, []Observer{b, a}, s.Observers())
}

func TestAttachNil(t *testing.T) {
	s, _ := newTestSubject(t)
	s.Attach(nil)
	assert.Empty(t, s.Observers())
	s.Notify()
}

func TestUnAttachNotComparable(t *testing.T) {
	s, _ := newTestSubject(t)
	var called int32
	f := funcObserver(func(Subject) { atomic.AddInt32(&called, 1) })

	s.Attach(f)
	assert.NotPanics(t, func() { s.UnAttach(f) })
	s.Notify()

	assert.Equal(t, int32(1), atomic.LoadInt32(&called))
}

// holder is comparable by type but panics on == when f holds a func.
type holder struct {
	f interface{}
}

func (holder) Update(Subject) {}

func TestUnAttachNestedNotComparable(t *testing.T) {
	s, _ := newTestSubject(t)
	h := holder{f: func() {}}
	calls := &callLog{}
	s.Attach(h)
	s.Attach(&recorder{name: "a", log: calls})

	assert.NotPanics(t, func() { s.UnAttach(h) })
	assert.Len(t, s.Observers(), 2)

	// the registry lock must have been released
	notified := make(chan struct{})
	go func() {
		defer close(notified)
		s.Notify()
	}()
	select {
	case <-notified:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked after UnAttach")
	}
	assert.Equal(t, []string{"a:"}, calls.get())
}

func TestUnAttachClearsRemovedSlot(t *testing.T) {
	s, _ := newTestSubject(t)
	calls := &callLog{}
	a := &recorder{name: "a", log: calls}
	b := &recorder{name: "b", log: calls}
	s.Attach(a)
	s.Attach(b)

	s.UnAttach(a)

	require.Len(t, s.observers, 1)
	assert.Equal(t, Observer(b), s.observers[0])
	backing := s.observers[:cap(s.observers)]
	for _, o := range backing[len(s.observers):] {
		assert.Nil(t, o)
	}
}

func TestObserversGaugeUnderConcurrency(t *testing.T) {
	s, r := newTestSubject(t)
	gauge := metrics.GetOrRegisterGauge(observersName, r)
	calls := &callLog{}

	wg := &sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var mine []Observer
			for j := 0; j < 100; j++ {
				o := &recorder{name: "r", log: calls}
				s.Attach(o)
				mine = append(mine, o)
			}
			for _, o := range mine[:50] {
				s.UnAttach(o)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, s.Observers(), 400)
	assert.Equal(t, int64(400), gauge.Value())
}

func TestPanickingObserverDoesNotStopDelivery(t *testing.T) {
	s, r := newTestSubject(t)
	calls := &callLog{}
	s.Attach(&recorder{name: "a", log: calls})
	s.Attach(panicker{})
	s.Attach(&recorder{name: "b", log: calls})

	s.SetMessage("hello")
	assert.NotPanics(t, s.Notify)

	assert.Equal(t, []string{"a:hello", "b:hello"}, calls.get())
	assert.Equal(t, int64(1), metrics.GetOrRegisterCounter(callbackFailuresName, r).Count())
}

func TestDeliverWrapsPanic(t *testing.T) {
	s, _ := newTestSubject(t)
	err := s.deliver(panicker{})
	require.Error(t, err)
	assert.Equal(t, ErrObserverCallbackFailed, errors.Cause(err))
	assert.Contains(t, err.Error(), "boom")

	assert.NoError(t, s.deliver(&recorder{name: "a", log: &callLog{}}))
}

func TestUnAttachSelfDuringUpdate(t *testing.T) {
	s, _ := newTestSubject(t)
	calls := &callLog{}
	var self Observer
	self = funcObserverPtr(func(subject Subject) {
		calls.add("self")
		subject.UnAttach(self)
	})
	s.Attach(self)
	s.Attach(&recorder{name: "b", log: calls})

	s.Notify()
	s.Notify()

	assert.Equal(t, []string{"self", "b:", "b:"}, calls.get())
}

// funcObserverPtr wraps f in a pointer so the observer is comparable.
func funcObserverPtr(f func(Subject)) Observer {
	return &struct{ funcObserver }{funcObserver(f)}
}

func TestMessage(t *testing.T) {
	s, _ := newTestSubject(t, WithMessage("init"))
	assert.Equal(t, "init", s.Message())
	s.SetMessage("po")
	assert.Equal(t, "po", s.Message())
}

func TestNewMessageSubjectInvalidInterval(t *testing.T) {
	_, err := NewMessageSubject(WithInterval(0))
	assert.Equal(t, ErrInvalidInterval, err)

	_, err = NewMessageSubject(WithInterval(-time.Second))
	assert.Equal(t, ErrInvalidInterval, err)
}

func TestDefaultFormatter(t *testing.T) {
	now := time.Date(2020, 7, 6, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "New Message: 2020-07-06 03:04:05", DefaultFormatter(now))
	assert.Equal(t, "at 03:04", NewFormatter("at ", "15:04")(now))
}

// countingFormatter yields a distinct message per tick.
func countingFormatter(n *int32) Formatter {
	return func(time.Time) string {
		return fmt.Sprintf("tick %d", atomic.AddInt32(n, 1))
	}
}

func TestLoopTicksOncePerInterval(t *testing.T) {
	var ticks int32
	s, r := newTestSubject(t,
		WithInterval(200*time.Millisecond),
		WithFormatter(countingFormatter(&ticks)),
		WithMessage("init"))
	calls := &callLog{}
	s.Attach(&recorder{name: "a", log: calls})
	s.Attach(&recorder{name: "b", log: calls})

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(300 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&ticks))
	assert.Equal(t, "tick 1", s.Message())
	assert.Equal(t, []string{"a:tick 1", "b:tick 1"}, calls.get())
	assert.Equal(t, int64(1), metrics.GetOrRegisterMeter(tickEpsName, r).Count())
}

func TestLoopNotifyOnStart(t *testing.T) {
	s, _ := newTestSubject(t, WithInterval(time.Hour), WithNotifyOnStart(true))
	updated := make(chan string, 1)
	s.Attach(funcObserver(func(subject Subject) { updated <- subject.Message() }))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case msg := <-updated:
		assert.Contains(t, msg, DefaultMessagePrefix)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a notification on start")
	}
}

func TestStartTwice(t *testing.T) {
	s, _ := newTestSubject(t, WithInterval(time.Hour))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, ErrAlreadyStarted, s.Start(context.Background()))
}

func TestStopIdempotent(t *testing.T) {
	s, _ := newTestSubject(t, WithInterval(time.Hour))
	s.Stop()
	assert.Nil(t, s.Done())

	require.NoError(t, s.Start(context.Background()))
	done := s.Done()
	s.Stop()
	s.Stop()

	select {
	case <-done:
	default:
		t.Fatal("loop should have exited")
	}
	assert.Nil(t, s.Done())
}

func TestRestartAfterStop(t *testing.T) {
	var ticks int32
	s, _ := newTestSubject(t,
		WithInterval(time.Hour),
		WithNotifyOnStart(true),
		WithFormatter(countingFormatter(&ticks)))
	updated := make(chan string, 2)
	s.Attach(funcObserver(func(subject Subject) { updated <- subject.Message() }))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "tick 1", <-updated)
	s.Stop()

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "tick 2", <-updated)
	s.Stop()
}

func TestContextCancelEndsLoop(t *testing.T) {
	s, _ := newTestSubject(t, WithInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	done := s.Done()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop should exit on context cancel")
	}

	// the ended loop does not block a new start
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestConcurrentAttachDuringLoop(t *testing.T) {
	s, _ := newTestSubject(t, WithInterval(time.Millisecond))
	require.NoError(t, s.Start(context.Background()))

	wg := &sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			calls := &callLog{}
			for j := 0; j < 200; j++ {
				o := &recorder{name: "r", log: calls}
				s.Attach(o)
				_ = s.Message()
				s.UnAttach(o)
			}
		}()
	}
	wg.Wait()
	s.Stop()

	assert.Empty(t, s.Observers())
}

func ExampleMessageSubject() {
	subject, _ := NewMessageSubject(WithRegistry(metrics.NewRegistry()))
	r1 := NewReader("reader1", os.Stdout)
	r2 := NewReader("reader2", os.Stdout)
	r3 := NewReader("reader3", os.Stdout)
	subject.Attach(r1)
	subject.Attach(r2)
	subject.Attach(r3)
	subject.UnAttach(r2)

	subject.SetMessage("observer mode")
	subject.Notify()
	// Output:
	// reader1 receive observer mode
	// reader3 receive observer mode
}
