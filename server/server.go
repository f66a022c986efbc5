package server

import (
	"context"
	"os"
	"sync"

	"github.com/pingcap/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rcrowley/go-metrics"

	"notifier/config"
	"notifier/log"
	"notifier/observer"
)

type Server struct {
	config    *config.NotifierConfig
	subject   *observer.MessageSubject
	observers map[string]observer.Observer
	promSvr   *PrometheusServer

	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer creates the Server from config
func NewServer(cfg *config.NotifierConfig) (*Server, error) {
	s := new(Server)
	s.config = cfg
	s.observers = make(map[string]observer.Observer)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	var err error
	s.subject, err = observer.NewMessageSubject(
		observer.WithInterval(cfg.Interval.Duration),
		observer.WithFormatter(observer.NewFormatter(cfg.MessagePrefix, cfg.TimeFormat)),
		observer.WithNotifyOnStart(cfg.NotifyOnStart),
		observer.WithRegistry(metrics.DefaultRegistry),
	)
	if err != nil {
		return nil, errors.Trace(err)
	}

	if err = s.prepareObservers(); err != nil {
		return nil, errors.Trace(err)
	}

	s.promSvr = NewPrometheusServer(cfg.MetricsAddr, metrics.DefaultRegistry,
		prometheus.DefaultRegisterer, cfg.MetricsFlushInterval.Duration)
	return s, nil
}

func (s *Server) prepareObservers() error {
	for _, oc := range s.config.Observers {
		if _, ok := s.observers[oc.Name]; ok {
			return errors.Errorf("duplicate observer %s defined in config", oc.Name)
		}
		o, err := newObserver(oc)
		if err != nil {
			return errors.Trace(err)
		}
		s.observers[oc.Name] = o
		s.subject.Attach(o)
	}
	return nil
}

func newObserver(oc config.ObserverConfig) (observer.Observer, error) {
	switch oc.Sink {
	case config.SinkStdout:
		return observer.NewReader(oc.Name, os.Stdout), nil
	case config.SinkLog:
		return observer.NewLogReader(oc.Name), nil
	default:
		return nil, errors.Annotatef(ErrUnknownSink, "observer %s sink %q", oc.Name, oc.Sink)
	}
}

// Subject returns the subject driven by this server.
func (s *Server) Subject() *observer.MessageSubject {
	return s.subject
}

// Observer returns the configured observer with the given name.
func (s *Server) Observer(name string) (observer.Observer, bool) {
	o, ok := s.observers[name]
	return o, ok
}

// Run starts the notify loop and the metrics exporter.
func (s *Server) Run() error {
	if err := s.subject.Start(s.ctx); err != nil {
		return errors.Trace(err)
	}
	log.Log.Infof("notifier running with %d observers, interval %s",
		len(s.subject.Observers()), s.config.Interval.Duration)

	if s.promSvr != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.promSvr.Run()
		}()
	}
	return nil
}

// Ctx returns the internal context for outside use.
func (s *Server) Ctx() context.Context {
	return s.ctx
}

func (s *Server) Close() {
	log.Log.Infof("closing notifier server")
	s.cancel()
	s.subject.Stop()
	if s.promSvr != nil {
		s.promSvr.Stop()
	}
	s.wg.Wait()
}
