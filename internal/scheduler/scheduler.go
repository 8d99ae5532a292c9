// Package scheduler implements one-shot delayed reminder delivery.
//
// A scheduled job fires exactly once, at or after the requested delay,
// independent of any conversation activity, and delivers through the
// messaging transport. There is deliberately no persistence, no retry, and
// no cancellation API: a process restart loses pending jobs, and a delivery
// failure is logged and discarded after the single attempt.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-support-bot/internal/messaging"
)

var (
	// jobsScheduled counts reminder jobs accepted by Schedule.
	jobsScheduled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reminder_jobs_scheduled_total",
		Help: "Total number of reminder jobs scheduled.",
	})

	// jobsFired counts jobs whose delivery attempt ran, by outcome.
	jobsFired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reminder_jobs_fired_total",
		Help: "Total number of reminder jobs fired, by delivery outcome.",
	}, []string{"outcome"})

	// jobsPending gauges jobs waiting on their timer.
	jobsPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reminder_jobs_pending",
		Help: "Current number of reminder jobs waiting to fire.",
	})
)

func init() {
	prometheus.MustRegister(jobsScheduled, jobsFired, jobsPending)
}

// Clock abstracts the one-shot timer so tests can fire it deterministically.
type Clock interface {
	// After returns a channel that delivers once, after d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// realClock delegates to time.After.
type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the wall clock used in production.
func SystemClock() Clock { return realClock{} }

// Scheduler owns pending reminder jobs for their lifetime. It is safe for
// concurrent use; each job waits on its own goroutine so a long delay never
// blocks other jobs or the conversation engine.
type Scheduler struct {
	clock     Clock
	messenger messaging.Messenger
	log       zerolog.Logger

	mu     sync.Mutex
	closed bool
	quit   chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Scheduler delivering through m using the given clock.
func New(clock Clock, m messaging.Messenger, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		clock:     clock,
		messenger: m,
		log:       log.With().Str("component", "scheduler").Logger(),
		quit:      make(chan struct{}),
	}
}

// Schedule registers a single delivery of text to chatID after delay and
// returns the job id. Scheduling after Close is a no-op; the returned id
// then refers to a job that will never fire.
func (s *Scheduler) Schedule(chatID int64, delay time.Duration, text string) string {
	id := uuid.NewString()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Warn().Str("job_id", id).Msg("schedule after close dropped")
		return id
	}
	s.wg.Add(1)
	s.mu.Unlock()

	jobsScheduled.Inc()
	jobsPending.Inc()
	s.log.Info().
		Str("job_id", id).
		Int64("chat_id", chatID).
		Dur("delay", delay).
		Msg("reminder job registered")

	go s.run(id, chatID, delay, text)
	return id
}

// run waits out the delay on its own timer and performs the single delivery
// attempt. No lock is held across the wait.
func (s *Scheduler) run(id string, chatID int64, delay time.Duration, text string) {
	defer s.wg.Done()
	defer jobsPending.Dec()

	select {
	case <-s.quit:
		jobsFired.WithLabelValues("dropped").Inc()
		return
	case <-s.clock.After(delay):
	}

	if err := s.messenger.SendText(context.Background(), chatID, "Reminder: "+text, nil); err != nil {
		jobsFired.WithLabelValues("error").Inc()
		s.log.Warn().Err(err).Str("job_id", id).Int64("chat_id", chatID).Msg("reminder delivery failed")
		return
	}
	jobsFired.WithLabelValues("ok").Inc()
	s.log.Info().Str("job_id", id).Int64("chat_id", chatID).Msg("reminder delivered")
}

// Close discards all pending jobs without delivering them and waits for
// their goroutines to exit. Close is idempotent.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.quit)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
