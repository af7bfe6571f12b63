package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	defaultLead      = time.Minute // announce a run this long before it starts
	preCheckMaxTimes = 30
	preCheckInterval = time.Second * 10
)

type NotifyFunc func(data any)

// TaskFunc represents a runnable task.
type TaskFunc func(ctx context.Context) error

// Scheduler runs a task on a cron schedule. Runs never overlap: a run that
// comes due while the previous one is still going is skipped.
type Scheduler struct {
	OnUpcoming NotifyFunc // called Lead before running the task
	OnError    NotifyFunc // called on task or precheck error
	Task       TaskFunc
	PreCheck   func() error // must pass before each run, retried on failure
	Lead       time.Duration

	parser cron.Parser

	mu       sync.Mutex
	schedule cron.Schedule
	nextRun  time.Time
	running  bool
	busy     bool

	controlCh chan controlMsg
	cancel    context.CancelFunc
}

type controlKind int

const (
	ctrlRecalculate controlKind = iota
	ctrlSkip
	ctrlRunNow
)

type controlMsg struct {
	kind controlKind
	data any
}

func NewScheduler(task TaskFunc, preCheck func() error, onUpcoming, onError NotifyFunc) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}

	return &Scheduler{
		OnUpcoming: onUpcoming,
		OnError:    onError,
		Task:       task,
		PreCheck:   preCheck,
		Lead:       defaultLead,
		parser:     cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		controlCh:  make(chan controlMsg, 4),
	}
}

// Start runs the scheduler until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	go s.loop(ctx)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Schedule sets the cron expression. An empty expression clears the schedule.
func (s *Scheduler) Schedule(cronExpr string) error {
	var sh cron.Schedule
	if cronExpr != "" {
		var err error
		sh, err = s.parser.Parse(cronExpr)
		if err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cronExpr, err)
		}
	}

	s.mu.Lock()
	s.schedule = sh
	s.nextRun = time.Time{}
	if sh != nil {
		s.nextRun = sh.Next(time.Now())
	}
	running := s.running
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlRecalculate, nil)
	}
	return nil
}

// Skip skips the next scheduled run.
func (s *Scheduler) Skip() error {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to skip")
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	running := s.running
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlSkip, nil)
	}
	return nil
}

// RunNow runs the task once, outside the schedule.
func (s *Scheduler) RunNow() error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return fmt.Errorf("scheduler is not running")
	}
	s.trySendControl(ctrlRunNow, nil)
	return nil
}

func (s *Scheduler) Status() (nextRun time.Time, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.nextRun, s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logrus.Debug("scheduler stopped")
	}()

	logrus.Debug("scheduler started")

	for {
		nextRun := s.snapshot()
		announced := false
		attempts := 0

		timer := time.NewTimer(s.untilLead(nextRun))

	wait:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case msg := <-s.controlCh:
				logrus.WithField("kind", msg.kind).Debug("received control msg")
				if msg.kind == ctrlRunNow {
					s.run(ctx)
					continue
				}
				timer.Stop()
				break wait
			case <-timer.C:
				if nextRun.IsZero() {
					timer.Reset(time.Hour)
					continue
				}
				if !announced {
					announced = true
					s.notify(nextRun)
					timer.Reset(max(time.Until(nextRun), 0))
					continue
				}

				if s.PreCheck != nil {
					if err := s.PreCheck(); err != nil {
						attempts++
						logrus.WithError(err).Debugf("precheck failed (%d/%d)", attempts, preCheckMaxTimes)
						if attempts == 1 {
							s.sendError(fmt.Errorf("precheck failed: %w", err))
						}
						if attempts < preCheckMaxTimes {
							timer.Reset(preCheckInterval)
							continue
						}
						s.advance()
						break wait
					}
				}

				s.run(ctx)
				s.advance()
				break wait
			}
		}
	}
}

// run starts the task unless the previous run is still going.
func (s *Scheduler) run(ctx context.Context) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		logrus.Warn("previous run still in progress, skipping")
		return
	}
	s.busy = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.busy = false
			s.mu.Unlock()
		}()
		if err := s.Task(ctx); err != nil {
			s.sendError(fmt.Errorf("task failed: %w", err))
		}
	}()
}

func (s *Scheduler) untilLead(nextRun time.Time) time.Duration {
	if nextRun.IsZero() {
		return time.Hour
	}
	return max(time.Until(nextRun)-s.Lead, 0)
}

func (s *Scheduler) snapshot() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

func (s *Scheduler) advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return
	}
	s.nextRun = s.schedule.Next(time.Now())
}

func (s *Scheduler) notify(runAt time.Time) {
	logrus.Debugf("upcoming scheduled task at %s", runAt.Format(time.DateTime))
	if s.OnUpcoming != nil {
		go s.OnUpcoming(runAt)
	}
}

func (s *Scheduler) sendError(err error) {
	if s.OnError != nil {
		go s.OnError(err)
	}
}

func (s *Scheduler) trySendControl(kind controlKind, data any) {
	select {
	case s.controlCh <- controlMsg{kind: kind, data: data}:
	default:
	}
}
