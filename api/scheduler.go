/*
scheduler.go - Background jobs: missed-instance audit and reminders

PURPOSE:
  Runs the auditor and the reminder scan on cron schedules inside the
  server process.

DESIGN:
  - robfig/cron with a Recover chain: a panicking run is logged and the
    next run proceeds
  - Errors are logged with the job name; they never stop the scheduler
  - Schedules are evaluated in the configured country's timezone
  - An empty spec disables that job

REMINDERS:
  The scan lists pending instances of yesterday and today and notifies
  those starting or ending within the lead time. A per-process sent set
  keyed by (instance key, kind) prevents repeats; entries are pruned once
  the instance has ended.

USAGE:
  s := NewScheduler(asm, aud, "FR")
  s.AuditSpec = "0 * * * *"
  if err := s.Start(); err != nil { ... }
  defer s.Stop()

SEE ALSO:
  - auditor/auditor.go: the audit itself
  - handlers.go: TriggerAudit endpoint (manual run)
*/
package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/warp/checklist-engine/assembler"
	"github.com/warp/checklist-engine/auditor"
	"github.com/warp/checklist-engine/checklist"
	applog "github.com/warp/checklist-engine/internal/log"
)

// Default schedules.
const (
	DefaultAuditSpec    = "0 * * * *"
	DefaultReminderSpec = "*/30 * * * *"
	DefaultReminderLead = 30 * time.Minute
)

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// ReminderKind tells whether an instance is about to open or to close.
type ReminderKind string

const (
	ReminderStarting ReminderKind = "starting"
	ReminderEnding   ReminderKind = "ending"
)

// Reminder is one notification to deliver.
type Reminder struct {
	Kind       ReminderKind
	Instance   checklist.Instance
	Recipients []string // usernames, or group names when none are assigned
}

// Notifier delivers reminders.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// LogNotifier writes reminders to the log.
type LogNotifier struct {
	Logger logrus.FieldLogger
}

func (n LogNotifier) Notify(_ context.Context, r Reminder) error {
	applog.OrDefault(n.Logger).WithFields(logrus.Fields{
		"task_id":    r.Instance.TaskID,
		"kind":       r.Kind,
		"start":      r.Instance.Start.Format(time.RFC3339),
		"end":        r.Instance.End.Format(time.RFC3339),
		"recipients": r.Recipients,
	}).Info("reminder")
	return nil
}

// =============================================================================
// SCHEDULER
// =============================================================================

// Scheduler owns the cron runner and the background jobs.
type Scheduler struct {
	Assembler *assembler.Assembler
	Auditor   *auditor.Auditor
	Notifier  Notifier
	Country   string

	AuditSpec    string
	ReminderSpec string
	ReminderLead time.Duration
	Logger       logrus.FieldLogger

	mu   sync.Mutex
	cron *cron.Cron
	sent map[string]time.Time // dedup key -> instance end
}

// NewScheduler creates a scheduler with the default specs.
func NewScheduler(asm *assembler.Assembler, aud *auditor.Auditor, country string) *Scheduler {
	return &Scheduler{
		Assembler:    asm,
		Auditor:      aud,
		Notifier:     LogNotifier{},
		Country:      country,
		AuditSpec:    DefaultAuditSpec,
		ReminderSpec: DefaultReminderSpec,
		ReminderLead: DefaultReminderLead,
		Logger:       applog.GetLogger(),
		sent:         make(map[string]time.Time),
	}
}

// Start registers the jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}
	logger := applog.OrDefault(s.Logger)
	loc := s.Assembler.Calendar().Zone(s.Country).Location()
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.PrintfLogger(logger))),
	)

	if s.AuditSpec != "" {
		if _, err := c.AddFunc(s.AuditSpec, s.runAudit); err != nil {
			return fmt.Errorf("invalid audit schedule %q: %w", s.AuditSpec, err)
		}
	}
	if s.ReminderSpec != "" {
		if _, err := c.AddFunc(s.ReminderSpec, s.runReminders); err != nil {
			return fmt.Errorf("invalid reminder schedule %q: %w", s.ReminderSpec, err)
		}
	}

	c.Start()
	s.cron = c
	logger.WithFields(logrus.Fields{
		"audit":     s.AuditSpec,
		"reminders": s.ReminderSpec,
		"country":   s.Country,
	}).Info("scheduler started")
	return nil
}

// Stop stops the runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	applog.OrDefault(s.Logger).Info("scheduler stopped")
}

func (s *Scheduler) runAudit() {
	if _, err := s.Auditor.Run(context.Background(), s.Country); err != nil {
		applog.OrDefault(s.Logger).WithError(err).WithField("job", "audit").Error("scheduled run failed")
	}
}

func (s *Scheduler) runReminders() {
	if _, err := s.RemindNow(context.Background()); err != nil {
		applog.OrDefault(s.Logger).WithError(err).WithField("job", "reminders").Error("scheduled run failed")
	}
}

// RemindNow runs one reminder scan and returns how many reminders were sent.
func (s *Scheduler) RemindNow(ctx context.Context) (int, error) {
	now := s.Assembler.Now()
	today := s.Assembler.Calendar().Zone(s.Country).Today(now)
	lead := s.ReminderLead
	if lead <= 0 {
		lead = DefaultReminderLead
	}

	list, err := s.Assembler.List(ctx, assembler.Query{
		From:          today.AddDays(-1).String(),
		To:            today.String(),
		Status:        checklist.StatusPending,
		IncludeFuture: true,
		Country:       s.Country,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list instances: %w", err)
	}

	// Claim due reminders under the lock, notify without it. A failed
	// notification releases its claim so the next scan retries.
	type claim struct {
		dedup string
		r     Reminder
	}
	var claims []claim
	s.mu.Lock()
	s.prune(now)
	for _, inst := range list {
		kind, due := reminderFor(inst, now, lead)
		if !due {
			continue
		}
		dedup := inst.Key().String() + "#" + string(kind)
		if _, ok := s.sent[dedup]; ok {
			continue
		}
		s.sent[dedup] = inst.End
		claims = append(claims, claim{
			dedup: dedup,
			r:     Reminder{Kind: kind, Instance: inst, Recipients: recipients(inst.Assignment)},
		})
	}
	s.mu.Unlock()

	sent := 0
	for _, c := range claims {
		if err := s.Notifier.Notify(ctx, c.r); err != nil {
			applog.OrDefault(s.Logger).WithError(err).WithField("task_id", c.r.Instance.TaskID).Warn("failed to send reminder")
			s.mu.Lock()
			delete(s.sent, c.dedup)
			s.mu.Unlock()
			continue
		}
		sent++
	}
	return sent, nil
}

// prune forgets reminders for instances that have ended. Callers hold mu.
func (s *Scheduler) prune(now time.Time) {
	for k, end := range s.sent {
		if end.Before(now) {
			delete(s.sent, k)
		}
	}
}

// reminderFor decides whether inst is due for a reminder at now.
func reminderFor(inst checklist.Instance, now time.Time, lead time.Duration) (ReminderKind, bool) {
	switch {
	case inst.Start.After(now):
		return ReminderStarting, inst.Start.Sub(now) <= lead
	case inst.End.After(now):
		return ReminderEnding, inst.End.Sub(now) <= lead
	default:
		return "", false
	}
}

func recipients(a checklist.Assignment) []string {
	out := append([]string(nil), a.Usernames...)
	if len(out) == 0 {
		out = append(out, a.Groups...)
	}
	sort.Strings(out)
	return out
}
