package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warrantyhub/internal/clock"
	"github.com/smallbiznis/warrantyhub/internal/events"
	obsmetrics "github.com/smallbiznis/warrantyhub/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/warrantyhub/internal/organization/domain"
	"github.com/smallbiznis/warrantyhub/internal/ratelimit"
	usagedomain "github.com/smallbiznis/warrantyhub/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobRollUsagePeriods = "roll_usage_periods"
	JobExpireTrials     = "expire_trials"
	JobRelayEvents      = "relay_events"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type periodRoller interface {
	RollPeriods(ctx context.Context) (int64, error)
}

type trialExpirer interface {
	ExpireTrials(ctx context.Context) (int, error)
}

type eventRelay interface {
	Dispatch(ctx context.Context, batch int) (int, error)
}

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Usage   usagedomain.Service
	Orgs    orgdomain.Service
	Relay   *events.Relay
	Locker  *ratelimit.Locker      `optional:"true"`
	Metrics *obsmetrics.JobMetrics `optional:"true"`
	Config  Config                 `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	usage   periodRoller
	orgs    trialExpirer
	relay   eventRelay
	locker  *ratelimit.Locker
	metrics *obsmetrics.JobMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Usage == nil || p.Orgs == nil || p.Relay == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		usage:   p.Usage,
		orgs:    p.Orgs,
		relay:   p.Relay,
		locker:  p.Locker,
		metrics: p.Metrics,
	}, nil
}

// runJob executes fn under a timeout and a cluster-wide lock named after the
// job. A job whose lock is held elsewhere is skipped. Deadline errors are
// recorded but not returned.
func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) (int64, error)) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name)
	s.logJobStart(ctx, run)

	err := s.locker.WithLock(ctx, lockKey(name), s.cfg.LockTTL, 0, func(ctx context.Context) error {
		affected, err := fn(ctx)
		run.AddProcessed(affected)
		return err
	})
	if errors.Is(err, ratelimit.ErrLockBusy) {
		s.logger(ctx).Debug("scheduler.job.skipped", zap.String("job", name), zap.String("reason", "lock_held"))
		return nil
	}

	s.metrics.Observe(name, start, run.processedCount, err)
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	s.logSchedulerError(ctx, run, "scheduler.job.failed", err)
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) (int64, error)
	}{
		{JobRollUsagePeriods, s.RollUsagePeriodsJob},
		{JobExpireTrials, s.ExpireTrialsJob},
		{JobRelayEvents, s.RelayEventsJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty list enables every job.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// RollUsagePeriodsJob resets monthly counters for records whose period ended.
func (s *Scheduler) RollUsagePeriodsJob(ctx context.Context) (int64, error) {
	return s.usage.RollPeriods(ctx)
}

func (s *Scheduler) ExpireTrialsJob(ctx context.Context) (int64, error) {
	count, err := s.orgs.ExpireTrials(ctx)
	return int64(count), err
}

// RelayEventsJob drains the outbox in batches until a short batch comes back.
func (s *Scheduler) RelayEventsJob(ctx context.Context) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		sent, err := s.relay.Dispatch(ctx, s.cfg.RelayBatchSize)
		total += int64(sent)
		if err != nil {
			return total, err
		}
		if sent < s.cfg.RelayBatchSize {
			return total, nil
		}
	}
}

func lockKey(job string) string {
	return "warrantyhub:scheduler:" + job
}
