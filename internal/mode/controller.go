// -----------------------------------------------------------------------
// Execution Mode Controller - automatic (timer-driven) vs manual triggers
// -----------------------------------------------------------------------

package mode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/interfaces"
)

const (
	ModeAutomatic = "automatic"
	ModeManual    = "manual"
)

// ErrManualOnly is returned when a manual run trigger arrives while the
// automatic runner owns the queue.
var ErrManualOnly = fmt.Errorf("manual run is only available in manual mode")

// Controller owns the execution mode. In automatic mode a cron-driven runner
// drains the pending queue; in manual mode jobs run only through RunNow.
// The mode is switchable at runtime and implements the ExecutionPolicy the
// queue manager consults for its cancellation decisions.
type Controller struct {
	queue      interfaces.JobQueue
	runner     interfaces.PipelineRunner
	events     interfaces.EventService
	logger     arbor.ILogger
	schedule   string
	autoPoll   time.Duration
	manualPoll time.Duration

	mu        sync.RWMutex
	automatic bool
	cron      *cron.Cron

	drainMu  sync.Mutex
	draining bool
}

// NewController creates the execution mode controller. The initial mode
// comes from configuration; Start applies it.
func NewController(
	queue interfaces.JobQueue,
	runner interfaces.PipelineRunner,
	events interfaces.EventService,
	schedule string,
	automatic bool,
	autoPoll, manualPoll time.Duration,
	logger arbor.ILogger,
) *Controller {
	if schedule == "" {
		schedule = "*/1 * * * *"
	}
	return &Controller{
		queue:      queue,
		runner:     runner,
		events:     events,
		logger:     logger,
		schedule:   schedule,
		autoPoll:   autoPoll,
		manualPoll: manualPoll,
		automatic:  automatic,
	}
}

// Start applies the configured mode
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.automatic {
		if err := c.startCronLocked(); err != nil {
			return err
		}
	}
	c.logger.Info().Str("mode", c.modeLocked()).Msg("Execution mode controller started")
	return nil
}

// Stop halts the automatic runner if it is active. In-flight attempts run
// to completion.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopCronLocked()
}

// AutomaticEnabled reports whether the timer-driven runner owns the queue
func (c *Controller) AutomaticEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.automatic
}

// Mode returns the current mode name
func (c *Controller) Mode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modeLocked()
}

// PollInterval returns the dashboard poll cadence for the current mode.
// Automatic mode polls fast because job state changes without user action.
func (c *Controller) PollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.automatic {
		return c.autoPoll
	}
	return c.manualPoll
}

// SetAutomatic switches the execution mode at runtime. Switching to the
// current mode is a no-op.
func (c *Controller) SetAutomatic(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	if c.automatic == enabled {
		c.mu.Unlock()
		return nil
	}

	c.automatic = enabled
	var err error
	if enabled {
		err = c.startCronLocked()
	} else {
		c.stopCronLocked()
	}
	mode := c.modeLocked()
	c.mu.Unlock()

	if err != nil {
		return err
	}

	c.logger.Info().Str("mode", mode).Msg("Execution mode changed")
	if c.events != nil {
		if pubErr := c.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventModeChanged,
			Payload: map[string]string{"mode": mode},
		}); pubErr != nil {
			c.logger.Warn().Err(pubErr).Msg("Failed to publish mode change event")
		}
	}
	return nil
}

// RunNow claims and runs one specific pending job. Refused in automatic
// mode, where the timer-driven runner is the only claimer.
func (c *Controller) RunNow(ctx context.Context, jobID string) error {
	if c.AutomaticEnabled() {
		return ErrManualOnly
	}

	job, err := c.queue.Claim(ctx, jobID)
	if err != nil {
		return err
	}

	go func() {
		if runErr := c.runner.Run(context.Background(), job); runErr != nil {
			c.logger.Warn().Err(runErr).Str("job_id", job.ID).Msg("Manual run finished with failure")
		}
	}()
	return nil
}

func (c *Controller) modeLocked() string {
	if c.automatic {
		return ModeAutomatic
	}
	return ModeManual
}

func (c *Controller) startCronLocked() error {
	if c.cron != nil {
		return nil
	}

	runner := cron.New()
	if _, err := runner.AddFunc(c.schedule, c.drainQueue); err != nil {
		return fmt.Errorf("failed to register automatic runner: %w", err)
	}
	runner.Start()
	c.cron = runner

	c.logger.Info().Str("schedule", c.schedule).Msg("Automatic runner started")
	return nil
}

func (c *Controller) stopCronLocked() {
	if c.cron == nil {
		return
	}
	c.cron.Stop()
	c.cron = nil
	c.logger.Info().Msg("Automatic runner stopped")
}

// drainQueue claims and runs pending jobs one at a time until the queue is
// empty. Overlapping cron ticks are collapsed into the running drain.
func (c *Controller) drainQueue() {
	c.drainMu.Lock()
	if c.draining {
		c.drainMu.Unlock()
		return
	}
	c.draining = true
	c.drainMu.Unlock()

	defer func() {
		c.drainMu.Lock()
		c.draining = false
		c.drainMu.Unlock()
	}()

	ctx := context.Background()
	for c.AutomaticEnabled() {
		job, err := c.queue.ClaimNextPending(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("Failed to claim pending job")
			return
		}
		if job == nil {
			return
		}

		if err := c.runner.Run(ctx, job); err != nil {
			c.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Automatic run finished with failure")
		}
	}
}
