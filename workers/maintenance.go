// workers/maintenance.go
package workers

import (
	"fmt"
	"time"

	"relay-hub/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	linkCodeSweepInterval = 1 * time.Minute
	statsInterval         = 5 * time.Minute
)

// StartMaintenanceScheduler runs the periodic housekeeping jobs: expired
// link-code eviction and a session stats log line. Call Shutdown on the
// returned scheduler when the process exits.
func StartMaintenanceScheduler(codes *services.LinkCodeRegistry, sessions *services.SessionRegistry, clock clockwork.Clock, logger *zap.Logger) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(linkCodeSweepInterval),
		gocron.NewTask(func() {
			if n := codes.Sweep(); n > 0 {
				logger.Info("[Scheduler] swept expired link codes", zap.Int("count", n))
			}
		}),
		gocron.WithName("link-code-sweep"),
	); err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("register link code sweep: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(statsInterval),
		gocron.NewTask(func() {
			logger.Info("[Scheduler] relay stats",
				zap.Int("sessions", sessions.Count()),
				zap.Int("wallets", sessions.WalletCount()),
				zap.Int("pending_codes", codes.Pending()))
		}),
		gocron.WithName("relay-stats"),
	); err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("register stats job: %w", err)
	}

	sched.Start()
	return sched, nil
}
