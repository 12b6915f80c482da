package workers

import (
	"testing"

	"relay-hub/services"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStartMaintenanceSchedulerRegistersJobs(t *testing.T) {
	logger := zap.NewNop()
	clock := clockwork.NewRealClock()
	codes := services.NewLinkCodeRegistry(clock, 0, logger)
	sessions := services.NewSessionRegistry(logger)

	sched, err := StartMaintenanceScheduler(codes, sessions, clock, logger)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, job := range sched.Jobs() {
		names[job.Name()] = true
	}
	assert.True(t, names["link-code-sweep"])
	assert.True(t, names["relay-stats"])

	require.NoError(t, sched.Shutdown())
}
