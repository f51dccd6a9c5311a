package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(applyOutcomes.WithLabelValues("applied"))
	IncApplyOutcome("applied")
	IncApplyOutcome("applied")
	assert.Equal(t, before+2, testutil.ToFloat64(applyOutcomes.WithLabelValues("applied")))

	expired := testutil.ToFloat64(slotsExpired)
	AddSlotsExpired(3)
	assert.Equal(t, expired+3, testutil.ToFloat64(slotsExpired))

	softConflicts := testutil.ToFloat64(conflicts.WithLabelValues("case2"))
	AddConflicts("case2", 4)
	AddConflicts("case2", 0)
	assert.Equal(t, softConflicts+4, testutil.ToFloat64(conflicts.WithLabelValues("case2")))

	sessions := testutil.ToFloat64(activeSessions)
	SessionOpened()
	SessionClosed()
	assert.Equal(t, sessions, testutil.ToFloat64(activeSessions))
}
