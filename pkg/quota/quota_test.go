package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreforge/agentcore/pkg/config"
)

func limits() map[config.QuotaResource]int {
	return map[config.QuotaResource]int{
		config.ResourceStorageGB:           10,
		config.ResourceTeamMembers:         5,
		config.ResourceConcurrentWorkflows: 2,
		config.ResourceAPICallsPerHour:     100,
		config.ResourceAgentsPerMonth:      1000,
	}
}

func TestCheckAndConsumePointInTimeAdmitsUpToLimit(t *testing.T) {
	e := New()
	now := time.Now()

	res, err := e.CheckAndConsume("org1", config.ResourceTeamMembers, limits(), 5, now)
	require.NoError(t, err)
	assert.True(t, res.Admitted)
	assert.Equal(t, 0, res.Remaining)

	res, err = e.CheckAndConsume("org1", config.ResourceTeamMembers, limits(), 1, now)
	require.NoError(t, err)
	assert.False(t, res.Admitted, "consuming beyond the limit must be rejected")
}

func TestCheckAndConsumeRejectedConsumeDoesNotMutateState(t *testing.T) {
	e := New()
	now := time.Now()

	_, err := e.CheckAndConsume("org1", config.ResourceConcurrentWorkflows, limits(), 2, now)
	require.NoError(t, err)

	res, err := e.CheckAndConsume("org1", config.ResourceConcurrentWorkflows, limits(), 1, now)
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, 2, e.Usage("org1", config.ResourceConcurrentWorkflows, now), "a rejected consume must leave usage unchanged")
}

func TestReleaseDecrementsPointInTimeOnly(t *testing.T) {
	e := New()
	now := time.Now()

	_, err := e.CheckAndConsume("org1", config.ResourceConcurrentWorkflows, limits(), 2, now)
	require.NoError(t, err)

	e.Release("org1", config.ResourceConcurrentWorkflows, limits(), 1)
	assert.Equal(t, 1, e.Usage("org1", config.ResourceConcurrentWorkflows, now))

	// Releasing beyond zero must clamp, never go negative.
	e.Release("org1", config.ResourceConcurrentWorkflows, limits(), 10)
	assert.Equal(t, 0, e.Usage("org1", config.ResourceConcurrentWorkflows, now))
}

func TestReleaseIsNoopForSlidingResources(t *testing.T) {
	e := New()
	now := time.Now()

	_, err := e.CheckAndConsume("org1", config.ResourceAgentsPerMonth, limits(), 3, now)
	require.NoError(t, err)

	e.Release("org1", config.ResourceAgentsPerMonth, limits(), 3)
	assert.Equal(t, 3, e.Usage("org1", config.ResourceAgentsPerMonth, now), "sliding resources ignore Release")
}

func TestSlidingWindowExpiresEntries(t *testing.T) {
	e := New()
	base := time.Now()

	lim := limits()
	lim[config.ResourceAPICallsPerHour] = 5

	for i := 0; i < 5; i++ {
		res, err := e.CheckAndConsume("org1", config.ResourceAPICallsPerHour, lim, 1, base)
		require.NoError(t, err)
		assert.True(t, res.Admitted)
	}

	res, err := e.CheckAndConsume("org1", config.ResourceAPICallsPerHour, lim, 1, base)
	require.NoError(t, err)
	assert.False(t, res.Admitted, "sixth call within the hour must be denied")

	later := base.Add(61 * time.Minute)
	res, err = e.CheckAndConsume("org1", config.ResourceAPICallsPerHour, lim, 1, later)
	require.NoError(t, err)
	assert.True(t, res.Admitted, "entries older than the window must be purged")
}

func TestAllCallsWithinHourlyBudgetAdmitRegardlessOfSpacing(t *testing.T) {
	e := New()
	base := time.Now()

	lim := limits()
	lim[config.ResourceAPICallsPerHour] = 100

	for i := 0; i < 100; i++ {
		res, err := e.CheckAndConsume("org1", config.ResourceAPICallsPerHour, lim, 1, base)
		require.NoError(t, err)
		assert.True(t, res.Admitted, "call %d within the declared hourly budget must be admitted", i+1)
	}

	res, err := e.CheckAndConsume("org1", config.ResourceAPICallsPerHour, lim, 1, base)
	require.NoError(t, err)
	assert.False(t, res.Admitted, "the 101st call within the hour must be denied")
}

func TestCheckAndConsumeUnknownResource(t *testing.T) {
	e := New()
	_, err := e.CheckAndConsume("org1", config.QuotaResource("unknown"), limits(), 1, time.Now())
	assert.Error(t, err)
}

func TestSetLimitsPreservesUsage(t *testing.T) {
	e := New()
	now := time.Now()

	_, err := e.CheckAndConsume("org1", config.ResourceTeamMembers, limits(), 4, now)
	require.NoError(t, err)

	newLimits := limits()
	newLimits[config.ResourceTeamMembers] = 2
	e.SetLimits("org1", newLimits)

	assert.Equal(t, 4, e.Usage("org1", config.ResourceTeamMembers, now), "downgrading limits must not reset existing usage")

	res, err := e.CheckAndConsume("org1", config.ResourceTeamMembers, newLimits, 1, now)
	require.NoError(t, err)
	assert.False(t, res.Admitted, "usage already over a lowered limit must block further consumption")
}

func TestOrgsAreIsolated(t *testing.T) {
	e := New()
	now := time.Now()

	_, err := e.CheckAndConsume("org1", config.ResourceTeamMembers, limits(), 5, now)
	require.NoError(t, err)

	res, err := e.CheckAndConsume("org2", config.ResourceTeamMembers, limits(), 5, now)
	require.NoError(t, err)
	assert.True(t, res.Admitted, "one org exhausting its quota must not affect another org's state")
}
