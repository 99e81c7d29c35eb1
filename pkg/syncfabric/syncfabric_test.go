package syncfabric

import (
	"testing"
	"time"

	"github.com/agentfabric/coordinator/pkg/clock"
	"github.com/agentfabric/coordinator/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator() *Coordinator {
	return New(clock.NewFakeClock(time.Unix(0, 0)), 0, 0, 0)
}

func TestAddScope(t *testing.T) {
	c := newTestCoordinator()

	require.NoError(t, c.AddScope("scope1", nil))
	status, ok := c.GetStatus("scope1")
	require.True(t, ok)
	assert.Equal(t, StatusIdle, status)

	require.NoError(t, c.AddScope("scope2", []string{"scope1"}))

	err := c.AddScope("scope3", []string{"nonexistent"})
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, err.(*errors.FabricError).Kind())
}

func TestCircularDependency(t *testing.T) {
	c := newTestCoordinator()

	require.NoError(t, c.AddScope("scope1", nil))
	require.NoError(t, c.AddScope("scope2", []string{"scope1"}))

	err := c.AddScope("scope1", []string{"scope2"})
	require.Error(t, err)
	assert.Equal(t, errors.KindCircularDependency, err.(*errors.FabricError).Kind())
}

func TestSyncLifecycle(t *testing.T) {
	c := newTestCoordinator()
	require.NoError(t, c.AddScope("scope1", nil))

	require.NoError(t, c.StartSync("scope1"))
	status, _ := c.GetStatus("scope1")
	assert.Equal(t, StatusSyncing, status)

	require.NoError(t, c.CompleteSync("scope1"))
	status, _ = c.GetStatus("scope1")
	assert.Equal(t, StatusCompleted, status)
}

func TestDependencyChecking(t *testing.T) {
	c := newTestCoordinator()
	require.NoError(t, c.AddScope("scope1", nil))
	require.NoError(t, c.AddScope("scope2", []string{"scope1"}))

	err := c.StartSync("scope2")
	require.Error(t, err)
	assert.Equal(t, errors.KindDependenciesNotReady, err.(*errors.FabricError).Kind())

	require.NoError(t, c.StartSync("scope1"))
	require.NoError(t, c.CompleteSync("scope1"))

	status, _ := c.GetStatus("scope2")
	assert.Equal(t, StatusSyncing, status, "completing scope1 should cascade-start scope2")

	err = c.StartSync("scope2")
	require.Error(t, err, "scope2 is already syncing")

	require.NoError(t, c.CompleteSync("scope2"))
}

func TestSyncQueuePriorityVsReadiness(t *testing.T) {
	c := newTestCoordinator()
	require.NoError(t, c.AddScope("dep", nil))
	require.NoError(t, c.AddScope("scope1", nil))
	require.NoError(t, c.AddScope("scope2", []string{"dep"}))

	require.NoError(t, c.QueueSync("scope1", PriorityNormal))
	require.NoError(t, c.QueueSync("scope2", PriorityHigh))

	op, ok := c.GetNextSyncOperation()
	require.True(t, ok)
	assert.Equal(t, "scope1", op.ScopePath, "scope2 isn't ready despite higher priority")
}

func TestSyncStatistics(t *testing.T) {
	c := newTestCoordinator()
	require.NoError(t, c.AddScope("scope1", nil))
	require.NoError(t, c.AddScope("scope2", nil))

	require.NoError(t, c.StartSync("scope1"))
	require.NoError(t, c.CompleteSync("scope1"))

	require.NoError(t, c.StartSync("scope2"))
	require.NoError(t, c.FailSync("scope2", "boom"))

	stats := c.GetSyncStatistics()
	assert.Equal(t, 2, stats.TotalScopes)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.Syncing)
	assert.Equal(t, 0, stats.Idle)
}

func TestResetSyncOnlyFromFailed(t *testing.T) {
	c := newTestCoordinator()
	require.NoError(t, c.AddScope("scope1", nil))

	err := c.ResetSync("scope1")
	require.Error(t, err)

	require.NoError(t, c.StartSync("scope1"))
	require.NoError(t, c.FailSync("scope1", "boom"))
	require.NoError(t, c.ResetSync("scope1"))

	status, _ := c.GetStatus("scope1")
	assert.Equal(t, StatusIdle, status)
}

func TestFailSyncRetriesUpToLimit(t *testing.T) {
	c := New(clock.NewFakeClock(time.Unix(0, 0)), 2, 0, 0)
	require.NoError(t, c.AddScope("scope1", nil))

	require.NoError(t, c.QueueSync("scope1", PriorityNormal))
	op, ok := c.GetNextSyncOperation()
	require.True(t, ok)
	assert.Equal(t, 0, op.RetryCount)

	// FailSync only retries an operation that is still queued for the scope.
	require.NoError(t, c.QueueSync("scope1", PriorityNormal))
	require.NoError(t, c.StartSync("scope1"))
	require.NoError(t, c.FailSync("scope1", "transient"))

	op, ok = c.GetNextSyncOperation()
	require.True(t, ok, "failure under the retry limit should re-enqueue")
	assert.Equal(t, 1, op.RetryCount)
}

func TestRemoveScopeWhileSyncingFails(t *testing.T) {
	c := newTestCoordinator()
	require.NoError(t, c.AddScope("scope1", nil))
	require.NoError(t, c.StartSync("scope1"))

	err := c.RemoveScope("scope1")
	require.Error(t, err)
}

func TestHistoryTracking(t *testing.T) {
	c := newTestCoordinator()
	require.NoError(t, c.AddScope("scope1", nil))
	require.NoError(t, c.StartSync("scope1"))
	require.NoError(t, c.CompleteSync("scope1"))

	history := c.GetScopeHistory("scope1", 0)
	require.Len(t, history, 2)
	assert.Equal(t, StatusCompleted, history[0].To, "newest first")
}

func TestScopePathsAreNormalizedAcrossUnicodeForms(t *testing.T) {
	c := newTestCoordinator()

	// decomposed spells "cafe" + a combining acute accent (U+0301);
	// precomposed uses the single codepoint "é" instead.
	decomposed := "café"
	precomposed := "café"

	require.NoError(t, c.AddScope(decomposed, nil))

	status, ok := c.GetStatus(precomposed)
	require.True(t, ok, "a scope added under one Unicode form must be visible under the other")
	assert.Equal(t, StatusIdle, status)

	require.NoError(t, c.StartSync(precomposed))
	require.NoError(t, c.CompleteSync(decomposed))

	status, _ = c.GetStatus(decomposed)
	assert.Equal(t, StatusCompleted, status)
}
