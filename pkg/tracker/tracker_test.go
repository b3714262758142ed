package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-ai/atelier/pkg/models"
)

func newTestTracker(t *testing.T) *SQLiteTracker {
	t.Helper()
	tr, err := New(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func record(userID string, method models.RouteMethod, model string, cacheHit bool, latencyMs int64) models.RouteDecisionRecord {
	return models.RouteDecisionRecord{
		UserID:         userID,
		GenerationType: models.NewImage,
		Model:          model,
		Method:         method,
		CacheHit:       cacheHit,
		LatencyMs:      latencyMs,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestRecordAndSummary(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, record("u1", models.MethodLLM, "imagen-4", false, 120)))
	require.NoError(t, tr.Record(ctx, record("u1", models.MethodLLM, "imagen-4", true, 2)))
	require.NoError(t, tr.Record(ctx, record("u2", models.MethodRule, "kling-v2.1", false, 1)))

	all, err := tr.Summary(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	u1, err := tr.Summary(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, u1, 1)
	assert.Equal(t, models.MethodLLM, u1[0].Method)
	assert.Equal(t, "imagen-4", u1[0].Model)
	assert.Equal(t, 2, u1[0].RequestCount)
	assert.Equal(t, 1, u1[0].CacheHits)
	assert.Equal(t, int64(61), u1[0].AvgLatencyMs)
}

func TestSummaryEmpty(t *testing.T) {
	tr := newTestTracker(t)

	summaries, err := tr.Summary(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestMethodCounts(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, record("u1", models.MethodLLM, "imagen-4", false, 100)))
	require.NoError(t, tr.Record(ctx, record("u1", models.MethodRule, "imagen-4", false, 1)))
	require.NoError(t, tr.Record(ctx, record("u2", models.MethodRule, "veo-3", false, 1)))

	counts, err := tr.MethodCounts(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.MethodLLM])
	assert.Equal(t, int64(2), counts[models.MethodRule])

	// Nothing recorded after a future cutoff.
	counts, err = tr.MethodCounts(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestResolveSessionExplicit(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	id, err := tr.ResolveSession(ctx, "u1", "sess_custom", 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "sess_custom", id)

	// Resolving the same explicit ID again must not create a second row.
	id, err = tr.ResolveSession(ctx, "u1", "sess_custom", 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "sess_custom", id)

	sessions, err := tr.ListSessions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestResolveSessionReusesRecent(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	first, err := tr.ResolveSession(ctx, "u1", "", 30*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := tr.ResolveSession(ctx, "u1", "", 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveSessionGapStartsNew(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	first, err := tr.ResolveSession(ctx, "u1", "", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	second, err := tr.ResolveSession(ctx, "u1", "", time.Millisecond)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	sessions, err := tr.ListSessions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestResolveSessionPerUser(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	s1, err := tr.ResolveSession(ctx, "u1", "", 30*time.Minute)
	require.NoError(t, err)
	s2, err := tr.ResolveSession(ctx, "u2", "", 30*time.Minute)
	require.NoError(t, err)

	assert.NotEqual(t, s1, s2)
}

func TestRecordUpdatesSessionActivity(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	id, err := tr.ResolveSession(ctx, "u1", "", 30*time.Minute)
	require.NoError(t, err)

	rec := record("u1", models.MethodLLM, "imagen-4", false, 50)
	rec.SessionID = id
	require.NoError(t, tr.Record(ctx, rec))
	require.NoError(t, tr.Record(ctx, rec))

	sessions, err := tr.ListSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].RequestCount)
	assert.False(t, sessions[0].LastActivity.Before(sessions[0].StartedAt))
}

func TestListSessionsFilter(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.ResolveSession(ctx, "u1", "", 30*time.Minute)
	require.NoError(t, err)
	_, err = tr.ResolveSession(ctx, "u2", "", 30*time.Minute)
	require.NoError(t, err)

	all, err := tr.ListSessions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	u1, err := tr.ListSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, u1, 1)
	assert.Equal(t, "u1", u1[0].UserID)
}
