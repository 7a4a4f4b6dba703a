package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"os"
	"testing"
	"time"
)

const (
	clearJobsQuery  = "DELETE FROM jobs"
	clearUsersQuery = "DELETE FROM users"
)

// openTestDatabase connects to the database described by TEST_DB_* variables
// and skips the test when none is configured.
func openTestDatabase(t *testing.T) *sql.DB {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST is not set")
	}
	dataSourceName := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host,
		os.Getenv("TEST_DB_PORT"),
		"resume-scheduler",
		os.Getenv("TEST_DB_PASSWORD"),
		"resume-scheduler",
	)
	database, err := OpenDatabase(context.Background(), "postgres", dataSourceName)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	clearDatabase(t, database)
	t.Cleanup(func() { clearDatabase(t, database) })
	return database
}

func clearDatabase(t *testing.T, database *sql.DB) {
	t.Helper()
	for _, query := range []string{clearJobsQuery, clearUsersQuery} {
		_, err := database.ExecContext(context.Background(), query)
		require.NoError(t, err)
	}
}

func TestPostgresJobLifecycle(t *testing.T) {
	database := openTestDatabase(t)
	ctx := context.Background()
	storage, err := NewSQLJobStorage(ctx, database)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	ids, err := storage.CreateJobs(ctx, []Job{
		{Kind: KindUpdateResume, Owner: "1", Target: "r1", NextFireAt: now.Add(-time.Minute), Interval: DefaultInterval},
		{Kind: KindUpdateResume, Owner: "1", Target: "r1", NextFireAt: now.Add(time.Hour), Interval: DefaultInterval},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	found, err := storage.FindJobs(ctx, KindUpdateResume, "1", "r1")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	claimed, err := storage.ClaimDueJobs(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, ids[0], claimed[0].Id)

	again, err := storage.ClaimDueJobs(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed job must not be handed out twice")

	require.NoError(t, storage.ReleaseJob(ctx, claimed[0], RunResult{StartedAt: now, FinishedAt: now, Err: errors.New("boom")}))
	targetJobs, err := storage.FindTargetJobs(ctx, KindUpdateResume, "r1")
	require.NoError(t, err)
	require.Len(t, targetJobs, 2)
	released := targetJobs[0]
	if released.Id != ids[0] {
		released = targetJobs[1]
	}
	assert.True(t, released.NextFireAt.After(now))
	assert.Equal(t, "boom", released.FailReason)
	assert.Equal(t, 1, released.FailCount)

	deleted, err := storage.DeleteJobs(ctx, ids)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)
}

func TestPostgresClaimsAreResetOnStartup(t *testing.T) {
	database := openTestDatabase(t)
	ctx := context.Background()
	storage, err := NewSQLJobStorage(ctx, database)
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = storage.CreateJobs(ctx, []Job{
		{Kind: KindUpdateResume, Owner: "1", Target: "r1", NextFireAt: now.Add(-time.Minute), Interval: DefaultInterval},
	})
	require.NoError(t, err)
	claimed, err := storage.ClaimDueJobs(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	restarted, err := NewSQLJobStorage(ctx, database)
	require.NoError(t, err)
	reclaimed, err := restarted.ClaimDueJobs(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, reclaimed, 1)
}

func TestPostgresUserStorage(t *testing.T) {
	database := openTestDatabase(t)
	ctx := context.Background()
	users := NewSQLUserStorage(database)

	_, err := users.GetUser(ctx, "7")
	assert.ErrorIs(t, err, ErrorNotFound)

	require.NoError(t, users.SetTimezone(ctx, "7", "Asia/Tokyo"))
	token := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "bearer"}
	require.NoError(t, users.SaveToken(ctx, "7", token))

	user, err := users.GetUser(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", user.Timezone)
	require.NotNil(t, user.Token)
	assert.Equal(t, "refresh", user.Token.RefreshToken)
}
