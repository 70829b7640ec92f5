package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionpulse/telemetry-service/internal/models"
	"sessionpulse/telemetry-service/internal/repository"
)

func TestDashboardService_GetDashboard(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	t.Run("UnknownUserGetsZeroedSnapshot", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		service := NewDashboardService(
			repository.NewUserRepository(db),
			repository.NewRollupRepository(db),
		)

		mock.ExpectExec("INSERT IGNORE INTO users").
			WithArgs("never-seen").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT id, external_id, created_at").
			WithArgs("never-seen").
			WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "created_at"}).
				AddRow(7, "never-seen", now))

		// No rollup row yet
		mock.ExpectQuery("SELECT user_id, last_session_at, daily_activity").
			WithArgs(uint64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

		snapshot, err := service.GetDashboard(ctx, "never-seen", now)
		require.NoError(t, err)

		assert.Nil(t, snapshot.LastSessionAt)
		assert.Equal(t, make([]bool, models.WindowDays), snapshot.DailyActivity)
		assert.Equal(t, make([]int, models.WindowDays), snapshot.DailyDurations)
		assert.Len(t, snapshot.DailySentiment, models.WindowDays)
		assert.Equal(t, 0, snapshot.StreakDays)
		assert.Equal(t, 0, snapshot.AvgDurationMinutes)
		assert.Equal(t, models.ToneNeutral, snapshot.CurrentTone)
		assert.Equal(t, now, snapshot.LastUpdated)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("StreakRecomputedFromStoredActivity", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		service := NewDashboardService(
			repository.NewUserRepository(db),
			repository.NewRollupRepository(db),
		)

		mock.ExpectExec("INSERT IGNORE INTO users").
			WithArgs("user-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT id, external_id, created_at").
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "created_at"}).
				AddRow(42, "user-1", now))

		lastSession := time.Date(2026, 8, 29, 9, 40, 0, 0, time.UTC)
		updatedAt := time.Date(2026, 8, 29, 9, 41, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT user_id, last_session_at, daily_activity").
			WithArgs(uint64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "last_session_at", "daily_activity", "daily_durations", "daily_sentiment", "avg_duration_minutes", "current_tone", "updated_at"}).
				AddRow(42, lastSession,
					[]byte(`[true,true,false,true,true,true,true]`),
					[]byte(`[12,8,0,15,22,9,30]`),
					[]byte(`["0.55",null,null,"0.71","0.62","0.48","0.81"]`),
					16, models.TonePositive, updatedAt))

		snapshot, err := service.GetDashboard(ctx, "user-1", now)
		require.NoError(t, err)

		// The break on the third day caps the streak at four even though six
		// of seven days were active.
		assert.Equal(t, 4, snapshot.StreakDays)
		require.NotNil(t, snapshot.LastSessionAt)
		assert.Equal(t, lastSession, *snapshot.LastSessionAt)
		assert.Equal(t, []int{12, 8, 0, 15, 22, 9, 30}, snapshot.DailyDurations)
		assert.Equal(t, models.TonePositive, snapshot.CurrentTone)
		assert.Equal(t, updatedAt, snapshot.LastUpdated)
		require.NotNil(t, snapshot.DailySentiment[0])
		assert.Equal(t, "0.55", snapshot.DailySentiment[0].StringFixed(2))
		assert.Nil(t, snapshot.DailySentiment[1])
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStreakDays(t *testing.T) {
	tests := []struct {
		name     string
		activity []bool
		expected int
	}{
		{"AllActive", []bool{true, true, true, true, true, true, true}, 7},
		{"BrokenMidWindow", []bool{true, true, false, true, true, true, true}, 4},
		{"TodayInactive", []bool{true, true, true, true, true, true, false}, 0},
		{"AllInactive", make([]bool, 7), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, models.StreakDays(tt.activity))
		})
	}
}
