package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionpulse/telemetry-service/internal/models"
	"sessionpulse/telemetry-service/internal/repository"
	"sessionpulse/telemetry-service/pkg/helpers"
	"sessionpulse/telemetry-service/pkg/logger"
)

func newCommandFixture(t *testing.T) (*CommandService, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	service := NewCommandService(repository.NewCommandRepository(db), logger.NewLogger("test"))
	return service, mock, func() { db.Close() }
}

func TestCommandService_Queue(t *testing.T) {
	ctx := context.Background()

	t.Run("QueuesPendingCommand", func(t *testing.T) {
		service, mock, closeDB := newCommandFixture(t)
		defer closeDB()

		mock.ExpectExec("INSERT INTO device_commands").
			WillReturnResult(sqlmock.NewResult(1, 1))

		cmd, err := service.Queue(ctx, "rpi-001", models.CommandReboot)
		require.NoError(t, err)

		_, err = uuid.Parse(cmd.ID)
		assert.NoError(t, err)
		assert.Equal(t, "rpi-001", cmd.DeviceID)
		assert.Equal(t, models.CommandStatusPending, cmd.Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RejectsUnknownCommandType", func(t *testing.T) {
		service, mock, closeDB := newCommandFixture(t)
		defer closeDB()

		_, err := service.Queue(ctx, "rpi-001", "SELF_DESTRUCT")
		require.Error(t, err)

		var verr *helpers.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "command_type")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCommandService_PollPending(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC)

	t.Run("ClaimsOldestPendingCommand", func(t *testing.T) {
		service, mock, closeDB := newCommandFixture(t)
		defer closeDB()

		commandID := uuid.NewString()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, device_id, command_type, status, error_message, created_at, updated_at").
			WithArgs("rpi-001").
			WillReturnRows(sqlmock.NewRows([]string{"id", "device_id", "command_type", "status", "error_message", "created_at", "updated_at"}).
				AddRow(commandID, "rpi-001", models.CommandUploadLogs, models.CommandStatusPending, nil, createdAt, createdAt))
		mock.ExpectExec("UPDATE device_commands SET status = 'PICKED_UP'").
			WithArgs(commandID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		cmd, err := service.PollPending(ctx, "rpi-001")
		require.NoError(t, err)
		require.NotNil(t, cmd)
		assert.Equal(t, commandID, cmd.ID)
		assert.Equal(t, models.CommandStatusPickedUp, cmd.Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NothingQueuedReturnsNil", func(t *testing.T) {
		service, mock, closeDB := newCommandFixture(t)
		defer closeDB()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, device_id, command_type, status, error_message, created_at, updated_at").
			WithArgs("rpi-001").
			WillReturnRows(sqlmock.NewRows([]string{"id", "device_id", "command_type", "status", "error_message", "created_at", "updated_at"}))
		mock.ExpectRollback()

		cmd, err := service.PollPending(ctx, "rpi-001")
		require.NoError(t, err)
		assert.Nil(t, cmd)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCommandService_ReportStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("RecordsTerminalStatus", func(t *testing.T) {
		service, mock, closeDB := newCommandFixture(t)
		defer closeDB()

		commandID := uuid.NewString()
		errMsg := "service restart timed out"

		mock.ExpectExec("UPDATE device_commands").
			WithArgs(models.CommandStatusFailed, errMsg, commandID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.ReportStatus(ctx, commandID, models.CommandStatusFailed, &errMsg)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RejectsNonTerminalStatus", func(t *testing.T) {
		service, mock, closeDB := newCommandFixture(t)
		defer closeDB()

		err := service.ReportStatus(ctx, uuid.NewString(), models.CommandStatusPending, nil)
		require.Error(t, err)

		var verr *helpers.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "status")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RejectsMalformedCommandID", func(t *testing.T) {
		service, _, closeDB := newCommandFixture(t)
		defer closeDB()

		err := service.ReportStatus(ctx, "not-a-uuid", models.CommandStatusCompleted, nil)

		var verr *helpers.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "command_id")
	})

	t.Run("UnknownCommandIsValidationError", func(t *testing.T) {
		service, mock, closeDB := newCommandFixture(t)
		defer closeDB()

		commandID := uuid.NewString()
		mock.ExpectExec("UPDATE device_commands").
			WithArgs(models.CommandStatusCompleted, nil, commandID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.ReportStatus(ctx, commandID, models.CommandStatusCompleted, nil)

		var verr *helpers.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "command_id")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
