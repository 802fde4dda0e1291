package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockDB opens a gorm handle over sqlmock with the default regexp
// matcher, so expectations only need a recognizable SQL fragment.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	require.NoError(t, err)
	return db, mock
}

func TestMessageRepositorySoftDelete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepository(db)
	id := uuid.New()

	mock.ExpectExec(`UPDATE "messages" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SoftDelete(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepositorySoftDeleteMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepository(db)

	mock.ExpectExec(`UPDATE "messages" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SoftDelete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepositoryMarkConversationRead(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepository(db)
	convID, readerID := uuid.New(), uuid.New()

	mock.ExpectExec(`INSERT INTO read_receipts`).
		WithArgs(readerID, convID, readerID).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.MarkConversationRead(context.Background(), convID, readerID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepositoryDeleteReactionAbsent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepository(db)

	mock.ExpectExec(`DELETE FROM "message_reactions"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// Removing a reaction that does not exist is a no-op, not an error
	require.NoError(t, repo.DeleteReaction(context.Background(), uuid.New(), uuid.New()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepositoryTouch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepository(db)

	mock.ExpectExec(`UPDATE "conversations" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Touch(context.Background(), uuid.New()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepositoryRenameMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepository(db)

	mock.ExpectExec(`UPDATE "conversations" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Rename(context.Background(), uuid.New(), "new name")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepositoryRemoveParticipantAbsent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepository(db)

	mock.ExpectExec(`DELETE FROM "conversation_members"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.RemoveParticipant(context.Background(), uuid.New(), uuid.New()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepositoryTokensForUsers(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDeviceRepository(db)
	userID := uuid.New()

	rows := sqlmock.NewRows([]string{"fcm_token"}).
		AddRow("token-a").
		AddRow("token-b")
	mock.ExpectQuery(`SELECT "fcm_token" FROM "user_devices"`).
		WillReturnRows(rows)

	tokens, err := repo.TokensForUsers(context.Background(), []uuid.UUID{userID})
	require.NoError(t, err)
	assert.Equal(t, []string{"token-a", "token-b"}, tokens)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepositoryTokensForNoUsers(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewDeviceRepository(db)

	// Short-circuits without touching the database
	tokens, err := repo.TokensForUsers(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, tokens)
}
