package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/socialpilot/api/schemas"
	"go.uber.org/zap"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(interface{}) bool

func (f ArgumentMatcherFunc) Match(v interface{}) bool {
	return f(v)
}

// anyTime accepts any value (used for timestamps we can't predict exactly)
var anyTime = ArgumentMatcherFunc(func(v interface{}) bool {
	_, ok := v.(time.Time)
	return ok
})

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return s, mockPool
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newTestStore(t)
	mockPool.ExpectExec(flexibleSQLMatcher(schemaDDL)).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSessionBlobs(t *testing.T) {
	ctx := context.Background()

	t.Run("load returns the stored blob", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectSession)).
			WithArgs("linkedin").
			WillReturnRows(pgxmock.NewRows([]string{"blob"}).AddRow([]byte("sealed")))

		blob, err := s.LoadSessionBlob(ctx, "linkedin")
		require.NoError(t, err)
		assert.Equal(t, []byte("sealed"), blob)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("load of a missing row is ErrNotFound", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectSession)).
			WithArgs("x").
			WillReturnRows(pgxmock.NewRows([]string{"blob"}))

		_, err := s.LoadSessionBlob(ctx, "x")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("save upserts", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertSession)).
			WithArgs("x", []byte("sealed"), anyTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.SaveSessionBlob(ctx, "x", []byte("sealed")))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("delete propagates driver errors", func(t *testing.T) {
		s, mockPool := newTestStore(t)
		dbErr := errors.New("connection reset")
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteSession)).
			WithArgs("x").
			WillReturnError(dbErr)

		err := s.DeleteSessionBlob(ctx, "x")
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestInsertStep(t *testing.T) {
	s, mockPool := newTestStore(t)
	rec := schemas.StepRecord{
		RunID:      "run-1",
		StepType:   "publish.navigate",
		Status:     schemas.StepCompleted,
		Input:      json.RawMessage(`{"url":"https://x.com/home"}`),
		DurationMs: 120,
		CreatedAt:  time.Now(),
	}

	mockPool.ExpectQuery(flexibleSQLMatcher(sqlInsertStep)).
		WithArgs("run-1", "publish.navigate", "completed", []byte(rec.Input), nil, "", int64(120), anyTime).
		WillReturnRows(pgxmock.NewRows([]string{"step_index"}).AddRow(3))

	index, err := s.InsertStep(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 3, index)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
