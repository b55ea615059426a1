package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/jobs"
)

func TestJobStatusStore_RoundTripWithTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewJobStatusStore(client, time.Hour, zap.NewNop())
	ctx := context.Background()

	job := jobs.NewSyncJob("app-1", "org-1")
	st := jobs.PendingStatus(job)
	st.State = jobs.StateSuccess
	st.Result = map[string]any{"synced": float64(3)}
	require.NoError(t, store.Put(ctx, st))

	got, err := store.Get(ctx, job.ID.String())
	require.NoError(t, err)
	assert.Equal(t, jobs.StateSuccess, got.State)
	assert.Equal(t, "org-1", got.OrgID)
	assert.Equal(t, float64(3), got.Result["synced"])
	assert.Equal(t, time.Hour, mr.TTL("job:"+job.ID.String()))

	mr.FastForward(2 * time.Hour)
	_, err = store.Get(ctx, job.ID.String())
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestJobStatusStore_DefaultTTL(t *testing.T) {
	store := NewJobStatusStore(nil, 0, zap.NewNop())
	assert.Equal(t, DefaultJobStatusTTL, store.ttl)
}

func TestJobStatusStore_Errors(t *testing.T) {
	tests := []struct {
		name    string
		expect  func(redismock.ClientMock)
		wantErr string
		wantIs  error
	}{
		{
			name:   "missing",
			expect: func(m redismock.ClientMock) { m.ExpectGet("job:j1").RedisNil() },
			wantIs: jobs.ErrJobNotFound,
		},
		{
			name:    "connection failure",
			expect:  func(m redismock.ClientMock) { m.ExpectGet("job:j1").SetErr(errors.New("connection refused")) },
			wantErr: "redis get failed",
		},
		{
			name:    "corrupt document",
			expect:  func(m redismock.ClientMock) { m.ExpectGet("job:j1").SetVal("{not json") },
			wantErr: "invalid job status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rdb, mock := redismock.NewClientMock()
			tt.expect(mock)
			store := NewJobStatusStore(Wrap(rdb, zap.NewNop()), time.Minute, zap.NewNop())

			_, err := store.Get(context.Background(), "j1")
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
