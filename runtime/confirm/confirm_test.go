package confirm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PrepareThenCommitRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	plan, err := s.Prepare(context.Background(), "accounts.archive", "t1", "u1", map[string]string{"accountId": "123"}, time.Minute)
	require.NoError(t, err)
	require.Len(t, plan.ID, 32)

	committed, err := s.Commit(context.Background(), plan.ID, "t1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "123", committed.Data["accountId"])
}

func TestMemoryStore_CommitIsConsumedOnce(t *testing.T) {
	s := NewMemoryStore()
	plan, err := s.Prepare(context.Background(), "accounts.archive", "t1", "u1", nil, time.Minute)
	require.NoError(t, err)

	_, err = s.Commit(context.Background(), plan.ID, "t1", "u1")
	require.NoError(t, err)

	_, err = s.Commit(context.Background(), plan.ID, "t1", "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_CommitRejectsOwnershipMismatch(t *testing.T) {
	s := NewMemoryStore()
	plan, err := s.Prepare(context.Background(), "accounts.archive", "t1", "u1", nil, time.Minute)
	require.NoError(t, err)

	_, err = s.Commit(context.Background(), plan.ID, "t2", "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_CommitRejectsExpiredPlan(t *testing.T) {
	s := NewMemoryStore()
	fixed := time.Now()
	s.now = func() time.Time { return fixed }

	plan, err := s.Prepare(context.Background(), "accounts.archive", "t1", "u1", nil, time.Minute)
	require.NoError(t, err)

	s.now = func() time.Time { return fixed.Add(2 * time.Minute) }
	_, err = s.Commit(context.Background(), plan.ID, "t1", "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClampTTL(t *testing.T) {
	assert.Equal(t, ttlDefault, ClampTTL(0))
	assert.Equal(t, ttlMin, ClampTTL(time.Millisecond))
	assert.Equal(t, ttlMax, ClampTTL(time.Hour))
	assert.Equal(t, 10*time.Minute, ClampTTL(10*time.Minute))
}

func TestExtractID(t *testing.T) {
	id, ok := ExtractID("please go ahead, CONFIRM: aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	require.True(t, ok)
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", id)

	_, ok = ExtractID("no confirmation token here")
	assert.False(t, ok)
}
