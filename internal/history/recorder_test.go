package history

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func addUser(t *testing.T, repo store.Repository, id string, authenticated bool) {
	t.Helper()
	now := time.Now()
	require.NoError(t, repo.UpsertUser(context.Background(), &domain.User{
		UserID: id, Username: id, Authenticated: authenticated,
		LastSeenAt: now, CreatedAt: now, UpdatedAt: now,
	}))
}

func TestRecordAndFetchRoundTrip(t *testing.T) {
	repo := newRepo(t)
	addUser(t, repo, "alice", true)
	rec := NewRecorder(repo, 8, 50, nil)
	defer rec.Close(context.Background())

	ctx := context.Background()
	u := rec.Record(ctx, domain.RoleUser, "hello", "chat-assistant", "alice", "doc text")
	require.NotNil(t, u)
	a := rec.Record(ctx, domain.RoleAssistant, "hi there", "chat-assistant", "alice", "")
	require.NotNil(t, a)

	got := rec.FetchHistory(ctx, "alice", "chat-assistant", 0)
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[0].Content)
	assert.Equal(t, "doc text", got[0].ExtractedText)
	assert.Equal(t, domain.RoleAssistant, got[1].Role)
	assert.True(t, got[0].CreatedAt.Before(got[1].CreatedAt))
}

func TestRecordSkipsMissingOrAnonymousOwner(t *testing.T) {
	repo := newRepo(t)
	addUser(t, repo, "device-1", false)
	rec := NewRecorder(repo, 8, 50, nil)
	defer rec.Close(context.Background())

	ctx := context.Background()
	assert.Nil(t, rec.Record(ctx, domain.RoleUser, "x", "chat-assistant", "", ""))
	assert.Nil(t, rec.Record(ctx, domain.RoleUser, "x", "chat-assistant", "device-1", ""))
	assert.Nil(t, rec.Record(ctx, domain.RoleUser, "x", "chat-assistant", "ghost", ""))

	assert.Empty(t, rec.FetchHistory(ctx, "device-1", "chat-assistant", 10))
}

func TestEnqueueWritesInOrderAndDrainsOnClose(t *testing.T) {
	repo := newRepo(t)
	addUser(t, repo, "alice", true)
	rec := NewRecorder(repo, 8, 50, nil)

	for i := 0; i < 3; i++ {
		ok := rec.Enqueue(
			domain.Turn{Role: domain.RoleUser, Content: "q", OwnerID: "alice", AgentID: "a"},
			domain.Turn{Role: domain.RoleAssistant, Content: "r", OwnerID: "alice", AgentID: "a"},
		)
		require.True(t, ok)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rec.Close(ctx))

	got, err := repo.ListTurns(context.Background(), "alice", "a", 10)
	require.NoError(t, err)
	require.Len(t, got, 6)
	for i, turn := range got {
		if i%2 == 0 {
			assert.Equal(t, domain.RoleUser, turn.Role)
		} else {
			assert.Equal(t, domain.RoleAssistant, turn.Role)
		}
	}

	assert.False(t, rec.Enqueue(domain.Turn{Role: domain.RoleUser, OwnerID: "alice", AgentID: "a"}))
}

type blockingStore struct {
	release chan struct{}
	inserts atomic.Int32
}

func (b *blockingStore) GetUser(context.Context, string) (*domain.User, error) {
	<-b.release
	return &domain.User{UserID: "alice", Authenticated: true}, nil
}

func (b *blockingStore) InsertTurn(context.Context, *domain.Turn) error {
	b.inserts.Add(1)
	return nil
}

func (b *blockingStore) ListTurns(context.Context, string, string, int) ([]domain.Turn, error) {
	return nil, errors.New("unavailable")
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	bs := &blockingStore{release: make(chan struct{})}
	rec := NewRecorder(bs, 1, 50, nil)

	turn := domain.Turn{Role: domain.RoleUser, OwnerID: "alice", AgentID: "a"}
	// the worker may take the first batch off the queue and block on it
	accepted := 0
	for i := 0; i < 5; i++ {
		if rec.Enqueue(turn) {
			accepted++
		}
	}
	assert.Less(t, accepted, 5)

	close(bs.release)
	require.NoError(t, rec.Close(context.Background()))
	assert.Equal(t, int32(accepted), bs.inserts.Load())
}

func TestFetchHistorySwallowsStoreErrors(t *testing.T) {
	bs := &blockingStore{release: make(chan struct{})}
	close(bs.release)
	rec := NewRecorder(bs, 1, 50, nil)
	defer rec.Close(context.Background())

	got := rec.FetchHistory(context.Background(), "alice", "a", 5)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

type countingPruner struct {
	calls atomic.Int32
}

func (c *countingPruner) PruneTurns(context.Context, time.Time) (int64, error) {
	c.calls.Add(1)
	return 2, nil
}

func TestRetentionWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &countingPruner{}
	startRetentionWorker(ctx, p, time.Hour, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	disabled := &countingPruner{}
	startRetentionWorker(ctx, disabled, 0, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), disabled.calls.Load())
}

func TestFetchHistoryAcrossAgents(t *testing.T) {
	repo := newRepo(t)
	addUser(t, repo, "alice", true)
	rec := NewRecorder(repo, 8, 50, nil)
	defer rec.Close(context.Background())

	ctx := context.Background()
	require.NotNil(t, rec.Record(ctx, domain.RoleUser, "general", "chat-assistant", "alice", ""))
	require.NotNil(t, rec.Record(ctx, domain.RoleUser, "contract", "compliance-expert", "alice", ""))

	all := rec.FetchHistory(ctx, "alice", "", 0)
	require.Len(t, all, 2)
	assert.Equal(t, "chat-assistant", all[0].AgentID)
	assert.Equal(t, "compliance-expert", all[1].AgentID)

	assert.Len(t, rec.FetchHistory(ctx, "alice", "compliance-expert", 0), 1)
}
