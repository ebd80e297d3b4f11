package rbac

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitragupt/chitragupt/pkg/observability"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	s := NewStore(t.TempDir(), "rules.json", "users.json", "requests.json", logger, nil)
	require.NoError(t, s.Load())
	return s
}

func TestStoreLoad(t *testing.T) {
	t.Run("seeds default rules on first run", func(t *testing.T) {
		s := newTestStore(t)

		rule, ok := s.Rule(LevelGuest)
		require.True(t, ok)
		assert.Equal(t, "Guest", rule.Name)
		assert.Equal(t, []string{ActionViewHelp}, rule.Actions)

		rule, ok = s.Rule(LevelSuperAdmin)
		require.True(t, ok)
		assert.Equal(t, []string{WildcardAction}, rule.Actions)

		_, err := os.Stat(s.RulesPath())
		assert.NoError(t, err, "defaults should be persisted")
	})

	t.Run("fails on malformed rules document", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.json"), []byte("{not json"), 0o644))

		logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
		s := NewStore(dir, "rules.json", "users.json", "requests.json", logger, nil)
		err := s.Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCorruptStore)
	})

	t.Run("fails on unknown level key in rules", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.json"),
			[]byte(`{"37": {"name": "Oddball", "actions": []}}`), 0o644))

		logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
		s := NewStore(dir, "rules.json", "users.json", "requests.json", logger, nil)
		assert.ErrorIs(t, s.Load(), ErrCorruptStore)
	})

	t.Run("fails on malformed users document", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "users.json"), []byte(`{"42": {"level": 7}}`), 0o644))

		logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
		s := NewStore(dir, "rules.json", "users.json", "requests.json", logger, nil)
		assert.ErrorIs(t, s.Load(), ErrCorruptStore)
	})

	t.Run("starts with empty users when document absent", func(t *testing.T) {
		s := newTestStore(t)
		assert.Empty(t, s.ListPrincipals())
	})
}

func TestStoreUpsertPrincipal(t *testing.T) {
	t.Run("round trips a principal", func(t *testing.T) {
		s := newTestStore(t)

		require.NoError(t, s.UpsertPrincipal(Principal{ID: 42, Name: "Alice", Level: LevelAdmin}))

		p, ok := s.GetPrincipal(42)
		require.True(t, ok)
		assert.Equal(t, "Alice", p.Name)
		assert.Equal(t, LevelAdmin, p.Level)
	})

	t.Run("rejects invalid level without mutating", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.UpsertPrincipal(Principal{ID: 42, Name: "Alice", Level: LevelMember}))

		err := s.UpsertPrincipal(Principal{ID: 42, Name: "Alice", Level: Level(37)})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidLevel)

		p, _ := s.GetPrincipal(42)
		assert.Equal(t, LevelMember, p.Level, "failed upsert must leave the store untouched")
	})

	t.Run("keeps metadata across level changes", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.UpsertPrincipal(Principal{
			ID: 7, Name: "Bob", Level: LevelMember, Username: "bob", LanguageCode: "de",
		}))

		require.NoError(t, s.UpsertPrincipal(Principal{ID: 7, Level: LevelModerator}))

		p, _ := s.GetPrincipal(7)
		assert.Equal(t, "Bob", p.Name)
		assert.Equal(t, "bob", p.Username)
		assert.Equal(t, "de", p.LanguageCode)
		assert.Equal(t, LevelModerator, p.Level)
	})

	t.Run("survives reload", func(t *testing.T) {
		dir := t.TempDir()
		logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
		s := NewStore(dir, "rules.json", "users.json", "requests.json", logger, nil)
		require.NoError(t, s.Load())
		require.NoError(t, s.UpsertPrincipal(Principal{ID: 42, Name: "Alice", Level: LevelAdmin, Special: true}))

		reopened := NewStore(dir, "rules.json", "users.json", "requests.json", logger, nil)
		require.NoError(t, reopened.Load())

		p, ok := reopened.GetPrincipal(42)
		require.True(t, ok)
		assert.Equal(t, "Alice", p.Name)
		assert.Equal(t, LevelAdmin, p.Level)
		assert.True(t, p.Special)
	})

	t.Run("concurrent upserts land intact", func(t *testing.T) {
		s := newTestStore(t)

		const n = 50
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.UpsertPrincipal(Principal{
					ID:    int64(1000 + i),
					Name:  fmt.Sprintf("user-%d", i),
					Level: LevelMember,
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		assert.Len(t, s.ListByLevel(LevelMember), n)

		// the final document on disk must be valid JSON with every write present
		logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
		reopened := NewStore(s.dir, "rules.json", "users.json", "requests.json", logger, nil)
		require.NoError(t, reopened.Load())
		assert.Len(t, reopened.ListByLevel(LevelMember), n)
	})
}

func TestStoreListByLevel(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertPrincipal(Principal{ID: 3, Name: "c", Level: LevelSuperAdmin}))
	require.NoError(t, s.UpsertPrincipal(Principal{ID: 1, Name: "a", Level: LevelSuperAdmin}))
	require.NoError(t, s.UpsertPrincipal(Principal{ID: 2, Name: "b", Level: LevelMember}))

	assert.Equal(t, []int64{1, 3}, s.ListByLevel(LevelSuperAdmin))
	assert.Equal(t, []int64{2}, s.ListByLevel(LevelMember))
	assert.Empty(t, s.ListByLevel(LevelModerator))
}

func TestStoreSyncSuperAdmin(t *testing.T) {
	t.Run("creates missing operator at level 100", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.SyncSuperAdmin(99, "op"))

		p, ok := s.GetPrincipal(99)
		require.True(t, ok)
		assert.Equal(t, LevelSuperAdmin, p.Level)
	})

	t.Run("promotes a demoted operator back", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.UpsertPrincipal(Principal{ID: 99, Name: "op", Level: LevelMember}))
		require.NoError(t, s.SyncSuperAdmin(99, "op"))

		p, _ := s.GetPrincipal(99)
		assert.Equal(t, LevelSuperAdmin, p.Level)
	})
}

func TestStoreRequests(t *testing.T) {
	t.Run("put and resolve", func(t *testing.T) {
		s := newTestStore(t)

		req := PendingRequest{
			RequesterID: 42,
			Status:      StatusPending,
			CreatedAt:   time.Now().UTC(),
			Prompts:     []Prompt{{ChatID: 1, MessageID: 10}, {ChatID: 2, MessageID: 20}},
		}
		stored, created, err := s.PutRequest(req)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, StatusPending, stored.Status)

		resolved, err := s.ResolveRequest(42, StatusApproved)
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, resolved.Status)
		assert.Len(t, resolved.Prompts, 2)
	})

	t.Run("second decision loses", func(t *testing.T) {
		s := newTestStore(t)
		_, _, err := s.PutRequest(PendingRequest{RequesterID: 42, Status: StatusPending, CreatedAt: time.Now()})
		require.NoError(t, err)

		_, err = s.ResolveRequest(42, StatusApproved)
		require.NoError(t, err)

		winner, err := s.ResolveRequest(42, StatusRejected)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAlreadyResolved)
		assert.Equal(t, StatusApproved, winner.Status, "loser sees the winning record")
	})

	t.Run("racing decisions admit exactly one winner", func(t *testing.T) {
		s := newTestStore(t)
		_, _, err := s.PutRequest(PendingRequest{RequesterID: 42, Status: StatusPending, CreatedAt: time.Now()})
		require.NoError(t, err)

		const n = 10
		results := make(chan error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				decision := StatusApproved
				if i%2 == 1 {
					decision = StatusRejected
				}
				_, err := s.ResolveRequest(42, decision)
				results <- err
			}(i)
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			if err == nil {
				wins++
			} else {
				assert.ErrorIs(t, err, ErrAlreadyResolved)
			}
		}
		assert.Equal(t, 1, wins)
	})

	t.Run("duplicate pending request is not replaced", func(t *testing.T) {
		s := newTestStore(t)
		first := PendingRequest{RequesterID: 42, Status: StatusPending, CreatedAt: time.Now(), Prompts: []Prompt{{ChatID: 1, MessageID: 10}}}
		_, created, err := s.PutRequest(first)
		require.NoError(t, err)
		require.True(t, created)

		existing, created, err := s.PutRequest(PendingRequest{RequesterID: 42, Status: StatusPending, CreatedAt: time.Now()})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.Prompts, existing.Prompts)
	})

	t.Run("terminal request may be superseded", func(t *testing.T) {
		s := newTestStore(t)
		_, _, err := s.PutRequest(PendingRequest{RequesterID: 42, Status: StatusPending, CreatedAt: time.Now()})
		require.NoError(t, err)
		_, err = s.ResolveRequest(42, StatusRejected)
		require.NoError(t, err)

		_, created, err := s.PutRequest(PendingRequest{RequesterID: 42, Status: StatusPending, CreatedAt: time.Now()})
		require.NoError(t, err)
		assert.True(t, created)
	})

	t.Run("expire rejects only stale pending requests", func(t *testing.T) {
		s := newTestStore(t)
		old := time.Now().Add(-2 * time.Hour)
		_, _, err := s.PutRequest(PendingRequest{RequesterID: 1, Status: StatusPending, CreatedAt: old})
		require.NoError(t, err)
		_, _, err = s.PutRequest(PendingRequest{RequesterID: 2, Status: StatusPending, CreatedAt: time.Now()})
		require.NoError(t, err)

		expired, err := s.ExpireRequests(time.Now().Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, int64(1), expired[0].RequesterID)
		assert.Equal(t, StatusRejected, expired[0].Status)

		fresh, _ := s.GetRequest(2)
		assert.Equal(t, StatusPending, fresh.Status)
	})
}

func TestStoreAtomicWrite(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertPrincipal(Principal{ID: 1, Name: "a", Level: LevelMember}))

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "no temp files may survive a write")
	}
}

func TestStorePing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))

	missing := NewStore(filepath.Join(t.TempDir(), "gone"), "rules.json", "users.json", "requests.json",
		observability.NewLogger(observability.ErrorLevel, io.Discard), nil)
	assert.Error(t, missing.Ping(context.Background()))
}
