package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStorage struct {
	*MemoryStorage
	saveErr error
}

func (f *failingStorage) Save(rec *Record) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryStorage.Save(rec)
}

func TestNewStore(t *testing.T) {
	t.Run("starts anonymous without a record", func(t *testing.T) {
		store := NewStore(NewMemoryStorage())

		sess := store.Get()
		assert.False(t, sess.Authenticated)
		assert.Empty(t, sess.Token)
		assert.Nil(t, sess.User)
	})

	t.Run("restores a persisted token without a network call", func(t *testing.T) {
		storage := NewMemoryStorage()
		require.NoError(t, storage.Save(&Record{Token: "tok_abc"}))

		store := NewStore(storage)

		sess := store.Get()
		assert.True(t, sess.Authenticated)
		assert.Equal(t, "tok_abc", sess.Token)
	})

	t.Run("drops a user persisted without a token", func(t *testing.T) {
		storage := NewMemoryStorage()
		require.NoError(t, storage.Save(&Record{User: &User{ID: 7, Username: "nurse1"}}))

		store := NewStore(storage)

		sess := store.Get()
		assert.False(t, sess.Authenticated)
		assert.Nil(t, sess.User)
	})

	t.Run("starts anonymous on a corrupt record", func(t *testing.T) {
		storage := NewMemoryStorage()
		storage.data = []byte("{not json")

		store := NewStore(storage)
		assert.False(t, store.Authenticated())
	})
}

func TestStore_SetSession(t *testing.T) {
	t.Run("marks the session authenticated", func(t *testing.T) {
		store := NewStore(NewMemoryStorage())

		for _, token := range []string{"tok_abc", "tok_def", "x"} {
			require.NoError(t, store.SetSession(token, nil))

			sess := store.Get()
			assert.True(t, sess.Authenticated)
			assert.Equal(t, token, sess.Token)
		}
	})

	t.Run("clears a stale user", func(t *testing.T) {
		store := NewStore(NewMemoryStorage())
		require.NoError(t, store.SetSession("tok_abc", nil))
		require.NoError(t, store.SetUser(User{ID: 7, Username: "nurse1", Role: "staff"}))

		require.NoError(t, store.SetSession("tok_def", nil))
		assert.Nil(t, store.Get().User)
	})

	t.Run("rejects an empty token", func(t *testing.T) {
		store := NewStore(NewMemoryStorage())

		err := store.SetSession("", nil)
		require.ErrorIs(t, err, ErrValidation)
		assert.False(t, store.Authenticated())
	})

	t.Run("leaves memory untouched when persisting fails", func(t *testing.T) {
		storage := &failingStorage{MemoryStorage: NewMemoryStorage(), saveErr: errors.New("disk full")}
		store := NewStore(storage)

		err := store.SetSession("tok_abc", nil)
		require.Error(t, err)
		assert.False(t, store.Authenticated())
	})
}

func TestStore_SetUser(t *testing.T) {
	t.Run("is a no-op without a session", func(t *testing.T) {
		storage := NewMemoryStorage()
		store := NewStore(storage)

		require.NoError(t, store.SetUser(User{ID: 7, Username: "nurse1", Role: "staff"}))

		sess := store.Get()
		assert.Nil(t, sess.User)
		assert.False(t, sess.Authenticated)
		assert.Nil(t, storage.Bytes())
	})

	t.Run("sets the user on an authenticated session", func(t *testing.T) {
		store := NewStore(NewMemoryStorage())
		require.NoError(t, store.SetSession("tok_abc", nil))

		require.NoError(t, store.SetUser(User{ID: 7, Username: "nurse1", Role: "staff"}))

		sess := store.Get()
		require.NotNil(t, sess.User)
		assert.Equal(t, int64(7), sess.User.ID)
		assert.Equal(t, "tok_abc", sess.Token)
	})

	t.Run("snapshots are not aliased", func(t *testing.T) {
		store := NewStore(NewMemoryStorage())
		require.NoError(t, store.SetSession("tok_abc", &User{ID: 7, Username: "nurse1"}))

		snap := store.Get()
		snap.User.Username = "mallory"

		assert.Equal(t, "nurse1", store.Get().User.Username)
	})
}

func TestStore_Logout(t *testing.T) {
	t.Run("is idempotent", func(t *testing.T) {
		for n := 1; n <= 3; n++ {
			store := NewStore(NewMemoryStorage())
			require.NoError(t, store.SetSession("tok_abc", &User{ID: 7}))

			for i := 0; i < n; i++ {
				require.NoError(t, store.Logout())
			}

			assert.Equal(t, Session{}, store.Get())
		}
	})

	t.Run("from anonymous", func(t *testing.T) {
		store := NewStore(NewMemoryStorage())
		require.NoError(t, store.Logout())
		assert.Equal(t, Session{}, store.Get())
	})

	t.Run("clears memory even when persisting fails", func(t *testing.T) {
		storage := &failingStorage{MemoryStorage: NewMemoryStorage()}
		store := NewStore(storage)
		require.NoError(t, store.SetSession("tok_abc", nil))

		storage.saveErr = errors.New("disk full")
		require.Error(t, store.Logout())
		assert.False(t, store.Authenticated())
	})

	t.Run("persists the cleared state", func(t *testing.T) {
		storage := NewMemoryStorage()
		store := NewStore(storage)
		require.NoError(t, store.SetSession("tok_abc", nil))
		require.NoError(t, store.Logout())

		reloaded := NewStore(storage)
		assert.False(t, reloaded.Authenticated())
	})
}

func TestStore_PersistRoundTrip(t *testing.T) {
	storage := NewMemoryStorage()
	store := NewStore(storage)
	require.NoError(t, store.SetSession("tok_abc", nil))
	require.NoError(t, store.SetUser(User{ID: 7, Username: "nurse1", Role: "staff"}))

	before := store.Get()
	reloaded := NewStore(storage)

	assert.Equal(t, before, reloaded.Get())
}

func TestStore_Token(t *testing.T) {
	store := NewStore(NewMemoryStorage())

	_, err := store.Token()
	require.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, store.SetSession("tok_abc", nil))
	tok, err := store.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok_abc", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.Type())
}

func TestStore_Subscribe(t *testing.T) {
	store := NewStore(NewMemoryStorage())

	var seen []bool
	unsubscribe := store.Subscribe(func(s Session) {
		seen = append(seen, s.Authenticated)
		// reading from a subscriber must not deadlock
		_ = store.Get()
	})

	require.NoError(t, store.SetSession("tok_abc", nil))
	require.NoError(t, store.SetUser(User{ID: 7}))
	require.NoError(t, store.Logout())

	unsubscribe()
	require.NoError(t, store.SetSession("tok_def", nil))

	assert.Equal(t, []bool{true, true, false}, seen)
}
