package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/depobot/internal/apperrors"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher(testKey())
	require.NoError(t, err)
	require.True(t, c.Enabled())

	sealed, err := c.Seal("access-token")
	require.NoError(t, err)
	assert.NotEqual(t, "access-token", sealed)

	opened, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "access-token", opened)

	other, err := NewCipher([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.Error(t, err, "a different key must not open the value")
}

func TestCipher_Disabled(t *testing.T) {
	c, err := NewCipher(nil)
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	sealed, err := c.Seal("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", sealed)

	_, err = NewCipher([]byte("short"))
	assert.Error(t, err)
}

func credentialStores(t *testing.T) map[string]CredentialStore {
	t.Helper()

	cipher, err := NewCipher(testKey())
	require.NoError(t, err)

	file, err := NewFileCredentialStore(t.TempDir(), nil)
	require.NoError(t, err)
	encrypted, err := NewFileCredentialStore(t.TempDir(), cipher)
	require.NoError(t, err)
	_, client := newTestRedis(t)

	return map[string]CredentialStore{
		"file":           file,
		"file-encrypted": encrypted,
		"redis":          NewRedisCredentialStore(client, cipher),
	}
}

func TestCredentialStore_SaveAndGet(t *testing.T) {
	for name, s := range credentialStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Get(ctx, "u1")
			assert.True(t, apperrors.IsNotFound(err), "expected not found, got %v", err)

			rec := TokenRecord{UserID: "u1", AccessToken: "a1", RefreshToken: "r1", ExpiresAt: 1700000000000}
			require.NoError(t, s.Save(ctx, rec))

			got, err := s.Get(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, rec, *got)

			// Last write wins.
			rec.AccessToken = "a2"
			require.NoError(t, s.Save(ctx, rec))
			got, err = s.Get(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, "a2", got.AccessToken)

			assert.True(t, apperrors.IsInvalidArgument(s.Save(ctx, TokenRecord{})))
		})
	}
}

func TestFileCredentialStore_EncryptsAtRest(t *testing.T) {
	dir := t.TempDir()
	cipher, err := NewCipher(testKey())
	require.NoError(t, err)
	s, err := NewFileCredentialStore(dir, cipher)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), TokenRecord{UserID: "u1", AccessToken: "secret-access", RefreshToken: "secret-refresh"}))

	raw, err := os.ReadFile(filepath.Join(dir, CredentialsFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-access")
	assert.NotContains(t, string(raw), "secret-refresh")
	assert.Contains(t, string(raw), `"userId": "u1"`)
}

func botRegistries(t *testing.T) map[string]BotRegistry {
	t.Helper()

	file, err := NewFileBotRegistry(t.TempDir())
	require.NoError(t, err)
	_, client := newTestRedis(t)

	return map[string]BotRegistry{
		"file":  file,
		"redis": NewRedisBotRegistry(client),
	}
}

func TestBotRegistry_AppendAndLatest(t *testing.T) {
	for name, r := range botRegistries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := r.LatestBot(ctx, "m1")
			require.NoError(t, err)
			assert.False(t, ok)

			key, err := r.RecordBot(ctx, "m1", "bot-a")
			require.NoError(t, err)
			assert.Equal(t, "botId_1", key)

			key, err = r.RecordBot(ctx, "m1", "bot-b")
			require.NoError(t, err)
			assert.Equal(t, "botId_2", key)

			latest, ok, err := r.LatestBot(ctx, "m1")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "bot-b", latest)

			// Other meetings are independent.
			key, err = r.RecordBot(ctx, "m2", "bot-c")
			require.NoError(t, err)
			assert.Equal(t, "botId_1", key)

			_, err = r.RecordBot(ctx, "", "bot")
			assert.True(t, apperrors.IsInvalidArgument(err))
			_, err = r.RecordBot(ctx, "m1", "")
			assert.True(t, apperrors.IsInvalidArgument(err))
		})
	}
}

func TestBotRegistry_ConcurrentRecordsKeepEveryEntry(t *testing.T) {
	const writers = 20

	for name, r := range botRegistries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var wg sync.WaitGroup
			keys := make(chan string, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					key, err := r.RecordBot(ctx, "busy", "bot-"+BotKey(i))
					assert.NoError(t, err)
					keys <- key
				}(i)
			}
			wg.Wait()
			close(keys)

			seen := make(map[string]bool)
			for key := range keys {
				assert.False(t, seen[key], "key %s allocated twice", key)
				seen[key] = true
			}
			assert.Len(t, seen, writers)
			assert.True(t, seen[BotKey(writers)])
		})
	}
}

func TestFileCredentialStore_ConcurrentSavesAcrossInstances(t *testing.T) {
	const users = 100
	dir := t.TempDir()

	first, err := NewFileCredentialStore(dir, nil)
	require.NoError(t, err)
	second, err := NewFileCredentialStore(dir, nil)
	require.NoError(t, err)
	stores := []CredentialStore{first, second}

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := TokenRecord{
				UserID:       fmt.Sprintf("user-%d", i),
				AccessToken:  fmt.Sprintf("access-%d", i),
				RefreshToken: fmt.Sprintf("refresh-%d", i),
				ExpiresAt:    int64(i),
			}
			assert.NoError(t, stores[i%2].Save(ctx, rec))
		}(i)
	}
	wg.Wait()

	reader, err := NewFileCredentialStore(dir, nil)
	require.NoError(t, err)
	for i := 0; i < users; i++ {
		rec, err := reader.Get(ctx, fmt.Sprintf("user-%d", i))
		require.NoError(t, err, "user-%d lost", i)
		assert.Equal(t, fmt.Sprintf("access-%d", i), rec.AccessToken)
	}
}

func TestLatestBot_UsesNumericSuffix(t *testing.T) {
	entries := map[string]string{
		"botId_2":  "second",
		"botId_10": "tenth",
		"botId_9":  "ninth",
		"botId_x":  "garbage",
		"other":    "ignored",
	}
	botID, ok := latestBot(entries)
	assert.True(t, ok)
	assert.Equal(t, "tenth", botID)

	_, ok = latestBot(map[string]string{"botId_x": "garbage"})
	assert.False(t, ok)
}

func TestNextBotKey_SkipsTakenKeys(t *testing.T) {
	assert.Equal(t, "botId_1", nextBotKey(nil))
	assert.Equal(t, "botId_3", nextBotKey(map[string]string{"botId_1": "a", "botId_2": "b"}))
	assert.Equal(t, "botId_3", nextBotKey(map[string]string{"botId_2": "a", "stray": "b"}))
}

func TestFileBotRegistry_SharedFileAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileBotRegistry(dir)
	require.NoError(t, err)
	b, err := NewFileBotRegistry(dir)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = a.RecordBot(ctx, "m1", "bot-a")
	require.NoError(t, err)
	key, err := b.RecordBot(ctx, "m1", "bot-b")
	require.NoError(t, err)
	assert.Equal(t, "botId_2", key)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "temp file left behind: %s", e.Name())
	}
}

func TestMemoryGuard_Claim(t *testing.T) {
	g := NewMemoryGuard()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := g.Claim(ctx, "meeting.ended:abc", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Claim(ctx, "meeting.ended:abc", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must be rejected")

	now = now.Add(2 * time.Hour)
	ok, err = g.Claim(ctx, "meeting.ended:abc", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "claim must be available again after expiry")

	_, err = g.Claim(ctx, "", time.Hour)
	assert.True(t, apperrors.IsInvalidArgument(err))
}

func TestRedisGuard_Claim(t *testing.T) {
	mr, client := newTestRedis(t)
	g := NewRedisGuard(client)
	ctx := context.Background()

	ok, err := g.Claim(ctx, "meeting.ended:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Claim(ctx, "meeting.ended:abc", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = g.Claim(ctx, "meeting.ended:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := ConnectRedis(context.Background(), RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	_ = client.Close()

	addr := mr.Addr()
	mr.Close()
	_, err = ConnectRedis(context.Background(), RedisOptions{Addr: addr})
	assert.Error(t, err)
}
