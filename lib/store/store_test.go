package store

import (
	"github.com/cyclopcam/connect/lib/registry"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"os"
	"path/filepath"
	"testing"
)

func createLevelDB(t *testing.T) *LevelDB {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	require.Nil(t, err)
	s, err := NewLevelDB(db)
	require.Nil(t, err)
	return s
}

func createSqlite(t *testing.T) *Gorm {
	db, err := OpenGorm(DriverSqlite, filepath.Join(t.TempDir(), "devices.db"))
	require.Nil(t, err)
	s, err := NewGorm(db)
	require.Nil(t, err)
	return s
}

func record(id string, name string) registry.Record {
	return registry.Record{
		ID:            id,
		LanIP:         "192.168.1.12",
		Name:          name,
		BearerToken:   "token-" + id,
		SessionCookie: "cookie-" + id,
		State:         registry.StateUnmodified,
	}
}

func ids(records []registry.Record) (out []string) {
	for _, r := range records {
		out = append(out, r.ID)
	}
	return
}

// testStore runs the behaviour every registry.Store must have.
func testStore(t *testing.T, s registry.Store) {
	records, lastUsed, err := s.Load()
	require.Nil(t, err)
	assert.Empty(t, records)
	assert.Equal(t, "", lastUsed)

	c, a, b := record("c", "Garage"), record("a", "Porch"), record("b", "Shed")
	require.Nil(t, s.Apply([]registry.Op{{Kind: registry.OpInsert, Record: c}}))
	require.Nil(t, s.Apply([]registry.Op{
		{Kind: registry.OpInsert, Record: a},
		{Kind: registry.OpInsert, Record: b},
	}))

	records, _, err = s.Load()
	require.Nil(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids(records))
	assert.Equal(t, c, records[0])

	// Updates keep the position, replays are harmless.
	c.SessionCookie = "renewed"
	update := []registry.Op{{Kind: registry.OpUpdate, Record: c}}
	require.Nil(t, s.Apply(update))
	require.Nil(t, s.Apply(update))
	remove := []registry.Op{{Kind: registry.OpDelete, Record: a}}
	require.Nil(t, s.Apply(remove))
	require.Nil(t, s.Apply(remove))

	records, _, err = s.Load()
	require.Nil(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(records))
	assert.Equal(t, "renewed", records[0].SessionCookie)

	require.Nil(t, s.SetLastUsed("b"))
	_, lastUsed, err = s.Load()
	require.Nil(t, err)
	assert.Equal(t, "b", lastUsed)
	require.Nil(t, s.SetLastUsed(""))
	_, lastUsed, err = s.Load()
	require.Nil(t, err)
	assert.Equal(t, "", lastUsed)

	require.Nil(t, s.SetLastUsed("c"))
	require.Nil(t, s.Clear())
	records, lastUsed, err = s.Load()
	require.Nil(t, err)
	assert.Empty(t, records)
	assert.Equal(t, "", lastUsed)

	require.Nil(t, s.Close())
}

func TestCodec(t *testing.T) {
	e := entry{Record: record("id", "Garage"), Seq: 300}
	decoded, err := decodeEntry(encodeEntry(e))
	require.Nil(t, err)
	assert.Equal(t, e, decoded)

	_, err = decodeEntry([]byte{0x0a, 0x05, 'a'})
	assert.NotNil(t, err)
	_, err = decodeEntry(nil)
	assert.NotNil(t, err)
}

func TestLevelDB(t *testing.T) {
	testStore(t, createLevelDB(t))
}

func TestLevelDB_Reopen(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenLevelDB(dir)
	require.Nil(t, err)
	require.Nil(t, s.Apply([]registry.Op{{Kind: registry.OpInsert, Record: record("x", "X")}}))
	require.Nil(t, s.Close())

	s, err = OpenLevelDB(dir)
	require.Nil(t, err)
	defer s.Close()
	require.Nil(t, s.Apply([]registry.Op{{Kind: registry.OpInsert, Record: record("a", "A")}}))
	records, _, err := s.Load()
	require.Nil(t, err)
	assert.Equal(t, []string{"x", "a"}, ids(records))
}

func TestGorm_Sqlite(t *testing.T) {
	testStore(t, createSqlite(t))
}

func TestGorm_Postgres(t *testing.T) {
	dsn := os.Getenv("CYCLOPS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CYCLOPS_TEST_POSTGRES_DSN is not set")
	}
	db, err := OpenGorm(DriverPostgres, dsn)
	require.Nil(t, err)
	s, err := NewGorm(db)
	require.Nil(t, err)
	require.Nil(t, s.Clear())
	testStore(t, s)
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}
	s := NewRedis(redis.NewClient(&redis.Options{Addr: addr}), "cyclops-test:")
	require.Nil(t, s.Clear())
	testStore(t, s)
}

func TestRegistryOnLevelDB(t *testing.T) {
	s := createLevelDB(t)
	r, err := registry.Open(s)
	require.Nil(t, err)
	require.Nil(t, r.Upsert("192.168.1.12", "id1", "token", "Garage", "cookie"))
	require.Nil(t, r.SetLastUsed("id1"))

	reloaded, err := registry.Open(s)
	require.Nil(t, err)
	rec, ok := reloaded.LastUsed()
	require.True(t, ok)
	assert.Equal(t, "Garage", rec.Name)
	assert.Equal(t, "cookie", rec.SessionCookie)
}
