package registry

import (
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

var errWrite = errors.New("disk full")

// memStore keeps records in insertion order, like the real stores.
type memStore struct {
	records  []Record
	lastUsed string
	applies  int
	fail     bool
	closed   bool
}

func (s *memStore) Load() ([]Record, string, error) {
	return append([]Record(nil), s.records...), s.lastUsed, nil
}

func (s *memStore) Apply(ops []Op) error {
	s.applies++
	if s.fail {
		return errWrite
	}
	for _, op := range ops {
		i := s.index(op.Record.ID)
		rec := op.Record
		rec.State = StateUnmodified
		switch op.Kind {
		case OpInsert, OpUpdate:
			if i < 0 {
				s.records = append(s.records, rec)
			} else {
				s.records[i] = rec
			}
		case OpDelete:
			if i >= 0 {
				s.records = append(s.records[:i], s.records[i+1:]...)
			}
		}
	}
	return nil
}

func (s *memStore) index(id string) int {
	for i, r := range s.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (s *memStore) SetLastUsed(id string) error {
	s.lastUsed = id
	return nil
}

func (s *memStore) Clear() error {
	s.records = nil
	s.lastUsed = ""
	return nil
}

func (s *memStore) Close() error {
	s.closed = true
	return nil
}

func createRegistry(t *testing.T) (*Registry, *memStore) {
	store := &memStore{}
	r, err := Open(store)
	require.Nil(t, err)
	return r, store
}

func TestPlan(t *testing.T) {
	records := []Record{
		{ID: "a", State: StateNew},
		{ID: "b", State: StateUnmodified},
		{ID: "c", State: StateModified},
		{ID: "d", State: StatePendingDelete},
	}
	ops := Plan(records)
	require.Len(t, ops, 3)
	assert.Equal(t, OpInsert, ops[0].Kind)
	assert.Equal(t, "a", ops[0].Record.ID)
	assert.Equal(t, OpUpdate, ops[1].Kind)
	assert.Equal(t, "c", ops[1].Record.ID)
	assert.Equal(t, OpDelete, ops[2].Kind)
	assert.Equal(t, "d", ops[2].Record.ID)
}

func TestSettle(t *testing.T) {
	records := []Record{
		{ID: "a", State: StateNew},
		{ID: "b", State: StatePendingDelete},
		{ID: "c", State: StateModified},
	}
	settled := Settle(records)
	require.Len(t, settled, 2)
	assert.Equal(t, "a", settled[0].ID)
	assert.Equal(t, "c", settled[1].ID)
	for _, r := range settled {
		assert.Equal(t, StateUnmodified, r.State)
	}
	assert.Equal(t, StateNew, records[0].State)
}

func TestRegistry_UpsertAndReload(t *testing.T) {
	r, store := createRegistry(t)
	require.Nil(t, r.Upsert("192.168.1.12", "id1", "token1", "Garage", "cookie1"))

	reloaded, err := Open(store)
	require.Nil(t, err)
	rec, ok := reloaded.ByID("id1")
	require.True(t, ok)
	assert.Equal(t, Record{
		ID:            "id1",
		LanIP:         "192.168.1.12",
		Name:          "Garage",
		BearerToken:   "token1",
		SessionCookie: "cookie1",
		State:         StateUnmodified,
	}, rec)
}

func TestRegistry_UpsertKnownKeepsName(t *testing.T) {
	r, store := createRegistry(t)
	require.Nil(t, r.Upsert("192.168.1.12", "id1", "token1", "Garage", "cookie1"))
	require.Nil(t, r.Upsert("192.168.1.13", "id1", "token2", "Other", "cookie2"))

	rec, ok := r.ByID("id1")
	require.True(t, ok)
	assert.Equal(t, "Garage", rec.Name)
	assert.Equal(t, "192.168.1.13", rec.LanIP)
	assert.Equal(t, "token2", rec.BearerToken)
	assert.Equal(t, "cookie2", rec.SessionCookie)
	assert.Len(t, store.records, 1)
	assert.Equal(t, "token2", store.records[0].BearerToken)
}

func TestRegistry_SetField(t *testing.T) {
	r, store := createRegistry(t)
	require.Nil(t, r.Upsert("192.168.1.12", "id1", "token1", "Garage", "cookie1"))

	assert.Nil(t, r.SetField("id1", "sessionCookie", "c2"))
	assert.Nil(t, r.SetField("id1", "session_cookie", "c3"))
	assert.Nil(t, r.SetField("id1", "SessionCookie", "c4"))
	assert.Nil(t, r.SetField("id1", "name", "Porch"))
	assert.Nil(t, r.SetField("id1", "lanIP", "192.168.1.40"))

	rec, _ := r.ByID("id1")
	assert.Equal(t, "c4", rec.SessionCookie)
	assert.Equal(t, "Porch", rec.Name)
	assert.Equal(t, "192.168.1.40", rec.LanIP)
	assert.Equal(t, "c4", store.records[0].SessionCookie)

	assert.ErrorIs(t, r.SetField("id1", "bearerToken", "x"), ErrUnknownField)
	assert.ErrorIs(t, r.SetField("nope", "name", "x"), ErrNotFound)
}

func TestRegistry_Remove(t *testing.T) {
	r, store := createRegistry(t)
	require.Nil(t, r.Upsert("192.168.1.12", "id1", "t", "A", "c"))
	require.Nil(t, r.Upsert("192.168.1.13", "id2", "t", "B", "c"))
	require.Nil(t, r.SetLastUsed("id1"))

	require.Nil(t, r.Remove("id1"))
	_, ok := r.ByID("id1")
	assert.False(t, ok)
	_, ok = r.LastUsed()
	assert.False(t, ok)
	assert.Equal(t, "", store.lastUsed)
	assert.Len(t, store.records, 1)

	assert.ErrorIs(t, r.Remove("id1"), ErrNotFound)
}

func TestRegistry_FlushFailureIsRetried(t *testing.T) {
	r, store := createRegistry(t)
	store.fail = true
	assert.ErrorIs(t, r.Upsert("192.168.1.12", "id1", "t", "A", "c"), errWrite)
	assert.Empty(t, store.records)

	rec, ok := r.ByID("id1")
	require.True(t, ok)
	assert.Equal(t, StateNew, rec.State)

	store.fail = false
	require.Nil(t, r.Flush())
	require.Len(t, store.records, 1)
	assert.Equal(t, "id1", store.records[0].ID)

	applies := store.applies
	require.Nil(t, r.Flush())
	assert.Equal(t, applies, store.applies)
}

func TestRegistry_LastUsedAndAny(t *testing.T) {
	r, store := createRegistry(t)
	_, ok := r.Any()
	assert.False(t, ok)

	require.Nil(t, r.Upsert("192.168.1.12", "id1", "t", "A", "c"))
	require.Nil(t, r.Upsert("192.168.1.13", "id2", "t", "B", "c"))

	any, ok := r.Any()
	require.True(t, ok)
	assert.Equal(t, "id1", any.ID)

	assert.ErrorIs(t, r.SetLastUsed("nope"), ErrNotFound)
	require.Nil(t, r.SetLastUsed("id2"))
	last, ok := r.LastUsed()
	require.True(t, ok)
	assert.Equal(t, "id2", last.ID)

	reloaded, err := Open(store)
	require.Nil(t, err)
	last, ok = reloaded.LastUsed()
	require.True(t, ok)
	assert.Equal(t, "id2", last.ID)
}

func TestRegistry_CopiesOut(t *testing.T) {
	r, _ := createRegistry(t)
	require.Nil(t, r.Upsert("192.168.1.12", "id1", "t", "A", "c"))
	all := r.All()
	all[0].Name = "changed"
	rec, _ := r.ByID("id1")
	assert.Equal(t, "A", rec.Name)
}

func TestRegistry_ResetAndClose(t *testing.T) {
	r, store := createRegistry(t)
	require.Nil(t, r.Upsert("192.168.1.12", "id1", "t", "A", "c"))
	require.Nil(t, r.SetLastUsed("id1"))

	require.Nil(t, r.Reset())
	assert.Empty(t, r.All())
	assert.Empty(t, store.records)
	_, ok := r.LastUsed()
	assert.False(t, ok)

	require.Nil(t, r.Close())
	assert.True(t, store.closed)
}
