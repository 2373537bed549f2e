package registry

import (
	"errors"
	"fmt"
	"github.com/stoewer/go-strcase"
	"sync"
)

var (
	ErrNotFound     = errors.New("device not found")
	ErrUnknownField = errors.New("unknown field")
)

// Registry holds the devices the user has logged in to.
// Every mutation is flushed to the Store before the method returns.
// Records handed out are copies.
type Registry struct {
	mu       sync.Mutex
	store    Store
	records  []Record
	lastUsed string
}

// Open loads all records and the last used device from the store.
func Open(store Store) (*Registry, error) {
	records, lastUsed, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load devices: %w", err)
	}
	for i := range records {
		records[i].State = StateUnmodified
	}
	r := &Registry{
		store:    store,
		records:  records,
		lastUsed: lastUsed,
	}
	if lastUsed != "" && r.find(lastUsed) < 0 {
		log.Warnf("Last used device %v no longer exists", lastUsed)
		r.lastUsed = ""
	}
	log.Infof("Loaded %v devices", len(records))
	return r, nil
}

func (r *Registry) find(id string) int {
	for i := range r.records {
		if r.records[i].ID == id && r.records[i].State != StatePendingDelete {
			return i
		}
	}
	return -1
}

// Upsert records a login. An unknown id creates a record with the given name.
// A known id keeps its name and gets the new address and credentials.
func (r *Registry) Upsert(lanIP string, id string, bearerToken string, name string, sessionCookie string) error {
	if id == "" {
		return errors.New("a device id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.find(id); i >= 0 {
		rec := &r.records[i]
		rec.LanIP = lanIP
		rec.BearerToken = bearerToken
		rec.SessionCookie = sessionCookie
		if rec.State == StateUnmodified {
			rec.State = StateModified
		}
	} else {
		r.records = append(r.records, Record{
			ID:            id,
			LanIP:         lanIP,
			Name:          name,
			BearerToken:   bearerToken,
			SessionCookie: sessionCookie,
			State:         StateNew,
		})
	}
	return r.flush()
}

// SetField updates a single field. Accepted fields are name, sessionCookie and
// lanIP, in any common casing (session_cookie, SessionCookie, ...).
func (r *Registry) SetField(id string, field string, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.find(id)
	if i < 0 {
		return ErrNotFound
	}
	rec := &r.records[i]
	switch strcase.SnakeCase(field) {
	case "name":
		rec.Name = value
	case "session_cookie":
		rec.SessionCookie = value
	case "lan_ip":
		rec.LanIP = value
	default:
		return fmt.Errorf("%w: %v", ErrUnknownField, field)
	}
	if rec.State == StateUnmodified {
		rec.State = StateModified
	}
	return r.flush()
}

// Remove deletes a device. The last used device is cleared if it was this one.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.find(id)
	if i < 0 {
		return ErrNotFound
	}
	r.records[i].State = StatePendingDelete
	if r.lastUsed == id {
		r.lastUsed = ""
		if err := r.store.SetLastUsed(""); err != nil {
			return err
		}
	}
	return r.flush()
}

// Flush writes all pending changes. After a failure the changes stay pending
// and the next flush replays them.
func (r *Registry) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flush()
}

func (r *Registry) flush() error {
	ops := Plan(r.records)
	if len(ops) == 0 {
		return nil
	}
	if err := r.store.Apply(ops); err != nil {
		log.Errorf("Failed to write %v changes: %v", len(ops), err)
		return fmt.Errorf("failed to write devices: %w", err)
	}
	r.records = Settle(r.records)
	log.Debugf("Wrote %v changes", len(ops))
	return nil
}

// LastUsed returns the device that was connected to most recently.
func (r *Registry) LastUsed() (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastUsed == "" {
		return Record{}, false
	}
	return r.byID(r.lastUsed)
}

func (r *Registry) SetLastUsed(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.find(id) < 0 {
		return ErrNotFound
	}
	if r.lastUsed == id {
		return nil
	}
	if err := r.store.SetLastUsed(id); err != nil {
		return fmt.Errorf("failed to store last used device: %w", err)
	}
	r.lastUsed = id
	return nil
}

// Any returns the oldest device, if there is one.
func (r *Registry) Any() (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.State != StatePendingDelete {
			return rec, true
		}
	}
	return Record{}, false
}

func (r *Registry) ByID(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID(id)
}

func (r *Registry) byID(id string) (Record, bool) {
	i := r.find(id)
	if i < 0 {
		return Record{}, false
	}
	return r.records[i], true
}

// All returns every device in the order they were added.
func (r *Registry) All() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		if rec.State != StatePendingDelete {
			all = append(all, rec)
		}
	}
	return all
}

// Reset forgets every device, in memory and in the store.
func (r *Registry) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear devices: %w", err)
	}
	r.records = nil
	r.lastUsed = ""
	log.Infof("Removed all devices")
	return nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Close()
}
