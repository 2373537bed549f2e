package registry

// State tracks whether a record differs from its persisted copy.
// It doubles as the change journal that Flush replays into the Store.
type State int

const (
	StateNew State = iota
	StateModified
	StateUnmodified
	StatePendingDelete
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateModified:
		return "modified"
	case StateUnmodified:
		return "unmodified"
	case StatePendingDelete:
		return "pendingDelete"
	}
	return "invalid"
}

// Record is a device the user has logged in to.
// ID is the public key of the device (standard base64) and never changes.
type Record struct {
	ID            string
	LanIP         string
	Name          string
	BearerToken   string
	SessionCookie string
	State         State
}

type OpKind int

const (
	OpInsert OpKind = iota
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "invalid"
}

// Op is a single write against a Store.
// Applying the same op twice must have the same effect as applying it once.
type Op struct {
	Kind   OpKind
	Record Record
}

// Plan returns the store writes that bring the store in line with records.
// Unmodified records produce no op.
func Plan(records []Record) (ops []Op) {
	for _, r := range records {
		switch r.State {
		case StateNew:
			ops = append(ops, Op{OpInsert, r})
		case StateModified:
			ops = append(ops, Op{OpUpdate, r})
		case StatePendingDelete:
			ops = append(ops, Op{OpDelete, r})
		}
	}
	return
}

// Settle returns the records as they are after the ops of Plan were applied.
// Deleted records are dropped and every other record becomes unmodified.
// The input is not modified.
func Settle(records []Record) []Record {
	settled := make([]Record, 0, len(records))
	for _, r := range records {
		if r.State == StatePendingDelete {
			continue
		}
		r.State = StateUnmodified
		settled = append(settled, r)
	}
	return settled
}

// Store persists records and the id of the last used device.
type Store interface {
	// Load returns all records in insertion order. Their state is unmodified.
	Load() (records []Record, lastUsed string, err error)
	// Apply performs all ops atomically.
	Apply(ops []Op) error
	// SetLastUsed persists the id of the last used device. "" clears it.
	SetLastUsed(id string) error
	// Clear deletes everything.
	Clear() error
	Close() error
}
