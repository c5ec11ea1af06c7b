package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ID is the stable identity of an entity. It is minted once and never reused.
type ID string

// NewID mints a fresh identity.
func NewID() ID {
	return ID(uuid.NewString())
}

// Kind names an entity variant.
type Kind string

const (
	KindTask     Kind = "task"
	KindProject  Kind = "project"
	KindHabit    Kind = "habit"
	KindListItem Kind = "list_item"
	KindDayPlan  Kind = "day_plan"
	KindNote     Kind = "note"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrUnknownField      = errors.New("unknown field")
)

// Fields is the canonical string form of the fields an entity owns. Empty
// values are omitted.
type Fields map[string]string

// Get returns the value of name, or "" when unset.
func (f Fields) Get(name string) string {
	return f[name]
}

func (f Fields) set(name, value string) {
	if value != "" {
		f[name] = value
	}
}

// Names returns the sorted union of field names in f and other.
func (f Fields) Names(other Fields) []string {
	seen := make(map[string]bool, len(f)+len(other))
	var names []string
	for _, m := range []Fields{f, other} {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Property is an unowned key/value pair carried through unchanged.
type Property struct {
	Key   string
	Value string
}

// Meta holds the bookkeeping every entity carries.
type Meta struct {
	ID       ID
	Revision uint64
	// Extra holds properties no field owns, in file order.
	Extra []Property
}

func (m *Meta) EntityID() ID { return m.ID }
func (m *Meta) Rev() uint64  { return m.Revision }
func (m *Meta) Base() *Meta  { return m }

// Touch records a local mutation.
func (m *Meta) Touch() { m.Revision++ }

func (m Meta) clone() Meta {
	m.Extra = append([]Property(nil), m.Extra...)
	return m
}

// Entity is the common surface of every domain variant.
type Entity interface {
	EntityID() ID
	Kind() Kind
	Rev() uint64
	Base() *Meta
	Touch()
	// Fields returns the owned fields in canonical string form.
	Fields() Fields
	// SetField parses value into the named field.
	SetField(name, value string) error
	Clone() Entity
}

// New returns an empty entity of kind carrying id.
func New(kind Kind, id ID) (Entity, error) {
	m := Meta{ID: id}
	switch kind {
	case KindTask:
		return &Task{Meta: m, State: StateTodo}, nil
	case KindHabit:
		return &Habit{Task: Task{Meta: m, State: StateTodo}}, nil
	case KindProject:
		return &Project{Meta: m}, nil
	case KindListItem:
		return &ListItem{Meta: m}, nil
	case KindDayPlan:
		return &DayPlan{Meta: m, Budget: DefaultBudget}, nil
	case KindNote:
		return &Note{Meta: m}, nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

var fieldNames = map[Kind][]string{
	KindTask:     taskFields,
	KindHabit:    taskFields,
	KindProject:  {"name", "purpose", "outcome", "notes", "tags"},
	KindListItem: {"list", "title", "notes", "done", "tags"},
	KindDayPlan:  {"date", "budget", "spent", "contexts", "confirmed", "completed", "media", "shopping"},
	KindNote:     {"title", "body", "tags", "links", "source"},
}

var taskFields = []string{
	"title", "state", "priority", "tags", "scheduled", "deadline", "recurrence",
	"notes", "project", "waiting_for", "esc", "delegated", "follow_up",
}

// FieldNames lists every field an entity of kind owns.
func FieldNames(kind Kind) []string {
	return append([]string(nil), fieldNames[kind]...)
}

// Fingerprint hashes the kind and owned fields of e.
func Fingerprint(e Entity) string {
	return FingerprintFields(e.Kind(), e.Fields())
}

// FingerprintFields hashes a field set as Fingerprint does for an entity.
func FingerprintFields(kind Kind, f Fields) string {
	h := sha256.New()
	fmt.Fprintf(h, "kind=%s\n", kind)
	for _, name := range f.Names(nil) {
		fmt.Fprintf(h, "%s=%q\n", name, f[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FieldHashes returns one short hash per owned field.
func FieldHashes(f Fields) map[string]string {
	out := make(map[string]string, len(f))
	for name, v := range f {
		out[name] = HashValue(v)
	}
	return out
}

// HashValue hashes a single field value. The empty value hashes to "".
func HashValue(v string) string {
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:8])
}

// Apply sets every field of f on e. Fields missing from f are cleared when
// they appear in clear.
func Apply(e Entity, f Fields, clear []string) error {
	for _, name := range clear {
		if _, ok := f[name]; !ok {
			if err := e.SetField(name, ""); err != nil {
				return err
			}
		}
	}
	for _, name := range f.Names(nil) {
		if err := e.SetField(name, f[name]); err != nil {
			return err
		}
	}
	return nil
}

func joinSorted(list []string) string {
	if len(list) == 0 {
		return ""
	}
	s := append([]string(nil), list...)
	sort.Strings(s)
	return strings.Join(s, ",")
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
