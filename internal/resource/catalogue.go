package resource

import (
	"fmt"

	"firestige.xyz/mrcpd/internal/stream"
)

// HeaderVTable is the per-resource header behaviour §4.4 requires:
// parsing and generating resource-specific header fields, and
// duplicating a field for re-association with a new message. A resource
// with no special fields (none in this spec) can return a vtable whose
// ParseField always refuses, falling through to the generic table.
type HeaderVTable interface {
	// FieldCount bounds this resource's id space: resource-specific ids
	// occupy [resource.GenericCount, resource.GenericCount+FieldCount()).
	FieldCount() int
	// ParseField attempts to resolve a raw wire field against this
	// resource's table. ok is false if the name is not recognised.
	ParseField(raw stream.HeaderField) (field stream.Field, ok bool)
	// GenerateField renders a resource-specific field back to wire form.
	GenerateField(f stream.Field) (name, value string, ok bool)
	// NameByID returns the canonical field name for a resource-specific id.
	NameByID(localID int) string
}

// Entry is an immutable-after-init resource catalogue record.
type Entry struct {
	ID      int
	Name    string
	Methods []string // method-id -> name, request/event method vocabulary
	Events  []string // event-id -> name
	Header  HeaderVTable
}

// MethodID returns the method id for name, or -1 if unknown.
func (e *Entry) MethodID(name string) int {
	for i, m := range e.Methods {
		if foldEqual(m, name) {
			return i
		}
	}
	return -1
}

// MethodName returns the method name for id, or "" if out of range.
func (e *Entry) MethodName(id int) string {
	if id < 0 || id >= len(e.Methods) {
		return ""
	}
	return e.Methods[id]
}

// EventID returns the event id for name, or -1 if unknown.
func (e *Entry) EventID(name string) int {
	for i, ev := range e.Events {
		if foldEqual(ev, name) {
			return i
		}
	}
	return -1
}

// EventName returns the event name for id, or "" if out of range.
func (e *Entry) EventName(id int) string {
	if id < 0 || id >= len(e.Events) {
		return ""
	}
	return e.Events[id]
}

// Catalogue is a registry of resources, indexed both by id (O(1)) and by
// name (linear scan over a small table, as §4.4 specifies).
type Catalogue struct {
	byID   []*Entry
	byName map[string]*Entry
}

// NewCatalogue creates an empty catalogue.
func NewCatalogue() *Catalogue {
	return &Catalogue{byName: make(map[string]*Entry)}
}

// Register adds an entry, assigning it the next sequential id. It
// returns an error if a resource with the same name is already
// registered.
func (c *Catalogue) Register(name string, methods, events []string, vtable HeaderVTable) (*Entry, error) {
	if _, exists := c.byName[lower(name)]; exists {
		return nil, fmt.Errorf("mrcpd: resource: %q already registered", name)
	}
	e := &Entry{ID: len(c.byID), Name: name, Methods: methods, Events: events, Header: vtable}
	c.byID = append(c.byID, e)
	c.byName[lower(name)] = e
	return e, nil
}

// ByID returns the entry with the given id, or nil if out of range.
func (c *Catalogue) ByID(id int) *Entry {
	if id < 0 || id >= len(c.byID) {
		return nil
	}
	return c.byID[id]
}

// ByName performs the catalogue's linear string-table search.
func (c *Catalogue) ByName(name string) *Entry {
	return c.byName[lower(name)]
}

// Len returns the number of registered resources.
func (c *Catalogue) Len() int { return len(c.byID) }

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
