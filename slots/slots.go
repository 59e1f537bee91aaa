// Package slots implements a fixed-capacity table of client connections.
//
// Each accepted connection occupies the first free slot and is addressed by
// that slot's Handle until it is released. Because handles are reused, every
// acquisition also receives a Serial that never repeats within a Table.
//
// A Table is not safe for concurrent use; it is meant to be owned by a
// single event loop.
package slots

import (
	"errors"
	"net"
)

// ErrCapacityExceeded is returned by Acquire when every slot is occupied.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// Handle identifies a slot. Valid handles are in [0, Capacity()).
type Handle int

// Slot is an occupied table entry.
type Slot struct {
	Handle Handle
	Serial uint64
	Conn   net.Conn
}

// Table tracks at most Capacity() connections.
type Table struct {
	entries    []*Slot
	occupied   int
	lastSerial uint64
}

// NewTable creates an empty table with the given number of slots.
// A capacity below 1 is treated as 1.
//
// Parameters:
//   - capacity: Maximum number of simultaneously tracked connections
//
// Returns:
//   - A new, empty *Table
func NewTable(capacity int) *Table {
	if capacity < 1 {
		capacity = 1
	}

	return &Table{entries: make([]*Slot, capacity)}
}

// Acquire stores conn in the first empty slot.
//
// Parameters:
//   - conn: The accepted connection
//
// Returns:
//   - The occupied slot
//   - ErrCapacityExceeded if no slot is free; conn is left untouched
func (t *Table) Acquire(conn net.Conn) (Slot, error) {
	for i, e := range t.entries {
		if e != nil {
			continue
		}

		t.lastSerial++
		s := &Slot{Handle: Handle(i), Serial: t.lastSerial, Conn: conn}
		t.entries[i] = s
		t.occupied++
		return *s, nil
	}

	return Slot{}, ErrCapacityExceeded
}

// Get returns the slot at h if it is occupied.
func (t *Table) Get(h Handle) (Slot, bool) {
	if !t.valid(h) || t.entries[h] == nil {
		return Slot{}, false
	}

	return *t.entries[h], true
}

// Lookup returns the slot at h only if it still holds the acquisition
// identified by serial.
//
// Parameters:
//   - h: The slot handle
//   - serial: The serial returned when the connection was acquired
//
// Returns:
//   - The slot and true if h is occupied by that acquisition
func (t *Table) Lookup(h Handle, serial uint64) (Slot, bool) {
	s, ok := t.Get(h)
	if !ok || s.Serial != serial {
		return Slot{}, false
	}

	return s, true
}

// Release clears the slot at h. It does not close the connection.
//
// Returns:
//   - The slot that was cleared and true, or false if h was empty
func (t *Table) Release(h Handle) (Slot, bool) {
	s, ok := t.Get(h)
	if !ok {
		return Slot{}, false
	}

	t.entries[h] = nil
	t.occupied--
	return s, true
}

// Range calls f for each occupied slot in handle order until f returns false.
// f may release the slot it is given.
func (t *Table) Range(f func(s Slot) bool) {
	for _, e := range t.entries {
		if e == nil {
			continue
		}

		if !f(*e) {
			return
		}
	}
}

// Capacity returns the number of slots.
func (t *Table) Capacity() int {
	return len(t.entries)
}

// Len returns the number of occupied slots.
func (t *Table) Len() int {
	return t.occupied
}

// Full reports whether every slot is occupied.
func (t *Table) Full() bool {
	return t.occupied == len(t.entries)
}

func (t *Table) valid(h Handle) bool {
	return h >= 0 && int(h) < len(t.entries)
}
