// Package directory mirrors members and committees into the association's
// Active Directory.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrConnect          = errors.New("could not bind to directory")
	ErrDuplicateJoinKey = errors.New("duplicate join key in directory")
	ErrEntryNotFound    = errors.New("directory entry not found")
)

type Kind int

const (
	KindUser Kind = iota + 1
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindGroup:
		return "group"
	}
	return "unknown"
}

// Attributes maps attribute names to their values. A name mapped to an empty
// slice means the attribute should be absent.
type Attributes map[string][]string

// Entry is a directory object as read back from the server. Attribute names
// are stored lowercased since LDAP names are case-insensitive.
type Entry struct {
	DN         string
	Attributes Attributes
}

func NewEntry(dn string, attrs Attributes) *Entry {
	e := &Entry{DN: dn, Attributes: Attributes{}}
	for name, values := range attrs {
		e.Attributes[strings.ToLower(name)] = values
	}
	return e
}

func (e *Entry) Values(name string) []string {
	return e.Attributes[strings.ToLower(name)]
}

func (e *Entry) Value(name string) string {
	values := e.Values(name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Directory is the subset of LDAP operations the synchroniser needs. All
// listings are scoped to the managed organisational units.
type Directory interface {
	Entries(ctx context.Context, kind Kind) ([]*Entry, error)
	Lookup(ctx context.Context, kind Kind, accountName string) (*Entry, error)
	Add(ctx context.Context, dn string, attrs Attributes) error
	Replace(ctx context.Context, dn string, attrs Attributes) error
	Rename(ctx context.Context, dn, newRDN, newParent string) error
	Delete(ctx context.Context, dn string) error
	SetPassword(ctx context.Context, dn, password string) error
	Close() error
}

// Connector opens and binds a Directory session.
type Connector func(ctx context.Context) (Directory, error)

// JoinKey is the local record ID kept in the description attribute of every
// managed entry.
type JoinKey int64

func ParseJoinKey(s string) (JoinKey, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return JoinKey(id), true
}

func (k JoinKey) String() string {
	return strconv.FormatInt(int64(k), 10)
}

// IndexByJoinKey indexes entries by their join key. Entries without a valid
// key are returned separately. Two entries sharing a key is an error.
func IndexByJoinKey(entries []*Entry) (map[JoinKey]*Entry, []*Entry, error) {
	index := make(map[JoinKey]*Entry, len(entries))
	var unkeyed []*Entry

	for _, entry := range entries {
		key, ok := ParseJoinKey(entry.Value("description"))
		if !ok {
			unkeyed = append(unkeyed, entry)
			continue
		}
		if other, dup := index[key]; dup {
			return nil, nil, fmt.Errorf("%w: %s on %q and %q", ErrDuplicateJoinKey, key, other.DN, entry.DN)
		}
		index[key] = entry
	}

	return index, unkeyed, nil
}

// diff returns the desired attributes whose values differ from the entry.
// Order and case of attribute names do not matter; value order does not
// matter either.
func diff(entry *Entry, desired Attributes) Attributes {
	changes := Attributes{}
	for name, want := range desired {
		if !sameValues(entry.Values(name), want) {
			changes[name] = want
		}
	}
	return changes
}

func sameValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// nonEmpty drops attributes without values, as an add request cannot carry
// them.
func nonEmpty(attrs Attributes) Attributes {
	out := Attributes{}
	for name, values := range attrs {
		if len(values) > 0 {
			out[name] = values
		}
	}
	return out
}

func sortedNames(attrs Attributes) []string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
