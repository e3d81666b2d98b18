package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// memDirectory is an in-memory Directory. Entries are keyed by lowercased DN
// and every write is appended to writes.
type memDirectory struct {
	mu          sync.Mutex
	usersOU     string
	groupsOU    string
	entries     map[string]*Entry
	writes      []string
	failAdd     map[string]error
	failReplace map[string]error
	closed      bool
}

func newMemDirectory(usersOU, groupsOU string) *memDirectory {
	return &memDirectory{
		usersOU:     usersOU,
		groupsOU:    groupsOU,
		entries:     map[string]*Entry{},
		failAdd:     map[string]error{},
		failReplace: map[string]error{},
	}
}

func (d *memDirectory) connector() Connector {
	return func(context.Context) (Directory, error) {
		return d, nil
	}
}

func (d *memDirectory) seed(dn string, attrs Attributes) {
	d.entries[strings.ToLower(dn)] = NewEntry(dn, attrs)
}

func (d *memDirectory) get(dn string) *Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries[strings.ToLower(dn)]
}

func (d *memDirectory) ou(kind Kind) string {
	if kind == KindGroup {
		return d.groupsOU
	}
	return d.usersOU
}

func (d *memDirectory) Entries(_ context.Context, kind Kind) ([]*Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	suffix := "," + strings.ToLower(d.ou(kind))
	var out []*Entry
	for key, entry := range d.entries {
		if strings.HasSuffix(key, suffix) {
			out = append(out, clone(entry))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DN < out[j].DN })
	return out, nil
}

func (d *memDirectory) Lookup(_ context.Context, kind Kind, accountName string) (*Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	suffix := "," + strings.ToLower(d.ou(kind))
	for key, entry := range d.entries {
		if strings.HasSuffix(key, suffix) && strings.EqualFold(entry.Value("sAMAccountName"), accountName) {
			return clone(entry), nil
		}
	}
	return nil, ErrEntryNotFound
}

func (d *memDirectory) Add(_ context.Context, dn string, attrs Attributes) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.failAdd[strings.ToLower(dn)]; err != nil {
		return err
	}
	if _, ok := d.entries[strings.ToLower(dn)]; ok {
		return fmt.Errorf("entry already exists: %s", dn)
	}
	d.entries[strings.ToLower(dn)] = NewEntry(dn, attrs)
	d.writes = append(d.writes, "add "+dn)
	return nil
}

func (d *memDirectory) Replace(_ context.Context, dn string, attrs Attributes) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.failReplace[strings.ToLower(dn)]; err != nil {
		return err
	}
	entry, ok := d.entries[strings.ToLower(dn)]
	if !ok {
		return ErrEntryNotFound
	}
	for name, values := range attrs {
		if len(values) == 0 {
			delete(entry.Attributes, strings.ToLower(name))
			continue
		}
		entry.Attributes[strings.ToLower(name)] = append([]string(nil), values...)
	}
	d.writes = append(d.writes, "replace "+dn)
	return nil
}

func (d *memDirectory) Rename(_ context.Context, dn, newRDN, newParent string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.entries[strings.ToLower(dn)]
	if !ok {
		return ErrEntryNotFound
	}
	delete(d.entries, strings.ToLower(dn))
	entry.DN = newRDN + "," + newParent
	d.entries[strings.ToLower(entry.DN)] = entry
	d.writes = append(d.writes, "rename "+dn)
	return nil
}

func (d *memDirectory) Delete(_ context.Context, dn string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.entries[strings.ToLower(dn)]; !ok {
		return ErrEntryNotFound
	}
	delete(d.entries, strings.ToLower(dn))
	d.writes = append(d.writes, "delete "+dn)
	return nil
}

func (d *memDirectory) SetPassword(_ context.Context, dn, password string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.entries[strings.ToLower(dn)]
	if !ok {
		return ErrEntryNotFound
	}
	entry.Attributes["unicodepwd"] = []string{password}
	d.writes = append(d.writes, "password "+dn)
	return nil
}

func (d *memDirectory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *memDirectory) resetWrites() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = nil
}

func clone(e *Entry) *Entry {
	attrs := Attributes{}
	for name, values := range e.Attributes {
		attrs[name] = append([]string(nil), values...)
	}
	return &Entry{DN: e.DN, Attributes: attrs}
}

// recordingAlerter captures alerts.
type recordingAlerter struct {
	alerts []string
}

func (a *recordingAlerter) Alert(msg string, _ ...any) {
	a.alerts = append(a.alerts, msg)
}

var errPhotoMissing = errors.New("photo missing")

func lower(s string) string {
	return strings.ToLower(s)
}
