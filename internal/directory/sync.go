package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/saproto/identity/internal/logger"
	"github.com/saproto/identity/internal/model"
	"github.com/saproto/identity/internal/repository"
)

var (
	userObjectClass  = []string{"top", "person", "organizationalPerson", "user"}
	groupObjectClass = []string{"top", "group"}
)

// SyncReport counts per-record outcomes of a synchronisation run.
type SyncReport struct {
	Created            int
	Updated            int
	Moved              int
	Deleted            int
	Unchanged          int
	Skipped            int
	Failed             int
	MembershipsUpdated int
	UnresolvedMembers  int
	Errors             []error
}

// Mutations is the number of write operations the run performed.
func (r *SyncReport) Mutations() int {
	return r.Created + r.Updated + r.Moved + r.Deleted + r.MembershipsUpdated
}

func (r *SyncReport) fail(kind Kind, key JoinKey, err error) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Errorf("%s %s: %w", kind, key, err))
	slog.Error("directory record failed", "kind", kind.String(), "key", key.String(), "error", err)
}

// PhotoLoader fetches stored profile photos.
type PhotoLoader interface {
	ContentByID(ctx context.Context, id int64) (*model.File, []byte, error)
}

type SyncConfig struct {
	UsersOU       string
	GroupsOU      string
	AccountSuffix string // appended to the username for userPrincipalName
	EmailDomain   string
	AppURL        string
}

// Synchronizer makes the managed part of the directory reflect the local
// members, committees and committee memberships.
type Synchronizer struct {
	connect    Connector
	users      repository.UserRepository
	members    repository.MemberRepository
	committees repository.CommitteeRepository
	photos     PhotoLoader
	alerter    logger.Alerter
	cfg        SyncConfig
}

func NewSynchronizer(
	connect Connector,
	users repository.UserRepository,
	members repository.MemberRepository,
	committees repository.CommitteeRepository,
	photos PhotoLoader,
	alerter logger.Alerter,
	cfg SyncConfig,
) *Synchronizer {
	return &Synchronizer{
		connect:    connect,
		users:      users,
		members:    members,
		committees: committees,
		photos:     photos,
		alerter:    alerter,
		cfg:        cfg,
	}
}

// record is the desired state of one managed entry.
type record struct {
	key         JoinKey
	rdn         string
	parent      string
	attrs       Attributes
	objectClass []string
}

func (r *record) dn() string {
	return r.rdn + "," + r.parent
}

type syncedGroup struct {
	committee *model.Committee
	dn        string
	members   []string
}

// Run performs the users, committees and membership passes in order. Join
// keys of both listings are validated before anything is written.
func (s *Synchronizer) Run(ctx context.Context) (*SyncReport, error) {
	dir, err := s.connect(ctx)
	if err != nil {
		s.alerter.Alert("directory sync aborted: could not bind to directory", "error", err)
		if !errors.Is(err, ErrConnect) {
			err = fmt.Errorf("%w: %v", ErrConnect, err)
		}
		return nil, err
	}
	defer func() {
		closeErr := dir.Close()
		if closeErr != nil {
			slog.Warn("failed to close directory connection", "error", closeErr)
		}
	}()

	userEntries, err := dir.Entries(ctx, KindUser)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory users: %w", err)
	}
	userIndex, userUnkeyed, err := IndexByJoinKey(userEntries)
	if err != nil {
		return nil, err
	}

	groupEntries, err := dir.Entries(ctx, KindGroup)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory groups: %w", err)
	}
	groupIndex, groupUnkeyed, err := IndexByJoinKey(groupEntries)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{}

	userDNs, err := s.syncUsers(ctx, dir, userIndex, userUnkeyed, report)
	if err != nil {
		return report, err
	}

	groups, err := s.syncCommittees(ctx, dir, groupIndex, groupUnkeyed, report)
	if err != nil {
		return report, err
	}

	s.syncMemberships(ctx, dir, groups, userDNs, report)

	slog.Info("directory sync finished",
		"created", report.Created,
		"updated", report.Updated,
		"moved", report.Moved,
		"deleted", report.Deleted,
		"unchanged", report.Unchanged,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"memberships_updated", report.MembershipsUpdated,
		"unresolved_members", report.UnresolvedMembers,
	)
	return report, nil
}

// syncUsers returns the DN of every member entry that is in place after the
// pass, keyed by user ID.
func (s *Synchronizer) syncUsers(ctx context.Context, dir Directory, index map[JoinKey]*Entry, unkeyed []*Entry, report *SyncReport) (map[JoinKey]string, error) {
	users, err := s.users.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}
	members, err := s.members.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}
	usernames := make(map[int64]string, len(members))
	for _, m := range members {
		usernames[m.UserID] = m.ProtoUsername
	}

	active := make(map[JoinKey]bool, len(users))
	dns := make(map[JoinKey]string, len(users))

	for _, user := range users {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		key := JoinKey(user.ID)
		active[key] = true

		username := usernames[user.ID]
		if username == "" {
			slog.Warn("member has no username, skipping directory account", "user_id", user.ID)
			report.Skipped++
			continue
		}

		attrs, err := s.userAttributes(ctx, user, username)
		if err != nil {
			report.fail(KindUser, key, err)
			// a stale account still grants its group memberships
			if existing, ok := index[key]; ok {
				dns[key] = existing.DN
			}
			continue
		}

		dn, err := s.upsert(ctx, dir, KindUser, index, &record{
			key:         key,
			rdn:         "CN=" + ldap.EscapeDN(username),
			parent:      s.cfg.UsersOU,
			attrs:       attrs,
			objectClass: userObjectClass,
		}, report)
		if err != nil {
			report.fail(KindUser, key, err)
		}
		if dn != "" {
			dns[key] = dn
		}
	}

	s.prune(ctx, dir, KindUser, index, unkeyed, active, report)
	return dns, nil
}

func (s *Synchronizer) userAttributes(ctx context.Context, user *model.User, username string) (Attributes, error) {
	attrs := Attributes{
		"description":       {JoinKey(user.ID).String()},
		"displayName":       values(user.Name),
		"givenName":         values(user.GivenName()),
		"sn":                values(user.Surname()),
		"mail":              values(user.Email),
		"wWWHomePage":       values(deref(user.Website)),
		"l":                 {},
		"postalCode":        {},
		"streetAddress":     {},
		"co":                {},
		"telephoneNumber":   {},
		"jpegPhoto":         {},
		"sAMAccountName":    {username},
		"userPrincipalName": {username + s.cfg.AccountSuffix},
	}

	if user.AddressVisible {
		address, err := s.users.Address(ctx, user.ID)
		switch {
		case err == nil:
			attrs["l"] = values(address.City)
			attrs["postalCode"] = values(address.Zipcode)
			attrs["streetAddress"] = values(address.Street + " " + address.Number)
			attrs["co"] = values(address.Country)
		case errors.Is(err, repository.ErrAddressNotFound):
		default:
			return nil, fmt.Errorf("failed to load address: %w", err)
		}
	}

	if user.PhoneVisible {
		attrs["telephoneNumber"] = values(deref(user.Phone))
	}

	if user.PhotoFileID != nil && s.photos != nil {
		_, photo, err := s.photos.ContentByID(ctx, *user.PhotoFileID)
		if err != nil {
			slog.Warn("could not load profile photo, clearing it", "user_id", user.ID, "error", err)
		} else if len(photo) > 0 {
			attrs["jpegPhoto"] = []string{string(photo)}
		}
	}

	return attrs, nil
}

func (s *Synchronizer) syncCommittees(ctx context.Context, dir Directory, index map[JoinKey]*Entry, unkeyed []*Entry, report *SyncReport) ([]*syncedGroup, error) {
	committees, err := s.committees.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load committees: %w", err)
	}

	active := make(map[JoinKey]bool, len(committees))
	var groups []*syncedGroup

	for _, committee := range committees {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		key := JoinKey(committee.ID)
		active[key] = true
		name := strings.TrimSpace(committee.Name)

		dn, err := s.upsert(ctx, dir, KindGroup, index, &record{
			key:    key,
			rdn:    "CN=" + ldap.EscapeDN(name),
			parent: s.cfg.GroupsOU,
			attrs: Attributes{
				"description":    {key.String()},
				"displayName":    values(name),
				"mail":           {committee.Slug + "@" + s.cfg.EmailDomain},
				"url":            {fmt.Sprintf("%s/committee/%d", strings.TrimSuffix(s.cfg.AppURL, "/"), committee.ID)},
				"sAMAccountName": {committee.Slug},
			},
			objectClass: groupObjectClass,
		}, report)
		if err != nil {
			report.fail(KindGroup, key, err)
			continue
		}

		var current []string
		if existing, ok := index[key]; ok {
			current = existing.Values("member")
		}
		groups = append(groups, &syncedGroup{committee: committee, dn: dn, members: current})
	}

	s.prune(ctx, dir, KindGroup, index, unkeyed, active, report)
	return groups, nil
}

// syncMemberships overwrites each group's member list. userDNs is the
// per-run user index built by the users pass.
func (s *Synchronizer) syncMemberships(ctx context.Context, dir Directory, groups []*syncedGroup, userDNs map[JoinKey]string, report *SyncReport) {
	for _, group := range groups {
		if ctx.Err() != nil {
			return
		}

		userIDs, err := s.committees.UserIDs(ctx, group.committee.ID)
		if err != nil {
			report.fail(KindGroup, JoinKey(group.committee.ID), err)
			continue
		}

		seen := make(map[string]bool, len(userIDs))
		want := make([]string, 0, len(userIDs))
		for _, id := range userIDs {
			dn, ok := userDNs[JoinKey(id)]
			if !ok {
				slog.Warn("committee member has no directory account, skipping",
					"committee", group.committee.Name,
					"user_id", id,
				)
				report.UnresolvedMembers++
				continue
			}
			if seen[strings.ToLower(dn)] {
				continue
			}
			seen[strings.ToLower(dn)] = true
			want = append(want, dn)
		}

		if sameDNs(group.members, want) {
			continue
		}

		err = dir.Replace(ctx, group.dn, Attributes{"member": want})
		if err != nil {
			report.fail(KindGroup, JoinKey(group.committee.ID), err)
			continue
		}
		report.MembershipsUpdated++
		slog.Info("directory group members replaced", "dn", group.dn, "members", len(want))
	}
}

// upsert creates the entry, or moves it into place and replaces the
// attributes that differ. It returns the entry's DN afterwards, also when a
// later write failed; the DN is empty only if no entry exists.
func (s *Synchronizer) upsert(ctx context.Context, dir Directory, kind Kind, index map[JoinKey]*Entry, rec *record, report *SyncReport) (string, error) {
	dn := rec.dn()

	existing, ok := index[rec.key]
	if !ok {
		attrs := nonEmpty(rec.attrs)
		attrs["objectClass"] = rec.objectClass

		err := dir.Add(ctx, dn, attrs)
		if err != nil {
			return "", err
		}
		report.Created++
		slog.Info("directory entry created", "kind", kind.String(), "dn", dn)
		return dn, nil
	}

	current := existing.DN
	moved := false
	if !strings.EqualFold(current, dn) {
		err := dir.Rename(ctx, current, rec.rdn, rec.parent)
		if err != nil {
			return current, err
		}
		report.Moved++
		moved = true
		slog.Info("directory entry moved", "kind", kind.String(), "from", current, "to", dn)
		current = dn
	}

	changes := diff(existing, rec.attrs)
	if len(changes) > 0 {
		err := dir.Replace(ctx, current, changes)
		if err != nil {
			return current, err
		}
		report.Updated++
		slog.Info("directory entry updated", "kind", kind.String(), "dn", current, "attributes", sortedNames(changes))
	} else if !moved {
		report.Unchanged++
	}

	return current, nil
}

// prune deletes entries whose key is missing or no longer active. It must
// only run once every upsert of the pass has finished.
func (s *Synchronizer) prune(ctx context.Context, dir Directory, kind Kind, index map[JoinKey]*Entry, unkeyed []*Entry, active map[JoinKey]bool, report *SyncReport) {
	var obsolete []*Entry
	obsolete = append(obsolete, unkeyed...)
	for key, entry := range index {
		if !active[key] {
			obsolete = append(obsolete, entry)
		}
	}
	sort.Slice(obsolete, func(i, j int) bool { return obsolete[i].DN < obsolete[j].DN })

	for _, entry := range obsolete {
		if ctx.Err() != nil {
			return
		}
		err := dir.Delete(ctx, entry.DN)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Errorf("delete %s: %w", entry.DN, err))
			slog.Error("failed to delete obsolete directory entry", "kind", kind.String(), "dn", entry.DN, "error", err)
			continue
		}
		report.Deleted++
		slog.Info("obsolete directory entry deleted", "kind", kind.String(), "dn", entry.DN, "key", entry.Value("description"))
	}
}

func sameDNs(a, b []string) bool {
	lower := func(in []string) []string {
		out := make([]string, len(in))
		for i, v := range in {
			out[i] = strings.ToLower(v)
		}
		return out
	}
	return sameValues(lower(a), lower(b))
}

func values(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}
	}
	return []string{s}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
