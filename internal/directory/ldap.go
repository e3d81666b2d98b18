package directory

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
	"golang.org/x/text/encoding/unicode"
)

const pageSize = 500

type LDAPConfig struct {
	URL                string
	BindDN             string
	BindPassword       string
	UsersOU            string
	GroupsOU           string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// LDAP is a bound session against Active Directory.
type LDAP struct {
	conn *ldap.Conn
	cfg  LDAPConfig
}

var (
	userAttributes = []string{
		"description", "displayName", "givenName", "sn", "mail", "wWWHomePage",
		"l", "postalCode", "streetAddress", "co", "telephoneNumber", "jpegPhoto",
		"sAMAccountName", "userPrincipalName",
	}
	groupAttributes = []string{
		"description", "displayName", "mail", "url", "sAMAccountName", "member",
	}
)

// NewConnector returns a Connector that dials and binds with cfg.
func NewConnector(cfg LDAPConfig) Connector {
	return func(ctx context.Context) (Directory, error) {
		return Dial(ctx, cfg)
	}
}

func Dial(ctx context.Context, cfg LDAPConfig) (*LDAP, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}

	conn, err := ldap.DialURL(cfg.URL,
		ldap.DialWithDialer(&net.Dialer{Timeout: timeout}),
		ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}), //nolint:gosec // self-signed AD certificates
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	conn.SetTimeout(timeout)

	err = conn.Bind(cfg.BindDN, cfg.BindPassword)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	return &LDAP{conn: conn, cfg: cfg}, nil
}

func (l *LDAP) base(kind Kind) (string, string, []string) {
	if kind == KindGroup {
		return l.cfg.GroupsOU, "(objectClass=group)", groupAttributes
	}
	return l.cfg.UsersOU, "(&(objectCategory=person)(objectClass=user))", userAttributes
}

func (l *LDAP) Entries(ctx context.Context, kind Kind) ([]*Entry, error) {
	baseDN, filter, attrs := l.base(kind)
	return l.search(ctx, baseDN, filter, attrs)
}

func (l *LDAP) Lookup(ctx context.Context, kind Kind, accountName string) (*Entry, error) {
	baseDN, filter, attrs := l.base(kind)
	filter = fmt.Sprintf("(&%s(sAMAccountName=%s))", filter, ldap.EscapeFilter(accountName))

	entries, err := l.search(ctx, baseDN, filter, attrs)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrEntryNotFound, kind, accountName)
	}
	return entries[0], nil
}

func (l *LDAP) search(ctx context.Context, baseDN, filter string, attrs []string) ([]*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := ldap.NewSearchRequest(
		baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		attrs,
		nil,
	)

	res, err := l.conn.SearchWithPaging(req, pageSize)
	if err != nil {
		var ldapErr *ldap.Error
		if errors.As(err, &ldapErr) && ldapErr.ResultCode == ldap.LDAPResultNoSuchObject {
			return nil, nil
		}
		return nil, fmt.Errorf("search %s: %w", baseDN, err)
	}

	entries := make([]*Entry, 0, len(res.Entries))
	for _, e := range res.Entries {
		attrs := Attributes{}
		for _, a := range e.Attributes {
			values := make([]string, len(a.ByteValues))
			for i, b := range a.ByteValues {
				values[i] = string(b)
			}
			attrs[a.Name] = values
		}
		entries = append(entries, NewEntry(e.DN, attrs))
	}
	return entries, nil
}

func (l *LDAP) Add(ctx context.Context, dn string, attrs Attributes) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := ldap.NewAddRequest(dn, nil)
	values := nonEmpty(attrs)
	for _, name := range sortedNames(values) {
		req.Attribute(name, values[name])
	}

	err := l.conn.Add(req)
	if err != nil {
		return fmt.Errorf("add %s: %w", dn, err)
	}
	return nil
}

// Replace overwrites each given attribute. An empty value list removes the
// attribute, which LDAP accepts even when it is already absent.
func (l *LDAP) Replace(ctx context.Context, dn string, attrs Attributes) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(attrs) == 0 {
		return nil
	}

	req := ldap.NewModifyRequest(dn, nil)
	for _, name := range sortedNames(attrs) {
		req.Replace(name, attrs[name])
	}

	err := l.conn.Modify(req)
	if err != nil {
		return fmt.Errorf("modify %s: %w", dn, err)
	}
	return nil
}

func (l *LDAP) Rename(ctx context.Context, dn, newRDN, newParent string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := l.conn.ModifyDN(ldap.NewModifyDNRequest(dn, newRDN, true, newParent))
	if err != nil {
		return fmt.Errorf("rename %s: %w", dn, err)
	}
	return nil
}

func (l *LDAP) Delete(ctx context.Context, dn string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := l.conn.Del(ldap.NewDelRequest(dn, nil))
	if err != nil {
		return fmt.Errorf("delete %s: %w", dn, err)
	}
	return nil
}

// SetPassword writes unicodePwd, which AD only accepts over TLS.
func (l *LDAP) SetPassword(ctx context.Context, dn, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded, err := encodePassword(password)
	if err != nil {
		return err
	}

	req := ldap.NewModifyRequest(dn, nil)
	req.Replace("unicodePwd", []string{encoded})

	err = l.conn.Modify(req)
	if err != nil {
		return fmt.Errorf("set password on %s: %w", dn, err)
	}
	return nil
}

func (l *LDAP) Close() error {
	l.conn.Close()
	return nil
}

// encodePassword produces the quoted UTF-16LE form AD expects in unicodePwd.
func encodePassword(password string) (string, error) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	encoded, err := encoder.String(`"` + password + `"`)
	if err != nil {
		return "", fmt.Errorf("failed to encode password: %w", err)
	}
	return encoded, nil
}
