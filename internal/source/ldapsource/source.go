package ldapsource

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/filter"
	"github.com/KilimcininKorOglu/vdir/internal/source"
)

// Source is a subtree of an LDAP server. The primary key fields form the
// RDN of the entries below the base DN.
type Source struct {
	conn *Connection
	cfg  *source.Config
}

var _ source.Source = (*Source)(nil)

// Name implements source.Source.
func (s *Source) Name() string { return s.cfg.Name }

// Config implements source.Source.
func (s *Source) Config() *source.Config { return s.cfg.Clone() }

// Parameter implements source.Source.
func (s *Source) Parameter(name string) string { return s.cfg.Parameter(name) }

// Create implements source.Source. Subtrees are managed by the server.
func (s *Source) Create(context.Context) error {
	return fmt.Errorf("ldap source %s: create: %w", s.cfg.Name, source.ErrNotSupported)
}

// Drop implements source.Source.
func (s *Source) Drop(context.Context) error {
	return fmt.Errorf("ldap source %s: drop: %w", s.cfg.Name, source.ErrNotSupported)
}

// Rename implements source.Source.
func (s *Source) Rename(context.Context, source.Source) error {
	return fmt.Errorf("ldap source %s: rename: %w", s.cfg.Name, source.ErrNotSupported)
}

func (s *Source) baseDN() string {
	return s.cfg.Parameter(source.ParamBaseDN)
}

func (s *Source) scope() int {
	if strings.EqualFold(s.cfg.Parameter(ParamScope), "sub") {
		return ldap.ScopeWholeSubtree
	}
	return ldap.ScopeSingleLevel
}

func (s *Source) objectClasses() []string {
	var classes []string
	for _, class := range strings.Split(s.cfg.Parameter(ParamObjectClasses), ",") {
		if class = strings.TrimSpace(class); class != "" {
			classes = append(classes, class)
		}
	}
	return classes
}

// entryDN converts the RDN of a row (qualified or not) into the DN of the
// entry on the server.
func (s *Source) entryDN(dn string) (string, error) {
	key, err := source.KeyFromDN(s.cfg, dn)
	if err != nil {
		return "", err
	}
	return s.serverDN(key)
}

// serverDN builds the DN of an entry from the primary key values of row,
// using attribute names of the server.
func (s *Source) serverDN(row source.Row) (string, error) {
	keys := s.cfg.PrimaryKeys()
	if len(keys) == 0 {
		return "", fmt.Errorf("%w: %s has no primary key", source.ErrNoPrimaryKey, s.cfg.Name)
	}
	sort.Strings(keys)

	rdn := make(directory.RDN, 0, len(keys))
	for _, name := range keys {
		v := rowValue(row, name)
		if v == nil {
			return "", fmt.Errorf("%w: %s.%s", source.ErrNoPrimaryKey, s.cfg.Name, name)
		}
		rdn = append(rdn, directory.AVA{Type: s.cfg.Field(name).Column(), Value: directory.ValueString(v)})
	}
	return directory.JoinDN(rdn.String(), s.baseDN()), nil
}

// Search implements source.Source. The filter is sent to the server with
// field names translated to attribute names and AND-ed with the configured
// object classes.
func (s *Source) Search(ctx context.Context, session *source.Session, q *source.Query, resp directory.SearchResponse) error {
	if err := source.CheckSession(session); err != nil {
		return err
	}
	if q == nil {
		q = source.NewQuery(s, nil)
	}
	if err := q.Validate(); err != nil {
		return err
	}
	if len(q.Refs) > 1 {
		return source.ErrJoinUnsupported
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	alias := q.Primary().Alias
	req := ldap.NewSearchRequest(
		s.baseDN(),
		s.scope(),
		ldap.NeverDerefAliases,
		q.SizeLimit,
		0,
		false,
		s.searchFilter(q),
		s.attributes(),
		nil,
	)
	if deadline, ok := ctx.Deadline(); ok {
		if secs := int(time.Until(deadline).Seconds()); secs > 0 {
			req.TimeLimit = secs
		}
	}

	res, err := s.conn.search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil
		}
		return fmt.Errorf("search %s: %w", s.cfg.Name, err)
	}

	for _, entry := range res.Entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		attrs := s.entryAttributes(entry)
		dn, err := source.RowDN(s.cfg, alias, attrsRow(attrs))
		if err != nil {
			s.conn.logger.Warn("entry without key skipped", "source", s.cfg.Name, "dn", entry.DN, "error", err)
			continue
		}
		result := directory.NewSearchResult(dn)
		result.Source(alias).Merge(attrs)
		if err := resp.Add(ctx, result); err != nil {
			if directory.IsStop(err) {
				return nil
			}
			return err
		}
	}
	return nil
}

// searchFilter renders the query filter for the server.
func (s *Source) searchFilter(q *source.Query) string {
	var f filter.Filter
	for _, class := range s.objectClasses() {
		f = filter.AppendAnd(f, filter.NewEquality("objectClass", class))
	}
	if q.Filter != nil {
		own := q.Filter.Clone()
		filter.Rename(own, func(attribute string) string {
			_, name := q.Resolve(attribute)
			if field := s.cfg.Field(name); field != nil {
				return field.Column()
			}
			return name
		})
		f = filter.AppendAnd(f, own)
	}
	if f == nil {
		return "(objectClass=*)"
	}
	return f.String()
}

func (s *Source) attributes() []string {
	attrs := make([]string, len(s.cfg.Fields))
	for i := range s.cfg.Fields {
		attrs[i] = s.cfg.Fields[i].Column()
	}
	return attrs
}

// entryAttributes converts the attributes of an entry into field values.
func (s *Source) entryAttributes(entry *ldap.Entry) directory.Attributes {
	attrs := make(directory.Attributes, len(s.cfg.Fields))
	for i := range s.cfg.Fields {
		f := &s.cfg.Fields[i]
		for _, raw := range entry.GetEqualFoldRawAttributeValues(f.Column()) {
			attrs.Add(f.Name, convertValue(f, raw))
		}
	}
	return attrs
}

// Add implements source.Source. Multi-valued attributes are stored as
// multi-valued LDAP attributes.
func (s *Source) Add(ctx context.Context, session *source.Session, dn string, attrs directory.Attributes) error {
	if err := source.CheckSession(session); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	values := make(directory.Attributes, len(attrs))
	for name, vals := range attrs {
		if f := s.cfg.Field(name); f != nil {
			values.Add(f.Name, vals...)
		}
	}
	if key, err := source.KeyFromDN(s.cfg, dn); err == nil {
		for name, v := range key {
			if !values.Has(name) {
				values.Add(name, v)
			}
		}
	}

	target, err := s.serverDN(attrsRow(values))
	if err != nil {
		return err
	}
	req := ldap.NewAddRequest(target, nil)
	if classes := s.objectClasses(); len(classes) > 0 {
		req.Attribute("objectClass", classes)
	}
	for _, name := range values.Names() {
		f := s.cfg.Field(name)
		text := make([]string, 0, len(values[name]))
		for _, v := range values[name] {
			text = append(text, directory.ValueString(v))
		}
		req.Attribute(f.Column(), text)
	}

	if err := s.conn.dir.Add(req); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists) {
			return fmt.Errorf("add %s: %w", req.DN, source.ErrSourceExists)
		}
		return fmt.Errorf("add %s: %w", req.DN, err)
	}
	return nil
}

// Delete implements source.Source. Deleting a missing entry is not an
// error.
func (s *Source) Delete(ctx context.Context, session *source.Session, dn string) error {
	if err := source.CheckSession(session); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.entryDN(dn)
	if err != nil {
		return err
	}
	if err := s.conn.dir.Del(ldap.NewDelRequest(target, nil)); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil
		}
		return fmt.Errorf("delete %s: %w", target, err)
	}
	return nil
}

// Clear implements source.Source by deleting every entry found below the
// base DN.
func (s *Source) Clear(ctx context.Context, session *source.Session) error {
	var dns []string
	err := s.Search(ctx, session, source.NewQuery(s, nil), directory.ResponseFunc(func(_ context.Context, r *directory.SearchResult) error {
		dns = append(dns, r.DN)
		return nil
	}))
	if err != nil {
		return err
	}
	for _, dn := range dns {
		if err := s.Delete(ctx, session, dn); err != nil {
			return err
		}
	}
	return nil
}

func attrsRow(attrs directory.Attributes) source.Row {
	row := make(source.Row, len(attrs))
	for name := range attrs {
		row[name] = attrs.First(name)
	}
	return row
}

func rowValue(row source.Row, name string) any {
	for k, v := range row {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}
