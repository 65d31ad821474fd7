package source

import (
	"fmt"
	"sort"
	"strings"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
)

// Row is a single record of a row store keyed by field name.
type Row map[string]any

// ExpandRows turns a multi-valued attribute set into rows: the cartesian
// product of the values of every field. Fields without values are left out;
// an empty attribute set yields no rows. Field names are visited in sorted
// order so the output is deterministic.
func ExpandRows(attrs directory.Attributes) []Row {
	names := attrs.Names()
	rows := []Row{{}}
	for _, name := range names {
		values := attrs[name]
		if len(values) == 0 {
			continue
		}
		next := make([]Row, 0, len(rows)*len(values))
		for _, row := range rows {
			for _, v := range values {
				r := make(Row, len(row)+1)
				for k, existing := range row {
					r[k] = existing
				}
				r[name] = v
				next = append(next, r)
			}
		}
		rows = next
	}
	if len(rows) == 1 && len(rows[0]) == 0 {
		return nil
	}
	return rows
}

// RowDN renders the primary key values of row as an RDN. With a non-empty
// alias each type is qualified ("u.id=1"); several keys are joined with '+'.
func RowDN(cfg *Config, alias string, row Row) (string, error) {
	keys := cfg.PrimaryKeys()
	if len(keys) == 0 {
		keys = cfg.FieldNames()
	}
	sort.Strings(keys)

	rdn := make(directory.RDN, 0, len(keys))
	for _, key := range keys {
		v, ok := lookup(row, key)
		if !ok || v == nil {
			return "", fmt.Errorf("%w: %s.%s", ErrNoPrimaryKey, cfg.Name, key)
		}
		attrType := strings.ToLower(key)
		if alias != "" {
			attrType = alias + "." + attrType
		}
		rdn = append(rdn, directory.AVA{Type: attrType, Value: directory.ValueString(v)})
	}
	return rdn.String(), nil
}

// KeyFromDN extracts primary key values from the first RDN of dn. Qualified
// types ("u.id") are matched on their field part.
func KeyFromDN(cfg *Config, dn string) (Row, error) {
	rdn, err := directory.ParseRDN(directory.FirstRDN(dn))
	if err != nil {
		return nil, err
	}
	key := make(Row)
	for _, ava := range rdn {
		name := ava.Type
		if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
			name = name[idx+1:]
		}
		if f := cfg.Field(name); f != nil {
			key[f.Name] = ava.Value
		}
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPrimaryKey, dn)
	}
	return key, nil
}

// RowAttributes converts a row into an attribute set restricted to the
// configured fields, skipping nil values.
func RowAttributes(cfg *Config, row Row) directory.Attributes {
	attrs := make(directory.Attributes, len(row))
	for _, f := range cfg.Fields {
		v, ok := lookup(row, f.Column())
		if !ok {
			v, ok = lookup(row, f.Name)
		}
		if ok && v != nil {
			attrs.Add(f.Name, v)
		}
	}
	return attrs
}

// FieldRow maps attribute names of attrs to configured field names, dropping
// attributes that are not fields of cfg.
func FieldRow(cfg *Config, row Row) Row {
	out := make(Row, len(row))
	for name, v := range row {
		if f := cfg.Field(name); f != nil {
			out[f.Name] = v
		}
	}
	return out
}

func lookup(row Row, name string) (any, bool) {
	if v, ok := row[name]; ok {
		return v, true
	}
	for k, v := range row {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// EvalAttributes returns attrs under both their plain and their
// alias-qualified names, so that post filters may use either form.
func EvalAttributes(alias string, attrs directory.Attributes) directory.Attributes {
	out := make(directory.Attributes, len(attrs)*2)
	for name, values := range attrs {
		out.Add(name, values...)
		if alias != "" {
			out.Add(alias+"."+name, values...)
		}
	}
	return out
}
