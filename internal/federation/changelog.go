package federation

import (
	"encoding/base64"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/source"
)

// ChangeType is the kind of a change record.
type ChangeType string

// Change types.
const (
	ChangeAdd    ChangeType = "add"
	ChangeModify ChangeType = "modify"
	ChangeModRDN ChangeType = "modrdn"
	ChangeDelete ChangeType = "delete"
)

// Change log field names.
const (
	FieldChangeNumber = "changeNumber"
	FieldChangeTime   = "changeTime"
	FieldTargetDN     = "targetDN"
	FieldChangeType   = "changeType"
	FieldChanges      = "changes"
	FieldNewRDN       = "newRDN"
	FieldDeleteOldRDN = "deleteOldRDN"
)

// ChangeLogFields returns the field layout of a change log source.
func ChangeLogFields() []source.FieldConfig {
	return []source.FieldConfig{
		{Name: FieldChangeNumber, PrimaryKey: true, Length: 36},
		{Name: FieldChangeTime, Length: 20},
		{Name: FieldTargetDN, Length: 1024},
		{Name: FieldChangeType, Length: 10},
		{Name: FieldChanges, Type: "TEXT"},
		{Name: FieldNewRDN, Length: 255},
		{Name: FieldDeleteOldRDN, Length: 5},
	}
}

// ChangeRecord describes one change of a directory entry.
type ChangeRecord struct {
	TargetDN string
	Type     ChangeType

	// Attributes is the full entry of an add.
	Attributes directory.Attributes

	// Modifications are the changes of a modify.
	Modifications []*directory.Modification

	// NewRDN and DeleteOldRDN describe a modrdn.
	NewRDN       string
	DeleteOldRDN bool
}

// Diff compares two result lists sorted with directory.CompareDN and
// returns the records turning before into after: a delete for each DN only
// in before, an add for each DN only in after and a modify for each DN in
// both whose attributes differ.
func Diff(before, after []*directory.SearchResult) []*ChangeRecord {
	var records []*ChangeRecord
	i, j := 0, 0
	for i < len(before) && j < len(after) {
		old, cur := before[i], after[j]
		switch c := directory.CompareDN(old.DN, cur.DN); {
		case c < 0:
			records = append(records, &ChangeRecord{TargetDN: old.DN, Type: ChangeDelete})
			i++
		case c > 0:
			records = append(records, addRecord(cur))
			j++
		default:
			if mods := directory.CreateModifications(old.Attributes, cur.Attributes); len(mods) > 0 {
				records = append(records, &ChangeRecord{TargetDN: cur.DN, Type: ChangeModify, Modifications: mods})
			}
			i++
			j++
		}
	}
	for ; i < len(before); i++ {
		records = append(records, &ChangeRecord{TargetDN: before[i].DN, Type: ChangeDelete})
	}
	for ; j < len(after); j++ {
		records = append(records, addRecord(after[j]))
	}
	return records
}

func addRecord(r *directory.SearchResult) *ChangeRecord {
	return &ChangeRecord{TargetDN: r.DN, Type: ChangeAdd, Attributes: r.Attributes.Clone()}
}

// Changes encodes the payload of the record in LDIF form: the attributes of
// an add, or the modification blocks of a modify. Other types have no
// payload.
func (c *ChangeRecord) Changes() string {
	var sb strings.Builder
	switch c.Type {
	case ChangeAdd:
		for _, name := range c.Attributes.Names() {
			for _, v := range c.Attributes[name] {
				writeLine(&sb, name, v)
			}
		}
	case ChangeModify:
		for _, mod := range c.Modifications {
			sb.WriteString(mod.Type.String())
			sb.WriteString(": ")
			sb.WriteString(mod.Attribute)
			sb.WriteByte('\n')
			for _, v := range mod.Values {
				writeLine(&sb, mod.Attribute, v)
			}
			sb.WriteString("-\n")
		}
	}
	return sb.String()
}

// Entry returns the change log row of the record.
func (c *ChangeRecord) Entry(number string, at time.Time) directory.Attributes {
	attrs := directory.NewAttributes(
		FieldChangeNumber, number,
		FieldChangeTime, at.UTC().Format("20060102150405Z"),
		FieldTargetDN, c.TargetDN,
		FieldChangeType, string(c.Type),
	)
	if changes := c.Changes(); changes != "" {
		attrs.Add(FieldChanges, changes)
	}
	if c.Type == ChangeModRDN {
		attrs.Add(FieldNewRDN, c.NewRDN)
		if c.DeleteOldRDN {
			attrs.Add(FieldDeleteOldRDN, "true")
		} else {
			attrs.Add(FieldDeleteOldRDN, "false")
		}
	}
	return attrs
}

// FormatEntry renders an entry as an LDIF content record.
func FormatEntry(dn string, attrs directory.Attributes) string {
	var sb strings.Builder
	writeLine(&sb, "dn", dn)
	for _, name := range attrs.Names() {
		for _, v := range attrs[name] {
			writeLine(&sb, name, v)
		}
	}
	return sb.String()
}

// writeLine writes "name: value", switching to "name:: base64" for values
// that are binary or not safe in LDIF.
func writeLine(sb *strings.Builder, name string, v any) {
	text := directory.ValueString(v)
	_, binary := v.([]byte)
	sb.WriteString(name)
	if binary || !safeString(text) {
		sb.WriteString(":: ")
		sb.WriteString(base64.StdEncoding.EncodeToString([]byte(text)))
	} else {
		sb.WriteString(": ")
		sb.WriteString(text)
	}
	sb.WriteByte('\n')
}

// safeString follows the SAFE-STRING rule of LDIF.
func safeString(s string) bool {
	if s == "" {
		return true
	}
	if !utf8.ValidString(s) {
		return false
	}
	switch s[0] {
	case ' ', ':', '<':
		return false
	}
	if s[len(s)-1] == ' ' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if c := s[i]; c == 0 || c == '\n' || c == '\r' || c > 0x7f {
			return false
		}
	}
	return true
}
