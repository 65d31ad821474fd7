package federation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
)

func result(dn string, pairs ...any) *directory.SearchResult {
	r := directory.NewSearchResult(dn)
	r.Attributes = directory.NewAttributes(pairs...)
	return r
}

func summary(records []*ChangeRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = string(r.Type) + " " + r.TargetDN
	}
	return out
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name   string
		before []*directory.SearchResult
		after  []*directory.SearchResult
		want   []string
	}{
		{
			name: "empty",
		},
		{
			name:   "identical",
			before: []*directory.SearchResult{result("uid=a,o=x", "cn", "A")},
			after:  []*directory.SearchResult{result("UID=a, o=x", "cn", "A")},
		},
		{
			name:  "only after",
			after: []*directory.SearchResult{result("uid=a,o=x"), result("uid=b,o=x")},
			want:  []string{"add uid=a,o=x", "add uid=b,o=x"},
		},
		{
			name:   "only before",
			before: []*directory.SearchResult{result("uid=a,o=x"), result("uid=b,o=x")},
			want:   []string{"delete uid=a,o=x", "delete uid=b,o=x"},
		},
		{
			name: "interleaved",
			before: []*directory.SearchResult{
				result("o=x"),
				result("uid=a,o=x", "cn", "A"),
				result("uid=c,o=x", "cn", "C"),
			},
			after: []*directory.SearchResult{
				result("o=x"),
				result("uid=b,o=x", "cn", "B"),
				result("uid=c,o=x", "cn", "C2"),
				result("uid=d,o=x"),
			},
			want: []string{"delete uid=a,o=x", "add uid=b,o=x", "modify uid=c,o=x", "add uid=d,o=x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nilIfEmpty(summary(Diff(tt.before, tt.after))))
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestDiffSymmetry(t *testing.T) {
	a := []*directory.SearchResult{result("uid=a,o=x"), result("uid=b,o=x", "cn", "B")}
	b := []*directory.SearchResult{result("uid=b,o=x", "cn", "B2"), result("uid=c,o=x")}

	forward := Diff(a, b)
	backward := Diff(b, a)
	require.Len(t, forward, 3)
	require.Len(t, backward, 3)

	inverse := map[ChangeType]ChangeType{ChangeAdd: ChangeDelete, ChangeDelete: ChangeAdd, ChangeModify: ChangeModify}
	for i := range forward {
		assert.Equal(t, forward[i].TargetDN, backward[i].TargetDN)
		assert.Equal(t, inverse[forward[i].Type], backward[i].Type)
	}
}

func TestChanges(t *testing.T) {
	tests := []struct {
		name   string
		record *ChangeRecord
		want   string
	}{
		{
			name: "add",
			record: &ChangeRecord{Type: ChangeAdd, Attributes: directory.NewAttributes(
				"uid", "alice", "cn", "Alice", "photo", []byte{0xff, 0x00},
			)},
			want: "cn: Alice\nphoto:: /wA=\nuid: alice\n",
		},
		{
			name: "modify",
			record: &ChangeRecord{Type: ChangeModify, Modifications: []*directory.Modification{
				directory.NewModification(directory.ModDelete, "mail", "old@example.com"),
				directory.NewModification(directory.ModAdd, "mail", "new@example.com"),
			}},
			want: "delete: mail\nmail: old@example.com\n-\nadd: mail\nmail: new@example.com\n-\n",
		},
		{
			name:   "unsafe value",
			record: &ChangeRecord{Type: ChangeAdd, Attributes: directory.NewAttributes("description", " leading space")},
			want:   "description:: IGxlYWRpbmcgc3BhY2U=\n",
		},
		{
			name:   "delete",
			record: &ChangeRecord{Type: ChangeDelete, TargetDN: "uid=alice,o=x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.Changes())
		})
	}
}

func TestChangeRecordEntry(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))

	rec := &ChangeRecord{TargetDN: "uid=a,o=x", Type: ChangeModRDN, NewRDN: "uid=b", DeleteOldRDN: true}
	attrs := rec.Entry("n-1", at)
	assert.Equal(t, "n-1", attrs.First(FieldChangeNumber))
	assert.Equal(t, "20240102020405Z", attrs.First(FieldChangeTime))
	assert.Equal(t, "uid=a,o=x", attrs.First(FieldTargetDN))
	assert.Equal(t, "modrdn", attrs.First(FieldChangeType))
	assert.Equal(t, "uid=b", attrs.First(FieldNewRDN))
	assert.Equal(t, "true", attrs.First(FieldDeleteOldRDN))
	assert.False(t, attrs.Has(FieldChanges))

	del := (&ChangeRecord{TargetDN: "uid=a,o=x", Type: ChangeDelete}).Entry("n-2", at)
	assert.False(t, del.Has(FieldNewRDN))
}

func TestSafeString(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"plain value", true},
		{"café", false},
		{" leading", false},
		{"trailing ", false},
		{":colon", false},
		{"<url", false},
		{"line\nbreak", false},
		{"nul\x00", false},
		{string([]byte{0xff}), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, safeString(tt.in), "%q", tt.in)
	}
}

func TestChangeLogFields(t *testing.T) {
	fields := ChangeLogFields()
	require.NotEmpty(t, fields)
	assert.Equal(t, FieldChangeNumber, fields[0].Name)
	assert.True(t, fields[0].PrimaryKey)
}

func TestFormatEntry(t *testing.T) {
	attrs := directory.NewAttributes("uid", "1", "cn", "Zoë", "objectClass", "account")
	assert.Equal(t, "dn: uid=1,ou=accounts\ncn:: Wm/Dqw==\nobjectclass: account\nuid: 1\n",
		FormatEntry("uid=1,ou=accounts", attrs))
}
