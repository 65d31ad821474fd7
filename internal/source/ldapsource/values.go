package ldapsource

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/go-objectsid"
	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/vdir/internal/source"
)

// Active Directory attributes stored in binary form but compared as text.
const (
	attrObjectSID  = "objectSid"
	attrObjectGUID = "objectGUID"
)

// convertValue converts a raw attribute value of field f. Security
// identifiers and GUIDs become their string forms; other binary fields stay
// []byte and everything else is text.
func convertValue(f *source.FieldConfig, raw []byte) any {
	switch {
	case strings.EqualFold(f.Column(), attrObjectSID) && validSID(raw):
		sid := objectsid.Decode(raw)
		return sid.String()
	case strings.EqualFold(f.Column(), attrObjectGUID) && len(raw) == 16:
		if s, err := GUIDString(raw); err == nil {
			return s
		}
	}
	if f.IsBinary() {
		return append([]byte(nil), raw...)
	}
	return string(raw)
}

// GUIDString converts a GUID in the mixed-endian byte order used by Active
// Directory to its canonical string form.
func GUIDString(raw []byte) (string, error) {
	if len(raw) != 16 {
		return "", fmt.Errorf("invalid GUID length %d", len(raw))
	}
	b := make([]byte, 16)
	b[0], b[1], b[2], b[3] = raw[3], raw[2], raw[1], raw[0]
	b[4], b[5] = raw[5], raw[4]
	b[6], b[7] = raw[7], raw[6]
	copy(b[8:], raw[8:])

	id, err := uuid.FromBytes(b)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// GUIDBytes is the inverse of GUIDString.
func GUIDBytes(s string) ([]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, 16)
	raw[0], raw[1], raw[2], raw[3] = id[3], id[2], id[1], id[0]
	raw[4], raw[5] = id[5], id[4]
	raw[6], raw[7] = id[7], id[6]
	copy(raw[8:], id[8:])
	return raw, nil
}

// validSID checks the length of a binary SID against its sub-authority
// count.
func validSID(raw []byte) bool {
	return len(raw) >= 8 && len(raw) >= 8+4*int(raw[1])
}
