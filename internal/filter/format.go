package filter

import (
	"strconv"
	"strings"
)

func formatFilter(f Filter, args *[]any) string {
	var sb strings.Builder
	f.format(&sb, args)
	return sb.String()
}

// writeValue writes an escaped value, or a {n} placeholder when collecting args.
func writeValue(sb *strings.Builder, value any, args *[]any) {
	if args == nil {
		sb.WriteString(Escape(value))
		return
	}
	sb.WriteByte('{')
	sb.WriteString(strconv.Itoa(len(*args)))
	sb.WriteByte('}')
	*args = append(*args, value)
}

func (f *SimpleFilter) String() string            { return formatFilter(f, nil) }
func (f *SimpleFilter) Format(args *[]any) string { return formatFilter(f, args) }

func (f *SimpleFilter) format(sb *strings.Builder, args *[]any) {
	sb.WriteByte('(')
	sb.WriteString(f.Attribute)
	sb.WriteString(string(f.Operator))
	writeValue(sb, f.Value, args)
	sb.WriteByte(')')
}

func (f *PresentFilter) String() string            { return formatFilter(f, nil) }
func (f *PresentFilter) Format(args *[]any) string { return formatFilter(f, args) }

func (f *PresentFilter) format(sb *strings.Builder, _ *[]any) {
	sb.WriteByte('(')
	sb.WriteString(f.Attribute)
	sb.WriteString("=*)")
}

func (f *SubstringFilter) String() string            { return formatFilter(f, nil) }
func (f *SubstringFilter) Format(args *[]any) string { return formatFilter(f, args) }

func (f *SubstringFilter) format(sb *strings.Builder, args *[]any) {
	sb.WriteByte('(')
	sb.WriteString(f.Attribute)
	sb.WriteByte('=')
	if f.Initial != "" {
		writeValue(sb, f.Initial, args)
	}
	sb.WriteByte('*')
	for _, part := range f.Any {
		if part == "" {
			continue
		}
		writeValue(sb, part, args)
		sb.WriteByte('*')
	}
	if f.Final != "" {
		writeValue(sb, f.Final, args)
	}
	sb.WriteByte(')')
}

func (f *ExtensibleFilter) String() string            { return formatFilter(f, nil) }
func (f *ExtensibleFilter) Format(args *[]any) string { return formatFilter(f, args) }

func (f *ExtensibleFilter) format(sb *strings.Builder, args *[]any) {
	sb.WriteByte('(')
	sb.WriteString(f.Attribute)
	if f.DNAttributes {
		sb.WriteString(":dn")
	}
	if f.MatchingRule != "" {
		sb.WriteByte(':')
		sb.WriteString(f.MatchingRule)
	}
	sb.WriteString(":=")
	writeValue(sb, f.Value, args)
	sb.WriteByte(')')
}

func (f *BooleanFilter) String() string            { return formatFilter(f, nil) }
func (f *BooleanFilter) Format(args *[]any) string { return formatFilter(f, args) }

func (f *BooleanFilter) format(sb *strings.Builder, _ *[]any) {
	if f.Value {
		sb.WriteString("(&)")
	} else {
		sb.WriteString("(|)")
	}
}

func (f *NotFilter) String() string            { return formatFilter(f, nil) }
func (f *NotFilter) Format(args *[]any) string { return formatFilter(f, args) }

func (f *NotFilter) format(sb *strings.Builder, args *[]any) {
	sb.WriteString("(!")
	if f.child != nil {
		f.child.format(sb, args)
	}
	sb.WriteByte(')')
}

func (f *AndFilter) String() string            { return formatFilter(f, nil) }
func (f *AndFilter) Format(args *[]any) string { return formatFilter(f, args) }

func (f *AndFilter) format(sb *strings.Builder, args *[]any) {
	sb.WriteString("(&")
	for _, child := range f.children {
		child.format(sb, args)
	}
	sb.WriteByte(')')
}

func (f *OrFilter) String() string            { return formatFilter(f, nil) }
func (f *OrFilter) Format(args *[]any) string { return formatFilter(f, args) }

func (f *OrFilter) format(sb *strings.Builder, args *[]any) {
	sb.WriteString("(|")
	for _, child := range f.children {
		child.format(sb, args)
	}
	sb.WriteByte(')')
}
