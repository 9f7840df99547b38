package miparser

import "strings"

// Print renders v back to MI-style text: tuples as name="value" pairs and
// lists as bracketed, unkeyed elements (the per-element key GDB repeats on
// every list entry is not retained by Parse, so Print never reintroduces
// one). Print's output is not itself a record body: Parse wraps its input
// in a tuple, so use PrintBody to produce text that Parse reads back.
func Print(v Value) string {
	var sb strings.Builder
	print1(&sb, v)
	return sb.String()
}

// PrintBody renders a top-level tuple the way Parse expects a record body:
// comma-separated "name=value" pairs with no wrapping braces, so that
// Parse(PrintBody(v)) round-trips for any Value v produced by Parse.
func PrintBody(v Value) string {
	if v.Kind != KindTuple {
		return Print(v)
	}
	var sb strings.Builder
	for i, f := range v.Tuple.Fields() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(f.Name)
		sb.WriteByte('=')
		print1(&sb, f.Value)
	}
	return sb.String()
}

func print1(sb *strings.Builder, v Value) {
	switch v.Kind {
	case KindString:
		sb.WriteByte('"')
		for _, r := range v.Str {
			if r == '"' || r == '\\' {
				sb.WriteByte('\\')
			}
			sb.WriteRune(r)
		}
		sb.WriteByte('"')
	case KindTuple:
		sb.WriteByte('{')
		for i, f := range v.Tuple.Fields() {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(f.Name)
			sb.WriteByte('=')
			print1(sb, f.Value)
		}
		sb.WriteByte('}')
	case KindList:
		sb.WriteByte('[')
		for i, item := range v.List {
			if i > 0 {
				sb.WriteByte(',')
			}
			print1(sb, item)
		}
		sb.WriteByte(']')
	}
}
