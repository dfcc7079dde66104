// Package protocol implements the legacy tagged-field text body carried inside
// frames. A body is a concatenation of fields written as <name>value</name>
// with nothing between fields. There is no escaping: a value must never contain
// the tag text of another field, and lookups reproduce the naive first-match
// scan of the legacy format exactly.
package protocol

import "strings"

// Field formats a single tagged field.
//
// Parameters:
//   - name: The tag name
//   - value: The raw value; it is not escaped
//
// Returns:
//   - The string <name>value</name>
func Field(name string, value string) string {
	var b strings.Builder
	b.Grow(2*len(name) + len(value) + 5)
	writeField(&b, name, value)
	return b.String()
}

func writeField(b *strings.Builder, name string, value string) {
	b.WriteByte('<')
	b.WriteString(name)
	b.WriteByte('>')
	b.WriteString(value)
	b.WriteString("</")
	b.WriteString(name)
	b.WriteByte('>')
}

// Lookup extracts the value of the first field called name.
//
// The open tag is located first; the close tag is then searched from the start
// of body, not from the open tag, exactly as the legacy parser did. If that
// close tag sits before the end of the open tag the field is treated as absent.
//
// Parameters:
//   - body: The frame body
//   - name: The tag name to look for
//
// Returns:
//   - The substring between the tags
//   - false if either tag is missing
func Lookup(body string, name string) (string, bool) {
	open := "<" + name + ">"
	start := strings.Index(body, open)
	if start < 0 {
		return "", false
	}

	end := strings.Index(body, "</"+name+">")
	if end < 0 {
		return "", false
	}

	valueStart := start + len(open)
	if end < valueStart {
		return "", false
	}

	return body[valueStart:end], true
}

// LookupInt extracts a field and converts it with C atoi semantics: leading
// white space is skipped, an optional sign is accepted, digits are consumed up
// to the first non-digit, and a value without digits converts to zero.
//
// Returns:
//   - The converted value
//   - false if the field is absent
func LookupInt(body string, name string) (int, bool) {
	s, ok := Lookup(body, name)
	if !ok {
		return 0, false
	}

	return atoi(s), true
}

func atoi(s string) int {
	i := 0
	for i < len(s) && (s[i] == ' ' || (s[i] >= '\t' && s[i] <= '\r')) {
		i++
	}

	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}

	n := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
		if n > 1<<31 {
			n = 1 << 31
		}
	}

	if neg {
		return -n
	}

	if n > 1<<31-1 {
		return 1<<31 - 1
	}

	return n
}
