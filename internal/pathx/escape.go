package pathx

import "strings"

// special lists the characters that end an unescaped name. A label that
// contains one of them needs it backslash-escaped to be used as a name step.
const special = "/[]()!=|\\ \t\n*'\""

// Escape renders label so that it can be used as a name step. Every
// character in the grammar's reserved set gets a preceding backslash.
func Escape(label string) string {
	if !strings.ContainsAny(label, special) {
		return label
	}
	var b strings.Builder
	b.Grow(len(label) + 8)
	for _, r := range label {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Unescape removes one level of backslash escaping. A trailing lone
// backslash is kept as is.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Join builds an escaped path expression from raw labels.
func Join(prefix string, labels ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(prefix, "/"))
	for _, l := range labels {
		b.WriteByte('/')
		b.WriteString(Escape(l))
	}
	return b.String()
}
