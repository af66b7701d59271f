package dataset

import "bytes"

var nonFiniteTokens = [][]byte{
	[]byte("-Infinity"),
	[]byte("Infinity"),
	[]byte("NaN"),
}

// SanitizeNonFinite replaces bare NaN and Infinity tokens with null so the
// payload parses as strict JSON. String literals are left untouched.
func SanitizeNonFinite(b []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(b))
	inString := false
	escaped := false
	for i := 0; i < len(b); i++ {
		c := b[i]
		if inString {
			out.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out.WriteByte(c)
			continue
		}
		if n := matchToken(b, i); n > 0 {
			out.WriteString("null")
			i += n - 1
			continue
		}
		out.WriteByte(c)
	}
	return out.Bytes()
}

func matchToken(b []byte, i int) int {
	if i > 0 && isWordByte(b[i-1]) {
		return 0
	}
	for _, tok := range nonFiniteTokens {
		if !bytes.HasPrefix(b[i:], tok) {
			continue
		}
		end := i + len(tok)
		if end < len(b) && isWordByte(b[end]) {
			continue
		}
		return len(tok)
	}
	return 0
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
