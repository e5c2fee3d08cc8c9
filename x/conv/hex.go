// Package conv holds small conversion helpers that stay allocation-free on
// the append paths, so they are usable from firmware logging without fmt.
package conv

const hexd = "0123456789ABCDEF"

// AppendHex appends the uppercase hex digits of src to dst.
func AppendHex(dst, src []byte) []byte {
	for _, b := range src {
		dst = append(dst, hexd[b>>4], hexd[b&0xF])
	}
	return dst
}

// HexString renders b as uppercase hex. It allocates; firmware hot paths
// should use AppendHex with a reused buffer instead.
func HexString(b []byte) string {
	return string(AppendHex(make([]byte, 0, 2*len(b)), b))
}

// ParseHex decodes pairs of hex digits from s into a new slice. It returns
// false on odd length or a non-hex character.
func ParseHex(s string) ([]byte, bool) {
	if len(s)%2 != 0 {
		return nil, false
	}
	out := make([]byte, 0, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		hi, ok1 := hexVal(s[i])
		lo, ok2 := hexVal(s[i+1])
		if !ok1 || !ok2 {
			return nil, false
		}
		out = append(out, hi<<4|lo)
	}
	return out, true
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
