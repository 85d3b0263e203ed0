package dumpdir

// NormalizeText applies the load-time cleanup every reader of a problem
// directory agrees on:
//   - NUL bytes become spaces, other control bytes except whitespace are
//     dropped;
//   - when the only newline is the last byte it is removed, so that
//     "echo foo >element" yields "foo";
//   - when there is at least one newline but the last line is unterminated a
//     newline is appended.
//
// Text without newlines is returned unchanged.
func NormalizeText(raw []byte) string {
	buf := make([]byte, 0, len(raw)+1)
	newlines := 0
	for _, c := range raw {
		if c == 0 {
			c = ' '
		}
		if c == '\n' {
			newlines++
		}
		if c >= ' ' || isSpace(c) {
			buf = append(buf, c)
		}
	}

	if newlines == 0 {
		return string(buf)
	}
	if buf[len(buf)-1] == '\n' {
		if newlines == 1 {
			buf = buf[:len(buf)-1]
		}
		return string(buf)
	}
	return string(append(buf, '\n'))
}

// isSpace matches C isspace in the "C" locale.
func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
