package session

// Input accumulates keystrokes into a line. It is driven only from the
// foreground loop and is not safe for concurrent use.
type Input struct {
	buf []rune
}

// Feed adds r to the line. A newline or carriage return completes the line:
// it is returned with ready=true and the buffer is cleared.
func (in *Input) Feed(r rune) (line string, ready bool) {
	if r == '\n' || r == '\r' {
		line = string(in.buf)
		in.buf = in.buf[:0]
		return line, true
	}
	in.buf = append(in.buf, r)
	return "", false
}

// Backspace removes the last rune, if any.
func (in *Input) Backspace() {
	if len(in.buf) > 0 {
		in.buf = in.buf[:len(in.buf)-1]
	}
}

// Clear empties the line.
func (in *Input) Clear() {
	in.buf = in.buf[:0]
}

// Line is the text typed so far.
func (in *Input) Line() string {
	return string(in.buf)
}
