package firmware

// Channel indexes a metered quantity.
type Channel int

const (
	CPU Channel = iota
	Memory

	// Channels is the number of meters on the board.
	Channels = 2
)

func (c Channel) String() string {
	switch c {
	case CPU:
		return "cpu"
	case Memory:
		return "memory"
	}
	return "unknown"
}

// Record is one decoded protocol line.
type Record struct {
	Tag   byte
	Value int
}

// Channel maps the record's tag to a meter. ok is false for tags the
// board does not display.
func (r Record) Channel() (Channel, bool) {
	switch r.Tag {
	case 'C':
		return CPU, true
	case 'M':
		return Memory, true
	}
	return 0, false
}

// Decode splits a line into its tag and value. The value is read the way
// atoi does: optional leading spaces and sign, then digits up to the first
// non-digit; text without digits reads as 0. The result is clamped to
// [0, 100]. An empty line decodes to a zero Record with ok false.
func Decode(line string) (rec Record, ok bool) {
	if line == "" {
		return Record{}, false
	}
	return Record{Tag: line[0], Value: clamp(atoi(line[1:]))}, true
}

func atoi(s string) int {
	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	n := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		if n > 1000 {
			// already saturated; keep consuming digits
			continue
		}
		n = n*10 + int(s[i]-'0')
	}
	if neg {
		return -n
	}
	return n
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f':
		return true
	}
	return false
}

func clamp(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
