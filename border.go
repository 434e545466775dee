package vision

import "fmt"

// BorderPolicy decides what a read past the edge of an operand returns.
type BorderPolicy uint8

const (
	// BorderClamp replicates the nearest edge pixel. This is the default.
	BorderClamp BorderPolicy = iota

	// BorderZero returns a zero pixel.
	BorderZero

	// BorderWrap wraps around to the opposite edge.
	BorderWrap

	// BorderMirror reflects about the edge without repeating it
	// (dcb|abcd|cba).
	BorderMirror
)

// String returns the policy name.
func (b BorderPolicy) String() string {
	switch b {
	case BorderClamp:
		return "clamp"
	case BorderZero:
		return "zero"
	case BorderWrap:
		return "wrap"
	case BorderMirror:
		return "mirror"
	default:
		return fmt.Sprintf("border(%d)", uint8(b))
	}
}

// ParseBorderPolicy parses the name returned by String.
func ParseBorderPolicy(s string) (BorderPolicy, error) {
	switch s {
	case "clamp", "":
		return BorderClamp, nil
	case "zero":
		return BorderZero, nil
	case "wrap":
		return BorderWrap, nil
	case "mirror":
		return BorderMirror, nil
	}
	return BorderClamp, fmt.Errorf("vision: unknown border policy %q", s)
}

// Remap maps (x, y) into d. The boolean is false when the policy resolves
// the read to a zero pixel instead of a position.
func (b BorderPolicy) Remap(x, y int, d Dims) (int, int, bool) {
	if d.Contains(x, y) {
		return x, y, true
	}
	switch b {
	case BorderZero:
		return 0, 0, false
	case BorderWrap:
		return wrap(x, d.Cols), wrap(y, d.Rows), true
	case BorderMirror:
		return mirror(x, d.Cols), mirror(y, d.Rows), true
	default:
		return clamp(x, d.Cols), clamp(y, d.Rows), true
	}
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

// mirror reflects v into [0, n). Offsets larger than the extent keep
// bouncing between the edges.
func mirror(v, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	v = wrap(v, period)
	if v >= n {
		v = period - v
	}
	return v
}
