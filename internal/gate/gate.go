// Package gate provides a generic N-of-M boolean debouncer. A Gate turns a
// noisy per-frame boolean signal into a stable one: Push returns true only
// when at least Need of the last Max pushed values were true. Independent
// instances gate rep counting (loose) and coaching approval (strict); they
// never share state.
package gate

// Gate is a fixed-capacity rolling window of booleans. Not safe for
// concurrent use; each session owns its own instances.
type Gate struct {
	window []bool
	max    int
	need   int
}

// New creates a gate requiring need of the last max pushes to be true.
// need is clamped into [1, max].
func New(max, need int) *Gate {
	if max < 1 {
		max = 1
	}
	if need < 1 {
		need = 1
	}
	if need > max {
		need = max
	}
	return &Gate{
		window: make([]bool, 0, max),
		max:    max,
		need:   need,
	}
}

// Push appends a value, evicting the oldest if the window is at capacity,
// and returns whether at least need of the retained values are true.
func (g *Gate) Push(v bool) bool {
	if len(g.window) == g.max {
		copy(g.window, g.window[1:])
		g.window = g.window[:g.max-1]
	}
	g.window = append(g.window, v)

	count := 0
	for _, w := range g.window {
		if w {
			count++
		}
	}
	return count >= g.need
}

// Reset empties the window. Called at rep boundaries so gate state does not
// leak from one repetition into the next.
func (g *Gate) Reset() {
	g.window = g.window[:0]
}

// Len returns the number of retained values.
func (g *Gate) Len() int { return len(g.window) }
