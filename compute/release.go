package compute

// releaseStack records release functions in creation order and runs them
// in reverse. Each entry runs at most once, so releasing twice is a no-op.
type releaseStack struct {
	entries []releaseEntry
}

type releaseEntry struct {
	name string
	fn   func()
}

// push registers fn to release the resource called name.
func (s *releaseStack) push(name string, fn func()) {
	s.entries = append(s.entries, releaseEntry{name: name, fn: fn})
}

// releaseAll runs every pending release function, newest first.
func (s *releaseStack) releaseAll() {
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := &s.entries[i]
		if e.fn == nil {
			continue
		}
		fn := e.fn
		e.fn = nil
		slogger().Debug("compute: release", "resource", e.name)
		fn()
	}
	s.entries = s.entries[:0]
}

// names returns the registered resource names in creation order.
func (s *releaseStack) names() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.name
	}
	return out
}

func (s *releaseStack) len() int { return len(s.entries) }
