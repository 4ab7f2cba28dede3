package browser

// History is the navigation history: a stack of visited contexts with a
// cursor. Moving back or forward suppresses the recording of the very
// next visit so the replayed navigation does not grow the stack.
type History struct {
	entries  []Context
	cursor   int
	suppress bool
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{cursor: -1}
}

// Record notes a visit. A visit identical to the current entry is
// collapsed; entries ahead of the cursor are discarded.
func (h *History) Record(ctx Context) {
	if h.suppress {
		h.suppress = false
		return
	}
	if h.cursor >= 0 && h.entries[h.cursor] == ctx {
		return
	}
	h.entries = append(h.entries[:h.cursor+1], ctx)
	h.cursor = len(h.entries) - 1
}

// Back moves the cursor one entry back and returns the context to
// replay. The next Record call is suppressed.
func (h *History) Back() (Context, bool) {
	if !h.CanBack() {
		return Context{}, false
	}
	h.cursor--
	h.suppress = true
	return h.entries[h.cursor], true
}

// Forward is the inverse of Back.
func (h *History) Forward() (Context, bool) {
	if !h.CanForward() {
		return Context{}, false
	}
	h.cursor++
	h.suppress = true
	return h.entries[h.cursor], true
}

// CanBack reports whether an older entry exists.
func (h *History) CanBack() bool { return h.cursor > 0 }

// CanForward reports whether a newer entry exists.
func (h *History) CanForward() bool { return h.cursor >= 0 && h.cursor < len(h.entries)-1 }

// ClearSuppression drops a pending one-shot suppression, for
// navigations that failed before recording.
func (h *History) ClearSuppression() { h.suppress = false }
