package bridge

import (
	"fmt"
	"time"
)

type Scope int

const (
	// ScopeGlobal suppresses every local change while the window is open.
	ScopeGlobal Scope = iota
	// ScopePerValue suppresses only the value the window was opened for.
	ScopePerValue
)

func (s Scope) String() string {
	if s == ScopePerValue {
		return "per_value"
	}
	return "global"
}

func ParseScope(s string) (Scope, error) {
	switch s {
	case "", "global":
		return ScopeGlobal, nil
	case "per_value":
		return ScopePerValue, nil
	}
	return 0, fmt.Errorf("unknown suppression scope %q", s)
}

// SuppressionWindow marks a remotely applied volume whose echo from the local
// poll must not be sent back out. It is owned by the control goroutine.
type SuppressionWindow struct {
	Scope Scope

	active  bool
	value   int
	expires time.Time
}

// Open starts a window for value that lapses on its own at expires even if
// nothing clears it.
func (w *SuppressionWindow) Open(value int, expires time.Time) {
	w.active = true
	w.value = value
	w.expires = expires
}

func (w *SuppressionWindow) Clear() {
	w.active = false
}

func (w *SuppressionWindow) Active(now time.Time) bool {
	return w.active && now.Before(w.expires)
}

func (w *SuppressionWindow) Value() int { return w.value }

// Covers reports whether a local observation of v at now is an expected echo.
func (w *SuppressionWindow) Covers(v int, now time.Time) bool {
	if !w.Active(now) {
		return false
	}
	return w.Scope == ScopeGlobal || v == w.value
}
