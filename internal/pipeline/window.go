package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/araddon/dateparse"
)

// ErrEmptyWindow is returned when a window's lower bound is not before its upper bound.
var ErrEmptyWindow = errors.New("received window is empty")

// Window bounds the received time of the articles a run clusters. Since is inclusive, Until
// exclusive, and a zero bound is open.
type Window struct {
	Since time.Time
	Until time.Time
}

// LastDays is the window of the days before now. days <= 0 gives the open window.
func LastDays(days int, now time.Time) Window {
	if days <= 0 {
		return Window{}
	}
	return Window{Since: now.AddDate(0, 0, -days)}
}

// ParseWindow builds a window from textual bounds, read as UTC when they carry no zone.
// Explicit bounds replace the daysAgo window; an empty string leaves that side open.
func ParseWindow(since, until string, daysAgo int, now time.Time) (Window, error) {
	if since == "" && until == "" {
		return LastDays(daysAgo, now), nil
	}

	var w Window
	if since != "" {
		t, err := dateparse.ParseIn(since, time.UTC)
		if err != nil {
			return Window{}, fmt.Errorf("parsing since %q: %w", since, err)
		}
		w.Since = t
	}
	if until != "" {
		t, err := dateparse.ParseIn(until, time.UTC)
		if err != nil {
			return Window{}, fmt.Errorf("parsing until %q: %w", until, err)
		}
		w.Until = t
	}
	if !w.Since.IsZero() && !w.Until.IsZero() && !w.Since.Before(w.Until) {
		return Window{}, fmt.Errorf("%w: %s", ErrEmptyWindow, w)
	}
	return w, nil
}

// IsZero reports whether the window is open on both sides.
func (w Window) IsZero() bool {
	return w.Since.IsZero() && w.Until.IsZero()
}

func (w Window) String() string {
	switch {
	case w.IsZero():
		return "any time"
	case w.Until.IsZero():
		return "since " + formatBound(w.Since)
	case w.Since.IsZero():
		return "before " + formatBound(w.Until)
	default:
		return formatBound(w.Since) + " to " + formatBound(w.Until)
	}
}

func formatBound(t time.Time) string {
	t = t.UTC()
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format(time.DateOnly)
	}
	return t.Format("2006-01-02 15:04")
}

func boundPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
