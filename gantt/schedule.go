package gantt

import (
	"math"

	"unitask/domain"
)

// ViewMode is the zoom granularity of the gantt timeline.
type ViewMode string

const (
	ModeDay     ViewMode = "day"
	ModeWeek    ViewMode = "week"
	ModeMonth   ViewMode = "month"
	ModeQuarter ViewMode = "quarter"
	ModeYear    ViewMode = "year"
)

// zoomOrder is the fixed total order day < week < month < quarter < year.
var zoomOrder = []ViewMode{ModeDay, ModeWeek, ModeMonth, ModeQuarter, ModeYear}

// DayWidth is the nominal pixel width of a single day at the given zoom.
func (m ViewMode) DayWidth() float64 {
	switch m {
	case ModeDay:
		return 40
	case ModeWeek:
		return 12
	case ModeMonth:
		return 4
	case ModeQuarter:
		return 2
	default:
		return 1
	}
}

// ZoomIn moves one step toward day, clamped.
func ZoomIn(m ViewMode) ViewMode {
	for i, mode := range zoomOrder {
		if mode == m && i > 0 {
			return zoomOrder[i-1]
		}
	}
	return m
}

// ZoomOut moves one step toward year, clamped.
func ZoomOut(m ViewMode) ViewMode {
	for i, mode := range zoomOrder {
		if mode == m && i < len(zoomOrder)-1 {
			return zoomOrder[i+1]
		}
	}
	return m
}

// DurationDays is the inclusive day count spanned by [start, end]. A task
// starting and ending on the same day lasts one day.
func DurationDays(start, end domain.Date) int {
	return start.DaysUntil(end) + 1
}

// PositionFraction is the task bar's left edge as a fraction of the
// visible window, clamped at zero for tasks starting before the window.
func PositionFraction(taskStart, windowStart domain.Date, windowTotalDays int) float64 {
	if windowTotalDays <= 0 {
		return 0
	}
	offset := windowStart.DaysUntil(taskStart)
	if offset < 0 {
		return 0
	}
	return float64(offset) / float64(windowTotalDays)
}

// WidthFraction is the task bar's width as a fraction of the visible
// window.
func WidthFraction(taskDurationDays, windowTotalDays int) float64 {
	if windowTotalDays <= 0 {
		return 0
	}
	return float64(taskDurationDays) / float64(windowTotalDays)
}

// DragDeltaDays converts a horizontal drag in pixels to a whole-day
// delta at the given zoom.
func DragDeltaDays(pixelDelta float64, mode ViewMode) int {
	return int(math.Round(pixelDelta / mode.DayWidth()))
}

// ResizeEnd applies a resize delta to a task's end date. Shrinking below
// a one day duration clamps the end to the start date instead of
// producing an inverted bar.
func ResizeEnd(start, end domain.Date, deltaDays int) domain.Date {
	next := end.AddDays(deltaDays)
	if next.Before(start) {
		return start
	}
	return next
}

// ResizeStart applies a resize delta to a task's start date, clamping at
// the end date so the duration never drops below one day.
func ResizeStart(start, end domain.Date, deltaDays int) domain.Date {
	next := start.AddDays(deltaDays)
	if next.After(end) {
		return end
	}
	return next
}
