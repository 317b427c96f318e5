package analytics

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"
)

// EndOfDayHour is the hour selector meaning the end of the selected day.
const EndOfDayHour = "24"

// Bound says which end of a range an instant is built for.
type Bound int

const (
	StartBound Bound = iota
	EndBound
)

// CreateUTCInstant builds a UTC instant from a local calendar date and hour selector.
// End bounds always land on minute 59 because the selector is an inclusive hour.
func CreateUTCInstant(localDate, hourSelector string, loc *time.Location, bound Bound) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(DayLayout, localDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", localDate, err)
	}

	hour, minute := 0, 0
	if hourSelector == EndOfDayHour {
		hour, minute = 23, 59
	} else {
		hour, err = strconv.Atoi(hourSelector)
		if err != nil || hour < 0 || hour > 23 || len(hourSelector) != 2 {
			return time.Time{}, fmt.Errorf("invalid hour %q", hourSelector)
		}
	}
	if bound == EndBound {
		minute = 59
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc).UTC(), nil
}

// Validation messages shown next to the range form.
const (
	MsgSelectBoth     = "Please select both start and end dates."
	MsgEndBeforeStart = "End time must be after start time."
	MsgEndInFuture    = "End time cannot be in the future."
	msgLookbackLimit  = "Start time cannot be more than %d hours in the past."
)

// RangeError is a validation failure for one field of the range form.
type RangeError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *RangeError) Error() string { return e.Message }

// ValidateRange checks a candidate range; the first failing check wins.
// A start exactly maxHours before now is accepted.
func ValidateRange(start, end *time.Time, now time.Time, maxHours int) error {
	if start == nil || end == nil {
		return &RangeError{Field: "range", Message: MsgSelectBoth}
	}
	if end.Before(*start) {
		return &RangeError{Field: "end", Message: MsgEndBeforeStart}
	}
	if start.Before(now.Add(-time.Duration(maxHours) * time.Hour)) {
		return &RangeError{Field: "start", Message: fmt.Sprintf(msgLookbackLimit, maxHours)}
	}
	if end.After(now) {
		return &RangeError{Field: "end", Message: MsgEndInFuture}
	}
	return nil
}

// Preset is a coarse look-back window.
type Preset string

const (
	Preset24h    Preset = "24h"
	Preset7d     Preset = "7d"
	Preset28d    Preset = "28d"
	PresetCustom Preset = "custom"
)

var presetHours = map[Preset]int{
	Preset24h: 24,
	Preset7d:  168,
	Preset28d: 672,
}

// HoursBack returns the preset's window in hours.
func (p Preset) HoursBack() (int, bool) {
	h, ok := presetHours[p]
	return h, ok
}

// PresetFor maps a committed range back to the preset it matches, for highlighting.
func PresetFor(start, end *time.Time, now time.Time) Preset {
	if start == nil || end == nil {
		return PresetCustom
	}
	if now.Sub(*end) > time.Hour || end.Sub(now) > time.Hour {
		return PresetCustom
	}
	hours := int(math.Round(end.Sub(*start).Hours()))
	for _, p := range []Preset{Preset24h, Preset7d, Preset28d} {
		if presetHours[p] == hours {
			return p
		}
	}
	return PresetCustom
}

// RangeForm holds the local date and hour fields of the range editor.
type RangeForm struct {
	StartDate string `json:"startDate"`
	StartHour string `json:"startHour"`
	EndDate   string `json:"endDate"`
	EndHour   string `json:"endHour"`
}

// FormFromRange renders UTC instants as local form fields.
func FormFromRange(start, end *time.Time, loc *time.Location) RangeForm {
	var f RangeForm
	if start != nil {
		s := start.In(loc)
		f.StartDate, f.StartHour = s.Format(DayLayout), fmt.Sprintf("%02d", s.Hour())
	}
	if end != nil {
		e := end.In(loc)
		f.EndDate, f.EndHour = e.Format(DayLayout), fmt.Sprintf("%02d", e.Hour())
	}
	return f
}

// EditState is the unsaved-changes state of the range editor.
type EditState string

const (
	EditClean    EditState = "clean"
	EditDirty    EditState = "dirty"
	EditApplying EditState = "applying"
	EditError    EditState = "error"
)

var (
	// ErrApplyInProgress rejects edits while a commit is running.
	ErrApplyInProgress = errors.New("range apply in progress")
	// ErrNothingToApply is returned when Apply is called without pending edits.
	ErrNothingToApply = errors.New("no pending range changes")
	// ErrUnknownPreset is returned for unsupported preset names.
	ErrUnknownPreset = errors.New("unknown range preset")
)

// RangeEditorView is a copy of the editor's state for display.
type RangeEditorView struct {
	State     EditState  `json:"state"`
	Form      RangeForm  `json:"form"`
	Preset    Preset     `json:"preset,omitempty"`
	Message   string     `json:"message,omitempty"`
	Field     string     `json:"field,omitempty"`
	Succeeded bool       `json:"succeeded"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
}

// RangeEditor tracks pending range edits until they are applied or cancelled.
type RangeEditor struct {
	mu        sync.Mutex
	loc       *time.Location
	maxHours  int
	form      RangeForm
	start     *time.Time
	end       *time.Time
	preset    Preset
	state     EditState
	message   string
	field     string
	succeeded bool
}

// NewRangeEditor creates a clean editor.
func NewRangeEditor(loc *time.Location, maxHours int) *RangeEditor {
	if loc == nil {
		loc = time.UTC
	}
	return &RangeEditor{loc: loc, maxHours: maxHours, state: EditClean}
}

// Edit replaces the form fields and marks the range dirty.
// Fields that do not parse leave the pending instant unset.
func (e *RangeEditor) Edit(form RangeForm) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == EditApplying {
		return ErrApplyInProgress
	}

	e.form = form
	e.start, e.end = nil, nil
	if t, err := CreateUTCInstant(form.StartDate, form.StartHour, e.loc, StartBound); err == nil {
		e.start = &t
	}
	if t, err := CreateUTCInstant(form.EndDate, form.EndHour, e.loc, EndBound); err == nil {
		e.end = &t
	}
	e.preset = ""
	e.markDirty()
	return nil
}

// SelectPreset fills the form from a preset window ending at now and marks it dirty.
func (e *RangeEditor) SelectPreset(p Preset, now time.Time) error {
	hours, ok := p.HoursBack()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPreset, p)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == EditApplying {
		return ErrApplyInProgress
	}

	end := now.UTC()
	start := end.Add(-time.Duration(hours) * time.Hour)
	e.start, e.end = &start, &end
	e.form = FormFromRange(e.start, e.end, e.loc)
	e.preset = p
	e.markDirty()
	return nil
}

func (e *RangeEditor) markDirty() {
	e.state = EditDirty
	e.message, e.field = "", ""
	e.succeeded = false
}

// Apply validates the pending range and hands it to commit. A validation
// failure leaves the editor open; a commit failure moves it to the error state.
// On success the editor stays in applying with Succeeded set until Settle.
func (e *RangeEditor) Apply(now time.Time, commit func(start, end time.Time) error) error {
	e.mu.Lock()
	switch e.state {
	case EditApplying:
		e.mu.Unlock()
		return ErrApplyInProgress
	case EditClean:
		e.mu.Unlock()
		return ErrNothingToApply
	}

	if err := ValidateRange(e.start, e.end, now, e.maxHours); err != nil {
		var rerr *RangeError
		if errors.As(err, &rerr) {
			e.message, e.field = rerr.Message, rerr.Field
		}
		e.mu.Unlock()
		return err
	}
	start, end := *e.start, *e.end
	e.state = EditApplying
	e.message, e.field = "", ""
	e.mu.Unlock()

	err := commit(start, end)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.state = EditError
		e.message = err.Error()
		return err
	}
	e.succeeded = true
	return nil
}

// Settle ends the success hold after a committed apply.
func (e *RangeEditor) Settle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == EditApplying && e.succeeded {
		e.state = EditClean
		e.succeeded = false
		e.preset = ""
	}
}

// Cancel discards pending edits and mirrors the committed range.
func (e *RangeEditor) Cancel(committedStart, committedEnd *time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == EditApplying {
		return ErrApplyInProgress
	}
	e.reset(committedStart, committedEnd)
	return nil
}

// Sync mirrors the committed range when there are no pending edits.
func (e *RangeEditor) Sync(committedStart, committedEnd *time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == EditClean {
		e.reset(committedStart, committedEnd)
	}
}

func (e *RangeEditor) reset(start, end *time.Time) {
	e.form = FormFromRange(start, end, e.loc)
	e.start, e.end = copyTime(start), copyTime(end)
	e.preset = ""
	e.state = EditClean
	e.message, e.field = "", ""
	e.succeeded = false
}

// View returns a copy of the editor state.
func (e *RangeEditor) View() RangeEditorView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return RangeEditorView{
		State:     e.state,
		Form:      e.form,
		Preset:    e.preset,
		Message:   e.message,
		Field:     e.field,
		Succeeded: e.succeeded,
		Start:     copyTime(e.start),
		End:       copyTime(e.end),
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
