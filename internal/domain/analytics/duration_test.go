package analytics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(t time.Time) *time.Time { return &t }

func TestCreateUTCInstant(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)

	tests := []struct {
		name  string
		date  string
		hour  string
		bound Bound
		want  time.Time
	}{
		{"start bound uses minute zero", "2024-06-01", "09", StartBound, time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC)},
		{"end bound forces minute 59", "2024-06-01", "09", EndBound, time.Date(2024, 6, 1, 7, 59, 0, 0, time.UTC)},
		{"sentinel is end of day", "2024-06-01", "24", StartBound, time.Date(2024, 6, 1, 21, 59, 0, 0, time.UTC)},
		{"sentinel on end bound", "2024-06-01", "24", EndBound, time.Date(2024, 6, 1, 21, 59, 0, 0, time.UTC)},
		{"midnight crosses back a day", "2024-06-01", "00", StartBound, time.Date(2024, 5, 31, 22, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CreateUTCInstant(tt.date, tt.hour, loc, tt.bound)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateUTCInstantRejectsBadInput(t *testing.T) {
	for _, tc := range [][2]string{{"", "01"}, {"2024-06-01", "25"}, {"2024-06-01", "7"}, {"06/01/2024", "01"}} {
		_, err := CreateUTCInstant(tc[0], tc[1], time.UTC, StartBound)
		assert.Error(t, err, "%v", tc)
	}
}

func rangeMessage(t *testing.T, err error) string {
	t.Helper()
	var rerr *RangeError
	require.True(t, errors.As(err, &rerr), "expected RangeError, got %v", err)
	return rerr.Message
}

func TestValidateRangeOrder(t *testing.T) {
	now := testNow
	assert.Equal(t, MsgSelectBoth, rangeMessage(t, ValidateRange(nil, nil, now, 672)))
	assert.Equal(t, MsgSelectBoth, rangeMessage(t, ValidateRange(ptr(now), nil, now, 672)))
	// An end before start that is also in the future reports the ordering problem first.
	assert.Equal(t, MsgEndBeforeStart,
		rangeMessage(t, ValidateRange(ptr(now.Add(2*time.Hour)), ptr(now.Add(time.Hour)), now, 672)))
	assert.Equal(t, "Start time cannot be more than 672 hours in the past.",
		rangeMessage(t, ValidateRange(ptr(now.Add(-700*time.Hour)), ptr(now.Add(time.Hour)), now, 672)))
	assert.Equal(t, MsgEndInFuture,
		rangeMessage(t, ValidateRange(ptr(now.Add(-time.Hour)), ptr(now.Add(time.Minute)), now, 672)))
	assert.NoError(t, ValidateRange(ptr(now.Add(-time.Hour)), ptr(now), now, 672))
}

func TestValidateRangeLookbackBoundary(t *testing.T) {
	now := testNow
	const maxHours = 672

	tooOld := now.Add(-(maxHours + 1) * time.Hour)
	assert.Error(t, ValidateRange(&tooOld, &now, now, maxHours))

	inside := now.Add(-(maxHours - 1) * time.Hour)
	assert.NoError(t, ValidateRange(&inside, &now, now, maxHours))

	exact := now.Add(-maxHours * time.Hour)
	assert.NoError(t, ValidateRange(&exact, &now, now, maxHours), "the exact ceiling is accepted")

	justPast := exact.Add(-time.Second)
	assert.Error(t, ValidateRange(&justPast, &now, now, maxHours))
}

func TestPresetFor(t *testing.T) {
	now := testNow
	assert.Equal(t, Preset24h, PresetFor(ptr(now.Add(-24*time.Hour)), ptr(now), now))
	assert.Equal(t, Preset7d, PresetFor(ptr(now.Add(-168*time.Hour)), ptr(now), now))
	assert.Equal(t, Preset28d, PresetFor(ptr(now.Add(-672*time.Hour)), ptr(now), now))
	assert.Equal(t, PresetCustom, PresetFor(ptr(now.Add(-30*time.Hour)), ptr(now), now))
	assert.Equal(t, PresetCustom, PresetFor(ptr(now.Add(-48*time.Hour)), ptr(now.Add(-24*time.Hour)), now))
	assert.Equal(t, PresetCustom, PresetFor(nil, ptr(now), now))
}

func TestRangeEditorPresetApplyFlow(t *testing.T) {
	ed := NewRangeEditor(time.UTC, 672)
	assert.Equal(t, EditClean, ed.View().State)

	require.NoError(t, ed.SelectPreset(Preset24h, testNow))
	v := ed.View()
	assert.Equal(t, EditDirty, v.State, "presets go through the unsaved-changes flow")
	assert.Equal(t, RangeForm{StartDate: "2024-05-31", StartHour: "18", EndDate: "2024-06-01", EndHour: "18"}, v.Form)

	var committed [2]time.Time
	require.NoError(t, ed.Apply(testNow, func(s, e time.Time) error {
		assert.Equal(t, EditApplying, ed.View().State)
		committed = [2]time.Time{s, e}
		return nil
	}))
	assert.Equal(t, testNow.Add(-24*time.Hour), committed[0])
	assert.Equal(t, testNow, committed[1])

	v = ed.View()
	assert.Equal(t, EditApplying, v.State)
	assert.True(t, v.Succeeded)
	assert.ErrorIs(t, ed.Cancel(nil, nil), ErrApplyInProgress)

	ed.Settle()
	assert.Equal(t, EditClean, ed.View().State)
}

func TestRangeEditorValidationBlocksApply(t *testing.T) {
	ed := NewRangeEditor(time.UTC, 672)
	require.NoError(t, ed.Edit(RangeForm{StartDate: "2024-06-01", StartHour: "10"}))

	called := false
	err := ed.Apply(testNow, func(time.Time, time.Time) error { called = true; return nil })
	assert.Equal(t, MsgSelectBoth, rangeMessage(t, err))
	assert.False(t, called)

	v := ed.View()
	assert.Equal(t, EditDirty, v.State)
	assert.Equal(t, "range", v.Field)
	assert.Equal(t, MsgSelectBoth, v.Message)
}

func TestRangeEditorCommitFailureThenRetry(t *testing.T) {
	ed := NewRangeEditor(time.UTC, 672)
	require.NoError(t, ed.Edit(RangeForm{StartDate: "2024-06-01", StartHour: "10", EndDate: "2024-06-01", EndHour: "12"}))

	err := ed.Apply(testNow, func(time.Time, time.Time) error { return errors.New("store unavailable") })
	require.Error(t, err)
	v := ed.View()
	assert.Equal(t, EditError, v.State)
	assert.Equal(t, "store unavailable", v.Message)

	var end time.Time
	require.NoError(t, ed.Apply(testNow, func(_ time.Time, e time.Time) error { end = e; return nil }))
	assert.Equal(t, time.Date(2024, 6, 1, 12, 59, 0, 0, time.UTC), end)
}

func TestRangeEditorCancelRestoresCommitted(t *testing.T) {
	ed := NewRangeEditor(time.UTC, 672)
	start, end := testNow.Add(-48*time.Hour), testNow
	ed.Sync(&start, &end)

	require.NoError(t, ed.Edit(RangeForm{StartDate: "2024-05-01", StartHour: "00", EndDate: "2024-05-02", EndHour: "24"}))
	require.NoError(t, ed.Cancel(&start, &end))

	v := ed.View()
	assert.Equal(t, EditClean, v.State)
	assert.Equal(t, FormFromRange(&start, &end, time.UTC), v.Form)
	assert.ErrorIs(t, ed.Apply(testNow, func(time.Time, time.Time) error { return nil }), ErrNothingToApply)
}

func TestRangeEditorUnknownPreset(t *testing.T) {
	ed := NewRangeEditor(time.UTC, 672)
	assert.ErrorIs(t, ed.SelectPreset("90d", testNow), ErrUnknownPreset)
}
