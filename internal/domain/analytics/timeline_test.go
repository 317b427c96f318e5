package analytics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activity(events map[string]int, visitors ...string) ContentActivity {
	return ContentActivity{Events: events, VisitorIDs: visitors}
}

func assertPartition(t *testing.T, hours []HourData) {
	t.Helper()
	next := 0
	for _, h := range hours {
		start, end := h.Span()
		require.Equal(t, next, start, "gap or overlap at hour %d", next)
		require.GreaterOrEqual(t, end, start)
		next = end + 1
	}
	require.Equal(t, 24, next, "hours must cover the whole day")
}

func TestAggregateScenario(t *testing.T) {
	h := HourlyActivity{
		"2024-06-01-14": {
			"c1": activity(map[string]int{"READ": 2, "CLICKED": 1}, "v1", "v2"),
		},
		"2024-06-01-15": {
			"c2": activity(map[string]int{"READ": 5}, "v2", "v3"),
			"c1": activity(map[string]int{"GLOSSED": 1}, "v1"),
		},
	}
	contents := ContentMap{
		"c1": {ID: "c1", Title: "Beta", Type: "StoryFragment"},
		"c2": {ID: "c2", Title: "Alpha", Type: "Pane"},
	}
	now := time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)

	tl := Aggregate(h, "2024-06-01", now, time.UTC, contents)
	assertPartition(t, tl.Hours)
	require.Len(t, tl.Hours, 4)

	assert.Equal(t, EmptyRange{StartHour: 0, EndHour: 13}, tl.Hours[0])
	first, ok := tl.Hours[1].(ActiveHour)
	require.True(t, ok)
	assert.Equal(t, 14, first.Hour)
	assert.Equal(t, 3, first.HourlyTotal)
	assert.Equal(t, 2, first.HourlyVisitors)

	second, ok := tl.Hours[2].(ActiveHour)
	require.True(t, ok)
	assert.Equal(t, 15, second.Hour)
	assert.Equal(t, 6, second.HourlyTotal)
	assert.Equal(t, "Alpha", second.ContentItems[0].Title)
	assert.Equal(t, "Beta", second.ContentItems[1].Title)
	assert.Equal(t, 1.0, second.RelativeToMax)
	assert.InDelta(t, 0.5, first.RelativeToMax, 1e-9)

	assert.Equal(t, EmptyRange{StartHour: 16, EndHour: 23, IsFuture: false}, tl.Hours[3])
	assert.Equal(t, 9, tl.DailyTotal)
	assert.Equal(t, 6, tl.MaxHourlyTotal)
	assert.Equal(t, 3, tl.DailyVisitors)
}

func TestAggregateFutureRunOnToday(t *testing.T) {
	h := HourlyActivity{"2024-06-01-14": {"c1": activity(map[string]int{"READ": 1})}}
	now := time.Date(2024, 6, 1, 15, 10, 0, 0, time.UTC)

	tl := Aggregate(h, "2024-06-01", now, time.UTC, nil)
	require.Len(t, tl.Hours, 3)
	assert.Equal(t, EmptyRange{StartHour: 0, EndHour: 13, IsFuture: false}, tl.Hours[0])
	assert.Equal(t, EmptyRange{StartHour: 15, EndHour: 23, IsFuture: false}, tl.Hours[2],
		"a run starting at the current hour is not in the future")

	later := Aggregate(h, "2024-06-01", time.Date(2024, 6, 1, 14, 10, 0, 0, time.UTC), time.UTC, nil)
	assert.Equal(t, EmptyRange{StartHour: 15, EndHour: 23, IsFuture: true}, later.Hours[2])
}

func TestAggregateEmptyContentMapIsEmpty(t *testing.T) {
	h := HourlyActivity{
		"2024-06-01-05": {},
		"2024-06-01-06": {"c1": activity(map[string]int{"READ": 1})},
	}
	tl := Aggregate(h, "2024-06-01", testNow, time.UTC, nil)
	assertPartition(t, tl.Hours)
	assert.Equal(t, EmptyRange{StartHour: 0, EndHour: 5}, tl.Hours[0])
	_, ok := tl.Hours[1].(ActiveHour)
	assert.True(t, ok)
}

func TestAggregateDayWithoutBuckets(t *testing.T) {
	h := HourlyActivity{"2024-05-30-10": {"c1": activity(map[string]int{"READ": 1})}}
	tl := Aggregate(h, "2024-06-01", testNow.Add(48*time.Hour), time.UTC, nil)
	assert.Equal(t, []HourData{EmptyRange{StartHour: 0, EndHour: 23}}, tl.Hours)
	assert.Zero(t, tl.DailyTotal)
	assert.Zero(t, tl.MaxHourlyTotal)
}

func TestAggregateConvertsToViewerZone(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	h := HourlyActivity{
		"2024-06-02-02": {"c1": activity(map[string]int{"READ": 4})},
		"2024-06-01-03": {"c1": activity(map[string]int{"READ": 1})},
	}
	tl := Aggregate(h, "2024-06-01", testNow.Add(72*time.Hour), loc, nil)
	assertPartition(t, tl.Hours)

	var active []ActiveHour
	for _, hd := range tl.Hours {
		if a, ok := hd.(ActiveHour); ok {
			active = append(active, a)
		}
	}
	require.Len(t, active, 1)
	assert.Equal(t, 21, active[0].Hour)
	assert.Equal(t, "2024-06-02-02", active[0].HourKey)
	assert.Equal(t, "c1", active[0].ContentItems[0].Title)
	assert.Equal(t, "Unknown", active[0].ContentItems[0].ContentType)
}

func TestAggregateIsIdempotent(t *testing.T) {
	h := HourlyActivity{
		"2024-06-01-01": {"a": activity(map[string]int{"READ": 1, "CLICKED": 2}, "v1")},
		"2024-06-01-09": {"b": activity(map[string]int{"READ": 3}, "v2"), "a": activity(map[string]int{"READ": 1}, "v1")},
		"bogus":         {"a": activity(map[string]int{"READ": 1})},
	}
	first := Aggregate(h, "2024-06-01", testNow, time.UTC, nil)
	second := Aggregate(h, "2024-06-01", testNow, time.UTC, nil)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("aggregate not idempotent (-first +second):\n%s", diff)
	}
}

func TestRelativeToMaxBounds(t *testing.T) {
	h := HourlyActivity{
		"2024-06-01-02": {"a": activity(map[string]int{"READ": 4})},
		"2024-06-01-03": {"a": activity(map[string]int{"READ": 4})},
		"2024-06-01-07": {"a": activity(map[string]int{"READ": 1})},
		"2024-06-01-08": {"a": activity(map[string]int{})},
	}
	tl := Aggregate(h, "2024-06-01", testNow, time.UTC, nil)
	assertPartition(t, tl.Hours)

	top := 0
	for _, hd := range tl.Hours {
		a, ok := hd.(ActiveHour)
		if !ok {
			continue
		}
		assert.GreaterOrEqual(t, a.RelativeToMax, 0.0)
		assert.LessOrEqual(t, a.RelativeToMax, 1.0)
		if a.RelativeToMax == 1 {
			top++
		}
	}
	assert.Equal(t, 2, top)
}

func TestAvailableDaysAndNavigation(t *testing.T) {
	h := HourlyActivity{
		"2024-05-30-10": {},
		"2024-06-01-14": {},
		"2024-06-01-15": {},
		"2024-05-31-23": {},
	}
	days := AvailableDays(h, time.UTC)
	assert.Equal(t, []string{"2024-06-01", "2024-05-31", "2024-05-30"}, days)

	nav := NewDayNavigator(days, "")
	assert.Equal(t, "2024-06-01", nav.Current())
	assert.False(t, nav.HasNext())

	nav = nav.Next()
	assert.Equal(t, 0, nav.Index)

	nav = nav.Previous().Previous().Previous()
	assert.Equal(t, "2024-05-30", nav.Current())
	assert.Equal(t, 2, nav.Index)
	assert.False(t, nav.HasPrevious())

	nav = nav.Next()
	assert.Equal(t, "2024-05-31", nav.Current())

	assert.Equal(t, "", NewDayNavigator(nil, "").Current())
}

func TestDayNavigatorJSONLinksNeighbours(t *testing.T) {
	nav := NewDayNavigator([]string{"2024-06-01", "2024-05-31", "2024-05-30"}, "2024-05-31")
	b, err := json.Marshal(nav)
	require.NoError(t, err)
	assert.JSONEq(t, `{"days":["2024-06-01","2024-05-31","2024-05-30"],"index":1,"current":"2024-05-31","previous":"2024-05-30","next":"2024-06-01"}`, string(b))

	b, err = json.Marshal(NewDayNavigator(nil, ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"days":[],"index":0,"current":""}`, string(b))
}

func TestHourDataJSONIsTagged(t *testing.T) {
	b, err := EmptyRange{StartHour: 0, EndHour: 3}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"empty","startHour":0,"endHour":3,"isFuture":false}`, string(b))

	b, err = ActiveHour{Hour: 4, HourKey: "2024-06-01-04"}.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(b), `"type":"active"`)
}

func TestParseHourKey(t *testing.T) {
	got, err := ParseHourKey("2024-06-01-14")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC), got)
	assert.Equal(t, "2024-06-01-14", FormatHourKey(got))

	for _, bad := range []string{"", "2024-06-01", "2024-13-01-01", "2024-06-01-24", "x-06-01-01", "2024-02-31-00", "2023-02-29-12"} {
		_, err := ParseHourKey(bad)
		assert.Error(t, err, bad)
	}

	leap, err := ParseHourKey("2024-02-29-12")
	require.NoError(t, err)
	assert.Equal(t, time.February, leap.Month())
}
