package analytics

import (
	"encoding/json"
	"sort"
	"time"
)

// HourData is one entry of a day's timeline: either an ActiveHour or an EmptyRange.
type HourData interface {
	// Span returns the inclusive local hour range covered by the entry.
	Span() (start, end int)
	hourData()
}

// VerbCount is one event verb's count.
type VerbCount struct {
	Verb  string `json:"verb"`
	Count int    `json:"count"`
}

// ContentItem is one content item's activity within an hour.
type ContentItem struct {
	ContentID   string      `json:"contentId"`
	Title       string      `json:"title"`
	ContentType string      `json:"contentType"`
	Events      []VerbCount `json:"events"`
	VisitorIDs  []string    `json:"visitorIds"`
}

// ActiveHour is a local hour with recorded activity.
type ActiveHour struct {
	HourKey        string        `json:"hourKey"`
	Hour           int           `json:"hour"`
	ContentItems   []ContentItem `json:"contentItems"`
	HourlyTotal    int           `json:"hourlyTotal"`
	HourlyVisitors int           `json:"hourlyVisitors"`
	RelativeToMax  float64       `json:"relativeToMax"`
}

// EmptyRange is a maximal run of local hours without activity.
type EmptyRange struct {
	StartHour int  `json:"startHour"`
	EndHour   int  `json:"endHour"`
	IsFuture  bool `json:"isFuture"`
}

func (a ActiveHour) Span() (int, int) { return a.Hour, a.Hour }
func (e EmptyRange) Span() (int, int) { return e.StartHour, e.EndHour }

func (ActiveHour) hourData() {}
func (EmptyRange) hourData() {}

// MarshalJSON tags the entry so clients can tell the variants apart.
func (a ActiveHour) MarshalJSON() ([]byte, error) {
	type alias ActiveHour
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{"active", alias(a)})
}

// MarshalJSON tags the entry so clients can tell the variants apart.
func (e EmptyRange) MarshalJSON() ([]byte, error) {
	type alias EmptyRange
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{"empty", alias(e)})
}

// Timeline is the aggregated view of one local day.
type Timeline struct {
	Day            string     `json:"day"`
	Hours          []HourData `json:"hours"`
	DailyTotal     int        `json:"dailyTotal"`
	DailyVisitors  int        `json:"dailyVisitors"`
	MaxHourlyTotal int        `json:"maxHourlyTotal"`
}

type hourBucket struct {
	hourKey  string
	contents map[string]ContentActivity
}

// Aggregate turns UTC hourly activity into the gap-filled timeline of one local day.
// Buckets whose keys cannot be parsed are ignored.
func Aggregate(activity HourlyActivity, day string, now time.Time, loc *time.Location, contents ContentMap) Timeline {
	if loc == nil {
		loc = time.UTC
	}

	buckets := make(map[int]*hourBucket)
	keys := make([]string, 0, len(activity))
	for k := range activity {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, hourKey := range keys {
		bucketDay, hour, err := LocalSlot(hourKey, loc)
		if err != nil || bucketDay != day {
			continue
		}
		b, ok := buckets[hour]
		if !ok {
			b = &hourBucket{hourKey: hourKey, contents: make(map[string]ContentActivity)}
			buckets[hour] = b
		}
		// Repeated local hours (DST fall-back) merge into one bucket
		for id, act := range activity[hourKey] {
			b.contents[id] = mergeActivity(b.contents[id], act)
		}
	}

	type hourSummary struct {
		items    []ContentItem
		total    int
		visitors int
	}
	summaries := make(map[int]hourSummary)
	dayVisitors := make(map[string]struct{})
	timeline := Timeline{Day: day}

	for hour, b := range buckets {
		if len(b.contents) == 0 {
			continue
		}
		hourVisitors := make(map[string]struct{})
		items := make([]ContentItem, 0, len(b.contents))
		total := 0
		for id, act := range b.contents {
			info := contents.Lookup(id)
			item := ContentItem{
				ContentID:   id,
				Title:       info.Title,
				ContentType: info.Type,
				Events:      make([]VerbCount, 0, len(act.Events)),
				VisitorIDs:  append([]string(nil), act.VisitorIDs...),
			}
			for verb, n := range act.Events {
				item.Events = append(item.Events, VerbCount{Verb: verb, Count: n})
				total += n
			}
			sort.Slice(item.Events, func(i, j int) bool { return item.Events[i].Verb < item.Events[j].Verb })
			for _, v := range act.VisitorIDs {
				hourVisitors[v] = struct{}{}
				dayVisitors[v] = struct{}{}
			}
			items = append(items, item)
		}
		sort.Slice(items, func(i, j int) bool {
			if items[i].Title != items[j].Title {
				return items[i].Title < items[j].Title
			}
			return items[i].ContentID < items[j].ContentID
		})

		summaries[hour] = hourSummary{items: items, total: total, visitors: len(hourVisitors)}
		timeline.DailyTotal += total
		if total > timeline.MaxHourlyTotal {
			timeline.MaxHourlyTotal = total
		}
	}
	timeline.DailyVisitors = len(dayVisitors)

	localNow := now.In(loc)
	isToday := localNow.Format(DayLayout) == day
	currentHour := localNow.Hour()

	hours := make([]HourData, 0, 24)
	emptyStart := -1
	closeEmpty := func(end int) {
		if emptyStart < 0 {
			return
		}
		hours = append(hours, EmptyRange{
			StartHour: emptyStart,
			EndHour:   end,
			IsFuture:  isToday && emptyStart > currentHour,
		})
		emptyStart = -1
	}

	for hour := 0; hour < 24; hour++ {
		s, ok := summaries[hour]
		if !ok {
			if emptyStart < 0 {
				emptyStart = hour
			}
			continue
		}
		closeEmpty(hour - 1)

		relative := 0.0
		if timeline.MaxHourlyTotal > 0 {
			relative = float64(s.total) / float64(timeline.MaxHourlyTotal)
		}
		hours = append(hours, ActiveHour{
			HourKey:        buckets[hour].hourKey,
			Hour:           hour,
			ContentItems:   s.items,
			HourlyTotal:    s.total,
			HourlyVisitors: s.visitors,
			RelativeToMax:  relative,
		})
	}
	closeEmpty(23)

	timeline.Hours = hours
	return timeline
}

func mergeActivity(into, from ContentActivity) ContentActivity {
	events := make(map[string]int, len(into.Events)+len(from.Events))
	for verb, n := range into.Events {
		events[verb] += n
	}
	for verb, n := range from.Events {
		events[verb] += n
	}
	seen := make(map[string]struct{}, len(into.VisitorIDs))
	visitors := make([]string, 0, len(into.VisitorIDs)+len(from.VisitorIDs))
	for _, v := range append(append([]string(nil), into.VisitorIDs...), from.VisitorIDs...) {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		visitors = append(visitors, v)
	}
	return ContentActivity{Events: events, VisitorIDs: visitors}
}

// AvailableDays returns the distinct local days present in activity, most recent first.
func AvailableDays(activity HourlyActivity, loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	set := make(map[string]struct{})
	for hourKey := range activity {
		day, _, err := LocalSlot(hourKey, loc)
		if err != nil {
			continue
		}
		set[day] = struct{}{}
	}
	days := make([]string, 0, len(set))
	for d := range set {
		days = append(days, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days
}

// DayNavigator walks the available days. Index 0 is the most recent day.
type DayNavigator struct {
	Days  []string `json:"days"`
	Index int      `json:"index"`
}

// NewDayNavigator positions the navigator on day, or on the most recent day when absent.
func NewDayNavigator(days []string, day string) DayNavigator {
	nav := DayNavigator{Days: days}
	for i, d := range days {
		if d == day {
			nav.Index = i
			break
		}
	}
	return nav
}

// Current returns the selected day, or "" when there are none.
func (n DayNavigator) Current() string {
	if len(n.Days) == 0 {
		return ""
	}
	return n.Days[n.Index]
}

// Previous moves to the next older day, clamping at the oldest.
func (n DayNavigator) Previous() DayNavigator {
	if n.Index < len(n.Days)-1 {
		n.Index++
	}
	return n
}

// Next moves to the next newer day, clamping at the most recent.
func (n DayNavigator) Next() DayNavigator {
	if n.Index > 0 {
		n.Index--
	}
	return n
}

// HasPrevious reports whether an older day exists.
func (n DayNavigator) HasPrevious() bool { return n.Index < len(n.Days)-1 }

// HasNext reports whether a newer day exists.
func (n DayNavigator) HasNext() bool { return n.Index > 0 }

// MarshalJSON adds the neighbouring days the console links to.
func (n DayNavigator) MarshalJSON() ([]byte, error) {
	out := struct {
		Days     []string `json:"days"`
		Index    int      `json:"index"`
		Current  string   `json:"current"`
		Previous string   `json:"previous,omitempty"`
		Next     string   `json:"next,omitempty"`
	}{Days: n.Days, Index: n.Index, Current: n.Current()}
	if out.Days == nil {
		out.Days = []string{}
	}
	if n.HasPrevious() {
		out.Previous = n.Previous().Current()
	}
	if n.HasNext() {
		out.Next = n.Next().Current()
	}
	return json.Marshal(out)
}
