package analytics

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HourKeyLayout is the format of UTC hour bucket keys.
const HourKeyLayout = "2006-01-02-15"

// DayLayout formats local calendar days.
const DayLayout = "2006-01-02"

// FormatHourKey returns the UTC hour key containing t.
func FormatHourKey(t time.Time) string {
	return t.UTC().Format(HourKeyLayout)
}

// ParseHourKey parses an hour key back to its UTC instant
func ParseHourKey(hourKey string) (time.Time, error) {
	parts := strings.Split(hourKey, "-")
	if len(parts) != 4 {
		return time.Time{}, fmt.Errorf("invalid hour key format: %s", hourKey)
	}

	nums := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid hour key component %q: %s", p, hourKey)
		}
		nums[i] = n
	}
	if nums[1] < 1 || nums[1] > 12 || nums[2] < 1 || nums[2] > 31 || nums[3] < 0 || nums[3] > 23 {
		return time.Time{}, fmt.Errorf("hour key out of range: %s", hourKey)
	}

	t := time.Date(nums[0], time.Month(nums[1]), nums[2], nums[3], 0, 0, 0, time.UTC)
	if t.Day() != nums[2] {
		return time.Time{}, fmt.Errorf("hour key names a day the month does not have: %s", hourKey)
	}
	return t, nil
}

// LocalSlot converts an hour key to the viewer's local calendar day and hour of day.
func LocalSlot(hourKey string, loc *time.Location) (day string, hour int, err error) {
	t, err := ParseHourKey(hourKey)
	if err != nil {
		return "", 0, err
	}
	local := t.In(loc)
	return local.Format(DayLayout), local.Hour(), nil
}
