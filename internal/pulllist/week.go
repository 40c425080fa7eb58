package pulllist

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Comic weeks run Wednesday through Tuesday: new issues land on Wednesday.
// Shifting a date back two days aligns the comic week with the ISO week
// (Monday through Sunday), so Wednesday..Tuesday all map to one week id.
const comicWeekShiftDays = 2

// WeekID returns the comic week identifier ("2024-W48") for a timestamp in
// the given timezone.
func WeekID(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	shifted := t.In(loc).AddDate(0, 0, -comicWeekShiftDays)
	year, week := shifted.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// WeekStart returns the Wednesday that opens the given comic week, at
// midnight in the given timezone.
func WeekStart(weekID string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	parts := strings.SplitN(weekID, "-W", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid week id %q", weekID)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid week id year %q", weekID)
	}
	week, err := strconv.Atoi(parts[1])
	if err != nil || week < 1 || week > 53 {
		return time.Time{}, fmt.Errorf("invalid week id week %q", weekID)
	}

	// January 4th is always inside ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, loc)
	isoMonday := jan4.AddDate(0, 0, -mondayOffset(jan4.Weekday()))
	monday := isoMonday.AddDate(0, 0, (week-1)*7)
	return monday.AddDate(0, 0, comicWeekShiftDays), nil
}

func mondayOffset(day time.Weekday) int {
	// Weekday is Sunday=0; ISO weeks start on Monday.
	if day == time.Sunday {
		return 6
	}
	return int(day) - 1
}

func PreviousWeekID(weekID string, loc *time.Location) (string, error) {
	start, err := WeekStart(weekID, loc)
	if err != nil {
		return "", err
	}
	return WeekID(start.AddDate(0, 0, -7), loc), nil
}

func NextWeekID(weekID string, loc *time.Location) (string, error) {
	start, err := WeekStart(weekID, loc)
	if err != nil {
		return "", err
	}
	return WeekID(start.AddDate(0, 0, 7), loc), nil
}

// FormatWeekRange renders the Wednesday-Tuesday span of a comic week for
// display, e.g. "Nov 26 - Dec 2, 2024".
func FormatWeekRange(weekID string, loc *time.Location) string {
	start, err := WeekStart(weekID, loc)
	if err != nil {
		return weekID
	}
	end := start.AddDate(0, 0, 6)

	switch {
	case start.Month() == end.Month():
		return fmt.Sprintf("%s - %s", start.Format("Jan 02"), end.Format("02, 2006"))
	case start.Year() == end.Year():
		return fmt.Sprintf("%s - %s", start.Format("Jan 02"), end.Format("Jan 02, 2006"))
	default:
		return fmt.Sprintf("%s - %s", start.Format("Jan 02, 2006"), end.Format("Jan 02, 2006"))
	}
}
