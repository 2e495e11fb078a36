package quota

import "time"

// DateLayout is the persisted form of a week key.
const DateLayout = "2006-01-02"

// WeekStart returns the Monday of t's week in loc as a pure date: midnight UTC
// carrying loc's calendar day. Sunday belongs to the week that started six days earlier.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)

	back := int(t.Weekday()) - int(time.Monday)
	if t.Weekday() == time.Sunday {
		back = 6
	}

	d := t.AddDate(0, 0, -back)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func WeekKey(t time.Time, loc *time.Location) string {
	return WeekStart(t, loc).Format(DateLayout)
}
