package conversation

import (
	"strings"
	"time"
)

const (
	TodayLabel    = "📅 Today"
	TomorrowLabel = "📅 Tomorrow"
)

// DayResolver turns day-keyboard input into the day name the schedule
// service expects.
type DayResolver struct {
	loc   *time.Location
	names [7]string
	now   func() time.Time
}

// NewDayResolver builds a resolver. names lists weekdays Sunday first; loc
// decides which calendar day "today" is.
func NewDayResolver(loc *time.Location, names []string, now func() time.Time) *DayResolver {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	r := &DayResolver{loc: loc, now: now}
	for i := range r.names {
		if i < len(names) && strings.TrimSpace(names[i]) != "" {
			r.names[i] = strings.TrimSpace(names[i])
		} else {
			r.names[i] = time.Weekday(i).String()
		}
	}
	return r
}

// Resolve maps "today" and "tomorrow" (or their button labels) to the
// weekday name of the current or next date. A weekday name in any case is
// returned in its canonical spelling; other input passes through verbatim.
func (r *DayResolver) Resolve(input string) string {
	key := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), "📅"))
	switch {
	case strings.EqualFold(key, "today"):
		return r.names[r.now().In(r.loc).Weekday()]
	case strings.EqualFold(key, "tomorrow"):
		return r.names[r.now().In(r.loc).AddDate(0, 0, 1).Weekday()]
	}
	for _, name := range r.names {
		if strings.EqualFold(key, name) {
			return name
		}
	}
	return input
}

// KeyboardRows is the day keyboard: today and tomorrow, then Monday to
// Saturday in two rows.
func (r *DayResolver) KeyboardRows() [][]string {
	return [][]string{
		{TodayLabel, TomorrowLabel},
		{r.names[time.Monday], r.names[time.Tuesday], r.names[time.Wednesday]},
		{r.names[time.Thursday], r.names[time.Friday], r.names[time.Saturday]},
	}
}
