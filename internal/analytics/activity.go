package analytics

import (
	"fmt"
	"time"

	"github.com/edgard/cupidbot/internal/model"
)

const dayLayout = "2006-01-02"

// DayCount is the number of messages sent on one calendar day.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Activity is a message histogram over a date range.
type Activity struct {
	Start  time.Time      `json:"start"`
	End    time.Time      `json:"end"`
	Days   int            `json:"days"`
	Total  int            `json:"total"`
	Daily  []DayCount     `json:"daily"`
	Hourly map[string]int `json:"hourly"`
}

// Aggregate buckets messages by day and hour of day. Every calendar day in
// [start, end] and every hour "00" to "23" is present, zero when empty.
// Days are taken in end's location; messages outside the range or without a
// timestamp are ignored.
func Aggregate(messages []model.Message, start, end time.Time) Activity {
	loc := end.Location()
	first := truncateDay(start.In(loc))
	last := truncateDay(end)

	a := Activity{
		Start:  start,
		End:    end,
		Daily:  []DayCount{},
		Hourly: make(map[string]int, 24),
	}
	for h := range 24 {
		a.Hourly[hourKey(h)] = 0
	}

	index := map[string]int{}
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		key := d.Format(dayLayout)
		index[key] = len(a.Daily)
		a.Daily = append(a.Daily, DayCount{Date: key})
	}
	a.Days = len(a.Daily)

	for _, m := range messages {
		if !m.HasTimestamp() || m.SentAt.Before(start) || m.SentAt.After(end) {
			continue
		}
		at := m.SentAt.In(loc)
		i, ok := index[at.Format(dayLayout)]
		if !ok {
			continue
		}
		a.Daily[i].Count++
		a.Hourly[hourKey(at.Hour())]++
		a.Total++
	}
	return a
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func hourKey(h int) string {
	return fmt.Sprintf("%02d", h)
}
