// Package stats derives dashboard figures from the call collection.
package stats

import (
	"math"
	"time"

	"github.com/hpungsan/sav-assist/internal/calllog"
)

// ActivityDays is the length of the activity window.
const ActivityDays = 7

// weekdayLabels are the French short weekday names, Sunday first.
var weekdayLabels = [7]string{"dim.", "lun.", "mar.", "mer.", "jeu.", "ven.", "sam."}

// Stats is the dashboard summary.
type Stats struct {
	TotalCalls          int        `json:"totalCalls"`
	UniqueCustomers     int        `json:"uniqueCustomers"`
	Sentiment           Breakdown  `json:"sentiment"`
	Activity            []DayCount `json:"activity"`
	SatisfactionPercent int        `json:"satisfactionPercent"`
	CallsPerDay         float64    `json:"callsPerDay"`
}

// Breakdown counts calls per sentiment. Unknown values are not counted.
type Breakdown struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// DayCount is the number of calls on one calendar day.
type DayCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Compute derives Stats from logs. Days are calendar days in loc ending on
// the day containing now, oldest first.
func Compute(logs []calllog.CallLog, now time.Time, loc *time.Location) Stats {
	if loc == nil {
		loc = time.Local
	}

	s := Stats{TotalCalls: len(logs)}

	phones := make(map[string]struct{}, len(logs))
	for _, l := range logs {
		phones[l.PhoneNumber] = struct{}{}
		switch l.Summary.Sentiment {
		case calllog.Positive:
			s.Sentiment.Positive++
		case calllog.Neutral:
			s.Sentiment.Neutral++
		case calllog.Negative:
			s.Sentiment.Negative++
		}
	}
	s.UniqueCustomers = len(phones)

	s.Activity = activity(logs, now.In(loc), loc)

	if s.TotalCalls > 0 {
		s.SatisfactionPercent = int(math.Round(float64(s.Sentiment.Positive) / float64(s.TotalCalls) * 100))
	}
	s.CallsPerDay = math.Round(float64(s.TotalCalls)/ActivityDays*10) / 10

	return s
}

type dayKey struct {
	year  int
	month time.Month
	day   int
}

func activity(logs []calllog.CallLog, now time.Time, loc *time.Location) []DayCount {
	y, m, d := now.Date()
	days := make([]DayCount, ActivityDays)
	index := make(map[dayKey]int, ActivityDays)
	for i := 0; i < ActivityDays; i++ {
		day := time.Date(y, m, d-(ActivityDays-1-i), 0, 0, 0, 0, loc)
		days[i] = DayCount{
			Date:  day.Format("2006-01-02"),
			Label: weekdayLabels[day.Weekday()],
		}
		dy, dm, dd := day.Date()
		index[dayKey{dy, dm, dd}] = i
	}

	for _, l := range logs {
		ly, lm, ld := time.UnixMilli(l.Timestamp).In(loc).Date()
		if i, ok := index[dayKey{ly, lm, ld}]; ok {
			days[i].Count++
		}
	}
	return days
}
