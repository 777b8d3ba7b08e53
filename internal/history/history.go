// Package history reduces raw download samples to a one-point-per-day
// series and classifies it into contiguous runs and gap bridges.
package history

import (
	"time"

	"github.com/openbeans/plugin-counter/model"
)

// DailyPoint is the reduced value for one calendar date. When several
// samples fall on the same date the point takes the latest one.
type DailyPoint struct {
	Date  time.Time // Midnight of the sample's own date component.
	Value int64
}

// Span is an inclusive index range into Series.Points.
type Span struct {
	Start int
	End   int
}

// Series is a reduced daily series. Runs cover points on consecutive
// calendar dates; a Bridge joins the last point before a multi-day gap to
// the first point after it, holding the earlier value flat.
type Series struct {
	Points  []DailyPoint
	Runs    []Span
	Bridges []Span
}

// Empty reports whether the series has no points.
func (s Series) Empty() bool { return len(s.Points) == 0 }

// dateOf takes the timestamp's own date component, no timezone conversion.
// The UTC midnight is only a fixed anchor so day arithmetic stays exact
// across DST transitions.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}

// Reduce collapses samples, ordered by timestamp ascending, into a Series.
// Later samples on the same date overwrite earlier ones (latest wins).
func Reduce(samples []model.Sample) Series {
	var points []DailyPoint
	for _, s := range samples {
		date := dateOf(s.Timestamp)
		if n := len(points); n > 0 && points[n-1].Date.Equal(date) {
			points[n-1].Value = s.Count
			continue
		}
		points = append(points, DailyPoint{Date: date, Value: s.Count})
	}

	series := Series{Points: points}
	if len(points) == 0 {
		return series
	}

	runStart := 0
	for i := 1; i < len(points); i++ {
		if daysBetween(points[i-1].Date, points[i].Date) == 1 {
			continue
		}
		series.Runs = append(series.Runs, Span{Start: runStart, End: i - 1})
		series.Bridges = append(series.Bridges, Span{Start: i - 1, End: i})
		runStart = i
	}
	series.Runs = append(series.Runs, Span{Start: runStart, End: len(points) - 1})

	return series
}
