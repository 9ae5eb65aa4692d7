package pipeline

import (
	"database/sql"
	"time"

	"github.com/franz/playlake/internal/star"
)

// StartTimeLayout is the rendering of start_time in every table
const StartTimeLayout = "2006-01-02 15:04:05"

// FormatStartTime renders an epoch-millisecond timestamp as wall-clock time
// in loc. The millisecond fraction is discarded, rounding toward the past
// for negative timestamps.
func FormatStartTime(ts sql.Null[int64], loc *time.Location) sql.Null[string] {
	if !ts.Valid {
		return sql.Null[string]{}
	}
	secs := ts.V / 1000
	if ts.V%1000 < 0 {
		secs--
	}
	return sql.Null[string]{V: time.Unix(secs, 0).In(loc).Format(StartTimeLayout), Valid: true}
}

// wallClock parses a start_time string. The fields are read back as written,
// so the string is parsed in UTC and never shifted by a DST transition.
func wallClock(startTime sql.Null[string]) (time.Time, bool) {
	if !startTime.Valid {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(StartTimeLayout, startTime.V, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func valid(n int) sql.Null[int64] {
	return sql.Null[int64]{V: int64(n), Valid: true}
}

// DeriveTime decomposes a start_time into a time dimension row. Week is the
// ISO week number and Weekday runs from 1 (Sunday) to 7 (Saturday). A null
// or unparseable start_time yields null parts.
func DeriveTime(startTime sql.Null[string]) star.Time {
	row := star.Time{StartTime: startTime}

	t, ok := wallClock(startTime)
	if !ok {
		return row
	}

	_, week := t.ISOWeek()
	row.Hour = valid(t.Hour())
	row.Day = valid(t.Day())
	row.Week = valid(week)
	row.Month = valid(int(t.Month()))
	row.Year = valid(t.Year())
	row.Weekday = valid(int(t.Weekday()) + 1)
	return row
}

// yearMonth returns the year and month of a start_time
func yearMonth(startTime sql.Null[string]) (sql.Null[int64], sql.Null[int64]) {
	t, ok := wallClock(startTime)
	if !ok {
		return sql.Null[int64]{}, sql.Null[int64]{}
	}
	return valid(t.Year()), valid(int(t.Month()))
}
