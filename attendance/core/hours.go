package core

import (
	"fmt"
	"math"
	"sort"
	"time"

	"axiapac.com/workforce/attendance/model"
	"axiapac.com/workforce/console"
)

// MaxShiftLength is the longest a clock-in may stay open. Later clock-outs no
// longer close it and the auditor reports it as stale.
const MaxShiftLength = 24 * time.Hour

// WorkPolicy holds the working day of a company.
type WorkPolicy struct {
	Location      *time.Location
	WorkStart     string
	WorkEnd       string
	StandardHours float64
	Grace         time.Duration
}

// PolicyFor reads the policy columns of a company, filling in defaults.
func PolicyFor(c *console.Company) WorkPolicy {
	p := WorkPolicy{
		Location:      c.Location(),
		WorkStart:     c.WorkStart,
		WorkEnd:       c.WorkEnd,
		StandardHours: c.StandardWorkHours,
		Grace:         time.Duration(c.GraceMinutes) * time.Minute,
	}
	if p.WorkStart == "" {
		p.WorkStart = "08:00"
	}
	if p.WorkEnd == "" {
		p.WorkEnd = "17:00"
	}
	if p.StandardHours <= 0 {
		p.StandardHours = 8
	}
	return p
}

// Span is one attendance entry in wall clock time. Out is nil while open.
type Span struct {
	In  time.Time
	Out *time.Time
}

type DaySummary struct {
	NormalHours   float64
	OvertimeHours float64
	Status        model.DayStatus
}

// ComputeDay derives hours and status for one date from the spans of that date.
// Worked time only counts closed spans.
func ComputeDay(date string, spans []Span, p WorkPolicy) (DaySummary, error) {
	if len(spans) == 0 {
		return DaySummary{Status: model.StatusAbsent}, nil
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	base, err := time.ParseInLocation(model.DateLayout, date, loc)
	if err != nil {
		return DaySummary{}, fmt.Errorf("invalid date %s: %w", date, err)
	}
	start, err := ParseTimeOnDate(base, p.WorkStart)
	if err != nil {
		return DaySummary{}, fmt.Errorf("invalid work start %s: %w", p.WorkStart, err)
	}
	end, err := ParseTimeOnDate(base, p.WorkEnd)
	if err != nil {
		return DaySummary{}, fmt.Errorf("invalid work end %s: %w", p.WorkEnd, err)
	}
	// night shifts finish the next day
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].In.Before(spans[j].In) })

	var worked time.Duration
	var lastOut time.Time
	open := false
	for _, s := range spans {
		if s.Out == nil {
			open = true
			continue
		}
		if d := s.Out.Sub(s.In); d > 0 {
			worked += d
		}
		if s.Out.After(lastOut) {
			lastOut = *s.Out
		}
	}

	hours := worked.Hours()
	summary := DaySummary{
		NormalHours:   RoundHours(math.Min(hours, p.StandardHours)),
		OvertimeHours: RoundHours(math.Max(0, hours-p.StandardHours)),
	}

	firstIn := spans[0].In
	switch {
	case open:
		summary.Status = model.StatusPresent
	case firstIn.After(start.Add(p.Grace)):
		summary.Status = model.StatusLate
	case lastOut.Before(end):
		summary.Status = model.StatusEarlyExit
	default:
		summary.Status = model.StatusPresent
	}
	return summary, nil
}

func RoundHours(h float64) float64 {
	return math.Round(h*100) / 100
}

// ParseTimeOnDate combines a base date with a time string (e.g. "08:00")
func ParseTimeOnDate(baseDate time.Time, timeStr string) (time.Time, error) {
	t, err := time.Parse("15:04", timeStr)
	if err != nil {
		t, err = time.Parse("15:04:05", timeStr)
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(baseDate.Year(), baseDate.Month(), baseDate.Day(), t.Hour(), t.Minute(), t.Second(), 0, baseDate.Location()), nil
}

// DateOf is the calendar date of t in the company time zone.
func DateOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(model.DateLayout)
}
