// Package importer loads historical clock records exported from legacy
// terminals.
package importer

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	attendance "axiapac.com/workforce/attendance/core"
	"axiapac.com/workforce/attendance/model"
	"axiapac.com/workforce/utils"
)

// Columns recognised in the header row. The first three are required.
const (
	ColEmployeeNo = "employee_no"
	ColTimestamp  = "timestamp"
	ColType       = "type"
	ColSite       = "site"
	ColProject    = "project"
	ColLatitude   = "latitude"
	ColLongitude  = "longitude"
	ColAddress    = "address"
)

// ParseClockCSV reads clock records. Timestamps without an offset are read in loc.
// Row numbers are 1-based and count the header.
func ParseClockCSV(r io.Reader, loc *time.Location) ([]attendance.HistoricalClock, error) {
	rows, err := utils.ParseCSV(r)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	cols := map[string]int{}
	for i, name := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{ColEmployeeNo, ColTimestamp, ColType} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}
	get := func(row []string, col string) string {
		if i, ok := cols[col]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var records []attendance.HistoricalClock
	for i, row := range rows {
		if i == 0 {
			continue
		}
		line := i + 1

		record := attendance.HistoricalClock{
			Row:         line,
			EmployeeNo:  get(row, ColEmployeeNo),
			SiteName:    optional(get(row, ColSite)),
			ProjectName: optional(get(row, ColProject)),
			Address:     get(row, ColAddress),
		}
		if record.EmployeeNo == "" {
			return nil, fmt.Errorf("row %d: missing employee number", line)
		}

		timestamp, err := utils.ParseISOTime(get(row, ColTimestamp), loc)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid timestamp: %w", line, err)
		}
		record.Time = *timestamp

		switch strings.ToLower(get(row, ColType)) {
		case "in", "clock-in", "clock_in":
			record.Type = model.ClockIn
		case "out", "clock-out", "clock_out":
			record.Type = model.ClockOut
		default:
			return nil, fmt.Errorf("row %d: invalid type %q", line, get(row, ColType))
		}

		if record.Latitude, err = coordinate(get(row, ColLatitude), 90); err != nil {
			return nil, fmt.Errorf("row %d: invalid latitude: %w", line, err)
		}
		if record.Longitude, err = coordinate(get(row, ColLongitude), 180); err != nil {
			return nil, fmt.Errorf("row %d: invalid longitude: %w", line, err)
		}

		records = append(records, record)
	}

	return records, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func coordinate(s string, limit float64) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v < -limit || v > limit {
		return 0, fmt.Errorf("%v out of range", v)
	}
	return v, nil
}

// ClockGroup is the clock span of one employee on one day.
type ClockGroup struct {
	EmployeeNo string
	Date       string
	From       time.Time
	To         time.Time
	Records    []attendance.HistoricalClock
}

// GroupRecords groups records per employee and day in loc, ordered by
// employee then date.
func GroupRecords(records []attendance.HistoricalClock, loc *time.Location) []ClockGroup {
	grouped := make(map[string]*ClockGroup)

	for _, r := range records {
		date := attendance.DateOf(r.Time, loc)
		key := r.EmployeeNo + "|" + date
		cr, exists := grouped[key]

		if !exists {
			grouped[key] = &ClockGroup{
				EmployeeNo: r.EmployeeNo,
				Date:       date,
				From:       r.Time,
				To:         r.Time,
				Records:    []attendance.HistoricalClock{r},
			}
			continue
		}
		if r.Time.Before(cr.From) {
			cr.From = r.Time
		}
		if r.Time.After(cr.To) {
			cr.To = r.Time
		}
		cr.Records = append(cr.Records, r)
	}

	groups := make([]ClockGroup, 0, len(grouped))
	for _, cr := range grouped {
		groups = append(groups, *cr)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].EmployeeNo != groups[j].EmployeeNo {
			return groups[i].EmployeeNo < groups[j].EmployeeNo
		}
		return groups[i].Date < groups[j].Date
	})
	return groups
}

// Backfiller persists parsed records, see attendance.Processor.Backfill.
type Backfiller interface {
	Backfill(ctx context.Context, companyCode string, clocks []attendance.HistoricalClock) (*attendance.BackfillResult, error)
}

// Import parses r and backfills the company.
func Import(ctx context.Context, b Backfiller, companyCode string, r io.Reader, loc *time.Location) (*attendance.BackfillResult, error) {
	records, err := ParseClockCSV(r, loc)
	if err != nil {
		return nil, err
	}
	return b.Backfill(ctx, companyCode, records)
}
