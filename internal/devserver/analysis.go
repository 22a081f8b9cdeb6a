package devserver

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

type point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

type health struct {
	CurrentBalance float64 `json:"current_balance"`
	BurnRate       float64 `json:"burn_rate"`
	RunwayMonths   float64 `json:"runway_months"`
	Status         string  `json:"status"`
	Message        string  `json:"message"`
	PredictedDate  string  `json:"predicted_date"`
}

type flowSummary struct {
	TotalInflow  float64 `json:"total_inflow"`
	TotalOutflow float64 `json:"total_outflow"`
}

type analysis struct {
	Type          string      `json:"type"`
	Column        string      `json:"column"`
	Count         int         `json:"count"`
	Sum           float64     `json:"sum"`
	Mean          float64     `json:"mean"`
	StdDev        float64     `json:"std_dev"`
	TotalReturn   float64     `json:"total_return"`
	Series        []point     `json:"series"`
	BalanceSeries []point     `json:"balance_series"`
	FlowSummary   flowSummary `json:"flow_summary"`
	Health        health      `json:"health"`
}

// runwayUnbounded is reported when the balance is not shrinking.
const runwayUnbounded = 999

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01-02-2006",
	"02-Jan-2006",
	time.RFC3339,
}

// analyze reads the configured sheet of p and computes its statistics. The
// header row is ConfigLine; columns are matched by header text.
func analyze(p project, kind string) (analysis, error) {
	rows, err := readRows(p)
	if err != nil {
		return analysis{}, err
	}
	if p.ConfigLine > len(rows) {
		return analysis{}, fmt.Errorf("value column %q not found on row %d", p.ConfigColumn, p.ConfigLine)
	}
	header := rows[p.ConfigLine-1]
	valueIdx := slices.Index(header, p.ConfigColumn)
	if valueIdx < 0 {
		return analysis{}, fmt.Errorf("value column %q not found on row %d", p.ConfigColumn, p.ConfigLine)
	}
	dateIdx := -1
	if p.ConfigDateColumn != "" {
		dateIdx = slices.Index(header, p.ConfigDateColumn)
	}

	var series []point
	for _, row := range rows[p.ConfigLine:] {
		if valueIdx >= len(row) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[valueIdx]), 64)
		if err != nil {
			continue
		}
		if dateIdx < 0 {
			series = append(series, point{Value: v})
			continue
		}
		if dateIdx >= len(row) {
			continue
		}
		d, ok := parseDate(row[dateIdx])
		if !ok {
			continue
		}
		series = append(series, point{Date: d, Value: v})
	}

	if dateIdx < 0 {
		return basicAnalysis(series, kind, p.ConfigColumn), nil
	}
	return timeSeriesAnalysis(series, kind, p.ConfigColumn, time.Now()), nil
}

func readRows(p project) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(p.OriginalFilename)) {
	case ".csv":
		r := csv.NewReader(bytes.NewReader(p.data))
		r.FieldsPerRecord = -1
		rows, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		return rows, nil
	default:
		wb, err := excelize.OpenReader(bytes.NewReader(p.data))
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", p.OriginalFilename, err)
		}
		defer wb.Close()
		rows, err := wb.GetRows(p.ConfigSheet)
		if err != nil {
			return nil, fmt.Errorf("sheet %q not found in the workbook", p.ConfigSheet)
		}
		return rows, nil
	}
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func stats(values []float64) (sum, mean, stdDev float64) {
	for _, v := range values {
		sum += v
	}
	if len(values) == 0 {
		return 0, 0, 0
	}
	mean = sum / float64(len(values))
	if len(values) > 1 {
		var variance float64
		for _, v := range values {
			variance += (v - mean) * (v - mean)
		}
		stdDev = math.Sqrt(variance / float64(len(values)-1))
	}
	return sum, mean, stdDev
}

func values(series []point) []float64 {
	out := make([]float64, len(series))
	for i, p := range series {
		out[i] = p.Value
	}
	return out
}

func basicAnalysis(series []point, kind, column string) analysis {
	sum, mean, stdDev := stats(values(series))
	return analysis{
		Type:   kind,
		Column: column,
		Count:  len(series),
		Sum:    sum,
		Mean:   mean,
		StdDev: stdDev,
		Series: series,
	}
}

func timeSeriesAnalysis(series []point, kind, column string, now time.Time) analysis {
	if len(series) == 0 {
		return analysis{Type: kind, Column: column}
	}
	slices.SortStableFunc(series, func(a, b point) int { return a.Date.Compare(b.Date) })

	sum, mean, stdDev := stats(values(series))
	var totalReturn float64
	if first := series[0].Value; len(series) > 1 && first != 0 {
		totalReturn = (series[len(series)-1].Value - first) / math.Abs(first) * 100
	}

	balances := make([]point, 0, len(series))
	var flows flowSummary
	var balance float64
	for _, p := range series {
		if p.Value >= 0 {
			flows.TotalInflow += p.Value
		} else {
			flows.TotalOutflow += -p.Value
		}
		balance += p.Value
		balances = append(balances, point{Date: p.Date, Value: balance})
	}

	return analysis{
		Type:          kind,
		Column:        column,
		Count:         len(series),
		Sum:           sum,
		Mean:          mean,
		StdDev:        stdDev,
		TotalReturn:   totalReturn,
		Series:        series,
		BalanceSeries: balances,
		FlowSummary:   flows,
		Health:        assessHealth(series, balances, flows.TotalOutflow, now),
	}
}

// trendMonths is how far back the net cash trend looks.
const trendMonths = 3

// assessHealth classifies cash position. The trend is the average monthly net
// flow over the last trendMonths of data, so a positive balance that is
// shrinking gets a runway.
func assessHealth(series []point, balances []point, outflow float64, now time.Time) health {
	if len(series) < 2 {
		return health{Status: "Insufficient data"}
	}
	first, last := series[0].Date, series[len(series)-1].Date
	balance := balances[len(balances)-1].Value
	h := health{CurrentBalance: balance, BurnRate: outflow / monthsBetween(first, last)}

	windowStart := last.AddDate(0, -trendMonths, 0)
	if windowStart.Before(first) {
		windowStart = first
	}
	var before float64
	for _, b := range balances {
		if !b.Date.Before(windowStart) {
			break
		}
		before = b.Value
	}
	net := (balance - before) / monthsBetween(windowStart, last)

	switch {
	case balance <= 0:
		h.Status, h.Message = "Insolvent", "Operating in the red. Immediate funding required."
	case net >= 0:
		h.Status, h.Message, h.RunwayMonths = "Profitable", "The business generates positive cash. No imminent risk.", runwayUnbounded
	default:
		h.RunwayMonths = balance / -net
		h.PredictedDate = now.AddDate(0, 0, int(h.RunwayMonths*30)).Format("02/01/2006")
		switch {
		case h.RunwayMonths < 3:
			h.Status, h.Message = "Critical", "Cash for less than 3 months."
		case h.RunwayMonths < 6:
			h.Status, h.Message = "Warning", "Cash for less than 6 months."
		default:
			h.Status, h.Message = "Healthy", "Stable in the medium term."
		}
	}
	return h
}

// monthsBetween counts 30-day months, at least one.
func monthsBetween(from, to time.Time) float64 {
	m := to.Sub(from).Hours() / (24 * 30)
	if m < 1 {
		return 1
	}
	return m
}
