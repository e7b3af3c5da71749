package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"eventdash/pkg"
)

// PlatformFee is the share the platform keeps from gross revenue
const PlatformFee = 0.05

// DefaultCurrency is used when an event carries none
const DefaultCurrency = "USD"

// ActiveStatus is the event status counted as active
const ActiveStatus = "Active"

// Period limits which events a widget looks at
type Period int

const (
	PeriodAllTime Period = iota
	PeriodLast30Days
	PeriodLast7Days
)

func (p Period) String() string {
	switch p {
	case PeriodLast30Days:
		return "last-30-days"
	case PeriodLast7Days:
		return "last-7-days"
	default:
		return "all-time"
	}
}

// ParsePeriod accepts all, 30d, 7d and the String forms
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "all-time", "alltime":
		return PeriodAllTime, nil
	case "30d", "last-30-days", "30":
		return PeriodLast30Days, nil
	case "7d", "last-7-days", "7":
		return PeriodLast7Days, nil
	}
	return PeriodAllTime, fmt.Errorf("unknown period %q", s)
}

// Cutoff returns the earliest start date included, or the zero time for
// PeriodAllTime
func (p Period) Cutoff(now time.Time) time.Time {
	switch p {
	case PeriodLast30Days:
		return now.AddDate(0, 0, -30)
	case PeriodLast7Days:
		return now.AddDate(0, 0, -7)
	default:
		return time.Time{}
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseEventDate parses the backend's from_date and to_date values
func ParseEventDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FilterByPeriod keeps events starting on or after the period cutoff. With
// PeriodAllTime every event is kept, even one without a parseable date.
func FilterByPeriod(events []pkg.Event, period Period, now time.Time) []pkg.Event {
	if period == PeriodAllTime {
		return events
	}
	cutoff := period.Cutoff(now)
	out := make([]pkg.Event, 0, len(events))
	for _, ev := range events {
		start, ok := ParseEventDate(ev.FromDate)
		if ok && !start.Before(cutoff) {
			out = append(out, ev)
		}
	}
	return out
}

// atoi reads the backend's numeric strings; blanks and garbage count as zero
func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func atof(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// SoldCount returns the authoritative sold count of a category. The backend
// overloads quantity, so nothing is derived from it; ok is false when the
// backend did not report tickets_sold.
func SoldCount(cat pkg.TicketCategory) (sold int, ok bool) {
	v := strings.TrimSpace(cat.TicketsSold)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Summary is the dashboard header
type Summary struct {
	TotalEvents  int
	TotalTickets int
	TicketsSold  int
	// UnresolvedCategories counts categories whose sold figure is unknown;
	// they are left out of TicketsSold
	UnresolvedCategories int
	ActiveEvents         int
}

// Summarize computes the header figures
func Summarize(events []pkg.Event) Summary {
	s := Summary{TotalEvents: len(events)}
	for _, ev := range events {
		if ev.Status == ActiveStatus {
			s.ActiveEvents++
		}
		for _, cat := range ev.TicketCategories {
			s.TotalTickets += atoi(cat.InitialQty)
			if n, ok := SoldCount(cat); ok {
				s.TicketsSold += n
			} else {
				s.UnresolvedCategories++
			}
		}
	}
	return s
}

// EventRevenue is one row of the revenue widget
type EventRevenue struct {
	SN       string
	Title    string
	Currency string
	Gross    float64
	Net      float64
	// Unresolved counts categories left out for lack of a sold figure
	Unresolved int
}

// RevenuePerEvent computes gross and net revenue per event in the period
func RevenuePerEvent(events []pkg.Event, period Period, now time.Time) []EventRevenue {
	filtered := FilterByPeriod(events, period, now)
	out := make([]EventRevenue, 0, len(filtered))
	for _, ev := range filtered {
		row := EventRevenue{SN: ev.SN, Title: ev.Title, Currency: ev.Currency}
		if row.Currency == "" {
			row.Currency = DefaultCurrency
		}
		for _, cat := range ev.TicketCategories {
			n, ok := SoldCount(cat)
			if !ok {
				row.Unresolved++
				continue
			}
			row.Gross += float64(n) * atof(cat.Price)
		}
		row.Net = row.Gross * (1 - PlatformFee)
		out = append(out, row)
	}
	return out
}

// EventSales is one row of the tickets sold widget
type EventSales struct {
	SN         string
	Title      string
	Sold       int
	Unresolved int
}

// TicketsSoldPerEvent counts sold tickets per event in the period
func TicketsSoldPerEvent(events []pkg.Event, period Period, now time.Time) []EventSales {
	filtered := FilterByPeriod(events, period, now)
	out := make([]EventSales, 0, len(filtered))
	for _, ev := range filtered {
		row := EventSales{SN: ev.SN, Title: ev.Title}
		for _, cat := range ev.TicketCategories {
			if n, ok := SoldCount(cat); ok {
				row.Sold += n
			} else {
				row.Unresolved++
			}
		}
		out = append(out, row)
	}
	return out
}

// Upcoming returns a copy of events sorted by start date. Events without a
// parseable date go last, in their original order.
func Upcoming(events []pkg.Event) []pkg.Event {
	out := make([]pkg.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		ti, okI := ParseEventDate(out[i].FromDate)
		tj, okJ := ParseEventDate(out[j].FromDate)
		switch {
		case okI && okJ:
			return ti.Before(tj)
		default:
			return okI && !okJ
		}
	})
	return out
}

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders value with thousands separators and the currency's
// standard number of decimals, prefixed with its ISO code
func FormatAmount(code string, value float64) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = DefaultCurrency
	}
	scale := 2
	if unit, err := currency.ParseISO(code); err == nil {
		scale, _ = currency.Standard.Rounding(unit)
	}
	return code + " " + amountPrinter.Sprint(number.Decimal(value, number.Scale(scale)))
}

// EventSource is what LoadOverview reads from; *api.Client satisfies it
type EventSource interface {
	AllEvents(ctx context.Context) ([]pkg.Event, error)
	UpcomingEvents(ctx context.Context) ([]pkg.Event, error)
}

// Overview is everything the dashboard landing page shows
type Overview struct {
	Events   []pkg.Event
	Upcoming []pkg.Event
	Summary  Summary
}

// LoadOverview fetches all and upcoming events concurrently
func LoadOverview(ctx context.Context, src EventSource) (Overview, error) {
	var ov Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		events, err := src.AllEvents(gctx)
		if err != nil {
			return fmt.Errorf("failed to load events: %w", err)
		}
		ov.Events = events
		return nil
	})
	g.Go(func() error {
		upcoming, err := src.UpcomingEvents(gctx)
		if err != nil {
			return fmt.Errorf("failed to load upcoming events: %w", err)
		}
		ov.Upcoming = Upcoming(upcoming)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	ov.Summary = Summarize(ov.Events)
	return ov, nil
}
