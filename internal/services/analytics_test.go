package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventdash/pkg"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func sampleEvents() []pkg.Event {
	return []pkg.Event{
		{
			SN: "1", Title: "Gala", Status: "Active", Currency: "NGN", FromDate: "2026-10-15",
			TicketCategories: []pkg.TicketCategory{
				{Name: "Regular", Price: "200", InitialQty: "100", Quantity: "60", TicketsSold: "40"},
				{Name: "VIP", Price: "1000", InitialQty: "10", Quantity: "10"},
			},
		},
		{
			SN: "2", Title: "Expo", Status: "Inactive", FromDate: "2026-09-25 09:00:00",
			TicketCategories: []pkg.TicketCategory{
				{Name: "Day pass", Price: "50.5", InitialQty: "20", TicketsSold: "4"},
			},
		},
		{
			SN: "3", Title: "Retro", Status: "Active", FromDate: "2025-01-01",
			TicketCategories: []pkg.TicketCategory{
				{Name: "Regular", Price: "10", InitialQty: "abc", TicketsSold: "-1"},
			},
		},
	}
}

func TestParsePeriod(t *testing.T) {
	for in, want := range map[string]Period{
		"":             PeriodAllTime,
		"all":          PeriodAllTime,
		"30d":          PeriodLast30Days,
		"last-7-days":  PeriodLast7Days,
		"Last-30-Days": PeriodLast30Days,
	} {
		got, err := ParsePeriod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParsePeriod("fortnight")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleEvents())
	assert.Equal(t, Summary{
		TotalEvents:          3,
		TotalTickets:         130,
		TicketsSold:          44,
		UnresolvedCategories: 2,
		ActiveEvents:         2,
	}, s)
}

func TestSoldCountNeverGuesses(t *testing.T) {
	_, ok := SoldCount(pkg.TicketCategory{InitialQty: "100", Quantity: "60"})
	assert.False(t, ok, "quantity alone is ambiguous")

	n, ok := SoldCount(pkg.TicketCategory{TicketsSold: " 12 "})
	assert.True(t, ok)
	assert.Equal(t, 12, n)
}

func TestFilterByPeriod(t *testing.T) {
	events := append(sampleEvents(), pkg.Event{SN: "4", FromDate: "someday"})

	assert.Len(t, FilterByPeriod(events, PeriodAllTime, now), 4)

	last30 := FilterByPeriod(events, PeriodLast30Days, now)
	require.Len(t, last30, 2)
	assert.Equal(t, "1", last30[0].SN)
	assert.Equal(t, "2", last30[1].SN)

	last7 := FilterByPeriod(events, PeriodLast7Days, now)
	require.Len(t, last7, 1)
	assert.Equal(t, "1", last7[0].SN)
}

func TestRevenuePerEvent(t *testing.T) {
	rows := RevenuePerEvent(sampleEvents(), PeriodAllTime, now)
	require.Len(t, rows, 3)

	assert.Equal(t, "NGN", rows[0].Currency)
	assert.InDelta(t, 8000, rows[0].Gross, 1e-9)
	assert.InDelta(t, 7600, rows[0].Net, 1e-9)
	assert.Equal(t, 1, rows[0].Unresolved)

	assert.Equal(t, DefaultCurrency, rows[1].Currency)
	assert.InDelta(t, 202, rows[1].Gross, 1e-9)
	assert.InDelta(t, 191.9, rows[1].Net, 1e-9)

	assert.Zero(t, rows[2].Gross)
	assert.Equal(t, 1, rows[2].Unresolved)

	assert.Len(t, RevenuePerEvent(sampleEvents(), PeriodLast7Days, now), 1)
}

func TestTicketsSoldPerEvent(t *testing.T) {
	rows := TicketsSoldPerEvent(sampleEvents(), PeriodLast30Days, now)
	assert.Equal(t, []EventSales{
		{SN: "1", Title: "Gala", Sold: 40, Unresolved: 1},
		{SN: "2", Title: "Expo", Sold: 4},
	}, rows)
}

func TestUpcomingSortsByDate(t *testing.T) {
	in := []pkg.Event{
		{SN: "a", FromDate: "2026-12-01"},
		{SN: "b", FromDate: "tbd"},
		{SN: "c", FromDate: "2026-11-01T18:00:00Z"},
	}
	out := Upcoming(in)
	assert.Equal(t, []string{"c", "a", "b"}, []string{out[0].SN, out[1].SN, out[2].SN})
	assert.Equal(t, "a", in[0].SN, "input is not reordered")
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "USD 1,234.50", FormatAmount("usd", 1234.5))
	assert.Equal(t, "USD 0.00", FormatAmount("", 0))
	assert.Equal(t, "JPY 1,235", FormatAmount("JPY", 1234.6))
}

type fakeSource struct {
	events   []pkg.Event
	upcoming []pkg.Event
	err      error
}

func (f fakeSource) AllEvents(context.Context) ([]pkg.Event, error) { return f.events, nil }

func (f fakeSource) UpcomingEvents(context.Context) ([]pkg.Event, error) {
	return f.upcoming, f.err
}

func TestLoadOverview(t *testing.T) {
	src := fakeSource{
		events: sampleEvents(),
		upcoming: []pkg.Event{
			{SN: "9", FromDate: "2026-12-24"},
			{SN: "8", FromDate: "2026-11-05"},
		},
	}
	ov, err := LoadOverview(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, ov.Events, 3)
	assert.Equal(t, "8", ov.Upcoming[0].SN)
	assert.Equal(t, 44, ov.Summary.TicketsSold)
}

func TestLoadOverviewPropagatesErrors(t *testing.T) {
	boom := errors.New("backend down")
	_, err := LoadOverview(context.Background(), fakeSource{err: boom})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "upcoming")
}
