package api

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"eventdash/internal/gateway"
	"eventdash/pkg"
)

// dateLayout matches the ISO timestamps the backend expects for startDate
// and endDate
const dateLayout = "2006-01-02T15:04:05.000Z"

var youtubeURL = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.be)/.+`)

// ErrInvalidForm wraps every event form validation failure
var ErrInvalidForm = errors.New("invalid event form")

// ValidateEventForm applies the dashboard's form rules before anything is
// sent
func ValidateEventForm(f pkg.EventTicketForm) error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(len(strings.TrimSpace(f.EventTitle)) >= 2, "event title is required")
	check(len(strings.TrimSpace(f.Venue)) >= 2, "venue is required")
	check(len(strings.TrimSpace(f.Description)) >= 10, "description is required")
	check(!f.StartDate.IsZero(), "start date is required")
	check(!f.EndDate.IsZero(), "end date is required")
	check(f.EndDate.IsZero() || !f.EndDate.Before(f.StartDate), "end date is before start date")
	check(strings.TrimSpace(f.EventType) != "", "event type is required")
	check(strings.TrimSpace(f.Currency) != "", "currency is required")
	check(f.YoutubeURL == "" || youtubeURL.MatchString(f.YoutubeURL), "youtube url is not valid")
	check(len(f.TicketCategories) > 0, "at least one ticket category is required")
	for i, c := range f.TicketCategories {
		check(c.Name != "", fmt.Sprintf("ticket category %d: name is required", i))
		check(c.Price != "", fmt.Sprintf("ticket category %d: price is required", i))
		check(c.Qty != "", fmt.Sprintf("ticket category %d: quantity is required", i))
		check(c.NumOfPeople != "", fmt.Sprintf("ticket category %d: guest count is required", i))
	}
	check(len(f.Banner) > 0, "at least one image is required")

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidForm, strings.Join(problems, "; "))
	}
	return nil
}

// EncodeEventForm validates f and lays it out as the multipart form the
// event write endpoints accept
func EncodeEventForm(f pkg.EventTicketForm) (*gateway.Form, error) {
	if err := ValidateEventForm(f); err != nil {
		return nil, err
	}

	form := &gateway.Form{}
	form.Add("eventTitle", f.EventTitle)
	form.Add("venue", f.Venue)
	form.Add("description", f.Description)
	form.Add("startDate", f.StartDate.UTC().Format(dateLayout))
	form.Add("endDate", f.EndDate.UTC().Format(dateLayout))
	form.Add("startTime", f.StartTime)
	form.Add("endTime", f.EndTime)
	form.Add("eventType", f.EventType)
	form.Add("currency", f.Currency)
	form.Add("youtubeUrl", f.YoutubeURL)
	for i, c := range f.TicketCategories {
		prefix := fmt.Sprintf("ticketCategories[%d]", i)
		form.Add(prefix+"[name]", c.Name)
		form.Add(prefix+"[price]", c.Price)
		form.Add(prefix+"[qty]", c.Qty)
		form.Add(prefix+"[numOfPeople]", c.NumOfPeople)
	}
	for _, b := range f.Banner {
		ct := b.ContentType
		if ct == "" {
			ct = http.DetectContentType(b.Data)
		}
		form.AddFile("banner[]", b.Filename, ct, b.Data)
	}
	return form, nil
}

// NewEventForm returns a form with the dashboard's defaults: one Regular
// category and noon start and end times on the given day
func NewEventForm(day time.Time) pkg.EventTicketForm {
	return pkg.EventTicketForm{
		StartDate: day,
		EndDate:   day,
		StartTime: "12:00",
		EndTime:   "12:00",
		TicketCategories: []pkg.TicketCategoryInput{
			{Name: "Regular", Price: "200", Qty: "10", NumOfPeople: "1"},
		},
	}
}
