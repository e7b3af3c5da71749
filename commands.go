package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"eventdash/internal/api"
	"eventdash/internal/core"
	"eventdash/internal/services"
	"eventdash/pkg"
)

type cli struct {
	app *core.App
	out io.Writer
	now func() time.Time
}

type command struct {
	name    string
	summary string
	run     func(c *cli, ctx context.Context, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"login", "log in and remember the token", (*cli).login},
		{"register", "create an admin account", (*cli).register},
		{"logout", "forget the session", (*cli).logout},
		{"whoami", "show the current session", (*cli).whoami},
		{"profile", "show an admin profile", (*cli).profile},
		{"events", "list all events", (*cli).events},
		{"upcoming", "list upcoming events by date", (*cli).upcoming},
		{"purchases", "list recent purchases of an event", (*cli).purchases},
		{"makelive", "publish an event", (*cli).makeLive},
		{"form", "print an event form template", (*cli).formTemplate},
		{"create", "create an event from a form file", (*cli).create},
		{"update", "replace an event from a form file", (*cli).update},
		{"summary", "dashboard header figures", (*cli).summary},
		{"revenue", "gross and net revenue per event", (*cli).revenue},
		{"sold", "tickets sold per event", (*cli).sold},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet("eventdash "+name, flag.ContinueOnError)
}

// ===== Session =====

func (c *cli) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "admin email")
	password := fs.String("password", os.Getenv("EVENTDASH_PASSWORD"), "admin password (or EVENTDASH_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("login needs -email and -password")
	}

	st, err := c.app.Login(ctx, pkg.LoginRequest{Email: *email, Password: *password})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "logged in as %s (admin %s)\n", *email, st.AdminID)
	return nil
}

func (c *cli) register(ctx context.Context, args []string) error {
	fs := newFlagSet("register")
	var req pkg.RegisterRequest
	fs.StringVar(&req.Firstname, "firstname", "", "first name")
	fs.StringVar(&req.Lastname, "lastname", "", "last name")
	fs.StringVar(&req.PhoneNo, "phone", "", "phone number")
	fs.StringVar(&req.Email, "email", "", "admin email")
	fs.StringVar(&req.Password, "password", os.Getenv("EVENTDASH_PASSWORD"), "admin password (or EVENTDASH_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if req.Email == "" || req.Password == "" {
		return errors.New("register needs -email and -password")
	}

	st, err := c.app.Register(ctx, req)
	if err != nil {
		return err
	}
	if st.IsAuthenticated() {
		fmt.Fprintf(c.out, "registered and logged in as %s (admin %s)\n", req.Email, st.AdminID)
		return nil
	}
	fmt.Fprintf(c.out, "registered %s; log in to continue\n", req.Email)
	return nil
}

func (c *cli) logout(ctx context.Context, args []string) error {
	if err := c.app.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "logged out")
	return nil
}

func (c *cli) whoami(ctx context.Context, args []string) error {
	st, err := c.app.RequireAuth(ctx)
	if err != nil {
		return err
	}
	id := st.AdminID
	if id == "" {
		id = "unknown (restored session)"
	}
	fmt.Fprintf(c.out, "authenticated, admin %s\n", id)
	if st.Profile != nil {
		printAdmin(c.out, st.Profile)
	}
	return nil
}

func (c *cli) profile(ctx context.Context, args []string) error {
	fs := newFlagSet("profile")
	id := fs.String("id", "", "admin id (defaults to the logged in admin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	admin, err := c.app.Profile(ctx, *id)
	if err != nil {
		return err
	}
	printAdmin(c.out, admin)
	return nil
}

func printAdmin(w io.Writer, a *pkg.Admin) {
	fmt.Fprintf(w, "%s %s <%s>\n", a.Firstname, a.Lastname, a.Email)
	if a.PhoneNo != "" {
		fmt.Fprintf(w, "phone: %s\n", a.PhoneNo)
	}
}

// ===== Events =====

func (c *cli) events(ctx context.Context, args []string) error {
	fs := newFlagSet("events")
	asJSON := fs.Bool("json", false, "print raw JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := c.app.RequireAuth(ctx); err != nil {
		return err
	}
	events, err := c.app.API.AllEvents(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(c.out, events)
	}
	c.printEvents(events)
	return nil
}

func (c *cli) upcoming(ctx context.Context, args []string) error {
	fs := newFlagSet("upcoming")
	asJSON := fs.Bool("json", false, "print raw JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := c.app.RequireAuth(ctx); err != nil {
		return err
	}
	events, err := c.app.API.UpcomingEvents(ctx)
	if err != nil {
		return err
	}
	events = services.Upcoming(events)
	if *asJSON {
		return printJSON(c.out, events)
	}
	c.printEvents(events)
	return nil
}

func (c *cli) printEvents(events []pkg.Event) {
	if len(events) == 0 {
		fmt.Fprintln(c.out, "no events")
		return
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SN\tTITLE\tSTATUS\tSTARTS\tTICKETS")
	for _, ev := range events {
		starts := ev.FromDate
		if t, ok := services.ParseEventDate(ev.FromDate); ok {
			starts = humanize.RelTime(t, c.now(), "ago", "from now")
		}
		total := 0
		for _, cat := range ev.TicketCategories {
			n, _ := parseCount(cat.InitialQty)
			total += n
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ev.SN, ev.Title, ev.Status, starts, humanize.Comma(int64(total)))
	}
	_ = tw.Flush()
}

func (c *cli) purchases(ctx context.Context, args []string) error {
	fs := newFlagSet("purchases")
	eventID := fs.String("event", "", "event id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *eventID == "" {
		return errors.New("purchases needs -event")
	}
	if _, err := c.app.RequireAuth(ctx); err != nil {
		return err
	}
	list, err := c.app.API.RecentPurchases(ctx, *eventID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(c.out, "no purchases")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REF\tBUYER\tCLASS\tAMOUNT")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\n", p.TicketRef, p.Fname, p.Lname, p.TicketClass, p.Amount)
	}
	return tw.Flush()
}

func (c *cli) makeLive(ctx context.Context, args []string) error {
	fs := newFlagSet("makelive")
	id := fs.Int64("id", 0, "event id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("makelive needs a positive -id")
	}
	if _, err := c.app.RequireAuth(ctx); err != nil {
		return err
	}
	res, err := c.app.API.MakeLive(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, statusMessage(res, "event is live"))
	return nil
}

// ===== Event forms =====

func (c *cli) formTemplate(ctx context.Context, args []string) error {
	day := c.now().AddDate(0, 0, 7).Truncate(24 * time.Hour)
	form := api.NewEventForm(day)
	form.Currency = services.DefaultCurrency
	data, err := yaml.Marshal(form)
	if err != nil {
		return fmt.Errorf("failed to render form: %w", err)
	}
	_, err = c.out.Write(data)
	return err
}

func (c *cli) create(ctx context.Context, args []string) error {
	fs := newFlagSet("create")
	formPath := fs.String("form", "", "YAML event form")
	var banners []string
	fs.Func("banner", "banner image path (repeatable)", func(s string) error {
		banners = append(banners, s)
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return err
	}
	form, err := loadEventForm(*formPath, banners)
	if err != nil {
		return err
	}
	if _, err := c.app.RequireAuth(ctx); err != nil {
		return err
	}
	res, err := c.app.API.CreateEvent(ctx, form)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, statusMessage(res, "event created"))
	return nil
}

func (c *cli) update(ctx context.Context, args []string) error {
	fs := newFlagSet("update")
	id := fs.String("id", "", "event id")
	formPath := fs.String("form", "", "YAML event form")
	var banners []string
	fs.Func("banner", "banner image path (repeatable)", func(s string) error {
		banners = append(banners, s)
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("update needs -id")
	}
	form, err := loadEventForm(*formPath, banners)
	if err != nil {
		return err
	}
	if _, err := c.app.RequireAuth(ctx); err != nil {
		return err
	}
	res, err := c.app.API.UpdateEvent(ctx, *id, form)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, statusMessage(res, "event updated"))
	return nil
}

// loadEventForm reads a YAML form and attaches the banner files. The form is
// validated before returning so nothing reaches the network when it is
// incomplete.
func loadEventForm(path string, banners []string) (pkg.EventTicketForm, error) {
	var form pkg.EventTicketForm
	if path == "" {
		return form, errors.New("missing -form")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return form, fmt.Errorf("failed to read form: %w", err)
	}
	if err := yaml.Unmarshal(data, &form); err != nil {
		return form, fmt.Errorf("failed to parse form %s: %w", path, err)
	}
	for _, p := range banners {
		img, err := os.ReadFile(p)
		if err != nil {
			return form, fmt.Errorf("failed to read banner: %w", err)
		}
		form.Banner = append(form.Banner, pkg.BannerFile{
			Filename:    filepath.Base(p),
			ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(p))),
			Data:        img,
		})
	}
	if err := api.ValidateEventForm(form); err != nil {
		return form, err
	}
	return form, nil
}

func statusMessage(res pkg.StatusResponse, fallback string) string {
	if res.Message != "" {
		return res.Message
	}
	return fallback
}

// ===== Analytics =====

func (c *cli) summary(ctx context.Context, args []string) error {
	if _, err := c.app.RequireAuth(ctx); err != nil {
		return err
	}
	ov, err := services.LoadOverview(ctx, c.app.API)
	if err != nil {
		return err
	}
	s := ov.Summary
	fmt.Fprintf(c.out, "events:        %s (%s active)\n", humanize.Comma(int64(s.TotalEvents)), humanize.Comma(int64(s.ActiveEvents)))
	fmt.Fprintf(c.out, "tickets:       %s\n", humanize.Comma(int64(s.TotalTickets)))
	fmt.Fprintf(c.out, "tickets sold:  %s\n", humanize.Comma(int64(s.TicketsSold)))
	if s.UnresolvedCategories > 0 {
		fmt.Fprintf(c.out, "  %d ticket categories did not report sales\n", s.UnresolvedCategories)
	}
	if len(ov.Upcoming) > 0 {
		fmt.Fprintln(c.out, "next up:")
		for i, ev := range ov.Upcoming {
			if i == 3 {
				break
			}
			fmt.Fprintf(c.out, "  %s  %s\n", ev.FromDate, ev.Title)
		}
	}
	return nil
}

func (c *cli) revenue(ctx context.Context, args []string) error {
	period, err := parsePeriodFlag("revenue", args)
	if err != nil {
		return err
	}
	events, err := c.protectedEvents(ctx)
	if err != nil {
		return err
	}
	rows := services.RevenuePerEvent(events, period, c.now())
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "EVENT\tGROSS\tNET (after %.0f%% fee)\tUNRESOLVED\n", services.PlatformFee*100)
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.Title, services.FormatAmount(r.Currency, r.Gross), services.FormatAmount(r.Currency, r.Net), r.Unresolved)
	}
	return tw.Flush()
}

func (c *cli) sold(ctx context.Context, args []string) error {
	period, err := parsePeriodFlag("sold", args)
	if err != nil {
		return err
	}
	events, err := c.protectedEvents(ctx)
	if err != nil {
		return err
	}
	rows := services.TicketsSoldPerEvent(events, period, c.now())
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tSOLD\tUNRESOLVED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", r.Title, humanize.Comma(int64(r.Sold)), r.Unresolved)
	}
	return tw.Flush()
}

func (c *cli) protectedEvents(ctx context.Context) ([]pkg.Event, error) {
	if _, err := c.app.RequireAuth(ctx); err != nil {
		return nil, err
	}
	return c.app.API.AllEvents(ctx)
}

func parsePeriodFlag(name string, args []string) (services.Period, error) {
	fs := newFlagSet(name)
	raw := fs.String("period", "30d", "all, 30d or 7d")
	if err := fs.Parse(args); err != nil {
		return services.PeriodAllTime, err
	}
	return services.ParsePeriod(*raw)
}

func parseCount(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return n, err == nil
}

func printJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
