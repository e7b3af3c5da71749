package api

import (
	"net/http"
	"net/url"

	"eventdash/internal/gateway"
	"eventdash/internal/querycache"
	"eventdash/pkg"
)

// Tag ids shared by the event list queries
const (
	EventListID     = "LIST"
	EventUpcomingID = "UPCOMING"
)

// ===== Admin =====

// RegisterAdmin creates an admin account
var RegisterAdmin = MutationDef[pkg.RegisterRequest, pkg.AuthResponse]{
	Name:            "registerAdmin",
	Method:          http.MethodPost,
	Path:            staticPath[pkg.RegisterRequest]("/admin/register"),
	Shape:           gateway.ShapeAuth,
	InvalidatesTags: []querycache.Tag{querycache.TypeTag(TagAdmin)},
}

// LoginAdmin exchanges credentials for a token
var LoginAdmin = MutationDef[pkg.LoginRequest, pkg.AuthResponse]{
	Name:            "loginAdmin",
	Method:          http.MethodPost,
	Path:            staticPath[pkg.LoginRequest]("/admin/login"),
	Shape:           gateway.ShapeAuth,
	InvalidatesTags: []querycache.Tag{querycache.TypeTag(TagAdmin)},
}

// GetAdminProfile reads one admin by id
var GetAdminProfile = QueryDef[string, pkg.ProfileResponse]{
	Name:     "getAdminProfile",
	Method:   http.MethodGet,
	Path:     func(id string) string { return "/admin/profile/" + url.PathEscape(id) },
	Shape:    gateway.ShapeAuth,
	TagTypes: []string{TagAdmin},
	ProvidesTags: func(id string, res pkg.ProfileResponse, err error) []querycache.Tag {
		if err == nil && res.Success {
			return []querycache.Tag{querycache.IDTag(TagAdmin, id)}
		}
		return []querycache.Tag{querycache.TypeTag(TagAdmin)}
	},
}

// ===== Events =====

// GetAllEvents lists every event of the host
var GetAllEvents = QueryDef[struct{}, []pkg.Event]{
	Name:         "getAllEvents",
	Method:       http.MethodGet,
	Path:         staticPath[struct{}]("/host/allevents"),
	Shape:        gateway.ShapeList,
	TagTypes:     []string{TagEvent},
	ProvidesTags: eventTags(EventListID),
}

// GetUpcomingEvents lists events that have not started yet
var GetUpcomingEvents = QueryDef[struct{}, []pkg.Event]{
	Name:         "getUpcomingEvents",
	Method:       http.MethodGet,
	Path:         staticPath[struct{}]("/event/upcomingevent/"),
	Shape:        gateway.ShapeList,
	TagTypes:     []string{TagEvent},
	ProvidesTags: eventTags(EventUpcomingID),
}

// GetRecentPurchases lists the latest purchases of one event
var GetRecentPurchases = QueryDef[string, []pkg.Purchase]{
	Name:     "getRecentPurchases",
	Method:   http.MethodGet,
	Path:     func(eventID string) string { return "/host/event/recentpurchases/" + url.PathEscape(eventID) },
	Shape:    gateway.ShapeList,
	TagTypes: []string{TagPurchase},
	ProvidesTags: func(eventID string, _ []pkg.Purchase, _ error) []querycache.Tag {
		return []querycache.Tag{querycache.IDTag(TagPurchase, eventID)}
	},
}

// MakeEventLive publishes an event
var MakeEventLive = MutationDef[pkg.MakeLiveRequest, pkg.StatusResponse]{
	Name:            "makeEventLive",
	Method:          http.MethodPost,
	Path:            staticPath[pkg.MakeLiveRequest]("/event/makelive"),
	Shape:           gateway.ShapeStatus,
	InvalidatesTags: []querycache.Tag{querycache.TypeTag(TagEvent)},
}

// CreateEvent submits a new event with its ticket categories and banners
var CreateEvent = MutationDef[pkg.EventTicketForm, pkg.StatusResponse]{
	Name:   "createEvent",
	Method: http.MethodPost,
	Path:   staticPath[pkg.EventTicketForm]("/host_create/eventticket"),
	Shape:  gateway.ShapeStatus,
	Encode: func(f pkg.EventTicketForm) (any, *gateway.Form, error) {
		form, err := EncodeEventForm(f)
		return nil, form, err
	},
	InvalidatesTags: []querycache.Tag{querycache.TypeTag(TagEvent)},
}

// UpdateEvent replaces an existing event
var UpdateEvent = MutationDef[pkg.UpdateEventInput, pkg.StatusResponse]{
	Name:   "updateEvent",
	Method: http.MethodPut,
	Path:   func(in pkg.UpdateEventInput) string { return "/update/eventticket/" + url.PathEscape(in.ID) },
	Shape:  gateway.ShapeStatus,
	Encode: func(in pkg.UpdateEventInput) (any, *gateway.Form, error) {
		form, err := EncodeEventForm(in.Form)
		return nil, form, err
	},
	InvalidatesTags: []querycache.Tag{querycache.TypeTag(TagEvent)},
}

// BuiltinDefinitions returns every endpoint the dashboard uses
func BuiltinDefinitions() []Definition {
	return []Definition{
		RegisterAdmin,
		LoginAdmin,
		GetAdminProfile,
		GetAllEvents,
		GetUpcomingEvents,
		GetRecentPurchases,
		MakeEventLive,
		CreateEvent,
		UpdateEvent,
	}
}

// eventTags provides the list tag plus one tag per event serial number
func eventTags(listID string) func(struct{}, []pkg.Event, error) []querycache.Tag {
	return func(_ struct{}, events []pkg.Event, _ error) []querycache.Tag {
		tags := make([]querycache.Tag, 0, len(events)+1)
		tags = append(tags, querycache.IDTag(TagEvent, listID))
		for _, ev := range events {
			if ev.SN != "" {
				tags = append(tags, querycache.IDTag(TagEvent, ev.SN))
			}
		}
		return tags
	}
}
