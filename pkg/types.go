package pkg

import (
	"time"
)

// Admin and auth wire types

// Admin represents an event host administrator
type Admin struct {
	AdminID   string `json:"adminid"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	PhoneNo   string `json:"phoneno"`
	Email     string `json:"email"`
}

// RegisterRequest is the body of POST /admin/register
type RegisterRequest struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	PhoneNo   string `json:"phoneno"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// LoginRequest is the body of POST /admin/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthData is the payload of a successful login or registration
type AuthData struct {
	Token   string `json:"token,omitempty"`
	Admin   *Admin `json:"admin,omitempty"`
	AdminID string `json:"adminid,omitempty"`
}

// AuthResponse is the envelope returned by the auth endpoints
type AuthResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Data    *AuthData `json:"data,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// ProfileResponse is the envelope returned by GET /admin/profile/{id}
type ProfileResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *Admin `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Event wire types. The backend sends every scalar as a string.

// TicketCategory is one priced ticket class of an event
type TicketCategory struct {
	ID             string `json:"id"`
	EventID        string `json:"event_id"`
	Name           string `json:"name"`
	Price          string `json:"price"`
	BookingFee     string `json:"booking_fee"`
	DiscountPrice  string `json:"discount_price"`
	WalletDiscount string `json:"wallet_discount"`
	Quantity       string `json:"quantity"`
	InitialQty     string `json:"initial_quantity"`
	NoOfPeople     string `json:"noofpeople"`
	CatImage       string `json:"cat_Image"`
	Currency       string `json:"Currency"`
	// TicketsSold is the backend's authoritative sold count. Empty when the
	// backend does not report it.
	TicketsSold string `json:"tickets_sold,omitempty"`
}

// EventImage is one banner image attached to an event
type EventImage struct {
	SN      string `json:"sn"`
	EventID string `json:"eventId"`
	Img     string `json:"img"`
}

// Event is an event as listed by the host endpoints
type Event struct {
	SN               string           `json:"sn"`
	MerchantName     string           `json:"merchantName"`
	MerchantID       string           `json:"merchantId"`
	SubmerchantID    string           `json:"submerchantId"`
	HostID           string           `json:"hostid"`
	PaystackAcct     string           `json:"Paystack_Acct"`
	PaystackBearer   string           `json:"paystack_bearer"`
	Title            string           `json:"title"`
	EventCat         string           `json:"event_cat"`
	Country          string           `json:"country"`
	Currency         string           `json:"currency"`
	Vendor           string           `json:"vendor"`
	YoutubeURL       string           `json:"youtubeurl"`
	EventID          string           `json:"event_id"`
	Slug             string           `json:"slug"`
	Venue            string           `json:"venue"`
	FromDate         string           `json:"from_date"`
	FromTime         string           `json:"from_time"`
	ToDate           string           `json:"to_date"`
	ToTime           string           `json:"to_time"`
	MembersFlag      string           `json:"members_flag"`
	Description      string           `json:"des"`
	AddDetails       string           `json:"add_details"`
	EmailContent     string           `json:"emailContent"`
	Date             string           `json:"date"`
	Time             string           `json:"time"`
	IP               string           `json:"ip"`
	Status           string           `json:"status"`
	EnableSeat       string           `json:"enableseat"`
	SeatCapacity     string           `json:"seat_capacity"`
	Tags             string           `json:"tags"`
	TicketCategories []TicketCategory `json:"ticketCategories"`
	Images           []EventImage     `json:"imgs"`
}

// Purchase is one ticket purchase for an event
type Purchase struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	Lname           string  `json:"lname"`
	Fname           string  `json:"fname"`
	Email           string  `json:"email"`
	QR              string  `json:"qr"`
	TicketRef       string  `json:"ticket_ref"`
	PDFFile         string  `json:"pdf_file"`
	EventID         string  `json:"event_id"`
	TicketClass     string  `json:"ticket_class"`
	Amount          string  `json:"amount"`
	PayReference    string  `json:"pay_reference"`
	PaymentChannel  string  `json:"payment_channel"`
	BuyDateTime     string  `json:"buy_date_time"`
	Channel         string  `json:"channel"`
	Used            string  `json:"used"`
	UsedDateTime    string  `json:"used_date_time"`
	ProcessingAgent *string `json:"processing_agent"`
}

// MakeLiveRequest is the body of POST /event/makelive
type MakeLiveRequest struct {
	EventID int64 `json:"eventid"`
}

// StatusResponse is the envelope returned by the event write endpoints
type StatusResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	EventID any    `json:"eventid,omitempty"`
}

// Event form (multipart) types

// TicketCategoryInput is one ticket category submitted with an event form
type TicketCategoryInput struct {
	Name        string `json:"name" yaml:"name"`
	Price       string `json:"price" yaml:"price"`
	Qty         string `json:"qty" yaml:"qty"`
	NumOfPeople string `json:"numOfPeople" yaml:"num_of_people"`
}

// BannerFile is one image uploaded as part of an event form
type BannerFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// EventTicketForm is the multipart payload used to create or update an event
type EventTicketForm struct {
	EventTitle       string                `yaml:"event_title"`
	Venue            string                `yaml:"venue"`
	Description      string                `yaml:"description"`
	StartDate        time.Time             `yaml:"start_date"`
	EndDate          time.Time             `yaml:"end_date"`
	StartTime        string                `yaml:"start_time"`
	EndTime          string                `yaml:"end_time"`
	EventType        string                `yaml:"event_type"`
	Currency         string                `yaml:"currency"`
	YoutubeURL       string                `yaml:"youtube_url"`
	TicketCategories []TicketCategoryInput `yaml:"ticket_categories"`
	Banner           []BannerFile          `yaml:"-"`
}

// UpdateEventInput pairs an event id with its replacement form
type UpdateEventInput struct {
	ID   string
	Form EventTicketForm
}
