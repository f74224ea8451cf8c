package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

const dateRule = `matches "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"`

// ticketTypes lists the château ticket offers and their unit prices.
var ticketTypes = map[string]struct {
	Label string
	Price decimal.Decimal
}{
	"passeport": {"Passeport (Château, Trianon et jardins)", decimal.RequireFromString("32.00")},
	"chateau":   {"Billet Château", decimal.RequireFromString("21.00")},
	"trianon":   {"Billet Domaine de Trianon", decimal.RequireFromString("12.00")},
}

const dailyTicketCapacity = 200

type trainLine struct {
	Code     string
	Name     string
	From     string
	To       string
	Minutes  int
	Interval int
	Offset   int
}

var trainLines = []trainLine{
	{"RERC", "RER C", "Paris Champ de Mars", "Versailles Château Rive Gauche", 40, 15, 5},
	{"L", "Transilien L", "Paris Saint-Lazare", "Versailles Rive Droite", 35, 30, 10},
	{"N", "Transilien N", "Paris Montparnasse", "Versailles Chantiers", 15, 20, 0},
}

var trainFare = decimal.RequireFromString("4.05")

type listing struct {
	ID       string
	Name     string
	Guests   int
	Nightly  decimal.Decimal
	Distance string
}

var listings = []listing{
	{"studio-chateau", "Studio près du Château", 2, decimal.RequireFromString("85.00"), "350 m"},
	{"chambre-notre-dame", "Chambre d'hôtes quartier Notre-Dame", 2, decimal.RequireFromString("95.00"), "900 m"},
	{"appartement-saint-louis", "Appartement quartier Saint-Louis", 4, decimal.RequireFromString("140.00"), "1,2 km"},
	{"maison-montreuil", "Maison avec jardin à Montreuil", 6, decimal.RequireFromString("210.00"), "2,5 km"},
}

// Reservation is a confirmed booking made through the desk.
type Reservation struct {
	Code      string
	Kind      Kind
	Name      string
	Summary   string
	Total     decimal.Decimal
	CreatedAt time.Time
}

// Desk is the in-process booking service behind the ticket, train and
// lodging tools.
type Desk struct {
	mu           sync.Mutex
	ticketsSold  map[string]int // date|type -> count
	stays        map[string][]stay
	reservations []Reservation
}

type stay struct {
	in, out time.Time
}

// NewDesk creates an empty booking desk.
func NewDesk() *Desk {
	return &Desk{
		ticketsSold: make(map[string]int),
		stays:       make(map[string][]stay),
	}
}

// Reservations returns the confirmed bookings, oldest first.
func (d *Desk) Reservations() []Reservation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Reservation(nil), d.reservations...)
}

func (d *Desk) confirm(prefix string, r Reservation) Reservation {
	r.Code = prefix + "-" + ulid.Make().String()
	r.CreatedAt = time.Now()
	d.reservations = append(d.reservations, r)
	return r
}

func euros(v decimal.Decimal) string {
	return strings.Replace(v.StringFixed(2), ".", ",", 1) + " €"
}

// --- tickets ---

// TicketQuery asks for ticket availability on a day.
type TicketQuery struct {
	Date    string `json:"date" jsonschema:"description=Visit day as YYYY-MM-DD"`
	Tickets int    `json:"tickets,omitempty" jsonschema:"minimum=1,maximum=20,default=1"`
	Type    string `json:"type,omitempty" jsonschema:"enum=passeport,enum=chateau,enum=trianon,default=passeport"`
}

func (in *TicketQuery) applyDefaults() {
	if in.Tickets == 0 {
		in.Tickets = 1
	}
	if in.Type == "" {
		in.Type = "passeport"
	}
}

// TicketBooking books château tickets.
type TicketBooking struct {
	TicketQuery
	Name  string `json:"name" jsonschema:"description=Name on the booking"`
	Email string `json:"email,omitempty"`
}

func openDay(date string) (time.Time, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, malformed("date invalide %q", date)
	}
	return day, nil
}

func (d *Desk) remaining(date, typ string) int {
	return dailyTicketCapacity - d.ticketsSold[date+"|"+typ]
}

// CheckTickets reports availability for a day.
func (d *Desk) CheckTickets(_ context.Context, in *TicketQuery) (string, error) {
	day, err := openDay(in.Date)
	if err != nil {
		return "", err
	}
	offer, ok := ticketTypes[in.Type]
	if !ok {
		return "", malformed("type de billet inconnu %q", in.Type)
	}
	if day.Weekday() == time.Monday {
		return fmt.Sprintf("Le Château de Versailles est fermé le lundi (%s).", in.Date), nil
	}

	d.mu.Lock()
	left := d.remaining(in.Date, in.Type)
	d.mu.Unlock()

	if left < in.Tickets {
		return fmt.Sprintf("Plus assez de billets %s le %s : %d place(s) restante(s).", offer.Label, in.Date, left), nil
	}
	total := offer.Price.Mul(decimal.NewFromInt(int64(in.Tickets)))
	return fmt.Sprintf("Billets disponibles le %s (%s) : %d place(s) restante(s), %s par personne, %s pour %d billet(s).",
		in.Date, offer.Label, left, euros(offer.Price), euros(total), in.Tickets), nil
}

// BookTickets reserves tickets for a day.
func (d *Desk) BookTickets(_ context.Context, in *TicketBooking) (string, error) {
	day, err := openDay(in.Date)
	if err != nil {
		return "", err
	}
	offer, ok := ticketTypes[in.Type]
	if !ok {
		return "", malformed("type de billet inconnu %q", in.Type)
	}
	if day.Weekday() == time.Monday {
		return "", callFailed("réservation", fmt.Errorf("le château est fermé le lundi %s", in.Date))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if left := d.remaining(in.Date, in.Type); left < in.Tickets {
		return "", callFailed("réservation", fmt.Errorf("seulement %d place(s) restante(s) le %s", left, in.Date))
	}
	d.ticketsSold[in.Date+"|"+in.Type] += in.Tickets

	total := offer.Price.Mul(decimal.NewFromInt(int64(in.Tickets)))
	r := d.confirm("VRS", Reservation{
		Kind:    KindBookTickets,
		Name:    in.Name,
		Summary: fmt.Sprintf("%d x %s le %s", in.Tickets, offer.Label, in.Date),
		Total:   total,
	})
	return fmt.Sprintf("Réservation confirmée : %d billet(s) %s pour le %s au nom de %s. Total : %s. Référence : %s.",
		in.Tickets, offer.Label, in.Date, in.Name, euros(total), r.Code), nil
}

// --- trains ---

// TrainQuery searches trains from Paris to Versailles.
type TrainQuery struct {
	Date string `json:"date" jsonschema:"description=Travel day as YYYY-MM-DD"`
	Time string `json:"time,omitempty" jsonschema:"description=Earliest departure as HH:MM,default=08:00"`
}

func (in *TrainQuery) applyDefaults() {
	if in.Time == "" {
		in.Time = "08:00"
	}
}

// TrainBooking books seats on a train found by search_train.
type TrainBooking struct {
	TrainID    string `json:"train_id" jsonschema:"description=Identifier returned by search_train (e.g. RERC-0820)"`
	Date       string `json:"date"`
	Passengers int    `json:"passengers,omitempty" jsonschema:"minimum=1,maximum=9,default=1"`
	Name       string `json:"name"`
}

func (in *TrainBooking) applyDefaults() {
	if in.Passengers == 0 {
		in.Passengers = 1
	}
}

type departure struct {
	line trainLine
	at   time.Time
}

func (dep departure) id() string {
	return dep.line.Code + "-" + dep.at.Format("1504")
}

func departuresAfter(day time.Time, after time.Time, perLine int) []departure {
	var out []departure
	for _, l := range trainLines {
		t := day.Add(5*time.Hour + time.Duration(l.Offset)*time.Minute)
		end := day.Add(24 * time.Hour)
		n := 0
		for ; t.Before(end) && n < perLine; t = t.Add(time.Duration(l.Interval) * time.Minute) {
			if !t.Before(after) {
				out = append(out, departure{line: l, at: t})
				n++
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out
}

// SearchTrains lists the next departures for Versailles.
func (d *Desk) SearchTrains(_ context.Context, in *TrainQuery) (string, error) {
	day, err := openDay(in.Date)
	if err != nil {
		return "", err
	}
	clock, err := time.Parse("15:04", in.Time)
	if err != nil {
		return "", malformed("heure invalide %q", in.Time)
	}
	after := day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)

	deps := departuresAfter(day, after, 2)
	if len(deps) == 0 {
		return fmt.Sprintf("Aucun train vers Versailles après %s le %s.", in.Time, in.Date), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Trains vers Versailles le %s après %s :", in.Date, in.Time)
	for _, dep := range deps {
		fmt.Fprintf(&b, "\n- %s : %s %s → %s, départ %s, arrivée %s, %s",
			dep.id(), dep.line.Name, dep.line.From, dep.line.To,
			dep.at.Format("15:04"), dep.at.Add(time.Duration(dep.line.Minutes)*time.Minute).Format("15:04"),
			euros(trainFare))
	}
	return b.String(), nil
}

// BookTrain reserves seats on a departure.
func (d *Desk) BookTrain(_ context.Context, in *TrainBooking) (string, error) {
	day, err := openDay(in.Date)
	if err != nil {
		return "", err
	}
	code, hhmm, ok := strings.Cut(in.TrainID, "-")
	if !ok {
		return "", malformed("train_id invalide %q", in.TrainID)
	}
	var line *trainLine
	for i := range trainLines {
		if trainLines[i].Code == code {
			line = &trainLines[i]
		}
	}
	clock, err := time.Parse("1504", hhmm)
	if line == nil || err != nil {
		return "", malformed("train_id invalide %q", in.TrainID)
	}
	at := day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)

	found := false
	for _, dep := range departuresAfter(day, at, 1) {
		if dep.line.Code == line.Code && dep.at.Equal(at) {
			found = true
		}
	}
	if !found {
		return "", callFailed("réservation", fmt.Errorf("aucun départ %s le %s", in.TrainID, in.Date))
	}

	total := trainFare.Mul(decimal.NewFromInt(int64(in.Passengers)))
	d.mu.Lock()
	r := d.confirm("TRN", Reservation{
		Kind:    KindBookTrain,
		Name:    in.Name,
		Summary: fmt.Sprintf("%d place(s) %s le %s à %s", in.Passengers, line.Name, in.Date, at.Format("15:04")),
		Total:   total,
	})
	d.mu.Unlock()

	return fmt.Sprintf("Train réservé : %s %s → %s le %s à %s, %d passager(s) au nom de %s. Total : %s. Référence : %s.",
		line.Name, line.From, line.To, in.Date, at.Format("15:04"), in.Passengers, in.Name, euros(total), r.Code), nil
}

// --- lodging ---

// LodgingQuery searches lodging near the château.
type LodgingQuery struct {
	CheckIn  string  `json:"check_in" jsonschema:"description=Arrival day as YYYY-MM-DD"`
	CheckOut string  `json:"check_out" jsonschema:"description=Departure day as YYYY-MM-DD"`
	Guests   int     `json:"guests,omitempty" jsonschema:"minimum=1,maximum=10,default=1"`
	MaxPrice float64 `json:"max_price,omitempty" jsonschema:"description=Maximum nightly price in euros"`
}

func (in *LodgingQuery) applyDefaults() {
	if in.Guests == 0 {
		in.Guests = 1
	}
}

// LodgingBooking books a listing returned by search_lodging.
type LodgingBooking struct {
	ListingID string `json:"listing_id"`
	CheckIn   string `json:"check_in"`
	CheckOut  string `json:"check_out"`
	Guests    int    `json:"guests,omitempty" jsonschema:"minimum=1,maximum=10,default=1"`
	Name      string `json:"name"`
}

func (in *LodgingBooking) applyDefaults() {
	if in.Guests == 0 {
		in.Guests = 1
	}
}

func parseStay(checkIn, checkOut string) (stay, int, error) {
	in, err := openDay(checkIn)
	if err != nil {
		return stay{}, 0, err
	}
	out, err := openDay(checkOut)
	if err != nil {
		return stay{}, 0, err
	}
	nights := int(out.Sub(in).Hours() / 24)
	if nights <= 0 {
		return stay{}, 0, malformed("check_out doit être après check_in")
	}
	return stay{in: in, out: out}, nights, nil
}

func (d *Desk) free(id string, s stay) bool {
	for _, booked := range d.stays[id] {
		if s.in.Before(booked.out) && booked.in.Before(s.out) {
			return false
		}
	}
	return true
}

// SearchLodging lists free listings for the stay.
func (d *Desk) SearchLodging(_ context.Context, in *LodgingQuery) (string, error) {
	s, nights, err := parseStay(in.CheckIn, in.CheckOut)
	if err != nil {
		return "", err
	}
	maxPrice := decimal.NewFromFloat(in.MaxPrice)

	d.mu.Lock()
	defer d.mu.Unlock()

	var b strings.Builder
	count := 0
	for _, l := range listings {
		if l.Guests < in.Guests || !d.free(l.ID, s) {
			continue
		}
		if in.MaxPrice > 0 && l.Nightly.GreaterThan(maxPrice) {
			continue
		}
		total := l.Nightly.Mul(decimal.NewFromInt(int64(nights)))
		fmt.Fprintf(&b, "\n- %s : %s, %d pers. max, à %s du château, %s/nuit, %s pour %d nuit(s)",
			l.ID, l.Name, l.Guests, l.Distance, euros(l.Nightly), euros(total), nights)
		count++
	}
	if count == 0 {
		return fmt.Sprintf("Aucun logement disponible du %s au %s pour %d personne(s).", in.CheckIn, in.CheckOut, in.Guests), nil
	}
	return fmt.Sprintf("%d logement(s) disponible(s) du %s au %s :", count, in.CheckIn, in.CheckOut) + b.String(), nil
}

// BookLodging reserves a listing for the stay.
func (d *Desk) BookLodging(_ context.Context, in *LodgingBooking) (string, error) {
	s, nights, err := parseStay(in.CheckIn, in.CheckOut)
	if err != nil {
		return "", err
	}
	var l *listing
	for i := range listings {
		if listings[i].ID == in.ListingID {
			l = &listings[i]
		}
	}
	if l == nil {
		return "", malformed("logement inconnu %q", in.ListingID)
	}
	if in.Guests > l.Guests {
		return "", callFailed("réservation", fmt.Errorf("%s accueille %d personne(s) au maximum", l.Name, l.Guests))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.free(l.ID, s) {
		return "", callFailed("réservation", errors.New(l.Name+" n'est plus disponible pour ces dates"))
	}
	d.stays[l.ID] = append(d.stays[l.ID], s)

	total := l.Nightly.Mul(decimal.NewFromInt(int64(nights)))
	r := d.confirm("LOG", Reservation{
		Kind:    KindBookLodging,
		Name:    in.Name,
		Summary: fmt.Sprintf("%s du %s au %s", l.Name, in.CheckIn, in.CheckOut),
		Total:   total,
	})
	return fmt.Sprintf("Logement réservé : %s du %s au %s (%d nuit(s)), %d personne(s) au nom de %s. Total : %s. Référence : %s.",
		l.Name, in.CheckIn, in.CheckOut, nights, in.Guests, in.Name, euros(total), r.Code), nil
}

func (d *Desk) tools() ([]*Tool, error) {
	var out []*Tool
	add := func(t *Tool, err error) error {
		if err != nil {
			return err
		}
		out = append(out, t)
		return nil
	}

	ticketRules := []Rule{
		{Expr: "date " + dateRule, Message: "date doit être au format AAAA-MM-JJ"},
		{Expr: "tickets >= 1 && tickets <= 20", Message: "tickets doit être entre 1 et 20"},
	}
	errs := []error{
		add(NewTool(KindTicketAvailability,
			"Vérifier la disponibilité des billets du Château de Versailles pour une date.",
			ticketRules, d.CheckTickets)),
		add(NewTool(KindBookTickets,
			"Réserver des billets pour le Château de Versailles.",
			append(ticketRules, Rule{Expr: `name != ""`, Message: "name est obligatoire"}),
			d.BookTickets)),
		add(NewTool(KindSearchTrain,
			"Rechercher des trains de Paris vers Versailles pour une date et une heure.",
			[]Rule{
				{Expr: "date " + dateRule, Message: "date doit être au format AAAA-MM-JJ"},
				{Expr: `time matches "^[0-2][0-9]:[0-5][0-9]$"`, Message: "time doit être au format HH:MM"},
			}, d.SearchTrains)),
		add(NewTool(KindBookTrain,
			"Réserver un train trouvé avec search_train.",
			[]Rule{
				{Expr: "date " + dateRule, Message: "date doit être au format AAAA-MM-JJ"},
				{Expr: `train_id != "" && name != ""`, Message: "train_id et name sont obligatoires"},
				{Expr: "passengers >= 1 && passengers <= 9", Message: "passengers doit être entre 1 et 9"},
			}, d.BookTrain)),
		add(NewTool(KindSearchLodging,
			"Rechercher un logement près du Château de Versailles.",
			[]Rule{
				{Expr: "check_in " + dateRule + " && check_out " + dateRule, Message: "check_in et check_out doivent être au format AAAA-MM-JJ"},
				{Expr: "check_out > check_in", Message: "check_out doit être après check_in"},
				{Expr: "guests >= 1 && guests <= 10 && max_price >= 0", Message: "guests doit être entre 1 et 10"},
			}, d.SearchLodging)),
		add(NewTool(KindBookLodging,
			"Réserver un logement trouvé avec search_lodging.",
			[]Rule{
				{Expr: "check_in " + dateRule + " && check_out " + dateRule, Message: "check_in et check_out doivent être au format AAAA-MM-JJ"},
				{Expr: `listing_id != "" && name != ""`, Message: "listing_id et name sont obligatoires"},
			}, d.BookLodging)),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}
