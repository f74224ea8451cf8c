package tools

// Kind names one of the assistant's tools. The set is fixed at build time.
type Kind string

const (
	KindNextPassages       Kind = "get_next_passages"
	KindWeather            Kind = "get_weather"
	KindRoute              Kind = "google_maps_route"
	KindTicketAvailability Kind = "check_ticket_availability"
	KindBookTickets        Kind = "book_versailles_tickets"
	KindSearchTrain        Kind = "search_train"
	KindBookTrain          Kind = "book_train"
	KindSearchLodging      Kind = "search_lodging"
	KindBookLodging        Kind = "book_lodging"
	KindSiteInfo           Kind = "get_site_info"
)

// Kinds lists every tool kind in presentation order.
var Kinds = []Kind{
	KindNextPassages,
	KindWeather,
	KindRoute,
	KindTicketAvailability,
	KindBookTickets,
	KindSearchTrain,
	KindBookTrain,
	KindSearchLodging,
	KindBookLodging,
	KindSiteInfo,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }
