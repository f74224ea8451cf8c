package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// DefaultMapsBaseURL is the Google Maps web services host.
const DefaultMapsBaseURL = "https://maps.googleapis.com"

const defaultDestination = "Château de Versailles, Place d'Armes, 78000 Versailles"

// RouteInput asks for an itinerary.
type RouteInput struct {
	Origin      string `json:"origin" jsonschema:"description=Starting address or place"`
	Destination string `json:"destination,omitempty" jsonschema:"description=Destination; defaults to the Château de Versailles"`
	Mode        string `json:"mode,omitempty" jsonschema:"enum=transit,enum=driving,enum=walking,enum=bicycling,default=transit"`
}

func (in *RouteInput) applyDefaults() {
	if in.Destination == "" {
		in.Destination = defaultDestination
	}
	if in.Mode == "" {
		in.Mode = "transit"
	}
}

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		Summary string `json:"summary"`
		Legs    []struct {
			Distance struct {
				Text string `json:"text"`
			} `json:"distance"`
			Duration struct {
				Text string `json:"text"`
			} `json:"duration"`
			Steps []struct {
				HTMLInstructions string `json:"html_instructions"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

const maxRouteSteps = 8

// Routes queries the Google Maps Directions API.
type Routes struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRoutes creates a directions client. An empty baseURL selects DefaultMapsBaseURL.
func NewRoutes(baseURL, apiKey string, client *http.Client) *Routes {
	if baseURL == "" {
		baseURL = DefaultMapsBaseURL
	}
	return &Routes{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

// Route returns the itinerary formatted for the model.
func (r *Routes) Route(ctx context.Context, in *RouteInput) (string, error) {
	if r.apiKey == "" {
		return "", callFailed("Google Maps", errors.New("clé API non configurée"))
	}
	q := url.Values{}
	q.Set("origin", in.Origin)
	q.Set("destination", in.Destination)
	q.Set("mode", in.Mode)
	q.Set("language", "fr")
	q.Set("key", r.apiKey)

	var data directionsResponse
	if err := getJSON(ctx, r.client, r.baseURL+"/maps/api/directions/json?"+q.Encode(), &data); err != nil {
		return "", callFailed("Google Maps", err)
	}
	switch data.Status {
	case "OK":
	case "ZERO_RESULTS", "NOT_FOUND":
		return fmt.Sprintf("Aucun itinéraire trouvé de %s à %s (%s).", in.Origin, in.Destination, in.Mode), nil
	default:
		msg := data.Status
		if data.ErrorMessage != "" {
			msg += ": " + data.ErrorMessage
		}
		return "", callFailed("Google Maps", errors.New(msg))
	}
	if len(data.Routes) == 0 || len(data.Routes[0].Legs) == 0 {
		return fmt.Sprintf("Aucun itinéraire trouvé de %s à %s (%s).", in.Origin, in.Destination, in.Mode), nil
	}

	leg := data.Routes[0].Legs[0]
	var b strings.Builder
	fmt.Fprintf(&b, "Itinéraire de %s à %s (%s) : %s, %s.", in.Origin, in.Destination, in.Mode, leg.Duration.Text, leg.Distance.Text)
	for i, step := range leg.Steps {
		if i == maxRouteSteps {
			fmt.Fprintf(&b, "\n… %d étapes supplémentaires", len(leg.Steps)-maxRouteSteps)
			break
		}
		fmt.Fprintf(&b, "\n%d. %s", i+1, stepText(step.HTMLInstructions))
	}
	return b.String(), nil
}

// stepText flattens a directions step from HTML to one line of text.
func stepText(html string) string {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		md = html
	}
	md = strings.ReplaceAll(md, "**", "")
	return strings.Join(strings.Fields(md), " ")
}

func (r *Routes) tool() (*Tool, error) {
	return NewTool(KindRoute,
		"Calculer un itinéraire Google Maps vers le Château de Versailles ou entre deux lieux.",
		[]Rule{{Expr: `origin != ""`, Message: "origin est obligatoire"}},
		r.Route)
}
