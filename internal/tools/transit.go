package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultRATPBaseURL is the public RATP schedules API.
const DefaultRATPBaseURL = "https://api-ratp.pierre-grimaud.fr/v4"

// NextPassagesInput asks for the upcoming departures at a stop.
type NextPassagesInput struct {
	Stop          string `json:"stop" jsonschema:"description=Stop name as known by the RATP (e.g. Châtelet)"`
	Line          string `json:"line" jsonschema:"description=Line code (e.g. 72 or C)"`
	TransportType string `json:"transport_type,omitempty" jsonschema:"enum=bus,enum=metros,enum=rers,enum=tramways,enum=noctiliens,default=bus"`
}

func (in *NextPassagesInput) applyDefaults() {
	if in.TransportType == "" {
		in.TransportType = "bus"
	}
}

type ratpSchedules struct {
	Result *struct {
		Schedules []struct {
			Message     string `json:"message"`
			Destination string `json:"destination"`
		} `json:"schedules"`
	} `json:"result"`
}

// Transit queries the RATP schedules API.
type Transit struct {
	baseURL string
	client  *http.Client
}

// NewTransit creates a transit client. An empty baseURL selects DefaultRATPBaseURL.
func NewTransit(baseURL string, client *http.Client) *Transit {
	if baseURL == "" {
		baseURL = DefaultRATPBaseURL
	}
	return &Transit{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// NextPassages returns the upcoming departures formatted for the model.
func (t *Transit) NextPassages(ctx context.Context, in *NextPassagesInput) (string, error) {
	u := fmt.Sprintf("%s/schedules/%s/%s/%s", t.baseURL,
		url.PathEscape(in.TransportType), url.PathEscape(in.Line), url.PathEscape(in.Stop))

	var data ratpSchedules
	if err := getJSON(ctx, t.client, u, &data); err != nil {
		return "", callFailed("API RATP", err)
	}
	if data.Result == nil || len(data.Result.Schedules) == 0 {
		return fmt.Sprintf("Aucun horaire disponible pour %s %s à %s.", in.TransportType, in.Line, in.Stop), nil
	}

	formatted := make([]string, len(data.Result.Schedules))
	for i, s := range data.Result.Schedules {
		formatted[i] = fmt.Sprintf("%s vers %s", s.Message, s.Destination)
	}
	return fmt.Sprintf("Prochains passages pour %s ligne %s à %s : %s",
		strings.ToUpper(in.TransportType), in.Line, in.Stop, strings.Join(formatted, "; ")), nil
}

func (t *Transit) tool() (*Tool, error) {
	return NewTool(KindNextPassages,
		"Obtenir les prochains passages d'un transport RATP (bus, métro, RER, tram) à un arrêt.",
		[]Rule{{Expr: `stop != "" && line != ""`, Message: "stop et line sont obligatoires"}},
		t.NextPassages)
}
