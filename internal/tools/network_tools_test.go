package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/szaher/versailles/internal/llm"
)

func newTestRegistry(t *testing.T, handler http.Handler, mapsKey string) *Registry {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	r, err := NewDefaultRegistry(Config{
		RATPBaseURL:    srv.URL,
		WeatherBaseURL: srv.URL,
		MapsBaseURL:    srv.URL,
		MapsAPIKey:     mapsKey,
		SiteBaseURL:    srv.URL,
		HTTPClient:     srv.Client(),
	}, NewDesk())
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	return r
}

func TestNextPassages(t *testing.T) {
	var gotPath string
	mux := http.NewServeMux()
	mux.HandleFunc("/schedules/", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		switch {
		case strings.Contains(r.URL.Path, "/404/"):
			w.WriteHeader(http.StatusNotFound)
		case strings.Contains(r.URL.Path, "/empty/"):
			_, _ = w.Write([]byte(`{"result":{"code":400,"message":"no schedules"}}`))
		default:
			_, _ = w.Write([]byte(`{"result":{"schedules":[
				{"message":"3 mn","destination":"Gare de Lyon"},
				{"message":"12 mn","destination":"Porte Maillot"}]}}`))
		}
	})
	r := newTestRegistry(t, mux, "")
	ctx := context.Background()

	got := r.Invoke(ctx, llm.ToolCall{Name: "get_next_passages", Input: map[string]any{
		"query": `{"stop": "Châtelet", "line": "72", "transport_type": "bus"}`,
	}})
	want := "Prochains passages pour BUS ligne 72 à Châtelet : 3 mn vers Gare de Lyon; 12 mn vers Porte Maillot"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
	if gotPath != "/schedules/bus/72/Ch%C3%A2telet" {
		t.Errorf("path = %q", gotPath)
	}

	got = r.Invoke(ctx, llm.ToolCall{Name: "get_next_passages", Input: map[string]any{"stop": "X", "line": "empty"}})
	if got != "Aucun horaire disponible pour bus empty à X." {
		t.Errorf("empty = %q", got)
	}

	got = r.Invoke(ctx, llm.ToolCall{Name: "get_next_passages", Input: map[string]any{"stop": "X", "line": "404"}})
	if !strings.HasPrefix(got, "Erreur API RATP : HTTP 404") {
		t.Errorf("404 = %q", got)
	}

	got = r.Invoke(ctx, llm.ToolCall{Name: "get_next_passages", Input: map[string]any{"query": "pas du json"}})
	if !strings.HasPrefix(got, "Erreur parsing input JSON") {
		t.Errorf("malformed = %q", got)
	}
}

func TestWeather(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/forecast", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("latitude") != "48.8049" || q.Get("longitude") != "2.1204" {
			t.Errorf("coordinates = %s,%s", q.Get("latitude"), q.Get("longitude"))
		}
		if q.Get("start_date") != "" {
			_, _ = w.Write([]byte(`{"daily":{"time":["2026-06-01"],"weather_code":[61],
				"temperature_2m_max":[22.4],"temperature_2m_min":[13.1],"precipitation_probability_max":[70]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"current":{"temperature_2m":18.2,"weather_code":0,"wind_speed_10m":11.6}}`))
	})
	r := newTestRegistry(t, mux, "")
	ctx := context.Background()

	got := r.Invoke(ctx, llm.ToolCall{Name: "get_weather", Input: map[string]any{}})
	if got != "Météo actuelle à Versailles : ciel dégagé, 18.2°C, vent 12 km/h." {
		t.Errorf("current = %q", got)
	}

	got = r.Invoke(ctx, llm.ToolCall{Name: "get_weather", Input: map[string]any{"date": "2026-06-01"}})
	if got != "Prévisions à Versailles le 2026-06-01 : pluie, de 13°C à 22°C, risque de pluie 70%." {
		t.Errorf("daily = %q", got)
	}

	got = r.Invoke(ctx, llm.ToolCall{Name: "get_weather", Input: map[string]any{"date": "demain"}})
	if !strings.Contains(got, "AAAA-MM-JJ") {
		t.Errorf("bad date = %q", got)
	}
}

func TestRoute(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/maps/api/directions/json", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("key") != "secret" || q.Get("mode") != "transit" || q.Get("language") != "fr" {
			t.Errorf("query = %v", q)
		}
		if q.Get("origin") == "Nowhere" {
			_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","routes":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"OK","routes":[{"legs":[{
			"distance":{"text":"21,3 km"},"duration":{"text":"45 min"},
			"steps":[{"html_instructions":"Prendre le <b>RER C</b>"},{"html_instructions":"Marcher jusqu'à <b>Place d'Armes</b>"}]}]}]}`))
	})
	r := newTestRegistry(t, mux, "secret")
	ctx := context.Background()

	got := r.Invoke(ctx, llm.ToolCall{Name: "google_maps_route", Input: map[string]any{"origin": "Tour Eiffel"}})
	for _, want := range []string{"Itinéraire de Tour Eiffel à Château de Versailles", "45 min, 21,3 km", "1. Prendre le RER C", "2. Marcher jusqu'à Place d'Armes"} {
		if !strings.Contains(got, want) {
			t.Errorf("route missing %q in %q", want, got)
		}
	}

	got = r.Invoke(ctx, llm.ToolCall{Name: "google_maps_route", Input: map[string]any{"origin": "Nowhere"}})
	if !strings.HasPrefix(got, "Aucun itinéraire trouvé") {
		t.Errorf("zero results = %q", got)
	}

	noKey := newTestRegistry(t, mux, "")
	got = noKey.Invoke(ctx, llm.ToolCall{Name: "google_maps_route", Input: map[string]any{"origin": "Paris"}})
	if !strings.HasPrefix(got, "Erreur Google Maps") {
		t.Errorf("no key = %q", got)
	}
}

func TestSiteInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/preparer-ma-visite/informations-pratiques/horaires", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><h1>Horaires</h1><p>Le château est ouvert <strong>de 9h à 18h30</strong>.</p></body></html>`))
	})
	mux.HandleFunc("/data.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})
	r := newTestRegistry(t, mux, "")
	ctx := context.Background()

	got := r.Invoke(ctx, llm.ToolCall{Name: "get_site_info", Input: map[string]any{"topic": "horaires"}})
	if !strings.Contains(got, "# Horaires") || !strings.Contains(got, "**de 9h à 18h30**") {
		t.Errorf("markdown = %q", got)
	}
	if !strings.HasPrefix(got, "Source : ") {
		t.Errorf("missing source line: %q", got)
	}

	got = r.Invoke(ctx, llm.ToolCall{Name: "get_site_info", Input: map[string]any{"path": "//evil.example/x"}})
	if !strings.HasPrefix(got, "Erreur parsing input JSON") {
		t.Errorf("foreign host = %q", got)
	}

	got = r.Invoke(ctx, llm.ToolCall{Name: "get_site_info", Input: map[string]any{"path": "/data.json"}})
	if !strings.HasPrefix(got, "Erreur site du château") {
		t.Errorf("non-html = %q", got)
	}

	got = r.Invoke(ctx, llm.ToolCall{Name: "get_site_info", Input: map[string]any{}})
	if !strings.HasPrefix(got, "Erreur parsing input JSON") {
		t.Errorf("empty input = %q", got)
	}
}
