package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultWeatherBaseURL is the Open-Meteo forecast API.
const DefaultWeatherBaseURL = "https://api.open-meteo.com"

// Versailles château coordinates.
const (
	versaillesLat = 48.8049
	versaillesLon = 2.1204
)

// WeatherInput asks for current conditions or the forecast of one day.
type WeatherInput struct {
	Date string `json:"date,omitempty" jsonschema:"description=Day of the forecast as YYYY-MM-DD; empty for current conditions"`
}

type openMeteoResponse struct {
	Current *struct {
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
		WindSpeed   float64 `json:"wind_speed_10m"`
	} `json:"current"`
	Daily *struct {
		Time        []string  `json:"time"`
		WeatherCode []int     `json:"weather_code"`
		TempMax     []float64 `json:"temperature_2m_max"`
		TempMin     []float64 `json:"temperature_2m_min"`
		PrecipProb  []int     `json:"precipitation_probability_max"`
	} `json:"daily"`
}

// Weather queries Open-Meteo for Versailles.
type Weather struct {
	baseURL string
	client  *http.Client
}

// NewWeather creates a weather client. An empty baseURL selects DefaultWeatherBaseURL.
func NewWeather(baseURL string, client *http.Client) *Weather {
	if baseURL == "" {
		baseURL = DefaultWeatherBaseURL
	}
	return &Weather{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Forecast returns the weather at Versailles formatted for the model.
func (w *Weather) Forecast(ctx context.Context, in *WeatherInput) (string, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", versaillesLat))
	q.Set("longitude", fmt.Sprintf("%.4f", versaillesLon))
	q.Set("timezone", "Europe/Paris")
	if in.Date == "" {
		q.Set("current", "temperature_2m,weather_code,wind_speed_10m")
	} else {
		q.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,precipitation_probability_max")
		q.Set("start_date", in.Date)
		q.Set("end_date", in.Date)
	}

	var data openMeteoResponse
	if err := getJSON(ctx, w.client, w.baseURL+"/v1/forecast?"+q.Encode(), &data); err != nil {
		return "", callFailed("API météo", err)
	}

	if in.Date == "" {
		if data.Current == nil {
			return "Aucune donnée météo disponible pour Versailles.", nil
		}
		c := data.Current
		return fmt.Sprintf("Météo actuelle à Versailles : %s, %.1f°C, vent %.0f km/h.",
			describeWeather(c.WeatherCode), c.Temperature, c.WindSpeed), nil
	}

	d := data.Daily
	if d == nil || len(d.Time) == 0 || len(d.TempMax) == 0 || len(d.TempMin) == 0 || len(d.WeatherCode) == 0 {
		return fmt.Sprintf("Aucune prévision disponible pour Versailles le %s.", in.Date), nil
	}
	out := fmt.Sprintf("Prévisions à Versailles le %s : %s, de %.0f°C à %.0f°C",
		d.Time[0], describeWeather(d.WeatherCode[0]), d.TempMin[0], d.TempMax[0])
	if len(d.PrecipProb) > 0 {
		out += fmt.Sprintf(", risque de pluie %d%%", d.PrecipProb[0])
	}
	return out + ".", nil
}

// describeWeather maps WMO weather codes to French descriptions.
func describeWeather(code int) string {
	switch {
	case code == 0:
		return "ciel dégagé"
	case code <= 2:
		return "partiellement nuageux"
	case code == 3:
		return "couvert"
	case code == 45 || code == 48:
		return "brouillard"
	case code >= 51 && code <= 57:
		return "bruine"
	case code >= 61 && code <= 67, code >= 80 && code <= 82:
		return "pluie"
	case code >= 71 && code <= 77, code == 85 || code == 86:
		return "neige"
	case code >= 95:
		return "orage"
	default:
		return fmt.Sprintf("conditions code %d", code)
	}
}

func (w *Weather) tool() (*Tool, error) {
	return NewTool(KindWeather,
		"Obtenir la météo actuelle ou la prévision d'un jour à Versailles.",
		[]Rule{{Expr: `date == "" || date matches "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"`, Message: "date doit être au format AAAA-MM-JJ"}},
		w.Forecast)
}
