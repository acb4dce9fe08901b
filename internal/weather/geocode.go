package weather

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/krushi/krushi-api/internal/config"
)

// Place is the administrative location of a coordinate.
type Place struct {
	District    string `json:"district"`
	Taluka      string `json:"taluka"`
	State       string `json:"state,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Geocoder resolves coordinates through a Nominatim compatible endpoint.
type Geocoder struct {
	endpoint string
	http     *http.Client
}

func NewGeocoder(cfg config.WeatherConfig) *Geocoder {
	return &Geocoder{endpoint: cfg.GeocodeEndpoint, http: &http.Client{Timeout: cfg.Timeout}}
}

type nominatimReply struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
	Address     struct {
		StateDistrict string `json:"state_district"`
		County        string `json:"county"`
		State         string `json:"state"`
		Suburb        string `json:"suburb"`
		Town          string `json:"town"`
		City          string `json:"city"`
		Village       string `json:"village"`
	} `json:"address"`
}

// Reverse returns the district and taluka of (lat, lon). District prefers
// state_district, then county, then state; taluka prefers suburb, then town,
// city and village.
func (g *Geocoder) Reverse(ctx context.Context, lat, lon float64) (Place, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("zoom", "10")
	q.Set("addressdetails", "1")

	var r nominatimReply
	if err := getJSON(ctx, g.http, g.endpoint+"?"+q.Encode(), &r); err != nil {
		return Place{}, err
	}
	if r.Error != "" {
		return Place{}, ErrUpstream
	}
	a := r.Address
	return Place{
		District:    firstNonEmpty(a.StateDistrict, a.County, a.State),
		Taluka:      firstNonEmpty(a.Suburb, a.Town, a.City, a.Village),
		State:       a.State,
		DisplayName: r.DisplayName,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
