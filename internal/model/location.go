package model

import "time"

// Location is an admin managed (district, taluka) pair with its centre point.
type Location struct {
    ID        uint64    // locations.id
    District  string    // locations.district
    Taluka    string    // locations.taluka
    Longitude float64   // locations.longitude
    Latitude  float64   // locations.latitude
    CreatedBy *uint64   // locations.created_by
    CreatedAt time.Time // locations.created_at
}
