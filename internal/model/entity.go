package model

import "strings"

// LatLon is a WGS84 coordinate pair.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Entity is one POI or property row being enriched. Entities are built once
// at load time and never mutated during resolution.
type Entity struct {
	ID                string            `json:"id"`
	Name              string            `json:"name,omitempty"`
	PropertyReference string            `json:"property_reference,omitempty"`
	Coordinates       *LatLon           `json:"coordinates,omitempty"`
	PostalCode        string            `json:"postal_code,omitempty"`
	Address           string            `json:"address,omitempty"`
	Row               map[string]string `json:"-"`
}

// HasName reports whether the entity carries a non-blank name.
func (e Entity) HasName() bool {
	return strings.TrimSpace(e.Name) != ""
}

// HasReference reports whether the entity carries a property reference.
func (e Entity) HasReference() bool {
	return strings.TrimSpace(e.PropertyReference) != ""
}

// Usable reports whether any source could plausibly resolve the entity.
func (e Entity) Usable() bool {
	return e.HasName() || e.HasReference() || e.Coordinates != nil
}
