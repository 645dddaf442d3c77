package domain

// Represents a single customer in the master dataset.
// A Customer has a stable identifier, a home city, optional pre-existing
// zone code, geographic coordinates, and an open map of filter attributes.
// Customers are immutable for the duration of a run.
type Customer struct {
	CustomerID string
	Name       string
	City       string
	ZoneCode   string
	Lat        float64
	Lon        float64
	Filters    map[string]string
}

// ValidCoordinates reports whether the customer carries finite coordinates
// inside the usable lat/lon ranges.
func (c Customer) ValidCoordinates() bool {
	return validLatLon(c.Lat, c.Lon)
}

// Fixed origin point of all routes for a city.
type Depot struct {
	City string
	Code string
	Lat  float64
	Lon  float64
}

func validLatLon(lat, lon float64) bool {
	if lat != lat || lon != lon { // NaN
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
