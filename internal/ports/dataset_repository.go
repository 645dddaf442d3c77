package ports

import (
	"context"

	"zone-routing-service/internal/domain"
)

// Port: a read-only boundary for the customer master and depot catalogue.
// Implementations publish immutable snapshots; a reload must never mutate
// data visible to in-flight readers.
type DatasetRepository interface {
	// CustomersByCity returns the customers of one city, in dataset order.
	CustomersByCity(ctx context.Context, city string) ([]domain.Customer, error)

	// CustomersByZone narrows CustomersByCity to a pre-existing zone code.
	CustomersByZone(ctx context.Context, city, zone string) ([]domain.Customer, error)

	// DepotByCity returns the city's depot.
	DepotByCity(ctx context.Context, city string) (domain.Depot, error)

	// Cities lists the cities present in the depot catalogue.
	Cities(ctx context.Context) ([]string, error)
}
