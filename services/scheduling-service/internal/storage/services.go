package storage

import (
	"context"

	"github.com/md-rashed-zaman/clinicslots/libs/db"
)

// ServiceRepository reads the clinic's service catalog. Catalog maintenance
// happens elsewhere.
type ServiceRepository struct {
	db db.Querier
}

func NewServiceRepository(q db.Querier) *ServiceRepository {
	return &ServiceRepository{db: q}
}

// Durations maps each active service in serviceIDs to its duration in minutes.
func (r *ServiceRepository) Durations(ctx context.Context, clinicID string, serviceIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(serviceIDs))
	if len(serviceIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT id::text, duration_minutes
		FROM clinic_services
		WHERE clinic_id = $1 AND id::text = ANY($2) AND is_active
	`, clinicID, serviceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var minutes int
		if err := rows.Scan(&id, &minutes); err != nil {
			return nil, err
		}
		out[id] = minutes
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
