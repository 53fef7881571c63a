package service

import (
	"context"
	"fmt"

	"wadispatch/internal/models"
)

// contactAudienceResolver resolves a job's audience filter against the
// contact store. Opted-out and blocked contacts are excluded at query
// time so they never enter the recipient snapshot.
type contactAudienceResolver struct {
	store Store
}

// NewAudienceResolver creates a contact-backed audience resolver
func NewAudienceResolver(store Store) AudienceResolver {
	return &contactAudienceResolver{store: store}
}

func (r *contactAudienceResolver) Resolve(ctx context.Context, job *models.DispatchJob) ([]models.AudienceMember, error) {
	members, err := r.store.ListAudience(ctx, job.OrganizationID, job.AudienceFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to query audience: %w", err)
	}
	return members, nil
}
