package notification

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Provider tells an owner that a settlement was created for them.
// Callers treat delivery as best-effort: a failed notification is logged
// and never fails the settlement itself.
type Provider interface {
	Notify(ctx context.Context, ownerID, settlementID snowflake.ID) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Notify(ctx context.Context, ownerID, settlementID snowflake.ID) error {
	return nil
}
