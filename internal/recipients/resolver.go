// Package recipients resolves a campaign's audience selection rule
// into the concrete list of contacts to enqueue.
package recipients

import (
	"errors"

	"github.com/bpr-rehab/campaigner/internal/models"
)

var (
	// ErrNoSelection is returned when a campaign names neither a group
	// nor the full subscriber list.
	ErrNoSelection = errors.New("campaign has no recipient selection")
)

// ContactSource is the subset of the contact repository the resolver needs.
type ContactSource interface {
	ListSubscribed() ([]models.Contact, error)
	ListGroupSubscribed(groupID string) ([]models.Contact, error)
}

type Resolver struct {
	contacts ContactSource
}

func NewResolver(contacts ContactSource) *Resolver {
	return &Resolver{contacts: contacts}
}

// Resolve returns the subscribed contacts targeted by the campaign.
// Send-to-all takes precedence over a group selection. Unsubscribed
// contacts are never returned. An empty audience is not an error here;
// the caller decides what an empty queue means.
func (r *Resolver) Resolve(c *models.Campaign) ([]models.Contact, error) {
	switch {
	case c.SendToAll:
		return r.contacts.ListSubscribed()
	case c.GroupID != "":
		return r.contacts.ListGroupSubscribed(c.GroupID)
	default:
		return nil, ErrNoSelection
	}
}
