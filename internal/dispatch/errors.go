package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bpr-rehab/campaigner/internal/models"
)

var (
	// ErrNotFound means the campaign id does not exist.
	ErrNotFound = errors.New("campaign not found")

	// ErrInvalidState means the operation is not legal from the
	// campaign's current lifecycle state.
	ErrInvalidState = errors.New("invalid campaign state")

	// ErrNoRecipients means the recipient selection resolved to an
	// empty list at prepare time.
	ErrNoRecipients = errors.New("no eligible recipients")
)

// invalidState builds a state-conflict error naming the expected states.
func invalidState(current models.CampaignStatus, expected ...models.CampaignStatus) error {
	names := make([]string, len(expected))
	for i, s := range expected {
		names[i] = string(s)
	}
	return fmt.Errorf("%w: campaign is %s, expected %s",
		ErrInvalidState, current, strings.Join(names, " or "))
}
