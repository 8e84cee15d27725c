package workflow

import (
	"fmt"

	"github.com/Astemirdum/club-lending/lending/internal/errs"
	"github.com/Astemirdum/club-lending/lending/internal/model"
)

// CheckCapacity is the availability guard. It is evaluated on submission and
// again, under the item lock, when a request is approved by the owning club.
func CheckCapacity(avail model.Availability, requested int) error {
	if requested <= 0 {
		return errs.ErrInvalidQuantity
	}
	if requested > avail.Free() {
		return fmt.Errorf("%w: requested %d, available %d", errs.ErrCapacityExceeded, requested, avail.Free())
	}
	return nil
}
