package kb

import (
	"fmt"

	"github.com/roach88/hyperlore/internal/hdc"
)

// CapacityWarning is advisory: the aggregate holds more facts than the
// strategy can superpose with members still above the noise floor. Queries
// keep working through fact resonance; only the accelerator degrades.
type CapacityWarning struct {
	Report hdc.CapacityReport `json:"report"`
}

func (w *CapacityWarning) String() string {
	r := w.Report
	return fmt.Sprintf("%s aggregate saturated: %d items, capacity %d, member similarity %.3f vs noise floor %.3f",
		r.Strategy, r.Items, r.MaxItems, r.ExpectedSimilarity, r.NoiseFloor)
}
