package checklist

import (
	"encoding/json"
	"fmt"
)

// ExtractCompliance reads the top-level "compliant" boolean. ok is false when
// the field is absent or null so callers can tell "not yet decided" apart
// from a malformed payload.
func ExtractCompliance(b Blob) (compliant bool, ok bool, err error) {
	var probe struct {
		Compliant *bool `json:"compliant"`
	}
	if err := json.Unmarshal(b.Data, &probe); err != nil {
		return false, false, fmt.Errorf("%w: %v", ErrInvalidBlob, err)
	}
	if probe.Compliant == nil {
		return false, false, nil
	}
	return *probe.Compliant, true, nil
}
