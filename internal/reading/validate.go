package reading

import (
	"errors"

	"github.com/smukkama/helmet-monitor/internal/clock"
)

var (
	// ErrNoData is returned when the payload is missing, empty or not a JSON object
	ErrNoData = errors.New("no data received")

	// ErrMissingIdentifier is returned when person_id is absent, null or empty
	ErrMissingIdentifier = errors.New("no person id provided")
)

// Validate checks an inbound payload and stamps it with the ingestion time.
// Any client-supplied timestamp is overwritten. Sensor values are not range
// checked.
func Validate(payload []byte, clk clock.Clock) (Reading, error) {
	r, err := Parse(payload)
	if err != nil {
		return Reading{}, err
	}
	if r.Empty() {
		return Reading{}, ErrNoData
	}
	if r.PersonID == "" {
		return Reading{}, ErrMissingIdentifier
	}
	return r.Stamp(clk.Now()), nil
}
