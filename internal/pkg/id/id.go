package id

import "github.com/oklog/ulid/v2"

// New returns a ULID string. ulid.Make draws from a process-wide monotonic
// entropy source, so ids created within the same millisecond still sort in
// creation order. OTP lookups rely on that for ties on created_at.
func New() string {
	return ulid.Make().String()
}
