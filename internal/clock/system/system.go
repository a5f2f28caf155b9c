// Package system provides the wall clock used to stamp extraction times.
package system

import "time"

// Clock stamps metadata.extractedAt on terminal writes.
type Clock struct{}

// New returns the process wall clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC so stored timestamps carry no zone offset.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
