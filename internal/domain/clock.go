package domain

import "time"

// Clock abstracts wall-clock reads so tests can simulate elapsed time
// deterministically. The engine never calls time.Now directly.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
