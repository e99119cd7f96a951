package ports

import "github.com/jonboulle/clockwork"

// Clock is the build log's and builder's time source, so tests can control
// start/end timestamps deterministically instead of racing the wall clock.
type Clock = clockwork.Clock
