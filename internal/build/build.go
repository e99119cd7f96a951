// Package build holds build-time information.
package build

// Version is the application version.
// It defaults to "dev" and can be overwritten by linker flags.
var Version = "dev"

// Commit is the VCS commit majak was built from, set via linker flags.
var Commit = "unknown"

// Date is the build timestamp, set via linker flags.
var Date = "unknown"
