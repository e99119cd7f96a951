package ports

// BuildLogUser is consulted during log recompaction to distinguish outputs
// still named by the manifest from ones the user has since removed.
type BuildLogUser interface {
	IsPathDead(path string) bool
}
