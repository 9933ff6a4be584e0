package buildconfig

// Set at build time via -ldflags "-X ...".
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Version returns the release version baked into the binary.
func Version() string {
	return version
}

// Commit returns the git revision baked into the binary.
func Commit() string {
	return commit
}

// BuildDate returns the build timestamp baked into the binary.
func BuildDate() string {
	return buildDate
}
