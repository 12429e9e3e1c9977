package common

// Version is set at build time via ldflags:
//
//	go build -ldflags "-X github.com/penmanapp/penman/internal/common.Version=1.2.3"
var Version = "dev"

// GetVersion returns the application version
func GetVersion() string {
	return Version
}
