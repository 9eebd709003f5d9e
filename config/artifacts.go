// Package config holds the configuration of maci-voter and the network
// presets it starts from.
package config

import "fmt"

const (
	// DefaultArtifactsBaseURL is the base URL for circuit artifacts storage
	DefaultArtifactsBaseURL = "https://maci-zkeys.s3.amazonaws.com"
	// DefaultArtifactsRelease is the release version for circuit artifacts
	DefaultArtifactsRelease = "v3.0.0"
)

// DefaultArtifactsURL returns the URL of the default artifacts release.
func DefaultArtifactsURL() string {
	return fmt.Sprintf("%s/%s", DefaultArtifactsBaseURL, DefaultArtifactsRelease)
}
