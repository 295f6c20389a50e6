// Package version carries build metadata set with -ldflags "-X".
package version

var (
	Name      = "lakedash"
	Version   = "0.0.1"
	GitURL    = ""
	GitCommit = ""
)
