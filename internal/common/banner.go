package common

import (
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner. Only used on the HTTP
// transport; stdio must keep stdout clean for MCP frames.
func PrintBanner(version string) {
	banner.PrintSimple("Trellis", version)
}
