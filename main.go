// ./main.go
package main

import (
	"github.com/waypointlabs/waypoint/cmd"
)

// main is the entry point for the waypoint CLI.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
