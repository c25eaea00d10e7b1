// Command streamcoord runs and drives the pipeline coordinator.
//
// Usage:
//
//	streamcoord serve --config streamcoord.yaml
//	streamcoord submit --config streamcoord.yaml commands.json
//	streamcoord migrate up --config streamcoord.yaml
//	streamcoord migrate generate --adapter mysql --output migrations
//	streamcoord version
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
