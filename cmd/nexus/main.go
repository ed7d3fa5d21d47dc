// Command nexus runs the multi-tenant decision pipeline.
package main

import (
	"os"

	"github.com/dativo-io/nexus/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
