// devloop provisions and live-reloads a worker development environment.
package main

import (
	"os"

	"github.com/agnt5dev/devloop/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
