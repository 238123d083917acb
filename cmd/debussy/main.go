// debussy drives beads through a multi-agent develop -> review ->
// [security-review] -> merge -> acceptance pipeline.
package main

import (
	"os"

	"github.com/tsturo/debussy/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
