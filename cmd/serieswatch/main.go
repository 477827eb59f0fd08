// Command serieswatch keeps a local SQLite copy of FRED economic series
// up to date.
package main

import (
	"os"

	"github.com/roach88/serieswatch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
