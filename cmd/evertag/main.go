// Command evertag runs the memorial tag fulfillment service and its admin
// tooling.
package main

import (
	"context"
	"os"

	"github.com/roach88/evertag/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
