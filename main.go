package main

import (
	"context"
	"os"

	"github.com/telemetry-lab/magpie/pkg/cli"
)

func main() {
	ctx := context.Background()
	if err := cli.Run(ctx, os.Args); err != nil {
		os.Exit(1)
	}
}
