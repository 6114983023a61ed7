package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/npnl/enigma-request/cmd/enigma/cli"
)

// Version is set at build time
var Version = "dev"

func main() {
	cli.SetVersion(Version)
	if err := fang.Execute(
		context.Background(),
		cli.GetRootCmd(),
		fang.WithColorSchemeFunc(cli.FangColorScheme),
	); err != nil {
		os.Exit(1)
	}
}
