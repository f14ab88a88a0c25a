package main

import (
	"os"

	"github.com/zero5yt/StreamixBot2.0/cmd"
	"github.com/zero5yt/StreamixBot2.0/pkg/logging"
)

func main() {
	logging.SetupLogger()
	rootCMD := cmd.GetRootCommand()

	if err := rootCMD.Execute(); err != nil {
		os.Exit(1)
	}
}
