package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zero5yt/StreamixBot2.0/cmd/link"
	"github.com/zero5yt/StreamixBot2.0/cmd/root"
	"github.com/zero5yt/StreamixBot2.0/cmd/serve"
	"github.com/zero5yt/StreamixBot2.0/cmd/version"
)

func GetRootCommand() *cobra.Command {
	rootCMD := root.GetCommand()
	rootCMD.AddCommand(serve.GetCommand())
	rootCMD.AddCommand(link.GetCommand())
	rootCMD.AddCommand(version.VersionCMD)
	return rootCMD
}
