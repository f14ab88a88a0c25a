package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zero5yt/StreamixBot2.0/pkg/cli"
	"github.com/zero5yt/StreamixBot2.0/pkg/config"
)

const rootLongDesc = `
streamix

Streamix serves files kept on a remote object service (a Telegram storage channel, a cloud bucket or a
plain HTTP origin) to browsers and media players over HTTP, with full support for byte-range requests.

Every request is mapped onto fixed-size remote chunks. Chunks are fetched in order, one at a time, and
forwarded as they arrive, so seeking in a player costs a single aligned fetch rather than a download of
everything before the seek point. Requests are spread over all configured backend connections, always
picking the one currently serving the fewest streams.
`

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streamix",
		Short: "streamix",
		Long:  rootLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.PersistentStartupProcessFlags()
		},
		Example: `  streamix serve --bot-token $BOT_TOKEN --storage-channel -1001234567890
  streamix link create 4242`,
	}
	cmd.SetUsageTemplate(cli.UsageTemplate)
	err := config.AddRootPersistentFlags(cmd)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return cmd
}
