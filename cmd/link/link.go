package link

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zero5yt/StreamixBot2.0/pkg/cli"
	"github.com/zero5yt/StreamixBot2.0/pkg/config"
	"github.com/zero5yt/StreamixBot2.0/pkg/linkstore"
	"github.com/zero5yt/StreamixBot2.0/pkg/logging"
)

// maxIDAttempts bounds retries on the unlikely id collision.
const maxIDAttempts = 5

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "manage share links",
		Long:  "Create and resolve the short ids behind /show and /api/file links.",
	}
	cmd.SetUsageTemplate(cli.UsageTemplate)
	cmd.AddCommand(createCommand(), getCommand())
	return cmd
}

func createCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "create <handle>",
		Short:   "store a share link for a remote object and print its URL",
		Args:    cobra.ExactArgs(1),
		Example: `  streamix link create 4217 --database-url sqlite:///data/links.db`,
		RunE:    runCreate,
	}
}

func getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "print the remote object handle behind a link id",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}
}

func runCreate(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	h, err := cli.ParseHandle(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := linkstore.NewID()
		if err != nil {
			return err
		}
		err = store.Save(ctx, id, h)
		if errors.Is(err, linkstore.ErrDuplicate) {
			logger := logging.GetLogger()
			logger.Debug().Str("id", id).Msg("Link id collision, retrying")
			continue
		}
		if err != nil {
			return fmt.Errorf("saving link: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), cli.ShowURL(config.BaseURL(), id))
		return nil
	}
	return fmt.Errorf("could not allocate a unique link id after %d attempts", maxIDAttempts)
}

func runGet(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	h, err := store.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("link %s: %w", args[0], err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), h)
	return nil
}

// openStore opens the configured link database. An empty DSN is an error
// since the in-memory store does not outlive the command.
func openStore(ctx context.Context) (linkstore.Store, error) {
	dsn := viper.GetString(config.OptDatabaseURL)
	if dsn == "" {
		return nil, fmt.Errorf("--%s is required, links must be saved where the server can read them", config.OptDatabaseURL)
	}
	return linkstore.Open(ctx, dsn, 0)
}
