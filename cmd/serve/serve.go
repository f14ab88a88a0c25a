package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zero5yt/StreamixBot2.0/pkg/cli"
	"github.com/zero5yt/StreamixBot2.0/pkg/config"
	"github.com/zero5yt/StreamixBot2.0/pkg/linkstore"
	"github.com/zero5yt/StreamixBot2.0/pkg/logging"
	"github.com/zero5yt/StreamixBot2.0/pkg/pool"
	"github.com/zero5yt/StreamixBot2.0/pkg/server"
	"github.com/zero5yt/StreamixBot2.0/pkg/session"
	"github.com/zero5yt/StreamixBot2.0/pkg/stream"
)

const shutdownTimeout = 10 * time.Second

const longDesc = `
Start the HTTP streaming server.

One backend connection is opened per bot token (telegram backend) or per --connections (blob and http
backends). Connections that fail to start are logged and skipped; the server refuses to start only when
none of them came up.
`

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [flags]",
		Short: "run the streaming HTTP server",
		Long:  longDesc,
		RunE:  runServeCMD,
		Args:  cobra.NoArgs,
		Example: `  streamix serve --api-id 12345 --api-hash abcdef --bot-token 123:abc --storage-channel -1001234567890
  streamix serve --backend blob --bucket-url s3://my-bucket?region=eu-west-1 --database-url sqlite:///data/links.db
  streamix serve --backend http --origin-url https://origin.example.com/files --connections 8`,
	}
	cmd.SetUsageTemplate(cli.UsageTemplate)
	if err := config.AddServeFlags(cmd); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return cmd
}

func runServeCMD(cmd *cobra.Command, args []string) error {
	// After we run through the PreRun functions we want to silence usage from being printed
	// on all errors
	cmd.SilenceUsage = true
	logger := logging.GetLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chunkSize, err := config.ChunkSize()
	if err != nil {
		return err
	}

	if path := viper.GetString(config.OptPIDFile); path != "" {
		pid, err := cli.NewPIDFile(path)
		if err != nil {
			return err
		}
		if err := pid.Acquire(); err != nil {
			return fmt.Errorf("acquiring pid file %s: %w", path, err)
		}
		defer func() {
			if err := pid.Release(); err != nil {
				logger.Error().Err(err).Msg("Error releasing pid file")
			}
		}()
	}

	links, err := linkstore.Open(ctx, viper.GetString(config.OptDatabaseURL), viper.GetInt(config.OptLinkCacheSize))
	if err != nil {
		return err
	}
	defer links.Close()

	p := pool.New()
	conns, err := startBackend(ctx, p, viper.GetString(config.OptBackend), chunkSize)
	if err != nil {
		return err
	}
	defer conns.Close()

	sessions := session.NewCache()
	defer func() {
		if err := sessions.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing sessions")
		}
	}()

	srv := server.New(p, links, stream.New(sessions), &server.Options{
		Address:   config.ListenAddress(cmd),
		BaseURL:   config.BaseURL(),
		ChunkSize: chunkSize,
	})

	logger.Info().
		Str("backend", viper.GetString(config.OptBackend)).
		Int("connections", p.Len()).
		Int64("chunk_size", chunkSize).
		Msg("Starting server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// fail streams still running once the grace period is over
	defer p.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
