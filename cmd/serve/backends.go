package serve

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/zero5yt/StreamixBot2.0/pkg/config"
	"github.com/zero5yt/StreamixBot2.0/pkg/logging"
	"github.com/zero5yt/StreamixBot2.0/pkg/pool"
	"github.com/zero5yt/StreamixBot2.0/pkg/remote"
	"github.com/zero5yt/StreamixBot2.0/pkg/remote/blobstore"
	"github.com/zero5yt/StreamixBot2.0/pkg/remote/httpstore"
	"github.com/zero5yt/StreamixBot2.0/pkg/remote/telegram"
)

// starter opens backend connection id.
type starter func(ctx context.Context, id int) (remote.Client, error)

// closers shuts down every started connection that holds resources.
type closers []io.Closer

func (cs closers) Close() error {
	var errs []error
	for _, c := range cs {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func startBackend(ctx context.Context, p *pool.Pool, backend string, chunkSize int64) (closers, error) {
	switch backend {
	case config.BackendTelegram:
		if err := telegram.ValidateChunkSize(chunkSize); err != nil {
			return nil, err
		}
		tokens := config.BotTokens()
		if len(tokens) == 0 {
			return nil, fmt.Errorf("--%s or %s<n> is required for the telegram backend", config.OptBotToken, config.EnvMultiTokenPrefix)
		}
		return startConnections(ctx, p, len(tokens), func(ctx context.Context, id int) (remote.Client, error) {
			return telegram.Start(ctx, connName(backend, id), telegram.Options{
				AppID:    viper.GetInt(config.OptAPIID),
				AppHash:  viper.GetString(config.OptAPIHash),
				BotToken: tokens[id],
				Channel:  viper.GetInt64(config.OptStorageChannel),
			})
		})

	case config.BackendBlob:
		bucketURL := viper.GetString(config.OptBucketURL)
		if bucketURL == "" {
			return nil, fmt.Errorf("--%s is required for the blob backend", config.OptBucketURL)
		}
		return startConnections(ctx, p, viper.GetInt(config.OptConnections), func(ctx context.Context, _ int) (remote.Client, error) {
			return blobstore.New(ctx, bucketURL)
		})

	case config.BackendHTTP:
		overrides, err := config.ResolveOverridesToMap(viper.GetStringSlice(config.OptResolve))
		if err != nil {
			return nil, err
		}
		opts := httpstore.Options{
			OriginURL:        viper.GetString(config.OptOriginURL),
			Token:            viper.GetString(config.OptOriginToken),
			Retries:          viper.GetInt(config.OptRetries),
			ConnectTimeout:   viper.GetDuration(config.OptConnTimeout),
			ResolveOverrides: overrides,
		}
		return startConnections(ctx, p, viper.GetInt(config.OptConnections), func(context.Context, int) (remote.Client, error) {
			return httpstore.New(opts)
		})

	default:
		return nil, fmt.Errorf("unknown backend %q, expected %s, %s or %s", backend, config.BackendTelegram, config.BackendBlob, config.BackendHTTP)
	}
}

// startConnections starts n connections concurrently and registers those
// that came up, keeping their ids. A failed connection is logged and skipped.
func startConnections(ctx context.Context, p *pool.Pool, n int, start starter) (closers, error) {
	logger := logging.GetLogger()
	if n <= 0 {
		return nil, fmt.Errorf("at least one connection is required, got %d", n)
	}

	clients := make([]remote.Client, n)
	var g errgroup.Group
	for id := 0; id < n; id++ {
		id := id
		g.Go(func() error {
			client, err := start(ctx, id)
			if err != nil {
				logger.Error().Err(err).Int("connection", id).Msg("Connection failed to start, skipping")
				return err
			}
			clients[id] = client
			return nil
		})
	}
	startErr := g.Wait()

	var cs closers
	for id, client := range clients {
		if client == nil {
			continue
		}
		if c, ok := client.(io.Closer); ok {
			cs = append(cs, c)
		}
		if _, err := p.Register(id, connName("conn", id), client); err != nil {
			cs.Close()
			return nil, err
		}
	}
	if p.Len() == 0 {
		cs.Close()
		return nil, fmt.Errorf("no backend connection could be started: %w", startErr)
	}
	logger.Info().Int("started", p.Len()).Int("configured", n).Msg("Backend connections ready")
	return cs, nil
}

func connName(prefix string, id int) string {
	return fmt.Sprintf("%s-%d", prefix, id)
}
