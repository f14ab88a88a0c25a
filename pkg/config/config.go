package config

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zero5yt/StreamixBot2.0/pkg/logging"
)

func AddRootPersistentFlags(cmd *cobra.Command) error {
	// Persistent Flags (applies to all commands/subcommands)
	cmd.PersistentFlags().String(OptConfigFile, "", "Path to a config file (any format viper understands)")
	cmd.PersistentFlags().String(OptDatabaseURL, "", "Link store DSN: sqlite://<path>, postgres://..., empty keeps links in memory")
	cmd.PersistentFlags().Int(OptLinkCacheSize, 1024, "Number of link lookups cached in memory")
	cmd.PersistentFlags().String(OptBaseURL, "http://localhost:8000", "Public base URL used in generated links")
	cmd.PersistentFlags().BoolP(OptVerbose, "v", false, "Verbose mode (equivalent to --log-level debug)")
	cmd.PersistentFlags().String(OptLoggingLevel, "info", "Log level (debug, info, warn, error)")

	viper.SetEnvPrefix("STREAMIX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		return fmt.Errorf("failed to bind persistent flags: %w", err)
	}
	return nil
}

func AddServeFlags(cmd *cobra.Command) error {
	cmd.Flags().String(OptListenAddress, "0.0.0.0:8000", "Address to listen on ($PORT overrides the port)")
	cmd.Flags().String(OptBackend, BackendTelegram, "Remote object backend (telegram, blob, http)")
	cmd.Flags().String(OptChunkSize, "1MiB", "Remote fetch granularity (e.g. 512KiB, 1MiB)")
	cmd.Flags().String(OptPIDFile, "", "Lock file held while serving; a second instance waits for it")

	cmd.Flags().Int(OptAPIID, 0, "Telegram API id")
	cmd.Flags().String(OptAPIHash, "", "Telegram API hash")
	cmd.Flags().String(OptBotToken, "", "Token of the main bot (connection 0)")
	cmd.Flags().StringSlice(OptMultiToken, []string{}, "Extra bot tokens, one connection each (also MULTI_TOKEN<n> env vars)")
	cmd.Flags().Int64(OptStorageChannel, 0, "Telegram channel holding stored files")

	cmd.Flags().String(OptBucketURL, "", "Bucket URL for the blob backend (s3://, gs://, file://, mem://)")
	cmd.Flags().Int(OptConnections, 4, "Number of connections opened by the blob and http backends")

	cmd.Flags().String(OptOriginURL, "", "Origin base URL for the http backend")
	cmd.Flags().String(OptOriginToken, "", "Bearer token sent to the http origin")
	cmd.Flags().IntP(OptRetries, "r", 5, "Number of retries against the http origin")
	cmd.Flags().Duration(OptConnTimeout, 5*time.Second, "Timeout for establishing a connection, format is <number><unit>, e.g. 10s")
	cmd.Flags().StringSlice(OptResolve, []string{}, "Resolve hostnames to specific IPs")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	return nil
}

func PersistentStartupProcessFlags() error {
	if path := viper.GetString(OptConfigFile); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", path, err)
		}
	}
	if viper.GetBool(OptVerbose) {
		viper.Set(OptLoggingLevel, "debug")
	}
	setLogLevel(viper.GetString(OptLoggingLevel))
	return nil
}

func setLogLevel(logLevel string) {
	// Set log-level
	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// ChunkSize parses the configured fetch granularity.
func ChunkSize() (int64, error) {
	return parseChunkSize(viper.GetString(OptChunkSize))
}

func parseChunkSize(s string) (int64, error) {
	size, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("unable to parse chunk size %q: %w", s, err)
	}
	if size == 0 {
		return 0, fmt.Errorf("chunk size must be positive, got %q", s)
	}
	return int64(size), nil
}

// ListenAddress honours $PORT unless --listen-address was given explicitly.
func ListenAddress(cmd *cobra.Command) string {
	addr := viper.GetString(OptListenAddress)
	port := os.Getenv(EnvPort)
	if port == "" || cmd.Flags().Changed(OptListenAddress) {
		return addr
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, port)
}

// BaseURL returns the configured public URL without a trailing slash.
func BaseURL() string {
	return strings.TrimRight(viper.GetString(OptBaseURL), "/")
}

// BotTokens returns every configured bot token. Index 0 is the main bot;
// the rest come from --multi-token followed by MULTI_TOKEN<n> variables in
// numeric order.
func BotTokens() []string {
	var tokens []string
	if main := viper.GetString(OptBotToken); main != "" {
		tokens = append(tokens, main)
	}
	tokens = append(tokens, viper.GetStringSlice(OptMultiToken)...)
	return append(tokens, MultiTokensFromEnv(os.Environ())...)
}

// MultiTokensFromEnv extracts MULTI_TOKEN<n>=<token> entries ordered by n.
// Entries without a numeric suffix sort after numbered ones.
func MultiTokensFromEnv(environ []string) []string {
	type entry struct {
		n     int
		name  string
		token string
	}
	var entries []entry
	for _, kv := range environ {
		name, token, ok := strings.Cut(kv, "=")
		if !ok || token == "" || !strings.HasPrefix(name, EnvMultiTokenPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, EnvMultiTokenPrefix))
		if err != nil {
			n = int(^uint(0) >> 1)
		}
		entries = append(entries, entry{n: n, name: name, token: token})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].n != entries[j].n {
			return entries[i].n < entries[j].n
		}
		return entries[i].name < entries[j].name
	})
	tokens := make([]string, len(entries))
	for i, e := range entries {
		tokens[i] = e.token
	}
	return tokens
}

// ResolveOverridesToMap turns host:port:ip entries into a dial override map.
func ResolveOverridesToMap(resolveHosts []string) (map[string]string, error) {
	logger := logging.GetLogger()
	if len(resolveHosts) == 0 {
		return nil, nil
	}
	resolveOverrides := make(map[string]string)
	for _, resolveHost := range resolveHosts {
		split := strings.SplitN(resolveHost, ":", 3)
		if len(split) != 3 {
			return nil, fmt.Errorf("invalid resolve host format, expected <hostname>:port:<ip>, got: %s", resolveHost)
		}
		host, port, addr := split[0], split[1], split[2]
		if net.ParseIP(host) != nil {
			return nil, fmt.Errorf("invalid hostname specified, looks like an IP address: %s", host)
		}
		hostPort := net.JoinHostPort(host, port)
		target := net.JoinHostPort(addr, port)
		if existing, ok := resolveOverrides[hostPort]; ok && existing != target {
			return nil, fmt.Errorf("duplicate host:port specified: %s", host)
		}
		if net.ParseIP(addr) == nil {
			return nil, fmt.Errorf("invalid IP address: %s", addr)
		}
		resolveOverrides[hostPort] = target
	}
	if logger.GetLevel() == zerolog.DebugLevel {
		for key, elem := range resolveOverrides {
			logger.Debug().Str("host_port", key).Str("resolve_target", elem).Msg("Config")
		}
	}
	return resolveOverrides, nil
}
