package config

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	testCases := []struct {
		name     string
		logLevel string
		expected string
	}{
		{"debug", "debug", "debug"},
		{"info", "info", "info"},
		{"warn", "warn", "warn"},
		{"error", "error", "error"},
		{"unknown", "chatty", "info"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setLogLevel(tc.logLevel)
			assert.Equal(t, tc.expected, zerolog.GlobalLevel().String())
		})
	}
}

func TestResolveOverrides(t *testing.T) {
	testCases := []struct {
		name     string
		resolve  []string
		expected map[string]string
		err      bool
	}{
		{"empty", []string{}, nil, false},
		{"single", []string{"example.com:80:127.0.0.1"}, map[string]string{"example.com:80": "127.0.0.1:80"}, false},
		{"multiple", []string{"example.com:80:127.0.0.1", "example.com:443:127.0.0.1"}, map[string]string{"example.com:80": "127.0.0.1:80", "example.com:443": "127.0.0.1:443"}, false},
		{"invalid ip", []string{"example.com:80:InvalidIPAddr"}, nil, true},
		{"duplicate host different target", []string{"example.com:80:127.0.0.1", "example.com:80:127.0.0.2"}, nil, true},
		{"duplicate host same target", []string{"example.com:80:127.0.0.1", "example.com:80:127.0.0.1"}, map[string]string{"example.com:80": "127.0.0.1:80"}, false},
		{"invalid format", []string{"example.com:80"}, nil, true},
		{"invalid hostname format, is IP Addr", []string{"127.0.0.1:443:127.0.0.2"}, nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resolveOverrides, err := ResolveOverridesToMap(tc.resolve)
			assert.Equal(t, tc.err, err != nil)
			assert.Equal(t, tc.expected, resolveOverrides)
		})
	}
}

func TestParseChunkSize(t *testing.T) {
	testCases := []struct {
		input    string
		expected int64
		err      bool
	}{
		{"1MiB", 1048576, false},
		{"512KiB", 524288, false},
		{"1M", 1000000, false},
		{"4096", 4096, false},
		{"0", 0, true},
		{"lots", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			size, err := parseChunkSize(tc.input)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, size)
		})
	}
}

func TestMultiTokensFromEnv(t *testing.T) {
	environ := []string{
		"HOME=/root",
		"MULTI_TOKEN10=ten",
		"MULTI_TOKEN2=two",
		"MULTI_TOKEN1=one",
		"MULTI_TOKEN_EXTRA=extra",
		"MULTI_TOKEN3=",
	}
	assert.Equal(t, []string{"one", "two", "ten", "extra"}, MultiTokensFromEnv(environ))
	assert.Empty(t, MultiTokensFromEnv([]string{"PATH=/bin"}))
}

func TestListenAddress(t *testing.T) {
	defer viper.Reset()

	newCmd := func() *cobra.Command {
		cmd := &cobra.Command{Use: "serve"}
		require.NoError(t, AddServeFlags(cmd))
		return cmd
	}

	t.Run("default", func(t *testing.T) {
		t.Setenv(EnvPort, "")
		assert.Equal(t, "0.0.0.0:8000", ListenAddress(newCmd()))
	})

	t.Run("port env", func(t *testing.T) {
		t.Setenv(EnvPort, "9090")
		assert.Equal(t, "0.0.0.0:9090", ListenAddress(newCmd()))
	})

	t.Run("explicit flag wins", func(t *testing.T) {
		t.Setenv(EnvPort, "9090")
		cmd := newCmd()
		require.NoError(t, cmd.Flags().Set(OptListenAddress, "127.0.0.1:7000"))
		assert.Equal(t, "127.0.0.1:7000", ListenAddress(cmd))
	})
}

func TestBaseURL(t *testing.T) {
	defer viper.Reset()
	viper.Set(OptBaseURL, "https://files.example.com/")
	assert.Equal(t, "https://files.example.com", BaseURL())
}
