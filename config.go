/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	cacheDir       string
	cacheDSN       string
	dataDir        string
	mediaURL       string
	natsURL        string
	port           int
	prefix         string
	preload        bool
	profile        bool
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if strings.TrimSpace(c.dataDir) == "" {
		return errors.New("--data-dir must not be empty")
	}
	if c.cacheDir != "" && c.cacheDSN != "" {
		return errors.New("only one of --cache-dir and --cache-dsn may be provided")
	}
	if c.mediaURL != "" {
		u, err := url.Parse(c.mediaURL)
		if err != nil {
			return fmt.Errorf("invalid --media-url: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid --media-url (must be an absolute http or https URL): %s", c.mediaURL)
		}
	}
	if c.sessionTimeout < 0 {
		return fmt.Errorf("invalid --session-timeout (must not be negative): %s", c.sessionTimeout)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// mediaBase is the root clip URLs are built from: the remote media host
// if one is configured, otherwise the server's own media route.
func (c *Config) mediaBase() string {
	if c.mediaURL != "" {
		return strings.TrimRight(c.mediaURL, "/")
	}
	return c.prefix + "/media"
}

// mediaOrigin is the scheme and host of --media-url, for use in the
// content security policy.
func (c *Config) mediaOrigin() string {
	if c.mediaURL == "" {
		return ""
	}
	u, err := url.Parse(c.mediaURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func (c *Config) logger() func(format string, args ...any) {
	return func(format string, args ...any) {
		logf(c, format, args...)
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("EARWAX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "earwax",
		Short:         "A party game of questionable sound combinations, played on one shared screen.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: EARWAX_BIND)")
	fs.StringVar(&cfg.cacheDir, "cache-dir", "", "directory to cache fetched clips in, instead of memory (env: EARWAX_CACHE_DIR)")
	fs.StringVar(&cfg.cacheDSN, "cache-dsn", "", "postgres connection string to cache fetched clips in (env: EARWAX_CACHE_DSN)")
	fs.StringVarP(&cfg.dataDir, "data-dir", "d", "public", "directory containing data/audio.json, data/prompts.json and Audio/ (env: EARWAX_DATA_DIR)")
	fs.StringVar(&cfg.mediaURL, "media-url", "", "remote URL to fetch Audio/<id>.ogg clips from, instead of the data directory (env: EARWAX_MEDIA_URL)")
	fs.StringVar(&cfg.natsURL, "nats-url", "", "NATS server to publish game events to (env: EARWAX_NATS_URL)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: EARWAX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: EARWAX_PREFIX)")
	fs.BoolVar(&cfg.preload, "preload", true, "warm the clip cache when a game is created (env: EARWAX_PRELOAD)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: EARWAX_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: EARWAX_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: EARWAX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: EARWAX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: EARWAX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: EARWAX_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("earwax v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
