// Package config loads the stellar configuration from TOML files and the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

// Environment variables.
const (
	EnvConfig      = "STELLAR_CONFIG"
	EnvMPDPassword = "STELLAR_MPD_PASSWORD"
)

const redacted = "********"

type Config struct {
	Core            CoreConfig            `koanf:"core"`
	Logging         LoggingConfig         `koanf:"logging"`
	Audio           AudioConfig           `koanf:"audio"`
	MPD             MPDConfig             `koanf:"mpd"`
	Local           LocalConfig           `koanf:"local"`
	StoredPlaylists StoredPlaylistsConfig `koanf:"stored_playlists"`
	SocketIO        SocketIOConfig        `koanf:"socketio"`
	MPDServer       MPDServerConfig       `koanf:"mpd_server"`
}

// CoreConfig holds the media core settings.
type CoreConfig struct {
	HistoryLength   int           `koanf:"history_length"`   // Max history entries (default: 1000)
	MailboxSize     int           `koanf:"mailbox_size"`     // Core actor mailbox (default: 256)
	CommandTimeout  time.Duration `koanf:"command_timeout"`  // Per-command timeout (default: 30s)
	BackendTimeout  time.Duration `koanf:"backend_timeout"`  // Per-backend call timeout (default: 10s)
	ListenerQueue   int           `koanf:"listener_queue"`   // Per-listener event queue (default: 64)
	ListenerTimeout time.Duration `koanf:"listener_timeout"` // Event delivery timeout (default: 5s)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `koanf:"level"` // trace, debug, info, warn or error
}

// AudioConfig holds audio output settings.
type AudioConfig struct {
	BitPerfect bool          `koanf:"bit_perfect"`
	Timeout    time.Duration `koanf:"timeout"` // Per-command timeout (default: 5s)
}

// MPDConfig configures the MPD daemon used as the audio engine and as the
// mpd: library backend.
//
// MPD plays file:// URIs only for clients on its unix socket. Over TCP,
// local files are handed to MPD relative to MusicDir, which must be MPD's
// music_directory.
type MPDConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Socket   string `koanf:"socket"` // Unix socket path; replaces host and port
	Password string `koanf:"password"`
	MusicDir string `koanf:"music_dir"`
	Library  bool   `koanf:"library"` // Register the mpd: backend
}

// LocalConfig configures the file: backend.
type LocalConfig struct {
	Enabled   bool     `koanf:"enabled"`
	MediaDirs []string `koanf:"media_dirs"`
}

// StoredPlaylistsConfig configures the stored: playlists backend.
type StoredPlaylistsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"` // SQLite database file
}

// SocketIOConfig configures the HTTP and Socket.io frontend. Port 0
// disables it.
type SocketIOConfig struct {
	Hostname       string   `koanf:"hostname"`
	Port           int      `koanf:"port"`
	MaxExternal    int      `koanf:"max_external_connections"` // 0 means unlimited
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// MPDServerConfig configures the MPD protocol frontend. Port 0 disables it.
type MPDServerConfig struct {
	Hostname       string `koanf:"hostname"`
	Port           int    `koanf:"port"`
	MaxConnections int    `koanf:"max_connections"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Core: CoreConfig{
			HistoryLength:   1000,
			MailboxSize:     256,
			CommandTimeout:  30 * time.Second,
			BackendTimeout:  10 * time.Second,
			ListenerQueue:   64,
			ListenerTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
		Audio:   AudioConfig{Timeout: 5 * time.Second},
		MPD: MPDConfig{
			Host:     "localhost",
			Port:     6600,
			MusicDir: "~/Music",
			Library:  true,
		},
		Local: LocalConfig{
			Enabled:   true,
			MediaDirs: []string{"~/Music"},
		},
		StoredPlaylists: StoredPlaylistsConfig{
			Enabled: true,
			Path:    "~/.local/share/stellar/playlists.db",
		},
		SocketIO: SocketIOConfig{
			Hostname:    "0.0.0.0",
			Port:        3000,
			MaxExternal: 2,
		},
		MPDServer: MPDServerConfig{
			Hostname:       "127.0.0.1",
			Port:           6601,
			MaxConnections: 20,
		},
	}
}

// LoadEnv loads .env files into the environment. Missing files are
// skipped; variables already set are kept.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// Load reads the config files in order of priority (last wins), applies
// environment overrides and validates the result. explicit, when set, must
// exist.
func Load(explicit string) (*Config, error) {
	k := koanf.New(".")

	if explicit == "" {
		explicit = os.Getenv(EnvConfig)
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, errors.Wrap(errors.ErrInvalidConfig, "load", err)
		}
	}

	for _, path := range configPaths(explicit) {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, errors.Wrap(errors.ErrInvalidConfig, "load "+path, err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, "unmarshal", err)
	}

	if pw := os.Getenv(EnvMPDPassword); pw != "" {
		cfg.MPD.Password = pw
	}

	for i, dir := range cfg.Local.MediaDirs {
		cfg.Local.MediaDirs[i] = expandPath(dir)
	}
	cfg.MPD.Socket = expandPath(cfg.MPD.Socket)
	cfg.MPD.MusicDir = expandPath(cfg.MPD.MusicDir)
	cfg.StoredPlaylists.Path = expandPath(cfg.StoredPlaylists.Path)
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configPaths(explicit string) []string {
	paths := []string{"/etc/stellar/stellar.toml"}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "stellar", "stellar.toml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "stellar", "stellar.toml"))
	}

	if explicit != "" {
		paths = append(paths, explicit)
	}
	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// Redacted returns the configuration as a map with secrets masked, for
// logging and display.
func (c *Config) Redacted() map[string]interface{} {
	password := ""
	if c.MPD.Password != "" {
		password = redacted
	}
	return map[string]interface{}{
		"core": map[string]interface{}{
			"history_length":   c.Core.HistoryLength,
			"mailbox_size":     c.Core.MailboxSize,
			"command_timeout":  c.Core.CommandTimeout.String(),
			"backend_timeout":  c.Core.BackendTimeout.String(),
			"listener_queue":   c.Core.ListenerQueue,
			"listener_timeout": c.Core.ListenerTimeout.String(),
		},
		"logging": map[string]interface{}{
			"level": c.Logging.Level,
		},
		"audio": map[string]interface{}{
			"bit_perfect": c.Audio.BitPerfect,
			"timeout":     c.Audio.Timeout.String(),
		},
		"mpd": map[string]interface{}{
			"host":     c.MPD.Host,
			"port":      c.MPD.Port,
			"socket":    c.MPD.Socket,
			"password":  password,
			"music_dir": c.MPD.MusicDir,
			"library":   c.MPD.Library,
		},
		"local": map[string]interface{}{
			"enabled":    c.Local.Enabled,
			"media_dirs": append([]string{}, c.Local.MediaDirs...),
		},
		"stored_playlists": map[string]interface{}{
			"enabled": c.StoredPlaylists.Enabled,
			"path":    c.StoredPlaylists.Path,
		},
		"socketio": map[string]interface{}{
			"hostname":                 c.SocketIO.Hostname,
			"port":                     c.SocketIO.Port,
			"max_external_connections": c.SocketIO.MaxExternal,
			"allowed_origins":          append([]string{}, c.SocketIO.AllowedOrigins...),
		},
		"mpd_server": map[string]interface{}{
			"hostname":        c.MPDServer.Hostname,
			"port":            c.MPDServer.Port,
			"max_connections": c.MPDServer.MaxConnections,
		},
	}
}

// TOML renders the redacted configuration as TOML.
func (c *Config) TOML() ([]byte, error) {
	return toml.Parser().Marshal(c.Redacted())
}

// MPDAddress returns the MPD daemon address, the socket path when one is set.
func (c *Config) MPDAddress() string {
	if c.MPD.Socket != "" {
		return c.MPD.Socket
	}
	return fmt.Sprintf("%s:%d", c.MPD.Host, c.MPD.Port)
}
