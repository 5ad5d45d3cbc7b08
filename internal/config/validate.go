package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

var logLevels = []string{"trace", "debug", "info", "warn", "error"}

// Validate checks every value and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	check(positiveInt("core.history_length", c.Core.HistoryLength))
	check(positiveInt("core.mailbox_size", c.Core.MailboxSize))
	check(positiveInt("core.listener_queue", c.Core.ListenerQueue))
	check(positiveDuration("core.command_timeout", c.Core.CommandTimeout))
	check(positiveDuration("core.backend_timeout", c.Core.BackendTimeout))
	check(positiveDuration("core.listener_timeout", c.Core.ListenerTimeout))
	check(choice("logging.level", c.Logging.Level, logLevels))
	check(positiveDuration("audio.timeout", c.Audio.Timeout))

	if c.MPD.Socket == "" {
		check(hostname("mpd.host", c.MPD.Host))
		check(port("mpd.port", c.MPD.Port, false))
	}

	if c.Local.Enabled {
		if len(c.Local.MediaDirs) == 0 {
			errs = append(errs, fmt.Errorf("local.media_dirs: must list at least one directory"))
		}
		if c.MPD.Socket == "" {
			errs = append(errs, musicDirCovers(c.MPD.MusicDir, c.Local.MediaDirs)...)
		}
	}
	if c.StoredPlaylists.Enabled && strings.TrimSpace(c.StoredPlaylists.Path) == "" {
		errs = append(errs, fmt.Errorf("stored_playlists.path: must not be empty"))
	}

	check(port("socketio.port", c.SocketIO.Port, true))
	if c.SocketIO.Port != 0 {
		check(hostname("socketio.hostname", c.SocketIO.Hostname))
	}
	check(nonNegativeInt("socketio.max_external_connections", c.SocketIO.MaxExternal))

	check(port("mpd_server.port", c.MPDServer.Port, true))
	if c.MPDServer.Port != 0 {
		check(hostname("mpd_server.hostname", c.MPDServer.Hostname))
	}
	check(nonNegativeInt("mpd_server.max_connections", c.MPDServer.MaxConnections))

	if len(errs) > 0 {
		return errors.Wrap(errors.ErrInvalidConfig, "validate", errors.Join(errs...))
	}
	return nil
}

// musicDirCovers checks that MPD over TCP can reach every media dir through
// its music directory.
func musicDirCovers(musicDir string, mediaDirs []string) []error {
	if strings.TrimSpace(musicDir) == "" {
		return []error{fmt.Errorf("mpd.music_dir: required for local files when mpd.socket is not set")}
	}
	var errs []error
	for _, dir := range mediaDirs {
		rel, err := filepath.Rel(musicDir, dir)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			errs = append(errs, fmt.Errorf("local.media_dirs: %s is outside mpd.music_dir %s", dir, musicDir))
		}
	}
	return errs
}

func hostname(key, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s: must not be empty", key)
	}
	if strings.ContainsAny(v, " \t") {
		return fmt.Errorf("%s: %q must not contain whitespace", key, v)
	}
	return nil
}

// port accepts 1..65535, and 0 when disabling is allowed.
func port(key string, v int, allowDisabled bool) error {
	if v == 0 && allowDisabled {
		return nil
	}
	if v < 1 || v > 65535 {
		return fmt.Errorf("%s: %d is not a valid port", key, v)
	}
	return nil
}

func positiveInt(key string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%s: must be positive, got %d", key, v)
	}
	return nil
}

func nonNegativeInt(key string, v int) error {
	if v < 0 {
		return fmt.Errorf("%s: must not be negative, got %d", key, v)
	}
	return nil
}

func positiveDuration(key string, v time.Duration) error {
	if v <= 0 {
		return fmt.Errorf("%s: must be a positive duration, got %s", key, v)
	}
	return nil
}

func choice(key, v string, choices []string) error {
	for _, c := range choices {
		if v == c {
			return nil
		}
	}
	return fmt.Errorf("%s: %q must be one of %s", key, v, strings.Join(choices, ", "))
}
