package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-mediacore/internal/audio"
	"github.com/edumarques81/stellar-mediacore/internal/config"
	"github.com/edumarques81/stellar-mediacore/internal/core"
	"github.com/edumarques81/stellar-mediacore/internal/domain/artwork"
	"github.com/edumarques81/stellar-mediacore/internal/domain/backend"
	"github.com/edumarques81/stellar-mediacore/internal/domain/router"
	"github.com/edumarques81/stellar-mediacore/internal/events"
	"github.com/edumarques81/stellar-mediacore/internal/infra/localfiles"
	"github.com/edumarques81/stellar-mediacore/internal/infra/mpd"
	"github.com/edumarques81/stellar-mediacore/internal/infra/store"
	"github.com/edumarques81/stellar-mediacore/internal/transport/mpdproto"
	"github.com/edumarques81/stellar-mediacore/internal/transport/socketio"
	"github.com/edumarques81/stellar-mediacore/internal/version"
)

const shutdownTimeout = 5 * time.Second

func runServe(cmd *cobra.Command, args []string) error {
	printBanner(cfg)

	// MPD is the audio engine, so it is required even without the mpd:
	// library backend.
	mpdClient := newMPDClient(cfg)
	if err := mpdClient.Connect(); err != nil {
		return fmt.Errorf("connect to MPD at %s: %w", cfg.MPDAddress(), err)
	}
	defer mpdClient.Close()
	if err := mpdClient.Ping(); err != nil {
		return fmt.Errorf("MPD ping failed: %w", err)
	}
	log.Info().Str("addr", cfg.MPDAddress()).Msg("MPD connection verified")

	engine, err := mpd.NewEngine(mpdClient)
	if err != nil {
		return fmt.Errorf("start MPD engine: %w", err)
	}

	reg, err := buildRegistry(cfg, mpdClient)
	if err != nil {
		engine.Close()
		return err
	}
	defer reg.Stop()

	mc := core.New(engine, router.New(reg),
		core.WithHistoryLength(cfg.Core.HistoryLength),
		core.WithMailboxSize(cfg.Core.MailboxSize),
		core.WithTimeout(cfg.Core.CommandTimeout),
		core.WithOutputOptions(
			audio.WithTimeout(cfg.Audio.Timeout),
			audio.WithBitPerfect(cfg.Audio.BitPerfect),
		),
		core.WithDispatcherOptions(
			events.WithQueueSize(cfg.Core.ListenerQueue),
			events.WithDeliveryTimeout(cfg.Core.ListenerTimeout),
		),
	)
	defer mc.Close()

	if cfg.MPDServer.Port != 0 {
		mpdServer, err := mpdproto.NewServer(mc, mpdproto.Options{
			MaxConnections: cfg.MPDServer.MaxConnections,
			Timeout:        cfg.Core.CommandTimeout,
			OutputName:     version.Name,
			PlaylistScheme: playlistScheme(cfg),
		})
		if err != nil {
			return err
		}
		addr := net.JoinHostPort(cfg.MPDServer.Hostname, strconv.Itoa(cfg.MPDServer.Port))
		if err := mpdServer.Listen(addr); err != nil {
			return err
		}
		defer mpdServer.Close()
	}

	if cfg.SocketIO.Port == 0 {
		log.Info().Msg("Socket.io frontend disabled")
		waitForSignal()
		return nil
	}

	socketServer, err := socketio.NewServer(mc, socketio.Options{
		MaxExternal:    cfg.SocketIO.MaxExternal,
		AllowedOrigins: cfg.SocketIO.AllowedOrigins,
		Timeout:        cfg.Core.CommandTimeout,
	})
	if err != nil {
		return fmt.Errorf("create socket.io server: %w", err)
	}
	socketServer.Start()
	defer socketServer.Close()

	var art *artwork.Resolver
	if cfg.Local.Enabled && len(cfg.Local.MediaDirs) > 0 {
		art = artwork.NewResolver(cfg.Local.MediaDirs...)
	}
	mux := newMux(mc, art)
	mux.Handle("/socket.io/", socketServer)

	addr := net.JoinHostPort(cfg.SocketIO.Hostname, strconv.Itoa(cfg.SocketIO.Port))
	server := &http.Server{
		Addr:         addr,
		Handler:      corsMiddleware(cfg.SocketIO.AllowedOrigins, mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		waitForSignal()
		log.Info().Msg("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", addr).Msg("HTTP server listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}

func newMPDClient(cfg *config.Config) *mpd.Client {
	if cfg.MPD.Socket != "" {
		return mpd.NewSocketClient(cfg.MPD.Socket, cfg.MPD.Password)
	}
	return mpd.NewClient(cfg.MPD.Host, cfg.MPD.Port, cfg.MPD.Password)
}

// buildRegistry starts the enabled library backends. Registration order is
// the tie-break for schemes served by more than one backend.
func buildRegistry(cfg *config.Config, mpdClient *mpd.Client) (*router.Registry, error) {
	opts := []backend.Option{backend.WithTimeout(cfg.Core.BackendTimeout)}

	var descs []*backend.Descriptor
	if cfg.Local.Enabled {
		local := localfiles.NewBackend(cfg.Local.MediaDirs...)
		// Only socket clients may hand MPD file:// URIs.
		if cfg.MPD.Socket == "" {
			local.SetMusicDir(cfg.MPD.MusicDir)
		}
		descs = append(descs, backend.Spawn(local, opts...))
	}
	if cfg.MPD.Library {
		descs = append(descs, backend.Spawn(mpd.NewBackend(mpdClient), opts...))
	}
	if cfg.StoredPlaylists.Enabled {
		db := store.NewDB(cfg.StoredPlaylists.Path)
		if err := db.Open(); err != nil {
			stopAll(descs)
			return nil, fmt.Errorf("open playlist store: %w", err)
		}
		descs = append(descs, backend.Spawn(store.NewBackend(db), opts...))
	}

	reg, err := router.NewRegistry(descs...)
	if err != nil {
		stopAll(descs)
		return nil, err
	}
	return reg, nil
}

func stopAll(descs []*backend.Descriptor) {
	for _, d := range descs {
		d.Stop()
	}
}

// playlistScheme picks the backend that MPD "save" creates playlists on.
func playlistScheme(cfg *config.Config) string {
	if cfg.StoredPlaylists.Enabled {
		return store.Scheme
	}
	return ""
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	signal.Stop(sigCh)
}

func printBanner(cfg *config.Config) {
	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Extensible Media Server")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("mpd", cfg.MPDAddress()).
		Bool("mpd_library", cfg.MPD.Library).
		Bool("local", cfg.Local.Enabled).
		Strs("media_dirs", cfg.Local.MediaDirs).
		Bool("stored_playlists", cfg.StoredPlaylists.Enabled).
		Int("socketio_port", cfg.SocketIO.Port).
		Int("mpd_server_port", cfg.MPDServer.Port).
		Bool("bit_perfect", cfg.Audio.BitPerfect).
		Bool("password_set", cfg.MPD.Password != "").
		Msg("Configuration")
}
