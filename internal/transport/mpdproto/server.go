package mpdproto

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/domain/player"
	"github.com/edumarques81/stellar-mediacore/internal/domain/router"
	"github.com/edumarques81/stellar-mediacore/internal/domain/tracklist"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
	"github.com/edumarques81/stellar-mediacore/internal/events"
)

// Server defaults.
const (
	DefaultMaxConnections = 20
	DefaultCommandTimeout = 10 * time.Second
	DefaultOutputName     = "Stellar"
)

// Core is the part of the media core served over MPD.
type Core interface {
	Status(ctx context.Context) (*player.State, error)
	Tracklist(ctx context.Context) (tracklist.Snapshot, error)
	State(ctx context.Context) (media.PlaybackState, error)
	TimePosition(ctx context.Context) (time.Duration, error)
	Backends() []router.BackendStatus

	Play(ctx context.Context) error
	PlayTLID(ctx context.Context, tlid int) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	SetVolume(ctx context.Context, volume int) (int, error)

	SetRandom(ctx context.Context, on bool) error
	SetRepeat(ctx context.Context, on bool) error
	SetSingle(ctx context.Context, on bool) error
	SetConsume(ctx context.Context, on bool) error

	AddURIs(ctx context.Context, uris []string, position int) ([]media.TlTrack, error)
	AddPlaylist(ctx context.Context, uri string, position int) ([]media.TlTrack, error)
	Remove(ctx context.Context, criteria tracklist.Criteria) ([]media.TlTrack, error)
	Clear(ctx context.Context) error
	Move(ctx context.Context, start, end, to int) error
	Shuffle(ctx context.Context, start, end int) error

	Search(ctx context.Context, query media.Query, uris []string) ([]media.Track, error)
	Playlists(ctx context.Context) ([]media.Playlist, error)
	LookupPlaylist(ctx context.Context, uri string) (media.Playlist, error)
	CreatePlaylist(ctx context.Context, name, scheme string) (media.Playlist, error)
	SavePlaylist(ctx context.Context, pl media.Playlist) (media.Playlist, error)
	DeletePlaylist(ctx context.Context, uri string) error

	Subscribe(name string, l events.Listener) string
	Unsubscribe(id string) bool
}

// Options configures a Server.
type Options struct {
	MaxConnections int           // 0 uses DefaultMaxConnections
	Timeout        time.Duration // per-command deadline
	OutputName     string
	PlaylistScheme string // backend for "save"; empty picks the first playlists backend
}

// Server accepts MPD client connections and runs one session per
// connection.
type Server struct {
	core    Core
	opts    Options
	started time.Time

	mu       sync.Mutex
	listener net.Listener
	sessions map[*session]struct{}
	closed   bool
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates an MPD server over core.
func NewServer(core Core, o Options) (*Server, error) {
	if core == nil {
		return nil, errors.Invalid("mpd", "core is required")
	}
	if o.MaxConnections <= 0 {
		o.MaxConnections = DefaultMaxConnections
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultCommandTimeout
	}
	if o.OutputName == "" {
		o.OutputName = DefaultOutputName
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		core:     core,
		opts:     o,
		started:  time.Now(),
		sessions: make(map[*session]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Listen binds addr ("host:port") and serves connections in the background.
func (s *Server) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidConfig, "mpd listen", err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l in the background until Close.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return errors.Invalid("mpd", "server closed")
	}
	s.listener = l
	s.mu.Unlock()

	log.Info().Str("addr", l.Addr().String()).Msg("MPD server listening")

	s.wg.Add(1)
	go s.acceptLoop(l)
	return nil
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// SessionCount returns the number of connected clients.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) acceptLoop(l net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			log.Error().Err(err).Msg("MPD accept failed")
			return
		}

		sess := newSession(s, conn)
		if !s.track(sess) {
			log.Warn().Str("remote", conn.RemoteAddr().String()).Int("max", s.opts.MaxConnections).Msg("MPD connection rejected: too many clients")
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(sess)
			sess.serve(s.ctx)
		}()
	}
}

func (s *Server) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.sessions) >= s.opts.MaxConnections {
		return false
	}
	s.sessions[sess] = struct{}{}
	return true
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

// Close stops accepting, disconnects every client and waits for the
// sessions to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	l := s.listener
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	s.cancel()
	var err error
	if l != nil {
		err = l.Close()
	}
	for _, sess := range sessions {
		sess.conn.Close()
	}
	s.wg.Wait()

	log.Info().Msg("MPD server stopped")
	return err
}
