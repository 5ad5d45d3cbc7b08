// Package socketio provides the Socket.io server for client communication.
package socketio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/edumarques81/stellar-mediacore/internal/domain/history"
	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/domain/player"
	"github.com/edumarques81/stellar-mediacore/internal/domain/tracklist"
	"github.com/edumarques81/stellar-mediacore/internal/events"
)

// DefaultCommandTimeout bounds a single client request.
const DefaultCommandTimeout = 10 * time.Second

// Core is the part of the media core the Socket.io frontend drives.
type Core interface {
	Status(ctx context.Context) (*player.State, error)
	Tracklist(ctx context.Context) (tracklist.Snapshot, error)
	History(ctx context.Context, limit int) ([]history.Entry, error)

	Play(ctx context.Context) error
	PlayTLID(ctx context.Context, tlid int) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	SetVolume(ctx context.Context, volume int) (int, error)
	SetMute(ctx context.Context, mute bool) error

	SetRandom(ctx context.Context, on bool) error
	SetRepeat(ctx context.Context, on bool) error
	SetSingle(ctx context.Context, on bool) error
	SetConsume(ctx context.Context, on bool) error

	AddURIs(ctx context.Context, uris []string, position int) ([]media.TlTrack, error)
	AddPlaylist(ctx context.Context, uri string, position int) ([]media.TlTrack, error)
	Remove(ctx context.Context, criteria tracklist.Criteria) ([]media.TlTrack, error)
	RemoveAtVersion(ctx context.Context, version int, criteria tracklist.Criteria) ([]media.TlTrack, error)
	Clear(ctx context.Context) error
	Move(ctx context.Context, start, end, to int) error
	MoveAtVersion(ctx context.Context, version, start, end, to int) error

	Search(ctx context.Context, query media.Query, uris []string) ([]media.Track, error)
	Playlists(ctx context.Context) ([]media.Playlist, error)

	Subscribe(name string, l events.Listener) string
	Unsubscribe(id string) bool
}

// Options configures the server.
type Options struct {
	// MaxExternal limits concurrent non-localhost clients; 0 is unlimited.
	MaxExternal int
	// AllowedOrigins lists CORS origins; empty allows any.
	AllowedOrigins []string
	// Debounce is the broadcast debounce window.
	Debounce time.Duration
	// Timeout bounds each client request.
	Timeout time.Duration
}

// Server handles Socket.io connections and events.
type Server struct {
	io        *socket.Server
	core      Core
	remotes   *remoteLimiter
	debouncer *BroadcastDebouncer
	handlers  map[string]handlerFunc
	timeout   time.Duration

	// broadcast emits to every connected client.
	broadcast func(event string, payload any)

	mu        sync.RWMutex
	clients   map[string]*socket.Socket
	lastState map[string]interface{}
	subID     string
	closeOnce sync.Once
}

// NewServer creates a new Socket.io server over core.
func NewServer(core Core, o Options) (*Server, error) {
	if core == nil {
		return nil, fmt.Errorf("socketio: core is required")
	}

	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      corsOrigin(o.AllowedOrigins),
		Credentials: true,
	})

	server := socket.NewServer(nil, opts)

	s := &Server{
		io:      server,
		core:    core,
		remotes: newRemoteLimiter(o.MaxExternal),
		timeout: o.Timeout,
		clients: make(map[string]*socket.Socket),
	}
	if s.timeout <= 0 {
		s.timeout = DefaultCommandTimeout
	}
	s.broadcast = func(event string, payload any) {
		s.io.Emit(event, payload)
	}
	s.debouncer = NewBroadcastDebouncer(o.Debounce, s.BroadcastState, s.BroadcastQueue)
	s.handlers = s.commandHandlers()

	s.setupHandlers()

	return s, nil
}

func corsOrigin(origins []string) any {
	if len(origins) == 0 {
		return "*"
	}
	out := make([]any, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return "*"
		}
		out = append(out, o)
	}
	return out
}

// Start subscribes the server to core events.
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subID != "" {
		return
	}
	s.subID = s.core.Subscribe("socketio", events.ListenerFunc(s.onEvent))
	log.Info().Msg("Socket.io server subscribed to core events")
}

// onEvent runs on the dispatcher's delivery goroutine for this listener.
func (s *Server) onEvent(ctx context.Context, ev events.Event) error {
	switch ev.Type() {
	case events.TypePlaylistChanged, events.TypePlaylistDeleted:
		s.BroadcastPlaylists()
	default:
		s.debouncer.Trigger(ev.Type())
	}
	return nil
}

// setupHandlers registers the connection handler and every client event.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())
		remote := client.Handshake().Address

		evictedID := s.remotes.admit(clientID, remote)
		log.Info().Str("id", clientID).Str("remote", remote).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		evicted := s.clients[evictedID]
		delete(s.clients, evictedID)
		s.mu.Unlock()

		if evicted != nil {
			log.Info().Str("id", evictedID).Msg("Evicting oldest external client")
			evicted.Emit("pushToastMessage", toast("warning", "Disconnected", "Too many remote connections"))
			evicted.Disconnect(true)
		}

		emit := func(event string, payload any) {
			client.Emit(event, payload)
		}

		// Send initial state after small delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.pushState(emit)
			s.pushQueue(emit)
		}()

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.remotes.drop(clientID)
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		for event, h := range s.handlers {
			event, h := event, h
			client.On(event, func(args ...any) {
				log.Debug().Str("id", clientID).Str("event", event).Interface("data", args).Msg("Client event")
				s.handle(event, h, emit, args)
			})
		}
	})
}

// handle runs one client request and reports failures to that client.
func (s *Server) handle(event string, h handlerFunc, emit emitFunc, args []any) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := h(ctx, emit, args); err != nil {
		log.Error().Err(err).Str("event", event).Msg("Client request failed")
		emit("pushToastMessage", toast("error", event, err.Error()))
	}
}

func toast(kind, title, message string) map[string]interface{} {
	return map[string]interface{}{
		"type":    kind,
		"title":   title,
		"message": message,
	}
}

// stateCompareKeys are the state fields diffed before broadcasting. Seek is
// excluded because clients interpolate the playhead themselves.
var stateCompareKeys = []string{
	"status", "position", "tlid", "title", "artist", "album", "albumart", "uri",
	"duration", "trackType", "samplerate", "bitdepth", "service", "random",
	"repeat", "repeatSingle", "consume", "volume", "mute", "version", "bitperfect",
}

func (s *Server) saveLastState(state map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastState = state
}

// isStateSame reports whether state matches the last broadcast on every
// compared key.
func (s *Server) isStateSame(state map[string]interface{}) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastState == nil {
		return false
	}
	for _, key := range stateCompareKeys {
		if !reflect.DeepEqual(s.lastState[key], state[key]) {
			return false
		}
	}
	return true
}

func (s *Server) stateJSON() (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	state, err := s.core.Status(ctx)
	if err != nil {
		return nil, err
	}
	return state.ToJSON(), nil
}

func (s *Server) queueJSON() ([]map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	snap, err := s.core.Tracklist(ctx)
	if err != nil {
		return nil, err
	}
	queue := make([]map[string]interface{}, 0, len(snap.Tracks))
	for _, tl := range snap.Tracks {
		queue = append(queue, player.QueueItem(tl))
	}
	return queue, nil
}

// pushState sends current state to a client.
func (s *Server) pushState(emit emitFunc) {
	state, err := s.stateJSON()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get state")
		return
	}
	emit("pushState", state)
}

// pushQueue sends current queue to a client.
func (s *Server) pushQueue(emit emitFunc) {
	queue, err := s.queueJSON()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get queue")
		return
	}
	emit("pushQueue", queue)
}

// BroadcastState sends state to all connected clients. Unless force is set
// the broadcast is skipped when nothing but the playhead changed.
func (s *Server) BroadcastState(force bool) {
	state, err := s.stateJSON()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get state for broadcast")
		return
	}
	if !force && s.isStateSame(state) {
		return
	}
	s.saveLastState(state)

	s.broadcast("pushState", state)

	if log.Debug().Enabled() {
		data, _ := json.Marshal(state)
		s.mu.RLock()
		clientCount := len(s.clients)
		s.mu.RUnlock()
		log.Debug().RawJSON("state", data).Int("clients", clientCount).Msg("Broadcast state")
	}
}

// BroadcastQueue sends queue to all connected clients.
func (s *Server) BroadcastQueue() {
	queue, err := s.queueJSON()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get queue for broadcast")
		return
	}
	s.broadcast("pushQueue", queue)
}

// BroadcastPlaylists sends the playlist names to all connected clients.
func (s *Server) BroadcastPlaylists() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	names, err := s.playlistNames(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list playlists for broadcast")
		return
	}
	s.broadcast("pushListPlaylist", names)
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close unsubscribes from the core and closes the Socket.io server.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		subID := s.subID
		s.subID = ""
		s.mu.Unlock()

		if subID != "" {
			s.core.Unsubscribe(subID)
		}
		s.debouncer.Stop()
		s.io.Close(nil)
	})
	return nil
}
