package mpdproto

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-mediacore/internal/errors"
	"github.com/edumarques81/stellar-mediacore/internal/events"
)

// maxLineLength bounds a single request line.
const maxLineLength = 64 * 1024

// errClose ends the session after the current response.
var errClose = errors.New("close")

// subsystems are the names accepted by idle.
var subsystems = []string{
	"database", "update", "stored_playlist", "playlist", "player",
	"mixer", "output", "options", "partition", "sticker", "subscription", "message",
}

// subsystemFor maps a core event onto the idle subsystem it changes.
func subsystemFor(t events.Type) string {
	switch t {
	case events.TypePlaybackStateChanged, events.TypeTrackPlaybackStarted,
		events.TypeTrackPlaybackEnded, events.TypeTrackPlaybackPaused,
		events.TypeTrackPlaybackResumed, events.TypeSeeked:
		return "player"
	case events.TypeVolumeChanged, events.TypeMuteChanged:
		return "mixer"
	case events.TypeTracklistChanged:
		return "playlist"
	case events.TypeOptionsChanged:
		return "options"
	case events.TypePlaylistChanged, events.TypePlaylistDeleted:
		return "stored_playlist"
	}
	return ""
}

// session is one client connection.
type session struct {
	srv    *Server
	conn   net.Conn
	remote string
	w      *bufio.Writer
	lines  chan string
	done   chan struct{}

	// command list being collected, nil outside a list
	list   []string
	inList bool
	listOK bool

	mu      sync.Mutex
	pending map[string]bool
	notify  chan struct{}
}

func newSession(srv *Server, conn net.Conn) *session {
	return &session{
		srv:     srv,
		conn:    conn,
		remote:  conn.RemoteAddr().String(),
		w:       bufio.NewWriter(conn),
		lines:   make(chan string),
		done:    make(chan struct{}),
		pending: make(map[string]bool),
		notify:  make(chan struct{}, 1),
	}
}

// OnEvent records the subsystem changed by ev for idle.
func (s *session) OnEvent(ctx context.Context, ev events.Event) error {
	sub := subsystemFor(ev.Type())
	if sub == "" {
		return nil
	}
	s.mu.Lock()
	s.pending[sub] = true
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// takePending returns and clears the pending subsystems among want (all
// when want is empty), in subsystem order.
func (s *session) takePending(want []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for _, sub := range subsystems {
		if !s.pending[sub] {
			continue
		}
		if len(want) > 0 && !containsString(want, sub) {
			continue
		}
		changed = append(changed, sub)
		delete(s.pending, sub)
	}
	return changed
}

func (s *session) serve(ctx context.Context) {
	defer s.conn.Close()
	defer close(s.done)

	subID := s.srv.core.Subscribe("mpd "+s.remote, s)
	defer s.srv.core.Unsubscribe(subID)

	log.Info().Str("remote", s.remote).Msg("MPD client connected")
	defer log.Info().Str("remote", s.remote).Msg("MPD client disconnected")

	go s.readLines()

	if err := s.write("OK MPD " + ProtocolVersion + "\n"); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-s.lines:
			if !ok {
				return
			}
			if err := s.handleLine(ctx, line); err != nil {
				if !errors.Is(err, errClose) {
					log.Debug().Err(err).Str("remote", s.remote).Msg("MPD session ended")
				}
				return
			}
		}
	}
}

// readLines feeds request lines to the session loop until the connection
// closes.
func (s *session) readLines() {
	defer close(s.lines)

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 4096), maxLineLength)
	for scanner.Scan() {
		select {
		case s.lines <- strings.TrimRight(scanner.Text(), "\r"):
		case <-s.done:
			return
		}
	}
}

func (s *session) write(text string) error {
	if _, err := s.w.WriteString(text); err != nil {
		return err
	}
	return s.w.Flush()
}

// handleLine processes one request line. A non-nil error ends the session.
func (s *session) handleLine(ctx context.Context, line string) error {
	if s.inList {
		if strings.TrimSpace(line) == "command_list_end" {
			return s.runList(ctx)
		}
		s.list = append(s.list, line)
		return nil
	}

	switch trimmed := strings.TrimSpace(line); {
	case trimmed == "command_list_begin":
		s.inList, s.listOK, s.list = true, false, nil
		return nil
	case trimmed == "command_list_ok_begin":
		s.inList, s.listOK, s.list = true, true, nil
		return nil
	case trimmed == "noidle":
		// no response outside idle
		return nil
	case trimmed == "idle" || strings.HasPrefix(trimmed, "idle "):
		return s.idle(ctx, line)
	}

	text, err := s.run(ctx, line, 0)
	if werr := s.write(text); werr != nil {
		return werr
	}
	return err
}

// run executes a single command line and returns its full response,
// including the trailing OK or ACK. errClose is returned for "close".
func (s *session) run(ctx context.Context, line string, index int) (string, error) {
	text, err := s.exec(ctx, line, index)
	if err != nil {
		if errors.Is(err, errClose) {
			return "", errClose
		}
		return text + err.Error() + "\n", nil
	}
	return text + "OK\n", nil
}

// exec runs line and returns its output lines. A failure is returned as an
// *ackError, except errClose.
func (s *session) exec(ctx context.Context, line string, index int) (string, error) {
	words, err := tokenize(line)
	if err != nil {
		return "", toAck("", index, err)
	}
	if len(words) == 0 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.srv.opts.Timeout)
	defer cancel()

	var out response
	err = commands.call(ctx, s, words, &out)
	if err != nil {
		if errors.Is(err, errClose) {
			return "", errClose
		}
		log.Debug().Err(err).Str("remote", s.remote).Str("command", words[0]).Msg("MPD command failed")
		return out.String(), toAck(strings.ToLower(words[0]), index, err)
	}
	return out.String(), nil
}

// runList executes the collected command list. It stops at the first
// failing command and reports that command's index.
func (s *session) runList(ctx context.Context) error {
	list, listOK := s.list, s.listOK
	s.inList, s.listOK, s.list = false, false, nil

	var b strings.Builder
	for i, line := range list {
		text, err := s.exec(ctx, line, i)
		b.WriteString(text)
		if errors.Is(err, errClose) {
			s.write(b.String())
			return errClose
		}
		if err != nil {
			b.WriteString(err.Error() + "\n")
			return s.write(b.String())
		}
		if listOK {
			b.WriteString("list_OK\n")
		}
	}
	b.WriteString("OK\n")
	return s.write(b.String())
}

// idle blocks until one of the requested subsystems changes or the client
// sends noidle. Any other command while idle closes the connection.
func (s *session) idle(ctx context.Context, line string) error {
	words, err := tokenize(line)
	if err != nil {
		return s.write(toAck("idle", 0, err).Error() + "\n")
	}
	want := words[1:]
	for _, sub := range want {
		if !containsString(subsystems, sub) {
			return s.write((&ackError{code: ackArg, command: "idle", message: "Unrecognized idle event: " + sub}).Error() + "\n")
		}
	}

	for {
		if changed := s.takePending(want); len(changed) > 0 {
			var r response
			for _, sub := range changed {
				r.field("changed", sub)
			}
			return s.write(r.String() + "OK\n")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.notify:
		case next, ok := <-s.lines:
			if !ok {
				return errClose
			}
			if strings.TrimSpace(next) != "noidle" {
				return errClose
			}
			return s.write("OK\n")
		}
	}
}

func containsString(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
