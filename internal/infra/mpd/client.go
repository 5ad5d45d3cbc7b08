// Package mpd drives an MPD daemon through gompd. It provides the audio
// engine used by the audio output and the mpd: library backend.
package mpd

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"
)

// Client wraps the MPD client with reconnection logic.
type Client struct {
	mu       sync.RWMutex
	client   *mpd.Client
	watchers []*mpd.Watcher
	host     string
	port     int
	socket   string
	password string
}

// NewClient creates a new MPD client wrapper.
func NewClient(host string, port int, password string) *Client {
	return &Client{
		host:     host,
		port:     port,
		password: password,
	}
}

// NewSocketClient creates a client that talks to MPD over a unix socket.
// MPD accepts file:// URIs only from local socket clients.
func NewSocketClient(path, password string) *Client {
	return &Client{
		socket:   path,
		password: password,
	}
}

func (c *Client) network() string {
	if c.socket != "" {
		return "unix"
	}
	return "tcp"
}

func (c *Client) addr() string {
	if c.socket != "" {
		return c.socket
	}
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// Connect establishes connection to MPD.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked()
}

// connectLocked establishes connection (must hold lock).
func (c *Client) connectLocked() error {
	addr := c.addr()
	log.Info().Str("network", c.network()).Str("addr", addr).Msg("Connecting to MPD")

	client, err := mpd.Dial(c.network(), addr)
	if err != nil {
		return fmt.Errorf("failed to connect to MPD: %w", err)
	}

	if c.password != "" {
		if err := client.Command("password %s", c.password).OK(); err != nil {
			client.Close()
			return fmt.Errorf("MPD authentication failed: %w", err)
		}
	}

	c.client = client
	log.Info().Msg("Connected to MPD")
	return nil
}

// ensureConnected checks connection and reconnects if needed.
func (c *Client) ensureConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return c.connectLocked()
	}

	if err := c.client.Ping(); err != nil {
		log.Warn().Err(err).Msg("MPD connection lost, reconnecting...")
		c.client.Close()
		c.client = nil
		return c.connectLocked()
	}

	return nil
}

// with runs fn on a live connection.
func (c *Client) with(fn func(*mpd.Client) error) error {
	if err := c.ensureConnected(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return fn(c.client)
}

func (c *Client) attrs(fn func(*mpd.Client) (mpd.Attrs, error)) (mpd.Attrs, error) {
	var out mpd.Attrs
	err := c.with(func(cl *mpd.Client) error {
		var err error
		out, err = fn(cl)
		return err
	})
	return out, err
}

func (c *Client) attrsList(fn func(*mpd.Client) ([]mpd.Attrs, error)) ([]mpd.Attrs, error) {
	var out []mpd.Attrs
	err := c.with(func(cl *mpd.Client) error {
		var err error
		out, err = fn(cl)
		return err
	})
	return out, err
}

// Close closes the MPD connection and every watcher.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, w := range c.watchers {
		w.Close()
	}
	c.watchers = nil

	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// Ping checks if the connection is alive.
func (c *Client) Ping() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.client == nil {
		return fmt.Errorf("not connected")
	}
	return c.client.Ping()
}

// Status returns the current MPD status.
func (c *Client) Status() (mpd.Attrs, error) {
	return c.attrs(func(cl *mpd.Client) (mpd.Attrs, error) { return cl.Status() })
}

// PlayID starts playback of the queued song with the given id.
func (c *Client) PlayID(id int) error {
	return c.with(func(cl *mpd.Client) error { return cl.PlayID(id) })
}

// Pause pauses or resumes playback.
func (c *Client) Pause(pause bool) error {
	return c.with(func(cl *mpd.Client) error { return cl.Pause(pause) })
}

// Stop stops playback.
func (c *Client) Stop() error {
	return c.with(func(cl *mpd.Client) error { return cl.Stop() })
}

// SeekCur seeks within the current song.
func (c *Client) SeekCur(pos time.Duration) error {
	secs := strconv.FormatFloat(pos.Seconds(), 'f', 3, 64)
	return c.with(func(cl *mpd.Client) error {
		return cl.Command("seekcur %s", secs).OK()
	})
}

// SetVolume sets the volume (0-100).
func (c *Client) SetVolume(vol int) error {
	if vol < 0 {
		vol = 0
	} else if vol > 100 {
		vol = 100
	}
	return c.with(func(cl *mpd.Client) error { return cl.SetVolume(vol) })
}

// Clear clears the current queue.
func (c *Client) Clear() error {
	return c.with(func(cl *mpd.Client) error { return cl.Clear() })
}

// ClearError clears the daemon's last playback error.
func (c *Client) ClearError() error {
	return c.with(func(cl *mpd.Client) error { return cl.Command("clearerror").OK() })
}

// AddID adds a URI to the queue at pos (-1 appends) and returns its song id.
func (c *Client) AddID(uri string, pos int) (int, error) {
	var id int
	err := c.with(func(cl *mpd.Client) error {
		var err error
		id, err = cl.AddID(uri, pos)
		return err
	})
	return id, err
}

// ListAllInfo lists all songs below uri.
func (c *Client) ListAllInfo(uri string) ([]mpd.Attrs, error) {
	return c.attrsList(func(cl *mpd.Client) ([]mpd.Attrs, error) { return cl.ListAllInfo(uri) })
}

// Search runs a case-insensitive tag search ("any", "artist", "album",
// "title", "file").
func (c *Client) Search(tag, value string) ([]mpd.Attrs, error) {
	return c.attrsList(func(cl *mpd.Client) ([]mpd.Attrs, error) {
		// AttrsList("file") tells the parser each song starts with "file:" key
		return cl.Command("search %s %s", tag, value).AttrsList("file")
	})
}

// ListPlaylists lists the stored playlists.
func (c *Client) ListPlaylists() ([]mpd.Attrs, error) {
	return c.attrsList(func(cl *mpd.Client) ([]mpd.Attrs, error) { return cl.ListPlaylists() })
}

// PlaylistContents returns the songs of a stored playlist.
func (c *Client) PlaylistContents(name string) ([]mpd.Attrs, error) {
	return c.attrsList(func(cl *mpd.Client) ([]mpd.Attrs, error) { return cl.PlaylistContents(name) })
}

// PlaylistAdd appends uri to a stored playlist, creating it if needed.
func (c *Client) PlaylistAdd(name, uri string) error {
	return c.with(func(cl *mpd.Client) error { return cl.PlaylistAdd(name, uri) })
}

// PlaylistClear empties a stored playlist.
func (c *Client) PlaylistClear(name string) error {
	return c.with(func(cl *mpd.Client) error { return cl.PlaylistClear(name) })
}

// PlaylistRemove deletes a stored playlist.
func (c *Client) PlaylistRemove(name string) error {
	return c.with(func(cl *mpd.Client) error { return cl.PlaylistRemove(name) })
}

// Watch starts watching for MPD subsystem changes.
// Returns a channel that receives subsystem names when they change. The
// channel is closed by Close.
func (c *Client) Watch(subsystems ...string) (<-chan string, error) {
	watcher, err := mpd.NewWatcher(c.network(), c.addr(), c.password, subsystems...)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	c.mu.Lock()
	c.watchers = append(c.watchers, watcher)
	c.mu.Unlock()

	ch := make(chan string, 10)

	go func() {
		defer close(ch)
		for {
			select {
			case subsystem, ok := <-watcher.Event:
				if !ok {
					return
				}
				ch <- subsystem
			case err, ok := <-watcher.Error:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("MPD watcher error")
				time.Sleep(time.Second)
			}
		}
	}()

	return ch, nil
}
