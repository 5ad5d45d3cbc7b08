package socketio

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/domain/player"
	"github.com/edumarques81/stellar-mediacore/internal/domain/tracklist"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

// emitFunc sends an event to the requesting client.
type emitFunc func(event string, payload any)

// handlerFunc serves one client event.
type handlerFunc func(ctx context.Context, emit emitFunc, args []any) error

// DefaultHistoryLimit is the number of entries sent by getHistory.
const DefaultHistoryLimit = 50

// commandHandlers returns the client event table. Commands that change core
// state reply through the broadcast triggered by the resulting core event.
func (s *Server) commandHandlers() map[string]handlerFunc {
	c := s.core
	return map[string]handlerFunc{
		// Player control
		"getState": func(ctx context.Context, emit emitFunc, args []any) error {
			s.pushState(emit)
			return nil
		},
		"play": func(ctx context.Context, emit emitFunc, args []any) error {
			if tlid := getIntFromMap(firstMap(args), "value", -1); tlid >= 0 {
				return c.PlayTLID(ctx, tlid)
			}
			return c.Play(ctx)
		},
		"pause": func(ctx context.Context, emit emitFunc, args []any) error {
			return c.Pause(ctx)
		},
		"resume": func(ctx context.Context, emit emitFunc, args []any) error {
			return c.Resume(ctx)
		},
		"toggle": func(ctx context.Context, emit emitFunc, args []any) error {
			state, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if state.Status == player.StatusPlay {
				return c.Pause(ctx)
			}
			return c.Play(ctx)
		},
		"stop": func(ctx context.Context, emit emitFunc, args []any) error {
			return c.Stop(ctx)
		},
		"next": func(ctx context.Context, emit emitFunc, args []any) error {
			return c.Next(ctx)
		},
		"prev": func(ctx context.Context, emit emitFunc, args []any) error {
			return c.Previous(ctx)
		},
		"seek": func(ctx context.Context, emit emitFunc, args []any) error {
			secs, ok := firstNumber(args)
			if !ok {
				return errors.Invalid("seek", "missing position")
			}
			return c.Seek(ctx, time.Duration(secs*float64(time.Second)))
		},
		"volume": func(ctx context.Context, emit emitFunc, args []any) error {
			vol, err := s.volumeArg(ctx, args)
			if err != nil {
				return err
			}
			_, err = c.SetVolume(ctx, vol)
			return err
		},
		"mute": func(ctx context.Context, emit emitFunc, args []any) error {
			mute := true
			if len(args) > 0 {
				if v, ok := args[0].(bool); ok {
					mute = v
				}
			}
			return c.SetMute(ctx, mute)
		},
		"unmute": func(ctx context.Context, emit emitFunc, args []any) error {
			return c.SetMute(ctx, false)
		},

		// Modes
		"setRandom": func(ctx context.Context, emit emitFunc, args []any) error {
			v, ok := getBoolFromMap(firstMap(args), "value")
			if !ok {
				return errors.Invalid("setRandom", "missing value")
			}
			return c.SetRandom(ctx, v)
		},
		"setRepeat": func(ctx context.Context, emit emitFunc, args []any) error {
			m := firstMap(args)
			repeat, ok := getBoolFromMap(m, "value")
			if !ok {
				return errors.Invalid("setRepeat", "missing value")
			}
			single, _ := getBoolFromMap(m, "repeatSingle")
			if err := c.SetRepeat(ctx, repeat); err != nil {
				return err
			}
			return c.SetSingle(ctx, repeat && single)
		},
		"setConsume": func(ctx context.Context, emit emitFunc, args []any) error {
			v, ok := getBoolFromMap(firstMap(args), "value")
			if !ok {
				return errors.Invalid("setConsume", "missing value")
			}
			return c.SetConsume(ctx, v)
		},

		// Queue
		"getQueue": func(ctx context.Context, emit emitFunc, args []any) error {
			s.pushQueue(emit)
			return nil
		},
		"clearQueue": func(ctx context.Context, emit emitFunc, args []any) error {
			return c.Clear(ctx)
		},
		"addToQueue": func(ctx context.Context, emit emitFunc, args []any) error {
			m := firstMap(args)
			uri := getStringFromMap(m, "uri")
			if uri == "" {
				return errors.Invalid("addToQueue", "missing uri")
			}
			_, err := c.AddURIs(ctx, []string{uri}, getIntFromMap(m, "position", -1))
			return err
		},
		"removeFromQueue": func(ctx context.Context, emit emitFunc, args []any) error {
			m := firstMap(args)
			tlid := getIntFromMap(m, "value", -1)
			if tlid < 0 {
				return errors.Invalid("removeFromQueue", "missing tlid")
			}
			criteria := tracklist.Criteria{TLID: []int{tlid}}
			var removed []media.TlTrack
			var err error
			if version := getIntFromMap(m, "version", -1); version >= 0 {
				removed, err = c.RemoveAtVersion(ctx, version, criteria)
			} else {
				removed, err = c.Remove(ctx, criteria)
			}
			if err != nil {
				return s.resyncIfStale(emit, err)
			}
			if len(removed) == 0 {
				return errors.Invalid("removeFromQueue", "unknown tlid %d", tlid)
			}
			return nil
		},
		"moveQueue": func(ctx context.Context, emit emitFunc, args []any) error {
			m := firstMap(args)
			from := getIntFromMap(m, "from", -1)
			to := getIntFromMap(m, "to", -1)
			if from < 0 || to < 0 {
				return errors.Invalid("moveQueue", "from and to are required")
			}
			var err error
			if version := getIntFromMap(m, "version", -1); version >= 0 {
				err = c.MoveAtVersion(ctx, version, from, from+1, to)
			} else {
				err = c.Move(ctx, from, from+1, to)
			}
			return s.resyncIfStale(emit, err)
		},

		// Library
		"search": func(ctx context.Context, emit emitFunc, args []any) error {
			q := strings.TrimSpace(getStringFromMap(firstMap(args), "value"))
			if q == "" {
				return errors.Invalid("search", "empty query")
			}
			tracks, err := c.Search(ctx, media.Query{"any": {q}}, nil)
			if err != nil {
				return err
			}
			emit("pushSearch", searchResult(q, tracks))
			return nil
		},
		"listPlaylist": func(ctx context.Context, emit emitFunc, args []any) error {
			names, err := s.playlistNames(ctx)
			if err != nil {
				return err
			}
			emit("pushListPlaylist", names)
			return nil
		},
		"playPlaylist": func(ctx context.Context, emit emitFunc, args []any) error {
			m := firstMap(args)
			uri := getStringFromMap(m, "uri")
			if uri == "" {
				var err error
				if uri, err = s.playlistURI(ctx, getStringFromMap(m, "name")); err != nil {
					return err
				}
			}
			if err := c.Clear(ctx); err != nil {
				return err
			}
			if _, err := c.AddPlaylist(ctx, uri, -1); err != nil {
				return err
			}
			return c.Play(ctx)
		},
		"getHistory": func(ctx context.Context, emit emitFunc, args []any) error {
			entries, err := c.History(ctx, getIntFromMap(firstMap(args), "limit", DefaultHistoryLimit))
			if err != nil {
				return err
			}
			items := make([]map[string]interface{}, 0, len(entries))
			for _, e := range entries {
				item := player.QueueItem(media.TlTrack{Track: e.Track})
				delete(item, "tlid")
				item["playedAt"] = e.PlayedAt.Unix()
				items = append(items, item)
			}
			emit("pushHistory", items)
			return nil
		},
	}
}

// volumeArg accepts an absolute level or "+"/"-" steps of 5.
func (s *Server) volumeArg(ctx context.Context, args []any) (int, error) {
	if v, ok := firstNumber(args); ok {
		return int(v), nil
	}
	if len(args) > 0 {
		if step, ok := args[0].(string); ok && (step == "+" || step == "-") {
			state, err := s.core.Status(ctx)
			if err != nil {
				return 0, err
			}
			if step == "+" {
				return state.Volume + 5, nil
			}
			return state.Volume - 5, nil
		}
	}
	return 0, errors.Invalid("volume", "missing level")
}

func (s *Server) playlistNames(ctx context.Context) ([]string, error) {
	playlists, err := s.core.Playlists(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(playlists))
	for _, pl := range playlists {
		names = append(names, pl.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Server) playlistURI(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", errors.Invalid("playPlaylist", "name or uri is required")
	}
	playlists, err := s.core.Playlists(ctx)
	if err != nil {
		return "", err
	}
	for _, pl := range playlists {
		if pl.Name == name {
			return pl.URI, nil
		}
	}
	return "", errors.Lookup("playPlaylist", "playlist %q not found", name)
}

// searchResult shapes tracks as a Volumio browse result.
func searchResult(query string, tracks []media.Track) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(tracks))
	for _, t := range tracks {
		item := player.QueueItem(media.TlTrack{Track: t})
		delete(item, "tlid")
		item["type"] = "song"
		items = append(items, item)
	}
	return map[string]interface{}{
		"navigation": map[string]interface{}{
			"isSearchResult": true,
			"lists": []interface{}{
				map[string]interface{}{
					"title":              fmt.Sprintf("Found %d tracks '%s'", len(tracks), query),
					"availableListViews": []string{"list"},
					"items":              items,
				},
			},
		},
	}
}

func firstMap(args []any) map[string]interface{} {
	if len(args) == 0 {
		return nil
	}
	m, _ := args[0].(map[string]interface{})
	return m
}

func firstNumber(args []any) (float64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	switch v := args[0].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case map[string]interface{}:
		if f, ok := v["value"].(float64); ok {
			return f, true
		}
	}
	return 0, false
}

// getIntFromMap safely extracts an integer from a map.
// resyncIfStale sends a client whose tracklist version was behind the
// current queue and state, then passes err on.
func (s *Server) resyncIfStale(emit emitFunc, err error) error {
	if errors.Is(err, errors.ErrStaleVersion) {
		s.pushQueue(emit)
		s.pushState(emit)
	}
	return err
}

func getIntFromMap(m map[string]interface{}, key string, defaultVal int) int {
	if m == nil {
		return defaultVal
	}
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case int64:
		return int(v)
	}
	return defaultVal
}

func getStringFromMap(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func getBoolFromMap(m map[string]interface{}, key string) (bool, bool) {
	if m == nil {
		return false, false
	}
	b, ok := m[key].(bool)
	return b, ok
}
