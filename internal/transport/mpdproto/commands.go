package mpdproto

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/domain/player"
	"github.com/edumarques81/stellar-mediacore/internal/domain/tracklist"
)

// commands is the table served by every session.
var commands = newRegistry()

func init() {
	// Connection and status
	commands.register("ping", 0, 0, func(ctx context.Context, s *session, args []string, r *response) error { return nil })
	commands.register("close", 0, 0, func(ctx context.Context, s *session, args []string, r *response) error { return errClose })
	commands.register("clearerror", 0, 0, func(ctx context.Context, s *session, args []string, r *response) error { return notImplemented() })
	commands.register("commands", 0, 0, cmdCommands)
	commands.register("notcommands", 0, 0, func(ctx context.Context, s *session, args []string, r *response) error { return nil })
	commands.register("status", 0, 0, cmdStatus)
	commands.register("currentsong", 0, 0, cmdCurrentSong)
	commands.register("stats", 0, 0, cmdStats)
	commands.register("outputs", 0, 0, cmdOutputs)
	commands.register("urlhandlers", 0, 0, cmdURLHandlers)
	commands.register("replay_gain_status", 0, 0, func(ctx context.Context, s *session, args []string, r *response) error {
		r.field("replay_gain_mode", "off")
		return nil
	})

	// Playback
	commands.register("play", 0, 1, cmdPlay)
	commands.register("playid", 0, 1, cmdPlayID)
	commands.register("pause", 0, 1, cmdPause)
	commands.register("stop", 0, 0, func(ctx context.Context, s *session, args []string, r *response) error { return s.srv.core.Stop(ctx) })
	commands.register("next", 0, 0, func(ctx context.Context, s *session, args []string, r *response) error { return s.srv.core.Next(ctx) })
	commands.register("previous", 0, 0, func(ctx context.Context, s *session, args []string, r *response) error { return s.srv.core.Previous(ctx) })
	commands.register("seekcur", 1, 1, cmdSeekCur)
	commands.register("seek", 2, 2, cmdSeek)
	commands.register("seekid", 2, 2, cmdSeekID)
	commands.register("setvol", 1, 1, cmdSetVol)

	// Playback options
	commands.register("random", 1, 1, modeCommand(Core.SetRandom))
	commands.register("repeat", 1, 1, modeCommand(Core.SetRepeat))
	commands.register("single", 1, 1, modeCommand(Core.SetSingle))
	commands.register("consume", 1, 1, modeCommand(Core.SetConsume))

	// Tracklist
	commands.register("add", 1, 1, cmdAdd)
	commands.register("addid", 1, 2, cmdAddID)
	commands.register("delete", 1, 1, cmdDelete)
	commands.register("deleteid", 1, 1, cmdDeleteID)
	commands.register("clear", 0, 0, func(ctx context.Context, s *session, args []string, r *response) error { return s.srv.core.Clear(ctx) })
	commands.register("move", 2, 2, cmdMove)
	commands.register("shuffle", 0, 1, cmdShuffle)
	commands.register("playlistinfo", 0, 1, cmdPlaylistInfo)
	commands.register("playlistid", 0, 1, cmdPlaylistID)
	commands.register("plchanges", 1, 1, cmdPlChanges)
	commands.register("plchangesposid", 1, 1, cmdPlChangesPosID)

	// Stored playlists
	commands.register("listplaylists", 0, 0, cmdListPlaylists)
	commands.register("listplaylist", 1, 1, cmdListPlaylist)
	commands.register("listplaylistinfo", 1, 1, cmdListPlaylistInfo)
	commands.register("load", 1, 1, cmdLoad)
	commands.register("save", 1, 1, cmdSave)
	commands.register("rm", 1, 1, cmdRm)

	// Library
	commands.register("search", 2, -1, searchCommand(false))
	commands.register("find", 2, -1, searchCommand(true))
}

func cmdCommands(ctx context.Context, s *session, args []string, r *response) error {
	for _, name := range commands.names() {
		r.field("command", name)
	}
	// handled by the session rather than the table
	for _, name := range []string{"command_list_begin", "command_list_end", "command_list_ok_begin", "idle", "noidle"} {
		r.field("command", name)
	}
	return nil
}

// writeTrack writes the tag lines of t.
func writeTrack(r *response, t media.Track) {
	r.field("file", t.URI)
	if t.Duration > 0 {
		r.field("Time", int(t.Duration.Seconds()))
		r.field("duration", strconv.FormatFloat(t.Duration.Seconds(), 'f', 3, 64))
	}
	for _, a := range t.Artists {
		r.field("Artist", a)
	}
	r.field("Title", t.Title())
	if t.Album != "" {
		r.field("Album", t.Album)
	}
	if t.TrackNo > 0 {
		r.field("Track", t.TrackNo)
	}
	if date := t.Meta["date"]; date != "" {
		r.field("Date", date)
	}
}

// writeSong writes a tracklist entry with its position and id.
func writeSong(r *response, tl media.TlTrack, pos int) {
	writeTrack(r, tl.Track)
	r.field("Pos", pos)
	r.field("Id", tl.TLID)
}

func indexOf(snap tracklist.Snapshot, tlid int) int {
	for i, tl := range snap.Tracks {
		if tl.TLID == tlid {
			return i
		}
	}
	return -1
}

func cmdStatus(ctx context.Context, s *session, args []string, r *response) error {
	core := s.srv.core
	st, err := core.Status(ctx)
	if err != nil {
		return err
	}
	snap, err := core.Tracklist(ctx)
	if err != nil {
		return err
	}

	volume := st.Volume
	if st.Mute {
		volume = 0
	}
	r.field("volume", volume)
	r.field("repeat", boolString(snap.Modes.Repeat))
	r.field("random", boolString(snap.Modes.Random))
	r.field("single", boolString(snap.Modes.Single))
	r.field("consume", boolString(snap.Modes.Consume))
	r.field("playlist", snap.Version)
	r.field("playlistlength", len(snap.Tracks))
	r.field("xfade", 0)
	r.field("state", st.Status)

	if snap.Current != nil {
		if idx := indexOf(snap, snap.Current.TLID); idx >= 0 {
			r.field("song", idx)
			r.field("songid", snap.Current.TLID)
		}
	}
	if st.Status != player.StatusStop {
		elapsed := time.Duration(st.Seek) * time.Millisecond
		r.field("time", fmt.Sprintf("%d:%d", int(elapsed.Seconds()), st.Duration))
		r.field("elapsed", strconv.FormatFloat(elapsed.Seconds(), 'f', 3, 64))
		r.field("duration", st.Duration)
		r.field("bitrate", 0)
	}
	return nil
}

func cmdCurrentSong(ctx context.Context, s *session, args []string, r *response) error {
	snap, err := s.srv.core.Tracklist(ctx)
	if err != nil {
		return err
	}
	if snap.Current == nil {
		return nil
	}
	if idx := indexOf(snap, snap.Current.TLID); idx >= 0 {
		writeSong(r, *snap.Current, idx)
	}
	return nil
}

func cmdStats(ctx context.Context, s *session, args []string, r *response) error {
	r.field("artists", 0)
	r.field("albums", 0)
	r.field("songs", 0)
	r.field("uptime", int(time.Since(s.srv.started).Seconds()))
	r.field("db_playtime", 0)
	r.field("db_update", s.srv.started.Unix())
	r.field("playtime", 0)
	return nil
}

func cmdOutputs(ctx context.Context, s *session, args []string, r *response) error {
	r.field("outputid", 0)
	r.field("outputname", s.srv.opts.OutputName)
	r.field("outputenabled", 1)
	return nil
}

func cmdURLHandlers(ctx context.Context, s *session, args []string, r *response) error {
	seen := make(map[string]bool)
	for _, b := range s.srv.core.Backends() {
		for _, scheme := range b.Schemes {
			if !seen[scheme] {
				seen[scheme] = true
				r.field("handler", scheme+"://")
			}
		}
	}
	return nil
}

func cmdPlay(ctx context.Context, s *session, args []string, r *response) error {
	core := s.srv.core
	if len(args) == 0 {
		return core.Play(ctx)
	}
	pos, err := parseInt(args[0])
	if err != nil {
		return err
	}
	if pos == -1 {
		return core.Play(ctx)
	}
	snap, err := core.Tracklist(ctx)
	if err != nil {
		return err
	}
	if pos < 0 || pos >= len(snap.Tracks) {
		return ack(ackArg, "Bad song index")
	}
	return core.PlayTLID(ctx, snap.Tracks[pos].TLID)
}

func cmdPlayID(ctx context.Context, s *session, args []string, r *response) error {
	core := s.srv.core
	if len(args) == 0 {
		return core.Play(ctx)
	}
	id, err := parseInt(args[0])
	if err != nil {
		return err
	}
	if id == -1 {
		return core.Play(ctx)
	}
	snap, err := core.Tracklist(ctx)
	if err != nil {
		return err
	}
	if indexOf(snap, id) < 0 {
		return ack(ackNoExist, "No such song")
	}
	return core.PlayTLID(ctx, id)
}

func cmdPause(ctx context.Context, s *session, args []string, r *response) error {
	core := s.srv.core
	if len(args) == 1 {
		pause, err := parseBool(args[0])
		if err != nil {
			return err
		}
		if pause {
			return core.Pause(ctx)
		}
		return core.Resume(ctx)
	}

	state, err := core.State(ctx)
	if err != nil {
		return err
	}
	switch state {
	case media.Playing:
		return core.Pause(ctx)
	case media.Paused:
		return core.Resume(ctx)
	}
	return nil
}

func parseSeconds(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ack(ackArg, "Float expected: %s", s)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func cmdSeekCur(ctx context.Context, s *session, args []string, r *response) error {
	core := s.srv.core
	arg := args[0]
	offset, err := parseSeconds(arg)
	if err != nil {
		return err
	}
	target := offset
	if strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-") {
		pos, err := core.TimePosition(ctx)
		if err != nil {
			return err
		}
		target = pos + offset
		if target < 0 {
			target = 0
		}
	}
	return core.Seek(ctx, target)
}

// seekTLID seeks within tlid, starting it first when it is not current.
func seekTLID(ctx context.Context, core Core, snap tracklist.Snapshot, tlid int, arg string) error {
	position, err := parseSeconds(arg)
	if err != nil {
		return err
	}
	if snap.Current == nil || snap.Current.TLID != tlid {
		if err := core.PlayTLID(ctx, tlid); err != nil {
			return err
		}
	}
	return core.Seek(ctx, position)
}

func cmdSeek(ctx context.Context, s *session, args []string, r *response) error {
	pos, err := parseInt(args[0])
	if err != nil {
		return err
	}
	snap, err := s.srv.core.Tracklist(ctx)
	if err != nil {
		return err
	}
	if pos < 0 || pos >= len(snap.Tracks) {
		return ack(ackArg, "Bad song index")
	}
	return seekTLID(ctx, s.srv.core, snap, snap.Tracks[pos].TLID, args[1])
}

func cmdSeekID(ctx context.Context, s *session, args []string, r *response) error {
	id, err := parseInt(args[0])
	if err != nil {
		return err
	}
	snap, err := s.srv.core.Tracklist(ctx)
	if err != nil {
		return err
	}
	if indexOf(snap, id) < 0 {
		return ack(ackNoExist, "No such song")
	}
	return seekTLID(ctx, s.srv.core, snap, id, args[1])
}

func cmdSetVol(ctx context.Context, s *session, args []string, r *response) error {
	vol, err := parseInt(args[0])
	if err != nil {
		return err
	}
	if vol < 0 || vol > 100 {
		return ack(ackArg, "Invalid volume value")
	}
	_, err = s.srv.core.SetVolume(ctx, vol)
	return err
}

func modeCommand(set func(Core, context.Context, bool) error) handlerFunc {
	return func(ctx context.Context, s *session, args []string, r *response) error {
		on, err := parseBool(args[0])
		if err != nil {
			return err
		}
		return set(s.srv.core, ctx, on)
	}
}

func cmdAdd(ctx context.Context, s *session, args []string, r *response) error {
	added, err := s.srv.core.AddURIs(ctx, []string{args[0]}, -1)
	if err != nil {
		return err
	}
	if len(added) == 0 {
		return ack(ackNoExist, "No such song")
	}
	return nil
}

func cmdAddID(ctx context.Context, s *session, args []string, r *response) error {
	pos := -1
	if len(args) == 2 {
		var err error
		if pos, err = parseInt(args[1]); err != nil {
			return err
		}
		snap, err := s.srv.core.Tracklist(ctx)
		if err != nil {
			return err
		}
		if pos < 0 || pos > len(snap.Tracks) {
			return ack(ackArg, "Bad song index")
		}
	}
	added, err := s.srv.core.AddURIs(ctx, []string{args[0]}, pos)
	if err != nil {
		return err
	}
	if len(added) == 0 {
		return ack(ackNoExist, "No such song")
	}
	r.field("Id", added[0].TLID)
	return nil
}

// tracksInRange resolves a "POS" or "START:END" argument against snap.
func tracksInRange(snap tracklist.Snapshot, arg string) (start, end int, err error) {
	start, end, err = parseRange(arg)
	if err != nil {
		return 0, 0, err
	}
	if end < 0 {
		end = len(snap.Tracks)
	}
	if start >= len(snap.Tracks) || end > len(snap.Tracks) {
		return 0, 0, ack(ackArg, "Bad song index")
	}
	return start, end, nil
}

func cmdDelete(ctx context.Context, s *session, args []string, r *response) error {
	snap, err := s.srv.core.Tracklist(ctx)
	if err != nil {
		return err
	}
	start, end, err := tracksInRange(snap, args[0])
	if err != nil {
		return err
	}
	ids := make([]int, 0, end-start)
	for _, tl := range snap.Tracks[start:end] {
		ids = append(ids, tl.TLID)
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = s.srv.core.Remove(ctx, tracklist.Criteria{TLID: ids})
	return err
}

func cmdDeleteID(ctx context.Context, s *session, args []string, r *response) error {
	id, err := parseInt(args[0])
	if err != nil {
		return err
	}
	removed, err := s.srv.core.Remove(ctx, tracklist.Criteria{TLID: []int{id}})
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		return ack(ackNoExist, "No such song")
	}
	return nil
}

func cmdMove(ctx context.Context, s *session, args []string, r *response) error {
	snap, err := s.srv.core.Tracklist(ctx)
	if err != nil {
		return err
	}
	start, end, err := tracksInRange(snap, args[0])
	if err != nil {
		return err
	}
	to, err := parseInt(args[1])
	if err != nil {
		return err
	}
	if to < 0 || to > len(snap.Tracks)-(end-start) {
		return ack(ackArg, "Bad song index")
	}
	return s.srv.core.Move(ctx, start, end, to)
}

func cmdShuffle(ctx context.Context, s *session, args []string, r *response) error {
	if len(args) == 0 {
		return s.srv.core.Shuffle(ctx, 0, -1)
	}
	start, end, err := parseRange(args[0])
	if err != nil {
		return err
	}
	return s.srv.core.Shuffle(ctx, start, end)
}

func cmdPlaylistInfo(ctx context.Context, s *session, args []string, r *response) error {
	snap, err := s.srv.core.Tracklist(ctx)
	if err != nil {
		return err
	}
	start, end := 0, len(snap.Tracks)
	if len(args) == 1 && args[0] != "-1" {
		if start, end, err = tracksInRange(snap, args[0]); err != nil {
			return err
		}
	}
	for i := start; i < end; i++ {
		writeSong(r, snap.Tracks[i], i)
	}
	return nil
}

func cmdPlaylistID(ctx context.Context, s *session, args []string, r *response) error {
	snap, err := s.srv.core.Tracklist(ctx)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		for i, tl := range snap.Tracks {
			writeSong(r, tl, i)
		}
		return nil
	}
	id, err := parseInt(args[0])
	if err != nil {
		return err
	}
	idx := indexOf(snap, id)
	if idx < 0 {
		return ack(ackNoExist, "No such song")
	}
	writeSong(r, snap.Tracks[idx], idx)
	return nil
}

// changedSince returns the snapshot when its version differs from the
// client's. Versions are not journaled, so any change reports every track.
func changedSince(ctx context.Context, s *session, arg string) (tracklist.Snapshot, bool, error) {
	version, err := parseInt(arg)
	if err != nil {
		return tracklist.Snapshot{}, false, err
	}
	snap, err := s.srv.core.Tracklist(ctx)
	if err != nil {
		return tracklist.Snapshot{}, false, err
	}
	return snap, snap.Version != version, nil
}

func cmdPlChanges(ctx context.Context, s *session, args []string, r *response) error {
	snap, changed, err := changedSince(ctx, s, args[0])
	if err != nil || !changed {
		return err
	}
	for i, tl := range snap.Tracks {
		writeSong(r, tl, i)
	}
	return nil
}

func cmdPlChangesPosID(ctx context.Context, s *session, args []string, r *response) error {
	snap, changed, err := changedSince(ctx, s, args[0])
	if err != nil || !changed {
		return err
	}
	for i, tl := range snap.Tracks {
		r.field("cpos", i)
		r.field("Id", tl.TLID)
	}
	return nil
}

// playlistByName resolves a stored playlist by its display name.
func playlistByName(ctx context.Context, core Core, name string) (media.Playlist, error) {
	playlists, err := core.Playlists(ctx)
	if err != nil {
		return media.Playlist{}, err
	}
	for _, pl := range playlists {
		if pl.Name == name {
			return pl, nil
		}
	}
	return media.Playlist{}, ack(ackNoExist, "No such playlist")
}

func cmdListPlaylists(ctx context.Context, s *session, args []string, r *response) error {
	playlists, err := s.srv.core.Playlists(ctx)
	if err != nil {
		return err
	}
	for _, pl := range playlists {
		r.field("playlist", pl.Name)
		if !pl.LastModified.IsZero() {
			r.field("Last-Modified", pl.LastModified.UTC().Format(time.RFC3339))
		}
	}
	return nil
}

func loadPlaylist(ctx context.Context, s *session, name string) (media.Playlist, error) {
	pl, err := playlistByName(ctx, s.srv.core, name)
	if err != nil {
		return media.Playlist{}, err
	}
	return s.srv.core.LookupPlaylist(ctx, pl.URI)
}

func cmdListPlaylist(ctx context.Context, s *session, args []string, r *response) error {
	pl, err := loadPlaylist(ctx, s, args[0])
	if err != nil {
		return err
	}
	for _, t := range pl.Tracks {
		r.field("file", t.URI)
	}
	return nil
}

func cmdListPlaylistInfo(ctx context.Context, s *session, args []string, r *response) error {
	pl, err := loadPlaylist(ctx, s, args[0])
	if err != nil {
		return err
	}
	for _, t := range pl.Tracks {
		writeTrack(r, t)
	}
	return nil
}

func cmdLoad(ctx context.Context, s *session, args []string, r *response) error {
	pl, err := playlistByName(ctx, s.srv.core, args[0])
	if err != nil {
		return err
	}
	_, err = s.srv.core.AddPlaylist(ctx, pl.URI, -1)
	return err
}

func cmdSave(ctx context.Context, s *session, args []string, r *response) error {
	core := s.srv.core
	if _, err := playlistByName(ctx, core, args[0]); err == nil {
		return ack(ackExist, "Playlist already exists")
	}
	snap, err := core.Tracklist(ctx)
	if err != nil {
		return err
	}
	pl, err := core.CreatePlaylist(ctx, args[0], s.srv.opts.PlaylistScheme)
	if err != nil {
		return err
	}
	for _, tl := range snap.Tracks {
		pl.Tracks = append(pl.Tracks, tl.Track)
	}
	_, err = core.SavePlaylist(ctx, pl)
	return err
}

func cmdRm(ctx context.Context, s *session, args []string, r *response) error {
	pl, err := playlistByName(ctx, s.srv.core, args[0])
	if err != nil {
		return err
	}
	return s.srv.core.DeletePlaylist(ctx, pl.URI)
}

// searchFields maps MPD tag names onto query fields.
var searchFields = map[string]string{
	"any":      "any",
	"artist":   "artist",
	"album":    "album",
	"title":    "track_name",
	"file":     "uri",
	"filename": "uri",
}

// searchCommand builds search (substring) or find (exact) over the
// library backends. find filters the backend results down to exact tag
// matches.
func searchCommand(exact bool) handlerFunc {
	return func(ctx context.Context, s *session, args []string, r *response) error {
		if len(args)%2 != 0 {
			return ack(ackArg, "incorrect arguments")
		}
		query := media.Query{}
		for i := 0; i < len(args); i += 2 {
			field, ok := searchFields[strings.ToLower(args[i])]
			if !ok {
				return ack(ackArg, "incorrect arguments")
			}
			query[field] = append(query[field], args[i+1])
		}

		tracks, err := s.srv.core.Search(ctx, query, nil)
		if err != nil {
			return err
		}
		for _, t := range tracks {
			if exact && !exactMatch(t, query) {
				continue
			}
			writeTrack(r, t)
		}
		return nil
	}
}

func exactMatch(t media.Track, query media.Query) bool {
	for field, values := range query {
		for _, v := range values {
			var ok bool
			switch field {
			case "artist":
				ok = containsFold(t.Artists, v)
			case "album":
				ok = strings.EqualFold(t.Album, v)
			case "track_name":
				ok = strings.EqualFold(t.Name, v)
			case "uri":
				ok = t.URI == v
			default:
				ok = containsFold(append([]string{t.Name, t.Album, t.URI}, t.Artists...), v)
			}
			if !ok {
				return false
			}
		}
	}
	return true
}

func containsFold(values []string, v string) bool {
	for _, x := range values {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}
