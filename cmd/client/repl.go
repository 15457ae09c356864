package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"collab-playlist/internal/client"
	"collab-playlist/internal/offline"
	"collab-playlist/internal/playlist"
)

const helpText = `commands:
  status                  connection status and queued actions
  tracks [query]          search the catalog
  list                    show the playlist
  sort manual|votes       change the list order
  add <track-id>          add a track
  vote <n|id> up|down     vote on an item
  move <n|id> <pos>       move an item to a 1-based list position
  play <n|id>             play an item
  next                    play the next item
  remove <n|id>           remove an item
  now                     what's playing
  pause | resume
  seek <+/-seconds>
  pending                 actions waiting to be replayed
  refresh                 refetch the playlist
  quit`

type repl struct {
	engine *client.Engine
	in     io.Reader
	out    io.Writer

	mu   sync.Mutex // guards out and mode
	mode client.SortMode
}

func newREPL(e *client.Engine, in io.Reader, out io.Writer) *repl {
	return &repl{engine: e, in: in, out: out, mode: client.SortManual}
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// watch reports connection status changes until ctx ends.
func (r *repl) watch(ctx context.Context) {
	last := r.engine.Status()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.engine.Changes():
			if s := r.engine.Status(); s != last {
				last = s
				r.printf("[%s]\n", s)
			}
		}
	}
}

func (r *repl) run(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
		close(lines)
	}()

	r.printf("%s\n> ", helpText)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if quit := r.exec(ctx, line); quit {
				return nil
			}
			r.printf("> ")
		}
	}
}

// exec runs one command line and reports whether the user asked to quit.
func (r *repl) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch cmd {
	case "quit", "exit":
		return true
	case "help", "?":
		r.printf("%s\n", helpText)
	case "status":
		err = r.status(ctx)
	case "tracks":
		err = r.tracks(ctx, strings.Join(args, " "))
	case "list", "ls":
		r.list()
	case "sort":
		err = r.sort(args)
	case "add":
		if len(args) != 1 {
			err = errors.New("usage: add <track-id>")
			break
		}
		err = r.engine.Add(ctx, args[0])
	case "vote":
		if len(args) != 2 {
			err = errors.New("usage: vote <n|id> up|down")
			break
		}
		err = r.withRef(args[0], func(id string) error { return r.engine.Vote(ctx, id, strings.ToLower(args[1])) })
	case "move":
		if len(args) != 2 {
			err = errors.New("usage: move <n|id> <pos>")
			break
		}
		to, convErr := strconv.Atoi(args[1])
		if convErr != nil || to < 1 {
			err = errors.New("position must be a positive number")
			break
		}
		err = r.withRef(args[0], func(id string) error { return r.engine.Move(ctx, id, to-1) })
	case "play":
		if len(args) != 1 {
			err = errors.New("usage: play <n|id>")
			break
		}
		err = r.withRef(args[0], func(id string) error { return r.engine.Play(ctx, id) })
	case "next":
		err = r.engine.PlayNext(ctx)
	case "remove", "rm":
		if len(args) != 1 {
			err = errors.New("usage: remove <n|id>")
			break
		}
		err = r.withRef(args[0], func(id string) error { return r.engine.Remove(ctx, id) })
	case "now":
		r.now()
	case "pause":
		r.engine.Pause()
	case "resume":
		r.engine.Resume()
	case "seek":
		err = r.seek(args)
	case "pending":
		err = r.pending(ctx)
	case "refresh":
		err = r.engine.Refresh(ctx)
	default:
		err = fmt.Errorf("unknown command %q, try help", cmd)
	}

	if err != nil {
		r.printf("error: %s\n", describe(err))
	}
	return false
}

// withRef resolves a 1-based index into the displayed list, or passes an id
// through unchanged.
func (r *repl) withRef(ref string, fn func(id string) error) error {
	n, err := strconv.Atoi(ref)
	if err != nil {
		return fn(ref)
	}
	items := r.engine.Display(r.currentMode())
	if n < 1 || n > len(items) {
		return fmt.Errorf("no item %d", n)
	}
	return fn(items[n-1].ID)
}

func (r *repl) currentMode() client.SortMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

func (r *repl) status(ctx context.Context) error {
	pending, err := r.engine.Pending(ctx)
	if err != nil {
		return err
	}
	r.printf("status: %s  last event: %d  queued: %d\n", r.engine.Status(), r.engine.LastSeq(), len(pending))
	return nil
}

func (r *repl) tracks(ctx context.Context, query string) error {
	tracks, err := r.engine.LoadTracks(ctx, playlist.TrackFilter{Query: query})
	if err != nil {
		return err
	}
	for _, t := range tracks {
		genre := ""
		if t.Genre != nil {
			genre = " [" + *t.Genre + "]"
		}
		r.printf("%-10s %s - %s (%s)%s\n", t.ID, t.Title, t.Artist, clock(t.DurationSeconds), genre)
	}
	r.printf("%d tracks\n", len(tracks))
	return nil
}

func (r *repl) list() {
	items := r.engine.Display(r.currentMode())
	if len(items) == 0 {
		r.printf("playlist is empty\n")
		return
	}
	for i, it := range items {
		mark := " "
		if it.IsPlaying {
			mark = ">"
		}
		r.printf("%s %2d. %s - %s  votes:%d  by %s\n", mark, i+1, it.Track.Title, it.Track.Artist, it.Votes, it.AddedBy)
	}
}

func (r *repl) sort(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: sort manual|votes")
	}
	mode := client.SortMode(strings.ToLower(args[0]))
	if mode != client.SortManual && mode != client.SortVotes {
		return fmt.Errorf("unknown sort %q", args[0])
	}
	r.mu.Lock()
	r.mode = mode
	r.mu.Unlock()
	r.list()
	return nil
}

func (r *repl) now() {
	id := r.engine.Player().Current()
	if id == "" {
		r.printf("nothing playing\n")
		return
	}
	for _, it := range r.engine.Items() {
		if it.ID == id {
			state := "playing"
			if r.engine.Player().Paused() {
				state = "paused"
			}
			elapsed := int(r.engine.Elapsed() / time.Second)
			r.printf("%s: %s - %s  %s / %s\n", state, it.Track.Title, it.Track.Artist, clock(elapsed), clock(it.Track.DurationSeconds))
			return
		}
	}
	r.printf("nothing playing\n")
}

func (r *repl) seek(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: seek <+/-seconds>")
	}
	secs, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bad offset %q", args[0])
	}
	r.engine.Seek(time.Duration(secs) * time.Second)
	r.now()
	return nil
}

func (r *repl) pending(ctx context.Context) error {
	actions, err := r.engine.Pending(ctx)
	if err != nil {
		return err
	}
	if len(actions) == 0 {
		r.printf("nothing queued\n")
		return nil
	}
	for _, a := range actions {
		target := a.ID
		if a.Type == offline.ActionAdd {
			target = a.TrackID
		}
		r.printf("%s %s %s\n", a.Type, target, a.Direction)
	}
	return nil
}

func describe(err error) string {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, playlist.ErrDuplicateTrack):
		return "track is already in the playlist"
	case errors.Is(err, playlist.ErrNotFound):
		return "no such item"
	case errors.Is(err, client.ErrPendingItem):
		return "item is still waiting for the server, try again once it is confirmed"
	case errors.As(err, &apiErr):
		return apiErr.Message
	}
	return err.Error()
}

func clock(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
