package mpdproto

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// handlerFunc runs one command. Output lines are written to r; the
// terminating OK or ACK is added by the caller.
type handlerFunc func(ctx context.Context, s *session, args []string, r *response) error

type command struct {
	name    string
	minArgs int
	maxArgs int // -1 for no limit
	fn      handlerFunc
}

// registry maps command names to handlers.
type registry struct {
	commands map[string]command
}

func newRegistry() *registry {
	return &registry{commands: make(map[string]command)}
}

// register adds a command. Registering a name twice is a programming error
// and panics.
func (r *registry) register(name string, minArgs, maxArgs int, fn handlerFunc) {
	if _, dup := r.commands[name]; dup {
		panic(fmt.Sprintf("mpdproto: command %q already registered", name))
	}
	r.commands[name] = command{name: name, minArgs: minArgs, maxArgs: maxArgs, fn: fn}
}

// names returns the registered command names in sorted order.
func (r *registry) names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// call validates the argument count and runs the handler for words[0].
func (r *registry) call(ctx context.Context, s *session, words []string, out *response) error {
	name := strings.ToLower(words[0])
	cmd, ok := r.commands[name]
	if !ok {
		return &ackError{code: ackUnknown, message: fmt.Sprintf("unknown command %q", words[0])}
	}

	args := words[1:]
	if len(args) < cmd.minArgs || (cmd.maxArgs >= 0 && len(args) > cmd.maxArgs) {
		return &ackError{code: ackArg, command: name, message: fmt.Sprintf("wrong number of arguments for %q", name)}
	}

	if err := cmd.fn(ctx, s, args, out); err != nil {
		if a, ok := err.(*ackError); ok && a.command == "" {
			a.command = name
		}
		return err
	}
	return nil
}

// response accumulates the "key: value" lines of one command.
type response struct {
	b strings.Builder
}

func (r *response) field(key string, value any) {
	fmt.Fprintf(&r.b, "%s: %v\n", key, value)
}

func (r *response) String() string { return r.b.String() }
