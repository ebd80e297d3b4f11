package bot

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/chitragupt/chitragupt/pkg/identity"
	"github.com/chitragupt/chitragupt/pkg/telegram"
)

// HandlerFunc processes one command invocation
type HandlerFunc func(ctx context.Context, req *Request) error

// Request carries everything a handler needs for one command
type Request struct {
	Update    telegram.Update
	Message   *telegram.Message
	Principal identity.Principal
	Args      []string

	// set by the dispatcher so handlers can enumerate commands
	registry *Registry
}

// Command binds a slash command to the action slug that gates it
type Command struct {
	Slug        string
	Action      string
	Description string
	Order       int
	Handler     HandlerFunc
}

// Registry is the command table. Registration happens once at startup;
// lookups are concurrent with dispatch.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds a command. A duplicate slug is a programming error and
// fails fast rather than silently shadowing an existing handler.
func (r *Registry) Register(cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[cmd.Slug]; exists {
		return fmt.Errorf("command %q already registered", cmd.Slug)
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command %q has no handler", cmd.Slug)
	}
	r.commands[cmd.Slug] = cmd
	return nil
}

// Get returns the command registered under slug
func (r *Registry) Get(slug string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[slug]
	return cmd, ok
}

// ListFor returns the commands whose gating action the allowed function
// grants, in registration order.
func (r *Registry) ListFor(allowed func(action string) bool) []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Command
	for _, cmd := range r.commands {
		if allowed(cmd.Action) {
			out = append(out, cmd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// All returns every registered command in order
func (r *Registry) All() []Command {
	return r.ListFor(func(string) bool { return true })
}
