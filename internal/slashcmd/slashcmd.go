// Package slashcmd implements a concurrent slash-command registry with
// change-callback broadcasting.
//
// Generalizes the ad hoc "/quit"/"/exit" string check in
// m4xw311-compell/agent/agent.go's Run loop into a proper registry, since
// the spec requires /model and arbitrary registered commands, per spec
// section 4.9.
package slashcmd

import (
	"sync"

	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
)

// Command is one registered slash command.
type Command struct {
	Name        string
	Description string
	InputHint   string
}

// OnChange is invoked with the current ordered snapshot after every
// mutation.
type OnChange func(commands []Command)

// Registry is a concurrent name->command map with insertion-ordered
// iteration.
type Registry struct {
	mu       sync.Mutex
	order    []string
	commands map[string]Command
	onChange OnChange
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// OnChange installs the single callback invoked after every mutation.
func (r *Registry) OnChange(cb OnChange) {
	r.mu.Lock()
	r.onChange = cb
	r.mu.Unlock()
}

// Register adds or overwrites a command, preserving original insertion
// order for an overwrite.
func (r *Registry) Register(cmd Command) {
	r.mu.Lock()
	if _, exists := r.commands[cmd.Name]; !exists {
		r.order = append(r.order, cmd.Name)
	}
	r.commands[cmd.Name] = cmd
	r.notifyLocked()
	r.mu.Unlock()
}

// BulkUpdate registers every command in cmds in one mutation, broadcasting
// only once.
func (r *Registry) BulkUpdate(cmds []Command) {
	r.mu.Lock()
	for _, cmd := range cmds {
		if _, exists := r.commands[cmd.Name]; !exists {
			r.order = append(r.order, cmd.Name)
		}
		r.commands[cmd.Name] = cmd
	}
	r.notifyLocked()
	r.mu.Unlock()
}

// Remove deletes a command by name, if present.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	if _, exists := r.commands[name]; exists {
		delete(r.commands, name)
		for i, n := range r.order {
			if n == name {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.notifyLocked()
	r.mu.Unlock()
}

// Clear removes every command.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.order = nil
	r.commands = make(map[string]Command)
	r.notifyLocked()
	r.mu.Unlock()
}

// Lookup returns the command registered under name, if any.
func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// List returns the current ordered snapshot.
func (r *Registry) List() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Trigger manually invokes the installed callback with the current
// snapshot, without otherwise mutating the registry.
func (r *Registry) Trigger() {
	r.mu.Lock()
	r.notifyLocked()
	r.mu.Unlock()
}

func (r *Registry) snapshotLocked() []Command {
	out := make([]Command, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.commands[name])
	}
	return out
}

func (r *Registry) notifyLocked() {
	if r.onChange != nil {
		r.onChange(r.snapshotLocked())
	}
}

// ToAvailableCommands projects the registry's snapshot into the wire
// shape used by the available_commands_update notification.
func ToAvailableCommands(cmds []Command) []acptypes.AvailableCommand {
	out := make([]acptypes.AvailableCommand, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, acptypes.AvailableCommand{
			Name:        c.Name,
			Description: c.Description,
			InputHint:   c.InputHint,
		})
	}
	return out
}
