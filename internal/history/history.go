// Package history records entity mutations as commands and replays them for
// undo and redo. Consecutive edits of one entity within a gesture collapse
// into a single command.
package history

import (
	"fmt"
	"log/slog"
	"maps"

	"github.com/lackhoa/fractal-sky/internal/scene"
)

// Kind is the command variant.
type Kind uint8

const (
	Create Kind = iota + 1
	Remove
	Edit
	Arrange
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "create"
	case Remove:
		return "remove"
	case Edit:
		return "edit"
	case Arrange:
		return "arrange"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Command is one undoable step.
type Command struct {
	Kind   Kind
	Entity scene.EntityID

	// Edit: attribute values before and after.
	Before scene.Attrs
	After  scene.Attrs

	// Arrange: next sibling before and after the move.
	OldNext scene.EntityID
	NewNext scene.EntityID
}

// Target is what commands are replayed against. *scene.Scene satisfies it.
type Target interface {
	Register(id scene.EntityID)
	Deregister(id scene.EntityID)
	SetAttributes(id scene.EntityID, attrs scene.Attrs)
	Arrange(id, next scene.EntityID)
}

// Event is what an Observer is told about.
type Event uint8

const (
	EventPush Event = iota + 1
	EventMerge
	EventUndo
	EventRedo
)

func (e Event) String() string {
	switch e {
	case EventPush:
		return "push"
	case EventMerge:
		return "merge"
	case EventUndo:
		return "undo"
	case EventRedo:
		return "redo"
	default:
		return fmt.Sprintf("event(%d)", uint8(e))
	}
}

// Observer is notified after every stack change.
type Observer func(ev Event, cmd Command)

// Manager holds the undo and redo stacks.
type Manager struct {
	target  Target
	log     *slog.Logger
	observe Observer

	undo []Command
	redo []Command

	// controlChanged is set at the start and end of every gesture; the next
	// command then starts a new undo entry instead of merging.
	controlChanged bool
}

func NewManager(target Target, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{target: target, log: logger}
}

// SetObserver installs fn as the observer (nil removes it).
func (m *Manager) SetObserver(fn Observer) {
	m.observe = fn
}

// MarkControlChanged makes the next issued command a fresh undo entry.
func (m *Manager) MarkControlChanged() {
	m.controlChanged = true
}

// Issue records a command that has already been applied. An edit of the same
// entity as the top entry is merged into it unless a gesture boundary was
// marked in between. Issuing always clears the redo stack.
func (m *Manager) Issue(cmd Command) {
	m.redo = m.redo[:0]

	if m.controlChanged {
		m.controlChanged = false
		m.push(cmd)
		return
	}
	if n := len(m.undo); n > 0 && cmd.Kind == Edit {
		top := &m.undo[n-1]
		if top.Kind == Edit && top.Entity == cmd.Entity {
			merge(top, cmd)
			m.notify(EventMerge, *top)
			return
		}
	}
	m.push(cmd)
}

func (m *Manager) push(cmd Command) {
	if cmd.Kind == Edit {
		cmd.Before = cmd.Before.Clone()
		cmd.After = cmd.After.Clone()
	}
	m.undo = append(m.undo, cmd)
	m.notify(EventPush, cmd)
}

// merge folds a later edit into top. top keeps its original before values;
// keys it never touched take theirs from the later edit.
func merge(top *Command, cmd Command) {
	if top.After == nil {
		top.After = scene.Attrs{}
	}
	if top.Before == nil {
		top.Before = scene.Attrs{}
	}
	maps.Copy(top.After, cmd.After)
	for k, v := range cmd.Before {
		if _, ok := top.Before[k]; !ok {
			top.Before[k] = v
		}
	}
}

// Undo reverts the newest command. It returns false when there is nothing to
// undo.
func (m *Manager) Undo() bool {
	n := len(m.undo)
	if n == 0 {
		m.log.Info("cannot undo")
		return false
	}
	cmd := m.undo[n-1]
	m.undo = m.undo[:n-1]
	m.revert(cmd)
	m.redo = append(m.redo, cmd)
	m.notify(EventUndo, cmd)
	return true
}

// Redo re-applies the newest undone command.
func (m *Manager) Redo() bool {
	n := len(m.redo)
	if n == 0 {
		m.log.Info("cannot redo")
		return false
	}
	cmd := m.redo[n-1]
	m.redo = m.redo[:n-1]
	m.apply(cmd)
	m.undo = append(m.undo, cmd)
	m.notify(EventRedo, cmd)
	return true
}

func (m *Manager) revert(cmd Command) {
	switch cmd.Kind {
	case Create:
		m.target.Deregister(cmd.Entity)
	case Remove:
		m.target.Register(cmd.Entity)
	case Edit:
		m.target.SetAttributes(cmd.Entity, cmd.Before.Clone())
	case Arrange:
		m.target.Arrange(cmd.Entity, cmd.OldNext)
	default:
		panic(fmt.Sprintf("history: cannot undo %v", cmd.Kind))
	}
}

func (m *Manager) apply(cmd Command) {
	switch cmd.Kind {
	case Create:
		m.target.Register(cmd.Entity)
	case Remove:
		m.target.Deregister(cmd.Entity)
	case Edit:
		m.target.SetAttributes(cmd.Entity, cmd.After.Clone())
	case Arrange:
		m.target.Arrange(cmd.Entity, cmd.NewNext)
	default:
		panic(fmt.Sprintf("history: cannot redo %v", cmd.Kind))
	}
}

func (m *Manager) notify(ev Event, cmd Command) {
	if m.observe != nil {
		m.observe(ev, cmd)
	}
}

func (m *Manager) CanUndo() bool { return len(m.undo) > 0 }
func (m *Manager) CanRedo() bool { return len(m.redo) > 0 }

// Len returns the sizes of the undo and redo stacks.
func (m *Manager) Len() (undo, redo int) {
	return len(m.undo), len(m.redo)
}

// Top returns the newest undo entry.
func (m *Manager) Top() (Command, bool) {
	if len(m.undo) == 0 {
		return Command{}, false
	}
	return m.undo[len(m.undo)-1], true
}

// RedoTop returns the newest redo entry.
func (m *Manager) RedoTop() (Command, bool) {
	if len(m.redo) == 0 {
		return Command{}, false
	}
	return m.redo[len(m.redo)-1], true
}

// Clear drops both stacks.
func (m *Manager) Clear() {
	m.undo = nil
	m.redo = nil
	m.controlChanged = false
}
