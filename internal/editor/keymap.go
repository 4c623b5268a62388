package editor

// Action is a keyboard-triggered editor operation.
type Action func(*Editor)

// Keymap binds key chords to actions. Chords are written the way KeyChord
// builds them: "ctrl-", then "shift-", then the key name, e.g. "ctrl-shift-{".
type Keymap map[string]Action

// DefaultKeymap returns the standard accelerators.
func DefaultKeymap() Keymap {
	return Keymap{
		"ctrl-z":       func(ed *Editor) { ed.Undo() },
		"ctrl-y":       func(ed *Editor) { ed.Redo() },
		"ArrowRight":   func(ed *Editor) { ed.Nudge(nudgeStep, 0) },
		"ArrowUp":      func(ed *Editor) { ed.Nudge(0, -nudgeStep) },
		"ArrowDown":    func(ed *Editor) { ed.Nudge(0, nudgeStep) },
		"ArrowLeft":    func(ed *Editor) { ed.Nudge(-nudgeStep, 0) },
		"Delete":       func(ed *Editor) { ed.Delete() },
		"ctrl-shift-{": func(ed *Editor) { ed.SendToBack() },
		"ctrl-[":       func(ed *Editor) { ed.SendBackward() },
		"ctrl-]":       func(ed *Editor) { ed.SendForward() },
		"ctrl-shift-}": func(ed *Editor) { ed.SendToFront() },
	}
}

// KeyChord names a key press with its modifiers.
func KeyChord(key string, ctrl, shift bool) string {
	chord := ""
	if ctrl {
		chord = "ctrl-"
	}
	if shift {
		chord += "shift-"
	}
	return chord + key
}

// HandleKey runs the action bound to chord. It reports whether one was
// bound, so callers know to swallow the event.
func (ed *Editor) HandleKey(km Keymap, chord string) bool {
	action, ok := km[chord]
	if !ok {
		return false
	}
	action(ed)
	return true
}
