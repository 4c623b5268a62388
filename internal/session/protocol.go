package session

import "encoding/json"

// Message is the websocket envelope in both directions.
type Message struct {
	Type    string          `json:"type"`
	Seq     int64           `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	// Client to server
	TypePointerDown = "pointer.down"
	TypePointerMove = "pointer.move"
	TypePointerUp   = "pointer.up"
	TypeKey         = "key"
	TypeCommand     = "command"

	// Server to client
	TypeWelcome = "welcome"
	TypeRender  = "render"
	TypeState   = "state"
	TypeSaved   = "saved"
	TypeError   = "error"
)

// Commands carried by TypeCommand.
const (
	CmdAddShape = "addShape"
	CmdAddFrame = "addFrame"
	CmdUndo     = "undo"
	CmdRedo     = "redo"
	CmdSetDepth = "setDepth"
	CmdBranches = "branches"
	CmdSave     = "save"
)

// PointerPayload is a pointer event in surface coordinates. Entity and
// Handle come from the data-entity and data-handle attributes of the
// element under the pointer; both are empty for the background.
type PointerPayload struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Shift  bool    `json:"shift,omitempty"`
	Ctrl   bool    `json:"ctrl,omitempty"`
	Entity int     `json:"entity,omitempty"`
	Handle string  `json:"handle,omitempty"`
}

type KeyPayload struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Shift bool   `json:"shift,omitempty"`
}

type CommandPayload struct {
	Command string `json:"command"`
	Tag     string `json:"tag,omitempty"`
	Depth   int    `json:"depth,omitempty"`
	Visible *bool  `json:"visible,omitempty"`
}

type WelcomePayload struct {
	SessionID string `json:"sessionId"`
	DiagramID string `json:"diagramId"`
	Version   int    `json:"version"`
	MaxDepth  int    `json:"maxDepth"`
	MaxViews  int    `json:"maxViews"`
}

type StatePayload struct {
	CanUndo         bool `json:"canUndo"`
	CanRedo         bool `json:"canRedo"`
	Depth           int  `json:"depth"`
	Focused         int  `json:"focused"`
	BranchesVisible bool `json:"branchesVisible"`
}

type SavedPayload struct {
	Version int `json:"version"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
