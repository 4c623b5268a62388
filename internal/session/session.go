// Package session runs one websocket editing session: an editor owned by
// the connection, fed by pointer, key and command messages, whose element
// operations are streamed back to the browser as render batches.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/lackhoa/fractal-sky/internal/editor"
	"github.com/lackhoa/fractal-sky/internal/history"
	"github.com/lackhoa/fractal-sky/internal/render"
	"github.com/lackhoa/fractal-sky/internal/scene"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 64 * 1024
	saveWait   = 10 * time.Second
)

// SaveFunc persists content. version is the version the session last saw;
// the new version is returned.
type SaveFunc func(ctx context.Context, content []byte, version int) (int, error)

type Config struct {
	ID        string
	UserID    string
	DiagramID string
	Version   int
	Content   []byte
	Editor    editor.Config
	Keymap    editor.Keymap
	Save      SaveFunc
	// Observer also sees every history event, e.g. for metrics.
	Observer history.Observer
	Logger   *slog.Logger
}

// Session is driven from a single goroutine (the read loop); the write loop
// only drains the outbound channel.
type Session struct {
	id        string
	userID    string
	diagramID string
	version   int

	ed     *editor.Editor
	rec    *render.Recorder
	keymap editor.Keymap
	save   SaveFunc
	log    *slog.Logger

	send  chan []byte
	seq   int64
	dirty bool
}

// New builds the session's editor and loads the diagram into it.
func New(cfg Config) (*Session, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session", cfg.ID, "diagram", cfg.DiagramID, "user", cfg.UserID)
	if cfg.Keymap == nil {
		cfg.Keymap = editor.DefaultKeymap()
	}
	cfg.Editor.Logger = log

	rec := render.NewRecorder()
	ed := editor.New(rec, nil, cfg.Editor)
	if len(cfg.Content) > 0 {
		if err := ed.LoadJSON(cfg.Content); err != nil {
			return nil, fmt.Errorf("load diagram: %w", err)
		}
	}

	s := &Session{
		id:        cfg.ID,
		userID:    cfg.UserID,
		diagramID: cfg.DiagramID,
		version:   cfg.Version,
		ed:        ed,
		rec:       rec,
		keymap:    cfg.Keymap,
		save:      cfg.Save,
		log:       log,
		send:      make(chan []byte, 256),
	}
	observer := cfg.Observer
	ed.History().SetObserver(func(ev history.Event, cmd history.Command) {
		s.dirty = true
		if observer != nil {
			observer(ev, cmd)
		}
	})
	return s, nil
}

func (s *Session) Editor() *editor.Editor { return s.ed }
func (s *Session) Version() int           { return s.version }
func (s *Session) Dirty() bool            { return s.dirty }

// Outbound is the channel of encoded server messages.
func (s *Session) Outbound() <-chan []byte { return s.send }

// Start greets the client and sends the initial render of the diagram.
func (s *Session) Start(ctx context.Context) {
	s.emit(ctx, TypeWelcome, WelcomePayload{
		SessionID: s.id,
		DiagramID: s.diagramID,
		Version:   s.version,
		MaxDepth:  s.ed.MaxDepth(),
		MaxViews:  s.ed.MaxViews(),
	})
	s.flush(ctx)
}

// Handle processes one client message and sends the resulting render batch
// and state.
func (s *Session) Handle(ctx context.Context, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.fail(ctx, "invalid message")
		return
	}
	if err := s.dispatch(ctx, msg); err != nil {
		s.log.Debug("message rejected", "type", msg.Type, "error", err)
		s.fail(ctx, err.Error())
	}
	s.flush(ctx)
}

func (s *Session) dispatch(ctx context.Context, msg Message) error {
	switch msg.Type {
	case TypePointerDown:
		var p PointerPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("pointer payload: %w", err)
		}
		target, h := scene.NoEntity, scene.HandleNone
		if p.Entity != 0 {
			var ok bool
			if h, ok = scene.ParseHandle(p.Handle); !ok {
				return fmt.Errorf("unknown handle %q", p.Handle)
			}
			target = scene.EntityID(p.Entity)
		}
		return s.ed.PointerDown(target, h, pointer(p))
	case TypePointerMove:
		var p PointerPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("pointer payload: %w", err)
		}
		s.ed.PointerMove(pointer(p))
	case TypePointerUp:
		var p PointerPayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				return fmt.Errorf("pointer payload: %w", err)
			}
		}
		s.ed.PointerUp(pointer(p))
	case TypeKey:
		var k KeyPayload
		if err := json.Unmarshal(msg.Payload, &k); err != nil {
			return fmt.Errorf("key payload: %w", err)
		}
		s.ed.HandleKey(s.keymap, editor.KeyChord(k.Key, k.Ctrl, k.Shift))
	case TypeCommand:
		var c CommandPayload
		if err := json.Unmarshal(msg.Payload, &c); err != nil {
			return fmt.Errorf("command payload: %w", err)
		}
		return s.command(ctx, c)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}

func (s *Session) command(ctx context.Context, c CommandPayload) error {
	switch c.Command {
	case CmdAddShape:
		mold, ok := scene.MoldFor(c.Tag)
		if !ok {
			return fmt.Errorf("unknown shape %q", c.Tag)
		}
		if s.ed.AddShape(mold) == scene.NoEntity {
			return fmt.Errorf("%w: cannot add another shape at depth %d", editor.ErrViewBudget, s.ed.Depth())
		}
	case CmdAddFrame:
		if s.ed.AddFrame() == scene.NoEntity {
			return fmt.Errorf("%w: cannot add another frame at depth %d", editor.ErrViewBudget, s.ed.Depth())
		}
	case CmdUndo:
		if !s.ed.Undo() && s.ed.CanUndo() {
			return fmt.Errorf("%w: undo would restore too many views", editor.ErrViewBudget)
		}
	case CmdRedo:
		if !s.ed.Redo() && s.ed.CanRedo() {
			return fmt.Errorf("%w: redo would restore too many views", editor.ErrViewBudget)
		}
	case CmdSetDepth:
		if c.Depth < 1 {
			return fmt.Errorf("depth must be positive, got %d", c.Depth)
		}
		if limit := s.ed.DepthLimit(); c.Depth > limit && limit < s.ed.MaxDepth() {
			return fmt.Errorf("%w: depth %d is too deep for this diagram, limit %d", editor.ErrViewBudget, c.Depth, limit)
		}
		s.ed.SetDepth(c.Depth)
	case CmdBranches:
		if c.Visible == nil {
			s.ed.ToggleBranches()
		} else {
			s.ed.SetBranchesVisible(*c.Visible)
		}
	case CmdSave:
		return s.Save(ctx)
	default:
		return fmt.Errorf("unknown command %q", c.Command)
	}
	return nil
}

// Save writes the diagram through the session's SaveFunc and tells the
// client the new version.
func (s *Session) Save(ctx context.Context) error {
	if err := s.persist(ctx); err != nil {
		return err
	}
	s.emit(ctx, TypeSaved, SavedPayload{Version: s.version})
	return nil
}

func (s *Session) persist(ctx context.Context) error {
	if s.save == nil {
		return errors.New("saving is not available")
	}
	content, err := s.ed.SaveJSON()
	if err != nil {
		return err
	}
	version, err := s.save(ctx, content, s.version)
	if err != nil {
		return fmt.Errorf("save failed: %w", err)
	}
	s.version = version
	s.dirty = false
	s.log.Info("diagram saved", "version", version)
	return nil
}

// saveOnClose persists unsaved changes once the client is gone. Nobody is
// left to read a saved message, so none is sent.
func (s *Session) saveOnClose(ctx context.Context) {
	if !s.dirty || s.save == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveWait)
	defer cancel()
	if err := s.persist(saveCtx); err != nil {
		s.log.Warn("save on close failed", "error", err)
	}
}

func pointer(p PointerPayload) editor.Pointer {
	return editor.Pointer{X: p.X, Y: p.Y, Shift: p.Shift, Ctrl: p.Ctrl}
}

// flush sends pending element operations, then the editor state.
func (s *Session) flush(ctx context.Context) {
	if ops := s.rec.Flush(); len(ops) > 0 {
		s.seq++
		s.emitSeq(ctx, TypeRender, s.seq, ops)
	}
	s.emit(ctx, TypeState, StatePayload{
		CanUndo:         s.ed.CanUndo(),
		CanRedo:         s.ed.CanRedo(),
		Depth:           s.ed.Depth(),
		Focused:         int(s.ed.Focused()),
		BranchesVisible: s.ed.BranchesVisible(),
	})
}

func (s *Session) fail(ctx context.Context, msg string) {
	s.emit(ctx, TypeError, ErrorPayload{Message: msg})
}

func (s *Session) emit(ctx context.Context, typ string, payload any) {
	s.emitSeq(ctx, typ, 0, payload)
}

func (s *Session) emitSeq(ctx context.Context, typ string, seq int64, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("marshal payload", "type", typ, "error", err)
		return
	}
	data, err := json.Marshal(Message{Type: typ, Seq: seq, Payload: raw})
	if err != nil {
		s.log.Error("marshal message", "type", typ, "error", err)
		return
	}
	// Render batches must not be dropped, so a slow client applies
	// backpressure to the read loop instead.
	select {
	case s.send <- data:
	case <-ctx.Done():
	}
}

// Run serves the session on conn until either side goes away.
func (s *Session) Run(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		s.WritePump(ctx, conn)
		// Unblocks a read loop waiting on a full outbound channel.
		cancel()
	}()
	s.Start(ctx)
	s.ReadPump(ctx, conn)
}

// ReadPump feeds client messages to Handle until the connection closes,
// then saves unsaved changes and closes the outbound channel.
func (s *Session) ReadPump(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		s.saveOnClose(ctx)
		close(s.send)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	conn.SetReadLimit(maxMsgSize)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return
			}
			s.log.Debug("read error", "error", err)
			return
		}
		s.Handle(ctx, data)
	}
}

// WritePump drains the outbound channel to the connection and keeps it
// alive with pings.
func (s *Session) WritePump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-s.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				s.log.Debug("write error", "error", err)
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
