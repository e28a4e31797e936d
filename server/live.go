package server

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hazyhaar/cardcrafter/grid"
	"github.com/hazyhaar/cardcrafter/observability"
	"github.com/hazyhaar/cardcrafter/shield"
)

const (
	liveReadLimit = 16 * 1024
	livePongWait  = 60 * time.Second
	livePingEvery = livePongWait * 9 / 10
	liveWriteWait = 10 * time.Second
)

// liveRequest is a client message on a live grid session.
type liveRequest struct {
	Type   string `json:"type"` // search | sort | page | per_page | export | retry
	Query  string `json:"query,omitempty"`
	Key    string `json:"key,omitempty"`
	Page   int    `json:"page,omitempty"`
	Value  int    `json:"value,omitempty"`
	Format string `json:"format,omitempty"`
}

// liveMessage is a server message on a live grid session.
type liveMessage struct {
	Type     string         `json:"type"` // render | export | notice
	HTML     string         `json:"html,omitempty"`
	Snapshot *grid.Snapshot `json:"snapshot,omitempty"`
	Filename string         `json:"filename,omitempty"`
	MIME     string         `json:"mime,omitempty"`
	Data     string         `json:"data,omitempty"`
	Level    string         `json:"level,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// liveConn serializes writes to a websocket; gorilla connections support
// one concurrent writer.
type liveConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *liveConn) send(msg liveMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	return c.conn.WriteJSON(msg)
}

func (c *liveConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait))
}

// liveSession drives one engine from one websocket.
type liveSession struct {
	eng    *grid.Engine
	conn   *liveConn
	opts   grid.RenderOptions
	logger *slog.Logger
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	preset := chi.URLParam(r, "preset")
	logger := shield.GetLogger(r.Context())

	eng, err := s.newEngine(preset)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer eng.Close()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("live upgrade", "error", err)
		return
	}
	defer ws.Close()

	observability.LiveSessions.Inc()
	defer observability.LiveSessions.Dec()

	sess := &liveSession{
		eng:    eng,
		conn:   &liveConn{conn: ws},
		opts:   grid.RenderOptions{ExportURL: exportBase(preset), Live: true},
		logger: logger.With("preset", preset, "grid", eng.ID()),
	}
	sess.logger.Debug("live session opened")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.keepAlive(ctx)

	sess.render()
	if err := eng.Init(ctx); err == nil {
		applyParams(eng, r.URL.Query())
	}
	sess.render()

	ws.SetReadLimit(liveReadLimit)
	ws.SetReadDeadline(time.Now().Add(livePongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(livePongWait))
	})
	for {
		var req liveRequest
		if err := ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.logger.Debug("live read", "error", err)
			}
			break
		}
		ws.SetReadDeadline(time.Now().Add(livePongWait))
		sess.handle(ctx, req)
	}
	sess.logger.Debug("live session closed")
}

func (l *liveSession) keepAlive(ctx context.Context) {
	tick := time.NewTicker(livePingEvery)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := l.conn.ping(); err != nil {
				return
			}
		}
	}
}

func (l *liveSession) handle(ctx context.Context, req liveRequest) {
	switch req.Type {
	case "search":
		l.eng.SetQuery(req.Query, l.render)
	case "sort":
		key, err := grid.ParseSortKey(req.Key)
		if err != nil {
			l.notice("warn", "Unknown sort order.")
			return
		}
		l.eng.SetSort(key)
		l.render()
	case "page":
		l.eng.SetPage(req.Page)
		l.render()
	case "per_page":
		if err := l.eng.SetItemsPerPage(req.Value); err != nil {
			l.notice("warn", "Invalid page size.")
			return
		}
		l.render()
	case "export":
		l.export(req.Format)
	case "retry":
		if err := l.eng.Retry(ctx); err != nil && l.eng.State() != grid.StateError {
			l.notice("warn", "Nothing to retry.")
			return
		}
		l.render()
	default:
		l.notice("warn", "Unknown request.")
	}
}

func (l *liveSession) export(format string) {
	f, err := grid.ParseFormat(format)
	if err != nil {
		l.notice("error", "Unknown export format.")
		return
	}
	file, err := l.eng.Export(f)
	if errors.Is(err, grid.ErrExport) {
		l.notice("warn", "No data to export.")
		return
	}
	if err != nil {
		l.logger.Error("live export", "format", f, "error", err)
		l.notice("error", "Export failed.")
		return
	}
	l.conn.send(liveMessage{
		Type:     "export",
		Filename: file.Filename,
		MIME:     file.MIME,
		Data:     base64.StdEncoding.EncodeToString(file.Data),
	})
}

func (l *liveSession) render() {
	html, err := l.eng.Render(l.opts)
	if err != nil {
		l.logger.Error("live render", "error", err)
		l.notice("error", "Render failed.")
		return
	}
	snap := l.eng.Snapshot()
	if err := l.conn.send(liveMessage{Type: "render", HTML: html, Snapshot: &snap}); err != nil {
		l.logger.Debug("live write", "error", err)
	}
}

func (l *liveSession) notice(level, msg string) {
	l.conn.send(liveMessage{Type: "notice", Level: level, Message: msg})
}
