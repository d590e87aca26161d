// Package httpapi mirrors the viewer over HTTP: an HTML page, a JSON API
// and a re-broadcast of the update stream.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/cellview/internal/logx"
	"pkt.systems/cellview/internal/snapshot"
	"pkt.systems/cellview/schema"
	"pkt.systems/pslog"
)

// Source is the viewer as seen by the HTTP mirror.
type Source interface {
	Snapshot(ctx context.Context) snapshot.Document
	SnapshotMessages(ctx context.Context) ([]schema.Message, uint64)
	Cell(ctx context.Context, node schema.NodeID) (snapshot.Cell, bool)
	Hover(ctx context.Context, node schema.NodeID, token schema.TokenID, enter bool) (snapshot.Cell, error)
	Seq() uint64
}

// Server serves the HTTP mirror.
type Server struct {
	cfg      Config
	source   Source
	hub      *Hub
	basePath string
	baseHref string
	baseCtx  context.Context
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, source Source, hub *Hub) *Server {
	if hub == nil {
		hub = NewHub(cfg.HubHistory)
	}
	return &Server{
		cfg:      cfg,
		source:   source,
		hub:      hub,
		basePath: normalizeBasePath(cfg.BasePath),
		baseHref: buildBaseHref(cfg.BaseURL, cfg.BasePath),
		baseCtx:  context.Background(),
	}
}

// Hub returns the event hub the server relays from.
func (s *Server) Hub() *Hub {
	return s.hub
}

// SetBaseContext sets the parent context of stream connections so they
// end when the server stops.
func (s *Server) SetBaseContext(ctx context.Context) {
	if s == nil || ctx == nil {
		return
	}
	s.baseCtx = ctx
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/assets/", http.StripPrefix("/assets/", http.FileServer(http.FS(assetsFS))))

	mux.HandleFunc("/getnext", s.handleStream)
	mux.HandleFunc("/api/cells", s.handleCells)
	mux.HandleFunc("/api/cell", s.handleCell)
	mux.HandleFunc("/api/hover", s.handleHover)

	handler := withRequestLogging(mux)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

const (
	baseHrefPlaceholder   = "<!-- BASE_HREF -->"
	mainOutputPlaceholder = "<!-- MAIN_OUTPUT -->"
	renderModePlaceholder = "RENDER_MODE"
)

// Render modes of the page. A static page is rendered once and does not
// follow the stream.
const (
	RenderStatic  = "static"
	RenderDynamic = "dynamic"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	data, err := fs.ReadFile(assetsFS, "index.html")
	if err != nil {
		http.Error(w, "index not found", http.StatusInternalServerError)
		return
	}
	mode := RenderDynamic
	if r.URL.Query().Get("mode") == RenderStatic {
		mode = RenderStatic
	}
	doc := s.source.Snapshot(r.Context())
	data = applyBaseHref(data, s.baseHref)
	data = bytes.Replace(data, []byte(mainOutputPlaceholder), []byte(doc.HTML), 1)
	data = bytes.ReplaceAll(data, []byte(renderModePlaceholder), []byte(mode))
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "index.html", time.Time{}, bytes.NewReader(data))
}

func applyBaseHref(data []byte, baseHref string) []byte {
	replacement := ""
	if strings.TrimSpace(baseHref) != "" {
		replacement = fmt.Sprintf(`<base href="%s">`, html.EscapeString(baseHref))
	}
	return bytes.Replace(data, []byte(baseHrefPlaceholder), []byte(replacement), 1)
}

func (s *Server) handleCells(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, s.source.Snapshot(r.Context()))
}

func (s *Server) handleCell(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	id := schema.NodeID(strings.TrimSpace(r.URL.Query().Get("id")))
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("id is required"))
		return
	}
	cell, ok := s.source.Cell(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", schema.ErrCellNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, cell)
}

// HoverRequest drives the hover controller.
type HoverRequest struct {
	Node   schema.NodeID  `json:"node"`
	Token  schema.TokenID `json:"token"`
	Action string         `json:"action"`
}

func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var req HoverRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var enter bool
	switch req.Action {
	case "enter":
		enter = true
	case "leave":
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("action must be enter or leave, got %q", req.Action))
		return
	}
	if req.Node == "" || req.Token == "" {
		writeError(w, http.StatusBadRequest, errors.New("node and token are required"))
		return
	}
	ctx := logx.ContextWithNode(r.Context(), req.Node)
	cell, err := s.source.Hover(ctx, req.Node, req.Token, enter)
	if err != nil {
		logx.WithToken(logx.WithNode(ctx, req.Node), req.Token).Warn("http hover failed", "action", req.Action, "error", err)
		writeError(w, hoverStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, cell)
}

func hoverStatus(err error) int {
	switch {
	case errors.Is(err, schema.ErrCellNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrTokenNotHoverable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, schema.ErrStructural):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// streamRetry is the reconnect delay suggested to stream clients.
const streamRetry = time.Second

// hoverPayload is the data of an EventHover stream event.
type hoverPayload struct {
	Node  schema.NodeID  `json:"node"`
	Token schema.TokenID `json:"token"`
	Enter bool           `json:"enter"`
	Cell  *snapshot.Cell `json:"cell,omitempty"`
}

// handleStream relays the viewer's stream. A new client receives a reset
// followed by one message creating the current state; a client resuming
// with Last-Event-ID receives the missed messages when the history still
// covers them.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := pslog.Ctx(r.Context()).With("remote", clientIP(r))
	ctx, cancel := mergeDone(r.Context(), s.baseCtx)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", streamRetry.Milliseconds())

	ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	floor, replayed, resumed := s.resume(w, lastID)
	if !resumed {
		messages, seq := s.source.SnapshotMessages(ctx)
		for i, msg := range messages {
			data, err := schema.EncodeMessage(msg)
			if err != nil {
				log.Error("http stream snapshot encode failed", "error", err)
				return
			}
			id := uint64(0)
			if i == len(messages)-1 {
				id = seq
			}
			if err := writeSSEvent(w, id, EventMessage, data); err != nil {
				return
			}
		}
		floor = seq
	}
	flusher.Flush()
	log.Info("http stream opened", "last_id", lastID, "resumed", resumed, "replay", replayed, "seq", floor)

	for {
		select {
		case <-ctx.Done():
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				log.Warn("http stream lagged; closing")
				return
			}
			if err := s.relay(ctx, w, event, floor); err != nil {
				log.Info("http stream write failed", "error", err)
				return
			}
			if event.Type == EventMessage && event.Seq > floor {
				floor = event.Seq
			}
			flusher.Flush()
		}
	}
}

// resume replays the history after lastID. It reports false when the
// client needs a snapshot instead.
func (s *Server) resume(w io.Writer, lastID uint64) (floor uint64, replayed int, ok bool) {
	if lastID == 0 {
		return 0, 0, false
	}
	current := s.source.Seq()
	if lastID > current {
		return 0, 0, false
	}
	if lastID == current {
		return current, 0, true
	}
	events, ok := s.hub.Replay(lastID)
	if !ok {
		return 0, 0, false
	}
	floor = lastID
	for _, event := range events {
		if err := writeSSEvent(w, event.Seq, event.Type, event.Data); err != nil {
			return floor, replayed, true
		}
		floor = event.Seq
		replayed++
	}
	return floor, replayed, true
}

func (s *Server) relay(ctx context.Context, w io.Writer, event StreamEvent, floor uint64) error {
	switch event.Type {
	case EventMessage:
		if event.Seq <= floor {
			return nil
		}
		return writeSSEvent(w, event.Seq, EventMessage, event.Data)
	case EventHover:
		if event.Seq < floor {
			return nil
		}
		payload := hoverPayload{Node: event.Node, Token: event.Token, Enter: event.Enter}
		if cell, ok := s.source.Cell(ctx, event.Node); ok {
			payload.Cell = &cell
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		return writeSSEvent(w, 0, EventHover, data)
	default:
		return nil
	}
}

// mergeDone returns a context cancelled when either parent is done. Values
// come from primary.
func mergeDone(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(primary)
	if secondary == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

// writeSSEvent writes one event. An id of zero is omitted so the client
// keeps its last event id. The message type is the default and is not
// named.
func writeSSEvent(w io.Writer, id uint64, eventType string, data []byte) error {
	var b strings.Builder
	if id > 0 {
		b.WriteString("id: ")
		b.WriteString(strconv.FormatUint(id, 10))
		b.WriteString("\n")
	}
	if eventType != "" && eventType != EventMessage {
		b.WriteString("event: ")
		b.WriteString(eventType)
		b.WriteString("\n")
	}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func parseUint(value string) uint64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
