package renderer

import (
	"context"
	"encoding/json/v2"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/listenupapp/listenup-reader/internal/errors"
)

// Frame types exchanged with the rendering webview.
const (
	frameNavigateHref         = "navigate_href"
	frameNavigateFraction     = "navigate_fraction"
	frameNavigateBookFraction = "navigate_book_fraction"
	frameTurnPage             = "turn_page"
	frameHighlight            = "highlight"
	frameClearHighlight       = "clear_highlight"
	frameQueryVisibleAnchors  = "query_visible_anchors"
	frameVisibleAnchors       = "visible_anchors"
	frameRelocated            = "relocated"
	framePageFlipped          = "page_flipped"
	frameElementVisibility    = "element_visibility"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	queryTimeout = 2 * time.Second
)

// frame is the single wire envelope for both directions. Unused fields are
// omitted per frame type.
type frame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`

	Href     string   `json:"href,omitempty"`
	Section  int      `json:"section,omitempty"`
	Fraction float64  `json:"fraction,omitempty"`
	Forward  bool     `json:"forward,omitempty"`
	Anchor   string   `json:"anchor,omitempty"`
	Anchors  []string `json:"anchors,omitempty"`

	Page            int     `json:"page,omitempty"`
	TotalPages      int     `json:"total_pages,omitempty"`
	FromPage        int     `json:"from_page,omitempty"`
	ToPage          int     `json:"to_page,omitempty"`
	ChapterFraction float64 `json:"chapter_fraction,omitempty"`
	VisibleRatio    float64 `json:"visible_ratio,omitempty"`
	OffScreenRatio  float64 `json:"off_screen_ratio,omitempty"`
}

// Bridge speaks the renderer protocol over one websocket connection and
// implements Controller. Inbound events are handed to the sink, which is
// expected to schedule them onto the owning session's run loop.
type Bridge struct {
	conn   *websocket.Conn
	sink   func(Event)
	logger *slog.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan []string

	closeOnce sync.Once
	closed    chan struct{}
}

// NewBridge wraps an upgraded connection and starts its read and ping loops.
func NewBridge(conn *websocket.Conn, sink func(Event), logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		conn:    conn,
		sink:    sink,
		logger:  logger.With("component", "renderer-bridge"),
		pending: make(map[string]chan []string),
		closed:  make(chan struct{}),
	}
	go b.readLoop()
	go b.pingLoop()
	return b
}

// Close tears the connection down. Safe to call repeatedly.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		close(b.closed)
		_ = b.conn.Close()
	})
}

// Done is closed when the connection has gone away.
func (b *Bridge) Done() <-chan struct{} {
	return b.closed
}

func (b *Bridge) NavigateToHref(href string) error {
	return b.send(frame{Type: frameNavigateHref, Href: href})
}

func (b *Bridge) NavigateToFraction(section int, fraction float64) error {
	return b.send(frame{Type: frameNavigateFraction, Section: section, Fraction: fraction})
}

func (b *Bridge) NavigateToBookFraction(fraction float64) error {
	return b.send(frame{Type: frameNavigateBookFraction, Fraction: fraction})
}

func (b *Bridge) TurnPage(forward bool) error {
	return b.send(frame{Type: frameTurnPage, Forward: forward})
}

func (b *Bridge) Highlight(anchor string) error {
	return b.send(frame{Type: frameHighlight, Anchor: anchor})
}

func (b *Bridge) ClearHighlight() error {
	return b.send(frame{Type: frameClearHighlight})
}

// VisibleAnchors round-trips a query to the webview, correlated by request id.
func (b *Bridge) VisibleAnchors(ctx context.Context) ([]string, error) {
	id := uuid.NewString()
	ch := make(chan []string, 1)

	b.pendingMu.Lock()
	b.pending[id] = ch
	b.pendingMu.Unlock()
	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, id)
		b.pendingMu.Unlock()
	}()

	if err := b.send(frame{Type: frameQueryVisibleAnchors, RequestID: id}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	select {
	case anchors := <-ch:
		return anchors, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.CodeTransport, "visible-anchors query timed out")
	case <-b.closed:
		return nil, errors.Transport("renderer connection closed")
	}
}

func (b *Bridge) send(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "marshal renderer frame")
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	select {
	case <-b.closed:
		return errors.Transport("renderer connection closed")
	default:
	}

	_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := b.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, errors.CodeTransport, "write renderer frame")
	}
	return nil
}

func (b *Bridge) readLoop() {
	defer b.Close()

	_ = b.conn.SetReadDeadline(time.Now().Add(pongWait))
	b.conn.SetPongHandler(func(string) error {
		return b.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				b.logger.Warn("renderer connection error", "error", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			b.logger.Warn("malformed renderer frame", "error", err)
			continue
		}
		b.dispatch(f)
	}
}

func (b *Bridge) dispatch(f frame) {
	switch f.Type {
	case frameRelocated:
		b.sink(Relocated{
			Section:         f.Section,
			Page:            f.Page,
			TotalPages:      f.TotalPages,
			Href:            f.Href,
			Fraction:        f.Fraction,
			ChapterFraction: f.ChapterFraction,
		})
	case framePageFlipped:
		b.sink(PageFlipped{Forward: f.Forward, FromPage: f.FromPage, ToPage: f.ToPage})
	case frameElementVisibility:
		b.sink(ElementVisibility{
			Anchor:         f.Anchor,
			VisibleRatio:   f.VisibleRatio,
			OffScreenRatio: f.OffScreenRatio,
		})
	case frameVisibleAnchors:
		b.pendingMu.Lock()
		ch, ok := b.pending[f.RequestID]
		b.pendingMu.Unlock()
		if ok {
			ch <- f.Anchors
		}
	default:
		b.logger.Debug("unknown renderer frame", "type", f.Type)
	}
}

func (b *Bridge) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.writeMu.Lock()
			_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := b.conn.WriteMessage(websocket.PingMessage, nil)
			b.writeMu.Unlock()
			if err != nil {
				b.Close()
				return
			}
		case <-b.closed:
			return
		}
	}
}
