package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"WasteFlow/internal/domain/models"
	"WasteFlow/pkg/logger"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

type client struct {
	conn     *websocket.Conn
	send     chan []byte
	material string
}

// ContractFeed broadcasts exchange events to websocket subscribers. It is an
// EventPublisher: Publish never blocks on a slow client; a client whose
// buffer is full is disconnected.
type ContractFeed struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	log      *logger.Logger
	closed   bool
}

func NewContractFeed(l *logger.Logger) *ContractFeed {
	if l == nil {
		l = logger.Nop()
	}
	return &ContractFeed{
		clients:  make(map[*client]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		log:      l,
	}
}

// Publish sends ev to every subscriber whose material filter matches.
func (f *ContractFeed) Publish(_ context.Context, ev models.ExchangeEvent) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	material := eventMaterial(ev)

	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		if c.material != "" && c.material != material {
			continue
		}
		select {
		case c.send <- msg:
		default:
			f.log.Warn("websocket client too slow, dropping")
			f.removeLocked(c)
		}
	}
	return nil
}

func eventMaterial(ev models.ExchangeEvent) string {
	switch {
	case ev.Contract != nil:
		return ev.Contract.MaterialType
	case ev.Listing != nil:
		return ev.Listing.MaterialType
	default:
		return ""
	}
}

// Clients returns the number of connected subscribers.
func (f *ContractFeed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// RegisterRoutes mounts the feed at /api/market/feed.
func (f *ContractFeed) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/market/feed", f.Handler)
}

// Handler upgrades the request and streams events until the client goes away.
// An optional ?material= query narrows the feed.
func (f *ContractFeed) Handler(c echo.Context) error {
	conn, err := f.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		f.log.Warn("websocket upgrade error", logger.Error(err))
		return nil
	}

	cl := &client{conn: conn, send: make(chan []byte, sendBuffer), material: c.QueryParam("material")}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	f.clients[cl] = struct{}{}
	f.mu.Unlock()
	f.log.Debug("websocket client connected", logger.String("material", cl.material))

	go f.writeLoop(cl)
	f.readLoop(cl)
	return nil
}

// readLoop drains control frames so pongs and close frames are processed.
func (f *ContractFeed) readLoop(cl *client) {
	defer f.remove(cl)
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *ContractFeed) writeLoop(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				f.log.Debug("websocket write error", logger.Error(err))
				f.remove(cl)
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.remove(cl)
				return
			}
		}
	}
}

func (f *ContractFeed) remove(cl *client) {
	f.mu.Lock()
	f.removeLocked(cl)
	f.mu.Unlock()
}

func (f *ContractFeed) removeLocked(cl *client) {
	if _, ok := f.clients[cl]; ok {
		delete(f.clients, cl)
		close(cl.send)
	}
}

// Close disconnects every subscriber.
func (f *ContractFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for c := range f.clients {
		f.removeLocked(c)
	}
	return nil
}
