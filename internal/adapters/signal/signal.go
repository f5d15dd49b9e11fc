// Package signal is the websocket signaling adapter: it accepts
// per-participant connections, pumps frames in and out, and translates
// wire messages into coordinator calls.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"stereocast/internal/app"
	"stereocast/internal/config"
	"stereocast/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

type SignalWSController struct {
	Coord      *app.Coordinator
	readLimit  int64
	pingPeriod time.Duration
	pongWait   time.Duration
	limiter    *RequestLimiter
}

func NewSignalWSController(coord *app.Coordinator, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		Coord:      coord,
		readLimit:  cfg.ReadLimit,
		pingPeriod: cfg.PingPeriod,
		// The read deadline must outlast one ping interval or healthy
		// peers get cut mid-silence.
		pongWait: cfg.PingPeriod * 10 / 9,
		limiter:  NewRequestLimiter(8, 10*time.Second),
	}
}

// WsSignalConn wraps one websocket with a bounded outbound queue.
// TrySend never blocks; a full queue drops the frame with an error.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	// Session ids identify one live connection, never a browser: a
	// refresh or second tab gets its own id instead of evicting the
	// connection still bound to the cookie token.
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).
		Str("client", c.GetString("client_token")).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.readLimit > 0 {
		ws.SetReadLimit(ctl.readLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Coord.Connect(sid, conn, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)
}
