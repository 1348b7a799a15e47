package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	streamBuffer   = 64
	maxClientFrame = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are already filtered by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleEventStream replays events after ?since= and then streams new ones until the client leaves.
func (a *API) handleEventStream(c *gin.Context) {
	since := sinceParam(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.services.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, detach := a.services.Events.Subscribe(streamBuffer)
	defer detach()

	done := make(chan struct{})
	go readUntilClosed(conn, done)

	last := since
	for _, event := range a.services.Events.Since(since) {
		if err := writeJSON(conn, event); err != nil {
			return
		}
		last = event.Seq
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			if event.Seq <= last {
				continue
			}
			if err := writeJSON(conn, event); err != nil {
				return
			}
			last = event.Seq
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readUntilClosed drains client frames so control messages are processed, and signals on disconnect.
func readUntilClosed(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
