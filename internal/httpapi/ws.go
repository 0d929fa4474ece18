package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"video-detector/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	// The API binds to loopback by default; the desktop webview and local
	// browser tabs use different origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// httpEvents upgrades to a websocket that replays events after ?since=N and
// then streams new ones as JSON text messages.
func (s *Server) httpEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("Websocket upgrade: %v", err)
		return
	}

	c := &client{send: make(chan events.Event, clientBuffer)}
	s.hub.Register(c)
	backlog := s.ctrl.Events(since)

	go s.writePump(conn, c, backlog)
	go s.readPump(conn, c)
}

// readPump keeps the connection alive and detects disconnection
func (s *Server) readPump(conn *websocket.Conn, c *client) {
	defer func() {
		s.hub.Unregister(c)
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Infof("Websocket read: %v", err)
			}
			return
		}
	}
}

// writePump is the only writer on conn. It sends the backlog first and then
// live events, skipping any already covered by the backlog.
func (s *Server) writePump(conn *websocket.Conn, c *client, backlog []events.Event) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	var lastSent int64
	send := func(e events.Event) error {
		if e.Seq <= lastSent {
			return nil
		}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
		lastSent = e.Seq
		return nil
	}

	for _, e := range backlog {
		if err := send(e); err != nil {
			return
		}
	}

	for {
		select {
		case e, ok := <-c.send:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := send(e); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
