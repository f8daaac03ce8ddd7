package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jkaflik/cover2mqtt/internal/shutter"
	ws "github.com/jkaflik/cover2mqtt/internal/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Home Assistant ingress proxies from its own origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type StatusMessage struct {
	Type  string        `json:"type"`
	Cover CoverResponse `json:"cover"`
}

func statusMessage(name string, status shutter.Status) ([]byte, error) {
	return json.Marshal(StatusMessage{Type: "status", Cover: NewCoverResponse(name, status)})
}

// Feed broadcasts every status change of covers to the hub clients.
func Feed(covers *Covers, hub *ws.Hub) {
	for _, s := range covers.All() {
		name := s.Name()
		s.OnUpdate(func(status shutter.Status) {
			message, err := statusMessage(name, status)
			if err != nil {
				logrus.Errorf("%s: websocket status marshal failed: %s", name, err)
				return
			}
			hub.Broadcast(message)
		})
	}
}

func websocketUpgrade(covers *Covers, hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.Errorf("api: websocket upgrade failed: %s", err)
			return
		}

		client := ws.NewClient()
		for _, s := range covers.All() {
			message, err := statusMessage(s.Name(), s.Status())
			if err != nil {
				continue
			}
			client.Queue(message)
		}
		hub.Register(client)

		go writePump(conn, client)
		go readPump(conn, client, hub)
	}
}

func writePump(conn *websocket.Conn, client *ws.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only drains control frames, the feed is one way.
func readPump(conn *websocket.Conn, client *ws.Client, hub *ws.Hub) {
	defer func() {
		hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxBodySize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Warnf("api: websocket read failed: %s", err)
			}
			return
		}
	}
}
