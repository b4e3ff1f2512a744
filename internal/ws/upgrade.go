package ws

import (
	"net/http"
	"strconv"
	"time"

	"callcast/config"
	"callcast/internal/auth"
	"callcast/internal/metrics"
	"callcast/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Presence is told when a member's first connection opens and last one closes.
type Presence interface {
	SetOnline(memberID uint, online bool) error
}

// ServeMember upgrades /ws/:member_id. The token query parameter must belong
// to the member in the path.
func ServeMember(cfg *config.JWTConfig, hub *Hub, presence Presence) gin.HandlerFunc {
	return func(c *gin.Context) {
		memberID, err := strconv.ParseUint(c.Param("member_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid member id"})
			return
		}
		claims, err := auth.ParseAccessToken(cfg, c.Query("token"))
		if err != nil || uint64(claims.UserID) != memberID {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		log := logger.With("ws").WithField("member_id", claims.UserID)
		client := NewClient(claims.UserID, claims.Role)
		if hub.Register(client) && presence != nil {
			if err := presence.SetOnline(client.UserID, true); err != nil {
				log.WithError(err).Warn("[WS] mark online failed")
			}
		}
		metrics.ClientConnected()
		defer func() {
			metrics.ClientDisconnected()
			if client.Close() && presence != nil {
				if err := presence.SetOnline(client.UserID, false); err != nil {
					log.WithError(err).Warn("[WS] mark offline failed")
				}
			}
		}()
		go writePump(client, conn)
		readPump(conn)
	}
}

// writePump copies messages from client.Send to the connection.
func writePump(c *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames; the channel is push only.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(4096)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
