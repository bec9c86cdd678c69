package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"mnemos/backend/internal/session"
	"mnemos/backend/pkg/logger"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// HandleWebSocket upgrades the request and runs the session's read loop.
// Envelopes go through a per-session queue drained by one worker goroutine,
// so each session handles its traffic strictly in arrival order while a
// disconnect is noticed immediately even mid-pipeline: the read loop closes
// the session right away, cancelling the session context for any in-flight
// gateway calls.
func HandleWebSocket(registry *session.Registry, rt *Router) gin.HandlerFunc {
	log := logger.Get()

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error("Failed to upgrade websocket", zap.Error(err))
			return
		}

		sess, err := registry.Open(conn)
		if err != nil {
			log.Error("Failed to open session", zap.Error(err))
			_ = conn.Close()
			return
		}

		frames := make(chan []byte, 16)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for data := range frames {
				rt.Route(sess.Context(), sess, data)
			}
		}()

		for {
			data, err := sess.ReadMessage()
			if err != nil {
				log.Info("Websocket client disconnected",
					zap.String("session_id", sess.ID),
					zap.String("reason", err.Error()),
				)
				break
			}
			frames <- data
		}

		registry.Close(sess.ID)
		close(frames)
		<-done
	}
}
