package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"voice-bridge/internal/bridge"
	"voice-bridge/pkg/logger"
)

// maxMediaFrame bounds one inbound media-stream message. Twilio sends 20ms
// µ-law frames, well under this.
const maxMediaFrame = 64 << 10

// CallServer runs one call on an upgraded connection. *bridge.Bridge implements it.
type CallServer interface {
	Serve(ctx context.Context, tel bridge.Conn)
}

// MediaStream upgrades the telephony media stream and hands it to the bridge.
type MediaStream struct {
	Bridge   CallServer
	Upgrader websocket.Upgrader
}

func NewMediaStream(b CallServer) *MediaStream {
	return &MediaStream{
		Bridge: b,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The telephony platform sends no Origin; access is gated by the stream token.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (m *MediaStream) Handle(c *gin.Context) {
	log := logger.FromGin(c)
	conn, err := m.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Warn("media stream upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(maxMediaFrame)

	// The hijacked connection outlives request cancellation; shutdown goes
	// through the bridge tracker.
	ctx := logger.With(context.WithoutCancel(c.Request.Context()), log)
	m.Bridge.Serve(ctx, conn)
}
