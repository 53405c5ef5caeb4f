package transport

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"customerWs/internal/modules/realtime/infrastructure"
	"customerWs/internal/shared/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewWebsocketHandler upgrades the request and hands the connection to the
// gateway. A bearer token in the Authorization header or the token query
// parameter is kept for the authenticate message.
func NewWebsocketHandler(gw *infrastructure.Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := auth.ExtractToken(c.Request(), "token")
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)

		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			slog.Warn("ws handler upgrade failed",
				slog.String("ip", c.RealIP()),
				slog.String("requestId", requestID),
				slog.Any("error", err),
			)
			return nil
		}

		conn := gw.Accept(ws, token)
		slog.Info("ws handler upgrade success",
			slog.String("connectionId", conn.ID()),
			slog.String("ip", c.RealIP()),
			slog.Bool("handshakeToken", token != ""),
		)
		go gw.Serve(conn)
		return nil
	}
}
