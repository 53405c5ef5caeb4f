package transport

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type BrokerStatus interface {
	Ready() bool
}

type ConnectionCounter interface {
	ConnectionCount() int
}

type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	BrokerReady bool   `json:"brokerReady"`
}

// NewHealthHandler reports liveness of the process. broker may be nil when
// the durable log is disabled.
func NewHealthHandler(connections ConnectionCounter, broker BrokerStatus) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := HealthResponse{Status: "ok", Connections: connections.ConnectionCount()}
		if broker != nil {
			resp.BrokerReady = broker.Ready()
		}
		return c.JSON(http.StatusOK, resp)
	}
}
