package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"customerWs/internal/modules/events/application/port"
	eventsdomain "customerWs/internal/modules/events/domain"
	"customerWs/internal/modules/realtime/domain"
	"customerWs/internal/shared/auth"
	"customerWs/internal/shared/logging"
)

// Error texts sent to clients.
const (
	errSubscribeForbidden   = "Unauthorized: cannot subscribe to another customer's events"
	errUpdateForbidden      = "Unauthorized: cannot update another customer's data"
	errUpdateFailed         = "Failed to update customer"
	errInvalidFormat        = "Invalid message format"
	errTopicRequired        = "Topic is required"
	errCustomerIDRequired   = "Customer ID is required"
	errUpdateFieldsRequired = "Customer ID and update data are required"
	errInvalidToken         = "Unauthorized: invalid token"
	errTokenMismatch        = "Unauthorized: token does not match customer"
	errReauthenticate       = "Already authenticated as a different customer"
	errRateLimited          = "Rate limit exceeded"
	errUnknownTypePrefix    = "Unknown message type: "
)

type GatewayConfig struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
	ReadLimit    int64
	MessageRate  float64
	MessageBurst int
}

type GatewayOption func(*Gateway)

// WithCustomerUpdater sets the collaborator behind customer_update. Without
// one every update is answered with a generic failure.
func WithCustomerUpdater(u port.CustomerUpdater) GatewayOption {
	return func(g *Gateway) { g.updater = u }
}

// WithTokenValidator makes authenticate require a token whose customer id
// matches the claimed one.
func WithTokenValidator(v auth.TokenValidator) GatewayOption {
	return func(g *Gateway) { g.validator = v }
}

func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

func WithIDGenerator(newID func() string) GatewayOption {
	return func(g *Gateway) { g.newID = newID }
}

// Gateway owns the live connections: it accepts transports, runs the
// per-connection protocol and fans published events out to subscribers.
type Gateway struct {
	cfg       GatewayConfig
	registry  *ConnectionRegistry
	monitor   *LivenessMonitor
	updater   port.CustomerUpdater
	validator auth.TokenValidator
	now       func() time.Time
	newID     func() string

	baseCtx context.Context
	cancel  context.CancelFunc

	// mu guards closing so no update is added to pending once Shutdown waits.
	mu      sync.Mutex
	closing bool
	pending sync.WaitGroup
}

func NewGateway(cfg GatewayConfig, opts ...GatewayOption) *Gateway {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = 20
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		cfg:      cfg,
		registry: NewConnectionRegistry(),
		now:      time.Now,
		newID:    uuid.NewString,
		baseCtx:  ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.monitor = NewLivenessMonitor(g.registry, cfg.PingInterval, cfg.WriteTimeout, g.Disconnect)
	g.monitor.now = g.now
	return g
}

func (g *Gateway) Registry() *ConnectionRegistry { return g.registry }

func (g *Gateway) Monitor() *LivenessMonitor { return g.monitor }

func (g *Gateway) ConnectionCount() int { return g.registry.Len() }

// Accept registers a freshly upgraded transport and greets the client.
// handshakeToken is the bearer token presented on the upgrade request, if
// any; authenticate falls back to it when the message carries no token.
func (g *Gateway) Accept(t Transport, handshakeToken string) *Connection {
	c := newConnection(g.newID(), t, g.cfg.SendBuffer, g.cfg.WriteTimeout, g.now())
	c.handshakeToken = strings.TrimSpace(handshakeToken)
	if g.cfg.MessageRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(g.cfg.MessageRate), g.cfg.MessageBurst)
	}
	if g.cfg.ReadLimit > 0 {
		t.SetReadLimit(g.cfg.ReadLimit)
	}
	t.SetPongHandler(func(string) error {
		c.markAlive(g.now())
		return nil
	})

	g.registry.Add(c)
	slog.Info("websocket connection accepted",
		slog.String("connectionId", c.id),
		slog.Int("connections", g.registry.Len()),
	)

	ts := g.timestamp()
	g.reply(c, domain.TypeConnectionEstablished, domain.ConnectionEstablished{ConnectionID: c.id, Timestamp: ts}, "")
	return c
}

// Serve pumps frames for c until the transport fails or the connection is
// closed, then removes it from the registry.
func (g *Gateway) Serve(c *Connection) {
	go func() {
		if err := c.writePump(); err != nil {
			slog.Debug("websocket write error", slog.String("connectionId", c.id), slog.Any("error", err))
		}
		g.Disconnect(c)
	}()
	defer g.Disconnect(c)

	for {
		_, raw, err := c.transport.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) && c.IsOpen() {
				slog.Debug("websocket read error", slog.String("connectionId", c.id), slog.Any("error", err))
			}
			return
		}
		g.HandleMessage(c, raw)
	}
}

// Disconnect removes c from the registry and closes its transport. Every
// close path funnels through here; repeated calls are no-ops.
func (g *Gateway) Disconnect(c *Connection) {
	_, removed := g.registry.Remove(c.id)
	c.close()
	if removed {
		slog.Info("websocket connection closed",
			slog.String("connectionId", c.id),
			slog.String("customerId", c.CustomerID()),
			slog.Int("subscriptions", len(c.Subscriptions())),
			slog.Int("connections", g.registry.Len()),
		)
	}
}

// HandleMessage processes one inbound frame. Protocol and authorization
// errors are reported to the client and never close the connection.
func (g *Gateway) HandleMessage(c *Connection, raw []byte) {
	slog.Log(context.Background(), logging.LevelTrace, "websocket frame received",
		slog.String("connectionId", c.id),
		slog.Int("bytes", len(raw)),
	)
	if c.limiter != nil && !c.limiter.Allow() {
		g.replyError(c, errRateLimited, "")
		return
	}
	msg, err := domain.DecodeInbound(raw)
	if err != nil {
		slog.Debug("websocket message rejected", slog.String("connectionId", c.id), slog.Any("error", err))
		g.replyError(c, errInvalidFormat, "")
		return
	}
	requestID := msg.RequestID.String()

	switch msg.Type {
	case domain.TypeSubscribe:
		g.handleSubscribe(c, msg, requestID)
	case domain.TypeUnsubscribe:
		g.handleUnsubscribe(c, msg, requestID)
	case domain.TypeAuthenticate:
		g.handleAuthenticate(c, msg, requestID)
	case domain.TypePing:
		g.reply(c, domain.TypePong, domain.Pong{Timestamp: g.timestamp()}, requestID)
	case domain.TypeCustomerUpdate:
		g.handleCustomerUpdate(c, msg, requestID)
	default:
		slog.Debug("websocket unknown message type", slog.String("connectionId", c.id), slog.String("type", msg.Type))
		g.replyError(c, errUnknownTypePrefix+msg.Type, requestID)
	}
}

func (g *Gateway) handleSubscribe(c *Connection, msg domain.InboundMessage, requestID string) {
	var data domain.SubscriptionData
	if err := msg.DecodeData(&data); err != nil {
		g.replyError(c, errInvalidFormat, requestID)
		return
	}
	topic := strings.TrimSpace(data.Topic)
	if topic == "" {
		g.replyError(c, errTopicRequired, requestID)
		return
	}
	scope := data.CustomerID.String()
	if scope != "" && scope != c.CustomerID() {
		slog.Warn("websocket subscribe rejected",
			slog.String("connectionId", c.id),
			slog.String("customerId", c.CustomerID()),
			slog.String("requested", scope),
			slog.String("topic", topic),
		)
		g.replyError(c, errSubscribeForbidden, requestID)
		return
	}
	key := domain.SubscriptionKey(topic, scope)
	c.subscribe(key)
	slog.Debug("websocket subscribed", slog.String("connectionId", c.id), slog.String("topic", key))
	g.reply(c, domain.TypeSubscriptionConfirmed, domain.SubscriptionConfirmed{Topic: topic, CustomerID: scope, SubscriptionKey: key}, requestID)
}

func (g *Gateway) handleUnsubscribe(c *Connection, msg domain.InboundMessage, requestID string) {
	var data domain.SubscriptionData
	if err := msg.DecodeData(&data); err != nil {
		g.replyError(c, errInvalidFormat, requestID)
		return
	}
	topic := strings.TrimSpace(data.Topic)
	if topic == "" {
		g.replyError(c, errTopicRequired, requestID)
		return
	}
	scope := data.CustomerID.String()
	key := domain.SubscriptionKey(topic, scope)
	c.unsubscribe(key)
	slog.Debug("websocket unsubscribed", slog.String("connectionId", c.id), slog.String("topic", key))
	g.reply(c, domain.TypeUnsubscriptionConfirmed, domain.SubscriptionConfirmed{Topic: topic, CustomerID: scope, SubscriptionKey: key}, requestID)
}

func (g *Gateway) handleAuthenticate(c *Connection, msg domain.InboundMessage, requestID string) {
	var data domain.AuthenticateData
	if err := msg.DecodeData(&data); err != nil {
		g.replyError(c, errInvalidFormat, requestID)
		return
	}
	customerID := data.CustomerID.String()
	if customerID == "" {
		g.replyError(c, errCustomerIDRequired, requestID)
		return
	}
	if g.validator != nil {
		token := strings.TrimSpace(data.Token)
		if token == "" {
			token = c.handshakeToken
		}
		claims, err := g.validator.Validate(token)
		if err != nil {
			slog.Warn("websocket authentication failed", slog.String("connectionId", c.id), slog.Any("error", err))
			g.replyError(c, errInvalidToken, requestID)
			return
		}
		if claims.CustomerID != customerID {
			slog.Warn("websocket token customer mismatch",
				slog.String("connectionId", c.id),
				slog.String("customerId", customerID),
				slog.String("tokenCustomerId", claims.CustomerID),
			)
			g.replyError(c, errTokenMismatch, requestID)
			return
		}
	}
	if err := c.authenticate(customerID); err != nil {
		if errors.Is(err, ErrAlreadyAuthenticated) {
			g.replyError(c, errReauthenticate, requestID)
			return
		}
		g.replyError(c, errInvalidFormat, requestID)
		return
	}
	slog.Info("websocket authenticated", slog.String("connectionId", c.id), slog.String("customerId", customerID))
	g.reply(c, domain.TypeAuthenticationSuccess, domain.AuthenticationSuccess{CustomerID: customerID}, requestID)
}

func (g *Gateway) handleCustomerUpdate(c *Connection, msg domain.InboundMessage, requestID string) {
	var data domain.CustomerUpdateData
	if err := msg.DecodeData(&data); err != nil {
		g.replyError(c, errInvalidFormat, requestID)
		return
	}
	customerID := data.CustomerID.String()
	if customerID == "" || data.UpdateData == nil {
		g.replyError(c, errUpdateFieldsRequired, requestID)
		return
	}
	if c.CustomerID() != customerID {
		slog.Warn("websocket customer update rejected",
			slog.String("connectionId", c.id),
			slog.String("customerId", c.CustomerID()),
			slog.String("requested", customerID),
		)
		g.replyError(c, errUpdateForbidden, requestID)
		return
	}
	if g.updater == nil {
		g.replyError(c, errUpdateFailed, requestID)
		return
	}

	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		g.replyError(c, errUpdateFailed, requestID)
		return
	}
	g.pending.Add(1)
	g.mu.Unlock()
	go func() {
		defer g.pending.Done()
		ctx := port.ContextWithRequestID(g.baseCtx, requestID)
		customer, err := g.updater.UpdateCustomer(ctx, customerID, data.UpdateData)
		if err != nil {
			slog.Warn("websocket customer update failed",
				slog.String("connectionId", c.id),
				slog.String("customerId", customerID),
				slog.Any("error", err),
			)
			g.replyError(c, errUpdateFailed, requestID)
			return
		}
		g.reply(c, domain.TypeCustomerUpdated, domain.CustomerUpdated{Customer: customer}, requestID)
	}()
}

// Publish sends {type: eventType, data, timestamp} to every open connection
// subscribed to SubscriptionKey(eventType, scopeID) and returns how many
// connections the frame was queued for. It never blocks on a transport.
func (g *Gateway) Publish(eventType string, data any, scopeID string) int {
	key := domain.SubscriptionKey(eventType, scopeID)
	frame, err := json.Marshal(domain.OutboundMessage{Type: eventType, Data: data, Timestamp: g.timestamp()})
	if err != nil {
		slog.Error("websocket publish marshal error", slog.String("eventType", eventType), slog.Any("error", err))
		return 0
	}
	delivered := 0
	g.registry.ForEach(func(c *Connection) {
		if !c.IsOpen() || !c.subscribed(key) {
			return
		}
		if c.enqueue(frame) {
			delivered++
		}
	})
	return delivered
}

// Run drives the liveness monitor until ctx is done.
func (g *Gateway) Run(ctx context.Context) {
	g.monitor.Run(ctx)
}

// Shutdown cancels in-flight customer updates, waits for them and closes
// every connection.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()
	g.cancel()
	g.pending.Wait()
	g.registry.ForEach(g.Disconnect)
}

func (g *Gateway) reply(c *Connection, msgType string, data any, requestID string) {
	frame, err := json.Marshal(domain.OutboundMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: g.timestamp(),
		RequestID: requestID,
	})
	if err != nil {
		slog.Error("websocket reply marshal error", slog.String("type", msgType), slog.Any("error", err))
		return
	}
	c.enqueue(frame)
}

func (g *Gateway) replyError(c *Connection, text, requestID string) {
	g.reply(c, domain.TypeError, domain.ErrorReply{Error: text}, requestID)
}

func (g *Gateway) timestamp() string {
	return eventsdomain.FormatTimestamp(g.now())
}
