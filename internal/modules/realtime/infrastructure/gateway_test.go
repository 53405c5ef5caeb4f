package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"customerWs/internal/modules/events/application/port"
	eventsdomain "customerWs/internal/modules/events/domain"
	"customerWs/internal/modules/realtime/domain"
	"customerWs/internal/shared/auth"
)

type fakeTransport struct {
	mu        sync.Mutex
	written   [][]byte
	incoming  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	pong      func(string) error
	respond   bool
	pings     atomic.Int32
}

func newFakeTransport(respond bool) *fakeTransport {
	return &fakeTransport{incoming: make(chan []byte, 16), closed: make(chan struct{}), respond: respond}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	select {
	case m := <-f.incoming:
		return websocket.TextMessage, m, nil
	case <-f.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeTransport) WriteControl(messageType int, _ []byte, _ time.Time) error {
	if messageType != websocket.PingMessage {
		return nil
	}
	f.pings.Add(1)
	f.mu.Lock()
	pong, respond := f.pong, f.respond
	f.mu.Unlock()
	if respond && pong != nil {
		return pong("")
	}
	return nil
}

func (f *fakeTransport) SetReadLimit(int64) {}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) SetPongHandler(h func(string) error) {
	f.mu.Lock()
	f.pong = h
	f.mu.Unlock()
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func newTestGateway(opts ...GatewayOption) *Gateway {
	var seq atomic.Int64
	base := []GatewayOption{
		WithIDGenerator(func() string { return fmt.Sprintf("conn-%d", seq.Add(1)) }),
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }),
	}
	return NewGateway(GatewayConfig{PingInterval: time.Minute, SendBuffer: 16}, append(base, opts...)...)
}

// accept registers a connection and drains the greeting.
func accept(t *testing.T, g *Gateway) (*Connection, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport(true)
	c := g.Accept(tr, "")
	if msg := next(t, c); msg.Type != domain.TypeConnectionEstablished {
		t.Fatalf("expected greeting, got %s", msg.Type)
	}
	return c, tr
}

type received struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
	RequestID string          `json:"requestId"`
}

func next(t *testing.T, c *Connection) received {
	t.Helper()
	select {
	case frame := <-c.send:
		var msg received
		if err := json.Unmarshal(frame, &msg); err != nil {
			t.Fatalf("bad frame %s: %v", frame, err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return received{}
	}
}

func expectNone(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case frame := <-c.send:
		t.Fatalf("unexpected frame %s", frame)
	default:
	}
}

func send(g *Gateway, c *Connection, raw string) {
	g.HandleMessage(c, []byte(raw))
}

func expectError(t *testing.T, c *Connection, want string) {
	t.Helper()
	msg := next(t, c)
	if msg.Type != domain.TypeError {
		t.Fatalf("expected error frame, got %s %s", msg.Type, msg.Data)
	}
	var body domain.ErrorReply
	_ = json.Unmarshal(msg.Data, &body)
	if body.Error != want {
		t.Fatalf("expected error %q, got %q", want, body.Error)
	}
}

func TestGateway_AcceptGreets(t *testing.T) {
	g := newTestGateway()
	c := g.Accept(newFakeTransport(true), "")
	msg := next(t, c)
	var data domain.ConnectionEstablished
	_ = json.Unmarshal(msg.Data, &data)
	if data.ConnectionID != c.ID() || data.Timestamp != "2024-05-01T12:00:00.000Z" {
		t.Fatalf("unexpected greeting %+v", data)
	}
	if got, ok := g.Registry().Get(c.ID()); !ok || got != c {
		t.Fatal("connection not registered")
	}
}

func TestGateway_SubscribeThenPublish(t *testing.T) {
	g := newTestGateway()
	a, _ := accept(t, g)
	b, _ := accept(t, g)

	send(g, a, `{"type":"subscribe","data":{"topic":"T"},"requestId":"r-1"}`)
	confirm := next(t, a)
	if confirm.Type != domain.TypeSubscriptionConfirmed || confirm.RequestID != "r-1" {
		t.Fatalf("unexpected confirmation %+v", confirm)
	}

	if n := g.Publish("T", map[string]string{"hello": "world"}, ""); n != 1 {
		t.Fatalf("expected one delivery, got %d", n)
	}
	msg := next(t, a)
	if msg.Type != "T" || string(msg.Data) != `{"hello":"world"}` {
		t.Fatalf("unexpected event %+v", msg)
	}
	expectNone(t, a)
	expectNone(t, b)
}

func TestGateway_ScopedSubscribeRequiresAuthentication(t *testing.T) {
	g := newTestGateway()
	c, _ := accept(t, g)

	send(g, c, `{"type":"subscribe","data":{"topic":"customer_updated","customerId":"C"}}`)
	expectError(t, c, errSubscribeForbidden)

	send(g, c, `{"type":"authenticate","data":{"customerId":"D"}}`)
	if msg := next(t, c); msg.Type != domain.TypeAuthenticationSuccess {
		t.Fatalf("expected authentication_success, got %s", msg.Type)
	}
	send(g, c, `{"type":"subscribe","data":{"topic":"customer_updated","customerId":"C"}}`)
	expectError(t, c, errSubscribeForbidden)

	send(g, c, `{"type":"subscribe","data":{"topic":"customer_updated","customerId":"D"}}`)
	msg := next(t, c)
	var data domain.SubscriptionConfirmed
	_ = json.Unmarshal(msg.Data, &data)
	if data.SubscriptionKey != "customer_updated_D" || data.CustomerID != "D" {
		t.Fatalf("unexpected confirmation %+v", data)
	}
}

func TestGateway_PublishIsScoped(t *testing.T) {
	g := newTestGateway()
	a, _ := accept(t, g)
	b, _ := accept(t, g)
	for conn, id := range map[*Connection]string{a: "42", b: "43"} {
		send(g, conn, fmt.Sprintf(`{"type":"authenticate","data":{"customerId":%q}}`, id))
		next(t, conn)
		send(g, conn, fmt.Sprintf(`{"type":"subscribe","data":{"topic":"customer_updated","customerId":%s}}`, id))
		next(t, conn)
	}

	if n := g.Publish("customer_updated", map[string]any{"id": "42"}, "42"); n != 1 {
		t.Fatalf("expected one delivery, got %d", n)
	}
	if msg := next(t, a); msg.Type != "customer_updated" {
		t.Fatalf("unexpected frame %s", msg.Type)
	}
	expectNone(t, b)
}

func TestGateway_Reauthentication(t *testing.T) {
	g := newTestGateway()
	c, _ := accept(t, g)
	send(g, c, `{"type":"authenticate","data":{}}`)
	expectError(t, c, errCustomerIDRequired)
	if c.CustomerID() != "" {
		t.Fatal("missing customerId must not change state")
	}

	send(g, c, `{"type":"authenticate","data":{"customerId":"C1"}}`)
	next(t, c)
	send(g, c, `{"type":"authenticate","data":{"customerId":"C1"}}`)
	if msg := next(t, c); msg.Type != domain.TypeAuthenticationSuccess {
		t.Fatalf("same id must succeed again, got %s", msg.Type)
	}
	send(g, c, `{"type":"authenticate","data":{"customerId":"C2"}}`)
	expectError(t, c, errReauthenticate)
	if c.CustomerID() != "C1" {
		t.Fatalf("identity changed to %q", c.CustomerID())
	}
}

type countingUpdater struct {
	calls atomic.Int32
	err   error
}

func (u *countingUpdater) UpdateCustomer(ctx context.Context, id string, data map[string]any) (*eventsdomain.Customer, error) {
	u.calls.Add(1)
	if u.err != nil {
		return nil, u.err
	}
	first, _ := data["firstName"].(string)
	return &eventsdomain.Customer{ID: id, FirstName: first, Email: port.RequestIDFromContext(ctx)}, nil
}

func TestGateway_CustomerUpdateMismatchNeverCallsUpdater(t *testing.T) {
	updater := &countingUpdater{}
	g := newTestGateway(WithCustomerUpdater(updater))
	c, _ := accept(t, g)

	send(g, c, `{"type":"customer_update","data":{"customerId":"C2","updateData":{"firstName":"x"}}}`)
	expectError(t, c, errUpdateForbidden)

	send(g, c, `{"type":"authenticate","data":{"customerId":"C1"}}`)
	next(t, c)
	send(g, c, `{"type":"customer_update","data":{"customerId":"C2","updateData":{"firstName":"x"}}}`)
	expectError(t, c, errUpdateForbidden)

	send(g, c, `{"type":"customer_update","data":{"customerId":"C1"}}`)
	expectError(t, c, errUpdateFieldsRequired)

	g.Shutdown()
	if updater.calls.Load() != 0 {
		t.Fatalf("updater called %d times", updater.calls.Load())
	}
}

func TestGateway_CustomerUpdate(t *testing.T) {
	updater := &countingUpdater{}
	g := newTestGateway(WithCustomerUpdater(updater))
	c, _ := accept(t, g)
	send(g, c, `{"type":"authenticate","data":{"customerId":"C1"}}`)
	next(t, c)

	send(g, c, `{"type":"customer_update","data":{"customerId":"C1","updateData":{"firstName":"Ana"}},"requestId":"req-9"}`)
	msg := next(t, c)
	if msg.Type != domain.TypeCustomerUpdated || msg.RequestID != "req-9" {
		t.Fatalf("unexpected reply %+v", msg)
	}
	var body struct {
		Customer eventsdomain.Customer `json:"customer"`
	}
	if err := json.Unmarshal(msg.Data, &body); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if body.Customer.ID != "C1" || body.Customer.FirstName != "Ana" || body.Customer.Email != "req-9" {
		t.Fatalf("unexpected customer %+v", body.Customer)
	}

	updater.err = errors.New("duplicate key error collection: customers")
	send(g, c, `{"type":"customer_update","data":{"customerId":"C1","updateData":{"firstName":"Ana"}}}`)
	expectError(t, c, errUpdateFailed)
}

func TestGateway_CustomerUpdateWithoutUpdater(t *testing.T) {
	g := newTestGateway()
	c, _ := accept(t, g)
	send(g, c, `{"type":"authenticate","data":{"customerId":"C1"}}`)
	next(t, c)
	send(g, c, `{"type":"customer_update","data":{"customerId":"C1","updateData":{}}}`)
	expectError(t, c, errUpdateFailed)
}

func TestGateway_UnsubscribeIsIdempotent(t *testing.T) {
	g := newTestGateway()
	c, _ := accept(t, g)

	send(g, c, `{"type":"unsubscribe","data":{"topic":"never"}}`)
	if msg := next(t, c); msg.Type != domain.TypeUnsubscriptionConfirmed {
		t.Fatalf("expected confirmation, got %s", msg.Type)
	}

	send(g, c, `{"type":"subscribe","data":{"topic":"T"}}`)
	next(t, c)
	if subs := c.Subscriptions(); len(subs) != 1 || subs[0] != "T" {
		t.Fatalf("unexpected subscriptions %v", subs)
	}
	send(g, c, `{"type":"unsubscribe","data":{"topic":"T"}}`)
	next(t, c)
	if subs := c.Subscriptions(); len(subs) != 0 {
		t.Fatalf("expected no subscriptions, got %v", subs)
	}
	send(g, c, `{"type":"unsubscribe","data":{"topic":"T"}}`)
	next(t, c)
	if n := g.Publish("T", "x", ""); n != 0 {
		t.Fatalf("expected no delivery after unsubscribe, got %d", n)
	}
}

func TestGateway_ProtocolErrors(t *testing.T) {
	g := newTestGateway()
	c, tr := accept(t, g)

	send(g, c, `{"type":"dance"}`)
	expectError(t, c, errUnknownTypePrefix+"dance")
	send(g, c, `garbage`)
	expectError(t, c, errInvalidFormat)
	send(g, c, `{"type":"subscribe","data":{}}`)
	expectError(t, c, errTopicRequired)
	send(g, c, `{"type":"ping"}`)
	if msg := next(t, c); msg.Type != domain.TypePong {
		t.Fatalf("expected pong, got %s", msg.Type)
	}

	if tr.isClosed() || !c.IsOpen() {
		t.Fatal("protocol errors must not close the connection")
	}
}

type stubValidator struct{ customerID string }

func (v stubValidator) Validate(token string) (*auth.Claims, error) {
	if token != "good" {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{CustomerID: v.customerID}, nil
}

func TestGateway_AuthenticateWithValidator(t *testing.T) {
	g := newTestGateway(WithTokenValidator(stubValidator{customerID: "C1"}))
	c, _ := accept(t, g)

	send(g, c, `{"type":"authenticate","data":{"customerId":"C1"}}`)
	expectError(t, c, errInvalidToken)
	send(g, c, `{"type":"authenticate","data":{"customerId":"C2","token":"good"}}`)
	expectError(t, c, errTokenMismatch)
	send(g, c, `{"type":"authenticate","data":{"customerId":"C1","token":"good"}}`)
	if msg := next(t, c); msg.Type != domain.TypeAuthenticationSuccess {
		t.Fatalf("expected success, got %s", msg.Type)
	}

	handshake := g.Accept(newFakeTransport(true), "good")
	next(t, handshake)
	send(g, handshake, `{"type":"authenticate","data":{"customerId":"C1"}}`)
	if msg := next(t, handshake); msg.Type != domain.TypeAuthenticationSuccess {
		t.Fatalf("expected handshake token to be used, got %s", msg.Type)
	}
}

func TestGateway_RateLimit(t *testing.T) {
	g := NewGateway(GatewayConfig{SendBuffer: 16, MessageRate: 0.001, MessageBurst: 1})
	c := g.Accept(newFakeTransport(true), "")
	next(t, c)

	send(g, c, `{"type":"ping"}`)
	next(t, c)
	send(g, c, `{"type":"ping"}`)
	expectError(t, c, "Rate limit exceeded")
}

func TestGateway_FullBufferDropsFrame(t *testing.T) {
	g := NewGateway(GatewayConfig{SendBuffer: 1})
	c := g.Accept(newFakeTransport(true), "")
	send(g, c, `{"type":"subscribe","data":{"topic":"T"}}`)

	if n := g.Publish("T", "x", ""); n != 0 {
		t.Fatalf("expected drop on full buffer, got %d deliveries", n)
	}
	if !c.IsOpen() {
		t.Fatal("a full buffer must not close the connection")
	}
}

func TestGateway_LivenessEvictsSilentConnection(t *testing.T) {
	g := newTestGateway()
	tr := newFakeTransport(false)
	c := g.Accept(tr, "")

	g.Monitor().Sweep()
	if _, ok := g.Registry().Get(c.ID()); !ok {
		t.Fatal("connection evicted after a single sweep")
	}
	waitFor(t, func() bool { return tr.pings.Load() == 1 })

	g.Monitor().Sweep()
	if _, ok := g.Registry().Get(c.ID()); ok {
		t.Fatal("silent connection survived two sweeps")
	}
	if !tr.isClosed() || c.IsOpen() {
		t.Fatal("evicted connection must be closed")
	}
}

func TestGateway_LivenessKeepsResponsiveConnection(t *testing.T) {
	g := newTestGateway()
	tr := newFakeTransport(true)
	c := g.Accept(tr, "")

	for i := 1; i <= 5; i++ {
		g.Monitor().Sweep()
		waitFor(t, func() bool { return c.IsAlive() })
	}
	if _, ok := g.Registry().Get(c.ID()); !ok {
		t.Fatal("responsive connection evicted")
	}
	if tr.pings.Load() != 5 {
		t.Fatalf("expected 5 pings, got %d", tr.pings.Load())
	}
}

func TestGateway_ServeRemovesOnTransportError(t *testing.T) {
	g := newTestGateway()
	tr := newFakeTransport(true)
	c := g.Accept(tr, "")

	done := make(chan struct{})
	go func() {
		g.Serve(c)
		close(done)
	}()
	tr.incoming <- []byte(`{"type":"ping"}`)
	waitFor(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		for _, f := range tr.written {
			if strings.Contains(string(f), `"pong"`) {
				return true
			}
		}
		return false
	})

	_ = tr.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after transport error")
	}
	if g.ConnectionCount() != 0 {
		t.Fatalf("expected empty registry, got %d", g.ConnectionCount())
	}
}

func TestGateway_Shutdown(t *testing.T) {
	g := newTestGateway()
	accept(t, g)
	accept(t, g)
	g.Shutdown()
	if g.ConnectionCount() != 0 {
		t.Fatalf("expected no connections after shutdown, got %d", g.ConnectionCount())
	}
}

func TestGateway_NoCustomerUpdateAfterShutdown(t *testing.T) {
	updater := &countingUpdater{}
	g := newTestGateway(WithCustomerUpdater(updater))
	c, _ := accept(t, g)
	send(g, c, `{"type":"authenticate","data":{"customerId":"C1"}}`)
	next(t, c)

	g.Shutdown()
	send(g, c, `{"type":"customer_update","data":{"customerId":"C1","updateData":{"firstName":"late"}}}`)
	g.pending.Wait()

	if updater.calls.Load() != 0 {
		t.Fatalf("updater called %d times after shutdown", updater.calls.Load())
	}
}

func TestGateway_ConcurrentLifecycle(t *testing.T) {
	t.Parallel()

	g := NewGateway(GatewayConfig{SendBuffer: 256})
	var wg sync.WaitGroup
	for i := 0; i < 24; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := g.Accept(newFakeTransport(i%2 == 0), "")
			topic := fmt.Sprintf("topic-%d", i%4)
			g.HandleMessage(c, []byte(fmt.Sprintf(`{"type":"subscribe","data":{"topic":%q}}`, topic)))
			for j := 0; j < 10; j++ {
				g.Publish(topic, j, "")
				g.Monitor().Sweep()
				g.Registry().ForEach(func(*Connection) {})
			}
			g.Disconnect(c)
			g.Disconnect(c)
		}(i)
	}
	wg.Wait()

	if n := g.ConnectionCount(); n != 0 {
		t.Fatalf("expected empty registry, got %d", n)
	}
	if n := g.Publish("topic-0", "late", ""); n != 0 {
		t.Fatalf("expected no delivery after disconnect, got %d", n)
	}
}

func TestConnectionRegistry_RemoveTwice(t *testing.T) {
	r := NewConnectionRegistry()
	c := newConnection("a", newFakeTransport(true), 1, 0, time.Now())
	r.Add(c)
	if _, ok := r.Remove("a"); !ok {
		t.Fatal("first remove must report presence")
	}
	if _, ok := r.Remove("a"); ok {
		t.Fatal("second remove must be a no-op")
	}
	if r.Len() != 0 {
		t.Fatalf("unexpected length %d", r.Len())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
