// Package gateway is the remote control plane: a websocket RPC endpoint that
// also streams bus events, a small REST surface, and an mDNS advertiser.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"switchd/internal/domain"
	"switchd/internal/infra/middleware"
)

// RPCHandler handles a single RPC method call.
type RPCHandler func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error)

// clientConn tracks a single WebSocket connection.
type clientConn struct {
	info      *ClientInfo
	ws        *websocket.Conn
	sendCh    chan Frame // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once
}

// Server is the WebSocket gateway that exposes RPC methods and forwards events.
type Server struct {
	bus        domain.EventBus
	clients    sync.Map // connID (uint64) -> *clientConn
	auth       Authenticator
	handlersMu sync.RWMutex
	handlers   map[string]RPCHandler
	schemas    *SchemaRegistry
	logger     *slog.Logger
	addr       string
	httpSrv    *http.Server
	boundMu    sync.Mutex
	boundAddr  string
	nextID     atomic.Uint64
	unsubAll   func()
	httpRoutes []httpRoute

	rateLimit      middleware.RateLimitConfig
	originPatterns []string
	audit          domain.AuditLogger
}

type httpRoute struct {
	pattern string
	handler http.HandlerFunc
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit limits REST requests per client IP. rpm <= 0 disables it.
func WithRateLimit(rpm, burst int, trustedProxies []string) Option {
	return func(s *Server) {
		s.rateLimit = middleware.RateLimitConfig{
			RequestsPerMin: rpm,
			BurstSize:      burst,
			TrustedProxies: trustedProxies,
		}
	}
}

// WithOriginPatterns replaces the websocket origin allow-list.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// NewServer creates a gateway server.
func NewServer(bus domain.EventBus, auth Authenticator, addr string, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		bus:      bus,
		auth:     auth,
		handlers: make(map[string]RPCHandler),
		schemas:  NewSchemaRegistry(),
		logger:   logger,
		addr:     addr,
		originPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterHandler adds an RPC handler for the given method name.
// Safe to call concurrently with active connections.
func (s *Server) RegisterHandler(method string, handler RPCHandler) {
	s.handlersMu.Lock()
	s.handlers[method] = handler
	s.handlersMu.Unlock()
}

// RegisterHTTPRoute adds an HTTP handler to the gateway's mux.
// Must be called before Start().
func (s *Server) RegisterHTTPRoute(pattern string, handler http.HandlerFunc) {
	s.httpRoutes = append(s.httpRoutes, httpRoute{pattern: pattern, handler: handler})
}

// Schemas returns the payload schema registry consulted before dispatch.
func (s *Server) Schemas() *SchemaRegistry { return s.schemas }

// Handler builds the HTTP handler: websocket at /ws, registered routes,
// security headers everywhere, and rate limiting outside /ws.
func (s *Server) Handler(ctx context.Context) http.Handler {
	routes := http.NewServeMux()
	for _, route := range s.httpRoutes {
		routes.HandleFunc(route.pattern, route.handler)
	}
	limited := middleware.RateLimitWithConfig(ctx, s.rateLimit)(routes)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.Handle("/", limited)

	return middleware.RequestLog(s.logger)(middleware.SecurityHeaders(mux))
}

// Start begins accepting connections. Blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundMu.Lock()
	s.boundAddr = listener.Addr().String()
	s.boundMu.Unlock()

	s.httpSrv = &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Forward every bus event to connected clients.
	s.unsubAll = s.bus.SubscribeAll(s.broadcast)

	s.logger.Info("gateway started", "addr", s.BoundAddr())

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

func (s *Server) broadcast(_ context.Context, event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	frame := Frame{Type: FrameTypeEvent, Method: string(event.Type), Payload: payload}
	s.clients.Range(func(_, value any) bool {
		cc := value.(*clientConn)
		select {
		case cc.sendCh <- frame:
		default:
			s.logger.Warn("gateway: dropped event for slow client", "client", cc.info.Name, "event", string(event.Type))
		}
		return true
	})
}

// Stop gracefully shuts down the gateway server.
func (s *Server) Stop(ctx context.Context) error {
	if s.unsubAll != nil {
		s.unsubAll()
	}

	s.clients.Range(func(key, value any) bool {
		cc := value.(*clientConn)
		cc.closeOnce.Do(func() { close(cc.done) })
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// BoundAddr returns the actual address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string {
	s.boundMu.Lock()
	defer s.boundMu.Unlock()
	return s.boundAddr
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	n := 0
	s.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	clientInfo, err := s.auth.Authenticate(requestToken(r))
	if err != nil {
		s.recordDenied(r)
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	connID := s.nextID.Add(1)
	cc := &clientConn{
		info:   clientInfo,
		ws:     ws,
		sendCh: make(chan Frame, 64),
		done:   make(chan struct{}),
	}
	s.clients.Store(connID, cc)

	s.logger.Info("gateway client connected", "conn_id", connID, "client", clientInfo.Name)

	go s.writeLoop(cc)
	s.readLoop(r.Context(), cc)

	cc.closeOnce.Do(func() { close(cc.done) })
	s.clients.Delete(connID)
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", connID)
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		var frame Frame
		if err := wsjson.Read(ctx, cc.ws, &frame); err != nil {
			return // connection closed or error
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		go s.dispatchRPC(ctx, cc, frame)
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, cc.ws, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatchRPC(ctx context.Context, cc *clientConn, req Frame) {
	result, err := s.Call(ctx, cc.info, req.Method, req.Payload)
	s.sendResponse(cc, req.ID, result, err)
}

// Call validates payload against the method's schema and runs its handler.
func (s *Server) Call(ctx context.Context, client *ClientInfo, method string, payload json.RawMessage) (json.RawMessage, error) {
	s.handlersMu.RLock()
	handler, ok := s.handlers[method]
	s.handlersMu.RUnlock()
	if !ok {
		return nil, domain.NewDomainError("gateway.Call", domain.ErrRPCMethodNotFound, method)
	}
	if err := s.schemas.Validate(method, payload); err != nil {
		s.recordCall(ctx, client, method, payload, err)
		return nil, err
	}
	result, err := handler(ctx, client, payload)
	s.recordCall(ctx, client, method, payload, err)
	return result, err
}

func (s *Server) sendResponse(cc *clientConn, id string, result json.RawMessage, err error) {
	resp := Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		Payload: result,
	}
	if err != nil {
		resp.Error = err.Error()
		resp.Code = string(domain.ErrorCodeOf(err))
	}
	select {
	case cc.sendCh <- resp:
	case <-cc.done:
	default:
		s.logger.Warn("gateway: dropped RPC response for slow client", "frame_id", id)
	}
}

// errorBody is the JSON error shape of REST responses.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	var body errorBody
	body.Error.Code = string(domain.ErrorCodeOf(err))
	body.Error.Message = err.Error()
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// httpStatus maps a domain error onto a REST status code.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrSwitchNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAuthInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrRPCInvalidPayload), errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMissingCommand):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrToggleAborted), errors.Is(err, domain.ErrCommandUnavailable):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// pathID extracts {id} from routes registered with a method pattern.
func pathID(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("id"))
}
