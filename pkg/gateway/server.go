package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/protocol"
	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/resource"
	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/sequence"
)

// minCleanupInterval is the floor for the periodic store cleanup.
const minCleanupInterval = 10 * time.Second

// Server accepts avatar client connections and runs their protocol
// lifecycle: handshake, admission, dispatch loop, teardown. It also owns
// the periodic resource store cleanup task.
type Server struct {
	cfg    *Config
	logger *slog.Logger

	registry   *Registry
	dispatcher *Dispatcher
	correlator *Correlator
	compiler   *sequence.Compiler
	store      *resource.Store

	ackConfig protocol.AckConfig
	upgrader  websocket.Upgrader
	http      *http.Server

	cleanupInterval time.Duration
	done            chan struct{}
	cleanupDone     chan struct{}
}

// Options carries the collaborators a Server is wired with.
type Options struct {
	// Store backs resource.* ops and the cleanup task. May be nil.
	Store *resource.Store

	// Compiler builds performance sequences for the perform methods.
	// Defaults to a store-backed compiler with default config.
	Compiler *sequence.Compiler

	// Hooks receive user input packets.
	Hooks Hooks

	// Input converts inbound message content, ingesting media into its
	// backing scratch store. Defaults to a storeless converter.
	Input *sequence.InputConverter

	// AckConfig overrides the server configuration block announced in
	// handshake acks. Zero fields fall back to protocol defaults.
	AckConfig protocol.AckConfig

	// CleanupInterval is the store cleanup period, clamped to a 10s
	// floor. Zero disables the cleanup task.
	CleanupInterval time.Duration
}

// NewServer wires a gateway server from config and collaborators.
func NewServer(cfg *Config, opts Options) *Server {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.With("component", "gateway")

	compiler := opts.Compiler
	if compiler == nil {
		compiler = sequence.NewCompiler(opts.Store, sequence.Config{Logger: cfg.Logger})
	}

	ack := opts.AckConfig
	def := protocol.DefaultAckConfig()
	if ack.MaxMessageLength == 0 {
		ack.MaxMessageLength = def.MaxMessageLength
	}
	if ack.SupportedImageFormats == nil {
		ack.SupportedImageFormats = def.SupportedImageFormats
	}
	if ack.SupportedAudioFormats == nil {
		ack.SupportedAudioFormats = def.SupportedAudioFormats
	}
	if ack.SupportedVideoFormats == nil {
		ack.SupportedVideoFormats = def.SupportedVideoFormats
	}

	cleanupInterval := opts.CleanupInterval
	if cleanupInterval > 0 && cleanupInterval < minCleanupInterval {
		cleanupInterval = minCleanupInterval
	}

	correlator := NewCorrelator(cfg.Logger)
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		registry:   NewRegistry(cfg.MaxConnections, cfg.KickOld, cfg.Logger),
		correlator: correlator,
		dispatcher: NewDispatcher(opts.Store, correlator, opts.Hooks, opts.Input, cfg.Logger),
		compiler:   compiler,
		store:      opts.Store,
		ackConfig:  ack,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The desktop client connects from a local app, not a
			// browser page, so origin checks don't apply.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		cleanupInterval: cleanupInterval,
		done:            make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// The cleanup task lives from construction so Shutdown can await it
	// whether or not Start ever ran.
	go s.cleanupLoop()
	return s
}

// Registry exposes the connection registry.
func (s *Server) Registry() *Registry { return s.registry }

// Correlator exposes the request correlator.
func (s *Server) Correlator() *Correlator { return s.correlator }

// Compiler exposes the sequence compiler.
func (s *Server) Compiler() *sequence.Compiler { return s.compiler }

// Handler returns the HTTP handler serving the configured WebSocket
// mount paths. Connections on unknown paths are upgraded just far
// enough to receive a policy-violation close.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, path := range s.cfg.Paths {
		r.Get(path, s.handleWS)
	}
	r.NotFound(s.handleUnknownPath)
	return r
}

func (s *Server) handleUnknownPath(w http.ResponseWriter, req *http.Request) {
	if !websocket.IsWebSocketUpgrade(req) {
		http.NotFound(w, req)
		return
	}
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	s.logger.Warn("connection on unknown path", "path", req.URL.Path)
	data, _ := protocol.NewErrorPacket(protocol.CodeInvalidPayload, "unknown path", "").Encode()
	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	conn.WriteMessage(websocket.TextMessage, data)
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(protocol.ClosePolicyViolation, "unknown path"))
	conn.Close()
}

func (s *Server) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err, "remote", req.RemoteAddr)
		return
	}

	client, err := s.handshake(conn)
	if err != nil {
		s.logger.Info("handshake rejected", "remote", req.RemoteAddr, "error", err)
		return
	}

	s.logger.Info("client connected", "client_id", client.ID,
		"session_id", client.Session.SessionID, "remote", req.RemoteAddr)
	s.readLoop(req.Context(), client)
}

// handshake runs the opening exchange: the first frame must be a
// sys.handshake within the handshake timeout, carrying a compatible
// protocol version and, when configured, the static token. Admission
// happens before the ack so an evicted predecessor is gone by the time
// the new client is told it is in.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	reject := func(code int, message string) (*Client, error) {
		data, _ := protocol.NewErrorPacket(code, message, "").Encode()
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		conn.WriteMessage(websocket.TextMessage, data)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(protocol.ClosePolicyViolation, message))
		conn.Close()
		handshakeFailures.WithLabelValues(strconv.Itoa(code)).Inc()
		return nil, &HandshakeError{Code: code, Message: message}
	}

	conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, errors.Join(ErrHandshakeFailed, err)
	}

	p, err := protocol.Decode(data)
	if err != nil {
		return reject(protocol.CodeInvalidPayload, "malformed handshake")
	}
	if p.Op != protocol.OpHandshake {
		return reject(protocol.CodeInvalidPayload, "first frame must be handshake")
	}

	version, _ := p.Payload["version"].(string)
	if !strings.HasPrefix(version, protocol.VersionMajor) {
		return reject(protocol.CodeVersionMismatch,
			"unsupported protocol version "+version)
	}

	if s.cfg.Token != "" {
		token, _ := p.Payload["token"].(string)
		if token != s.cfg.Token {
			return reject(protocol.CodeAuthFailed, "authentication failed")
		}
	}

	clientID := firstString(p.Payload, "clientId", "deviceId", "client")
	if clientID == "" {
		clientID = protocol.GenerateID()
	}
	session := protocol.Session{
		SessionID: "live2d_session_" + clientID,
		UserID:    "live2d_user_" + clientID,
	}

	client := newClient(clientID, session, conn, s.cfg.WriteTimeout)
	if err := s.registry.Add(client); err != nil {
		return reject(protocol.CodeConnectionFull, "connection limit reached")
	}

	conn.SetReadDeadline(time.Time{})
	if err := client.Send(protocol.NewHandshakeAck(p.ID, session, s.ackConfig)); err != nil {
		s.registry.Remove(client)
		client.Close(protocol.CloseGoingAway, "ack failed")
		return nil, err
	}
	// The ack is followed by a ready event so the client knows the
	// server side is fully set up before it starts sending.
	if err := client.Send(protocol.NewPacket(protocol.OpStateReady, map[string]any{
		"clientId": clientID,
	})); err != nil {
		s.registry.Remove(client)
		client.Close(protocol.CloseGoingAway, "ready event failed")
		return nil, err
	}
	return client, nil
}

// readLoop processes frames sequentially for one client, guaranteeing
// in-order effects. It exits when the transport fails or closes.
func (s *Server) readLoop(ctx context.Context, client *Client) {
	defer func() {
		s.registry.Remove(client)
		client.Close(protocol.CloseNormal, "")
	}()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("read error", "client_id", client.ID, "error", err)
			} else {
				s.logger.Info("client disconnected", "client_id", client.ID)
			}
			return
		}
		s.dispatcher.Dispatch(ctx, client, data)
	}
}

// Perform compiles items into a sequence and sends it to the connected
// client, interrupting whatever is playing.
func (s *Server) Perform(ctx context.Context, items []sequence.Item, ttsURL string) error {
	client, ok := s.registry.First()
	if !ok {
		return ErrNoClient
	}
	seq := s.compiler.Compile(ctx, items, ttsURL, client.Catalog())
	if len(seq) == 0 {
		return nil
	}
	return client.Send(protocol.NewPerformShow(seq, true))
}

// PerformPartial sends one streamed text segment without interrupting
// the running performance.
func (s *Server) PerformPartial(segment string) error {
	client, ok := s.registry.First()
	if !ok {
		return ErrNoClient
	}
	seq := s.compiler.CompilePartial(segment)
	if len(seq) == 0 {
		return nil
	}
	return client.Send(protocol.NewPerformShow(seq, false))
}

// PerformFinal closes a streamed reply with the remainder and the
// motion/expression placeholders inferred from the full text.
func (s *Server) PerformFinal(remainder, fullText string) error {
	client, ok := s.registry.First()
	if !ok {
		return ErrNoClient
	}
	seq := s.compiler.CompileFinal(remainder, fullText)
	if len(seq) == 0 {
		return nil
	}
	return client.Send(protocol.NewPerformShow(seq, false))
}

// Interrupt cancels the running performance on the connected client.
func (s *Server) Interrupt() error {
	client, ok := s.registry.First()
	if !ok {
		return ErrNoClient
	}
	return client.Send(protocol.NewPerformInterrupt())
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("gateway listening", "addr", ln.Addr().String(), "paths", s.cfg.Paths)

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) cleanupLoop() {
	defer close(s.cleanupDone)
	if s.store == nil || s.cleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.store.Cleanup(0, 0); err != nil {
				s.logger.Warn("store cleanup failed", "error", err)
			}
		case <-s.done:
			return
		}
	}
}

// Shutdown stops the gateway: no new connections, cleanup task stopped
// and awaited, live clients closed with a going-away frame.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("gateway stopping")

	close(s.done)
	<-s.cleanupDone

	for _, client := range s.registry.All() {
		client.Close(protocol.CloseGoingAway, "server shutdown")
		s.registry.Remove(client)
	}
	return s.http.Shutdown(ctx)
}

func firstString(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := payload[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
