package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/austinkregel/local-media/arrangerd/internal/analysis"
	"github.com/austinkregel/local-media/arrangerd/internal/audio"
	"github.com/austinkregel/local-media/arrangerd/internal/auth"
	"github.com/austinkregel/local-media/arrangerd/internal/config"
)

const (
	// writeTimeout bounds a single write; a client that stops reading for
	// longer is disconnected
	writeTimeout = 2 * time.Second

	// sendQueueSize is how many messages may wait for a client's writer.
	// Pushes beyond it are dropped.
	sendQueueSize = 32
)

// Player is the playback surface the server drives
type Player interface {
	analysis.Source
	Play(ctx context.Context, path string) error
	Pause() error
	Resume() error
	Stop() error
	SetVolume(volume float64) error
	Status() audio.Status
	SetOnTrackEnd(callback audio.TrackEndCallback)
}

// client is one socket connection. Its writer goroutine owns all writes, so
// neither the engine nor other clients ever wait on this connection.
type client struct {
	conn net.Conn
	peer string
	// connScoped is set when peer names only this connection
	connScoped bool

	out      chan []byte
	quit     chan struct{}
	quitOnce sync.Once

	// Guarded by Server.mu
	subscribed    bool
	authenticated bool
}

func newClient(conn net.Conn, peer string, connScoped bool) *client {
	return &client{
		conn:       conn,
		peer:       peer,
		connScoped: connScoped,
		out:        make(chan []byte, sendQueueSize),
		quit:       make(chan struct{}),
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.quit:
			return
		case data := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := c.conn.Write(data); err != nil {
				log.Printf("[IPC] Write failed, dropping client: %v", err)
				c.close()
				return
			}
		}
	}
}

// send queues a response, waiting for room until the client goes away
func (c *client) send(data []byte) error {
	select {
	case c.out <- data:
		return nil
	case <-c.quit:
		return net.ErrClosed
	}
}

// push queues data without waiting and reports whether it was queued
func (c *client) push(data []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.quitOnce.Do(func() {
		close(c.quit)
		c.conn.Close()
	})
}

// Server handles IPC communication with clients
type Server struct {
	socketPath  string
	authManager *auth.Manager
	configMgr   *config.Manager
	player      Player
	engine      *analysis.Engine

	listener net.Listener
	ctx      context.Context

	mu      sync.Mutex
	clients map[net.Conn]*client

	// Serializes play and stop so the engine always follows the player
	transportMu sync.Mutex

	connSeq     atomic.Uint64
	pushDropped int // For throttled drop logging, guarded by mu
}

// NewServer creates a new IPC server
func NewServer(
	socketPath string,
	authManager *auth.Manager,
	configMgr *config.Manager,
	player Player,
	engine *analysis.Engine,
) *Server {
	s := &Server{
		socketPath:  socketPath,
		authManager: authManager,
		configMgr:   configMgr,
		player:      player,
		engine:      engine,
		ctx:         context.Background(),
		clients:     make(map[net.Conn]*client),
	}

	engine.Subscribe(s.pushAnalysis)

	player.SetOnTrackEnd(func(path string) {
		// Runs on the playback goroutine, which Stop waits for
		go s.trackEnded(path)
	})

	return s
}

// Start listens on the socket and serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	log.Printf("[IPC] Creating socket at %s", s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// User-only socket
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.ctx = ctx
	s.mu.Unlock()

	log.Printf("[IPC] Server listening, waiting for connections...")
	go s.acceptLoop(ctx)

	<-ctx.Done()

	log.Printf("[IPC] Shutting down server...")

	s.transportMu.Lock()
	s.engine.Stop()
	s.transportMu.Unlock()

	s.mu.Lock()
	clientCount := len(s.clients)
	for _, c := range s.clients {
		c.close()
	}
	s.mu.Unlock()
	log.Printf("[IPC] Closed %d client connections", clientCount)

	listener.Close()
	os.RemoveAll(s.socketPath)

	log.Printf("[IPC] Server stopped")
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[IPC] Accept error: %v", err)
			continue
		}

		peer, ok := peerIdentity(conn)
		if !ok {
			peer = fmt.Sprintf("conn:%d", s.connSeq.Add(1))
		}
		c := newClient(conn, peer, !ok)
		go c.writeLoop()

		s.mu.Lock()
		s.clients[conn] = c
		clientCount := len(s.clients)
		s.mu.Unlock()

		log.Printf("[IPC] New client connection (active: %d)", clientCount)
		go s.handleConnection(ctx, c)
	}
}

func (s *Server) handleConnection(ctx context.Context, c *client) {
	defer func() {
		c.close()
		if c.connScoped {
			s.authManager.Forget(c.peer)
		}
		s.mu.Lock()
		delete(s.clients, c.conn)
		clientCount := len(s.clients)
		s.mu.Unlock()
		log.Printf("[IPC] Client disconnected (active: %d)", clientCount)
	}()

	reader := bufio.NewReader(c.conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Newline-delimited JSON
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				log.Printf("[IPC] Read error: %v", err)
			}
			return
		}

		req, err := DecodeRequest(line)
		if err != nil {
			log.Printf("[IPC] Invalid request format: %v", err)
			if err := s.sendResponse(c, NewErrorResponse("invalid request format")); err != nil {
				return
			}
			continue
		}

		// Skip verbose logging for polling commands
		isPollingCmd := req.Cmd == CmdStatus || req.Cmd == CmdGetAnalysis
		if !isPollingCmd {
			log.Printf("[IPC] Command: %s", req.Cmd)
		}

		resp := s.handleRequest(c, req)
		if resp == nil {
			// Answered asynchronously
			continue
		}

		if !isPollingCmd && !resp.Success {
			log.Printf("[IPC] Response: error=%q", resp.Error)
		}

		if err := s.sendResponse(c, resp); err != nil {
			log.Printf("[IPC] Send error: %v", err)
			return
		}
	}
}

func (s *Server) sendResponse(c *client, resp *Response) error {
	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	return c.send(append(data, '\n'))
}

// broadcast queues a push message for every client accepted by want. It never
// blocks; clients with a full queue miss the message.
func (s *Server) broadcast(msgType string, data interface{}, want func(*client) bool) {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		if want(c) {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	msg, err := NewPushMessage(msgType, data)
	if err != nil {
		log.Printf("[IPC] Failed to encode %s push: %v", msgType, err)
		return
	}
	msg = append(msg, '\n')

	for _, c := range targets {
		if !c.push(msg) {
			s.mu.Lock()
			s.pushDropped++
			dropped := s.pushDropped
			s.mu.Unlock()
			if dropped%30 == 1 {
				log.Printf("[IPC] Client queue full, dropped %s push (%d total)", msgType, dropped)
			}
		}
	}
}

// Guarded by s.mu, called from broadcast
func subscribers(c *client) bool   { return c.subscribed }
func authenticated(c *client) bool { return c.authenticated }

// pushAnalysis is the engine subscriber. It runs on the engine goroutine.
func (s *Server) pushAnalysis(snapshot *analysis.Snapshot, ready bool) {
	s.broadcast(PushAnalysis, AnalysisData{Ready: ready, Snapshot: snapshot}, subscribers)
}

func (s *Server) trackEnded(path string) {
	s.transportMu.Lock()
	// A newer play may already own the engine
	if s.player.Status().State == audio.StateStopped {
		s.engine.Stop()
	}
	s.transportMu.Unlock()

	log.Printf("[PLAYER] Track ended: %s", path)
	s.broadcast(PushTrackEnded, TrackEndedData{Path: path}, subscribers)
}
