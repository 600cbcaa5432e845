// Package server is the WebSocket gateway between browser clients and the
// simulation session. Each connection gets one vehicle; control frames flow
// in, state snapshots flow out at the configured broadcast rate.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/apexsim/apexsim/internal/config"
	"github.com/apexsim/apexsim/internal/core/observability/log"
	"github.com/apexsim/apexsim/internal/core/session"
	"github.com/apexsim/apexsim/internal/core/vehicle"
	"github.com/apexsim/apexsim/pkg/generic"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser clients are served from arbitrary origins during development.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Gateway bridges WebSocket clients and a running session.
type Gateway struct {
	cfg       config.ServerConfig
	sess      *session.Session
	archetype vehicle.Archetype
	logger    log.Log

	clients     sync.Map // map[string]*client
	clientCount int64    // atomic
	closed      int32    // atomic; set once shutdown begins

	encodeBuffers *generic.Pool[*bytes.Buffer]
}

// NewGateway wires a gateway to a session. Every connecting client receives
// a vehicle of the given archetype.
func NewGateway(cfg config.ServerConfig, sess *session.Session, archetype vehicle.Archetype, logger log.Log) *Gateway {
	return &Gateway{
		cfg:       cfg,
		sess:      sess,
		archetype: archetype,
		logger:    logger.With(log.String("component", "gateway")),
		encodeBuffers: generic.NewHotPool(func() *bytes.Buffer {
			return bytes.NewBuffer(make([]byte, 0, 4096))
		}, 4),
	}
}

// Handler returns the HTTP routes served by the gateway.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWebSocket)
	mux.HandleFunc("/healthz", g.handleHealth)
	return mux
}

// Run serves until ctx is cancelled, then shuts down and disconnects all
// clients. It blocks; run it in its own goroutine or errgroup.
func (g *Gateway) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    g.cfg.ListenAddr,
		Handler: g.Handler(),
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		g.logger.Info("gateway listening", log.String("addr", g.cfg.ListenAddr))
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "gateway listen")
	})
	eg.Go(func() error {
		g.BroadcastLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		g.closeClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Wrap(srv.Shutdown(shutdownCtx), "gateway shutdown")
	})
	return eg.Wait()
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt32(&g.closed) == 1 {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	if int(atomic.LoadInt64(&g.clientCount)) >= g.cfg.MaxClients {
		g.logger.Warn("connection rejected", log.Error(ErrMaxClientsReached),
			log.String("remote_addr", r.RemoteAddr))
		http.Error(w, ErrMaxClientsReached.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", log.Error(err),
			log.String("remote_addr", r.RemoteAddr))
		return
	}

	vehicleID := g.sess.AddVehicle(g.archetype)
	c := newClient(conn, vehicleID)
	g.clients.Store(c.id, c)
	atomic.AddInt64(&g.clientCount, 1)

	g.logger.Info("client connected",
		log.String("client_id", c.id),
		log.String("vehicle_id", vehicleID),
		log.String("remote_addr", conn.RemoteAddr().String()),
		log.Int64("total_clients", atomic.LoadInt64(&g.clientCount)))

	trk := g.sess.Track()
	welcome := welcomeMessage{
		Type:      messageTypeWelcome,
		VehicleID: vehicleID,
		Track:     trk.Name(),
		TotalLaps: trk.TotalLaps(),
	}
	if err = c.writeJSON(welcome, g.cfg.WriteTimeout); err != nil {
		g.logger.Error("welcome write failed", log.String("client_id", c.id), log.Error(err))
		g.dropClient(c)
		return
	}

	go g.readLoop(c)
}

// readLoop consumes control frames until the connection dies.
func (g *Gateway) readLoop(c *client) {
	defer g.dropClient(c)

	c.conn.SetReadLimit(g.cfg.ReadLimitBytes)
	clientLogger := g.logger.With(log.String("client_id", c.id))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				clientLogger.Warn("read failed", log.Error(err))
			}
			return
		}

		var msg inboundMessage
		if err = json.Unmarshal(data, &msg); err != nil {
			clientLogger.Warn("dropping frame", log.Error(errors.Wrap(ErrInvalidMessage, err.Error())))
			continue
		}

		switch msg.Type {
		case messageTypeControls:
			g.sess.SubmitControls(c.vehicleID, vehicle.ControlInput{
				Throttle: msg.Throttle,
				Brake:    msg.Brake,
				Steering: msg.Steering,
			})
		default:
			clientLogger.Warn("unknown message type", log.String("type", msg.Type))
		}
	}
}

// BroadcastLoop fans the latest session snapshot out to every client at the
// configured rate. Consecutive identical snapshots (paused or stopped
// simulation) are sent once; the digest comparison suppresses the repeats.
func (g *Gateway) BroadcastLoop(ctx context.Context) {
	hz := g.cfg.BroadcastHz
	if hz <= 0 {
		hz = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	var lastDigest uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap := g.sess.Snapshot()
		if snap.Tick == 0 {
			continue // nothing published yet
		}

		buf := g.encodeBuffers.Get()
		buf.Reset()
		if err := json.NewEncoder(buf).Encode(snapshotMessage{Type: messageTypeSnapshot, Snapshot: snap}); err != nil {
			g.logger.Error("snapshot encode failed", log.Error(err))
			g.encodeBuffers.Put(buf)
			continue
		}

		digest := xxhash.Sum64(buf.Bytes())
		if digest == lastDigest {
			g.encodeBuffers.Put(buf)
			continue
		}
		lastDigest = digest

		g.clients.Range(func(_, value any) bool {
			c := value.(*client)
			if err := c.write(buf.Bytes(), g.cfg.WriteTimeout); err != nil {
				g.logger.Warn("snapshot write failed, dropping client",
					log.String("client_id", c.id), log.Error(err))
				go g.dropClient(c)
			}
			return true
		})
		g.encodeBuffers.Put(buf)
	}
}

// dropClient disconnects a client and releases its vehicle. Safe to call
// more than once per client.
func (g *Gateway) dropClient(c *client) {
	if _, loaded := g.clients.LoadAndDelete(c.id); !loaded {
		return
	}
	atomic.AddInt64(&g.clientCount, -1)
	g.sess.RemoveVehicle(c.vehicleID)
	_ = c.conn.Close()

	g.logger.Info("client disconnected",
		log.String("client_id", c.id),
		log.String("vehicle_id", c.vehicleID),
		log.Int64("total_clients", atomic.LoadInt64(&g.clientCount)))
}

func (g *Gateway) closeClients() {
	atomic.StoreInt32(&g.closed, 1)
	g.clients.Range(func(_, value any) bool {
		g.dropClient(value.(*client))
		return true
	})
}

// ClientCount reports the number of connected clients.
func (g *Gateway) ClientCount() int {
	return int(atomic.LoadInt64(&g.clientCount))
}
