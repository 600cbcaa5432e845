package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexsim/apexsim/internal/config"
	"github.com/apexsim/apexsim/internal/core/clock"
	"github.com/apexsim/apexsim/internal/core/events/bus"
	"github.com/apexsim/apexsim/internal/core/observability/log"
	"github.com/apexsim/apexsim/internal/core/session"
	"github.com/apexsim/apexsim/internal/core/track"
	"github.com/apexsim/apexsim/internal/core/vehicle"
)

type fixture struct {
	gateway *Gateway
	sess    *session.Session
	url     string
}

// newFixture stands up a session ticking in real time, a gateway broadcasting
// at a high rate, and an HTTP test server in front of it.
func newFixture(t *testing.T, maxClients int) *fixture {
	t.Helper()

	trk, err := track.Build(track.DefaultDefinition())
	require.NoError(t, err)

	sess := session.New(session.Config{}, trk, bus.New(), clock.DefaultConfig(), log.Nop())
	sess.StartRace()

	cfg := config.ServerConfig{
		MaxClients:     maxClients,
		WriteTimeout:   time.Second,
		ReadLimitBytes: 4 * 1024,
		BroadcastHz:    200,
	}
	g := NewGateway(cfg, sess, vehicle.DefaultArchetype(), log.Nop())

	ts := httptest.NewServer(g.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go g.BroadcastLoop(ctx)

	// Drive the simulation in real time for the duration of the test.
	go func() {
		start := time.Now()
		ticker := time.NewTicker(4 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sess.Frame(time.Since(start).Seconds())
			}
		}
	}()

	return &fixture{
		gateway: g,
		sess:    sess,
		url:     "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

func dial(t *testing.T, url string) (*websocket.Conn, welcomeMessage) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	var welcome welcomeMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&welcome))
	return conn, welcome
}

func TestHandshakeAssignsVehicle(t *testing.T) {
	f := newFixture(t, 4)
	_, welcome := dial(t, f.url)

	assert.Equal(t, messageTypeWelcome, welcome.Type)
	assert.NotEmpty(t, welcome.VehicleID)
	assert.Equal(t, "proving-grounds", welcome.Track)
	assert.Equal(t, 3, welcome.TotalLaps)
	assert.Equal(t, 1, f.gateway.ClientCount())

	require.Eventually(t, func() bool {
		return len(f.sess.Snapshot().Vehicles) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSnapshotsStreamToClient(t *testing.T) {
	f := newFixture(t, 4)
	conn, welcome := dial(t, f.url)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg snapshotMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, messageTypeSnapshot, msg.Type)
	assert.Greater(t, msg.Tick, int64(0))
	require.Len(t, msg.Vehicles, 1)
	assert.Equal(t, welcome.VehicleID, msg.Vehicles[0].ID)
}

func TestControlFramesReachTheVehicle(t *testing.T) {
	f := newFixture(t, 4)
	conn, welcome := dial(t, f.url)

	throttle := 1.0
	require.NoError(t, conn.WriteJSON(inboundMessage{
		Type:     messageTypeControls,
		Throttle: &throttle,
	}))

	require.Eventually(t, func() bool {
		snap := f.sess.Snapshot()
		if len(snap.Vehicles) != 1 || snap.Vehicles[0].ID != welcome.VehicleID {
			return false
		}
		return snap.Vehicles[0].Metrics.SpeedKmh > 1
	}, 3*time.Second, 20*time.Millisecond, "full throttle should move the vehicle")
}

func TestMalformedFrameIsDroppedNotFatal(t *testing.T) {
	f := newFixture(t, 4)
	conn, _ := dial(t, f.url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	// The connection survives: snapshots keep arriving.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.NoError(t, err)
	assert.Equal(t, 1, f.gateway.ClientCount())
}

func TestDisconnectReleasesVehicle(t *testing.T) {
	f := newFixture(t, 4)
	conn, _ := dial(t, f.url)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return f.gateway.ClientCount() == 0 && len(f.sess.Snapshot().Vehicles) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMaxClientsRejectsExtraConnections(t *testing.T) {
	f := newFixture(t, 1)
	dial(t, f.url)

	_, resp, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestShutdownRejectsNewConnections(t *testing.T) {
	f := newFixture(t, 4)
	conn, _ := dial(t, f.url)

	f.gateway.closeClients()

	// The existing connection is torn down and new dials get a 503.
	require.Eventually(t, func() bool {
		return f.gateway.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	_ = conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPausedSimulationStopsBroadcasts(t *testing.T) {
	f := newFixture(t, 4)
	conn, _ := dial(t, f.url)

	// Receive at least one snapshot, then pause the simulation.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	f.sess.Pause()

	// With ticks frozen the snapshot digest never changes, so after the
	// in-flight messages drain the reads must start timing out.
	deadline := time.Now().Add(2 * time.Second)
	timedOut := false
	for time.Now().Before(deadline) {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
		if _, _, err = conn.ReadMessage(); err != nil {
			timedOut = true
			break
		}
	}
	assert.True(t, timedOut, "no new snapshots while paused")
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, 4)
	httpURL := "http" + strings.TrimPrefix(f.url, "ws")
	httpURL = strings.TrimSuffix(httpURL, "/ws") + "/healthz"

	resp, err := http.Get(httpURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
