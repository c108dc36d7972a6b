package main

import (
	"context"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/patroldash/dash"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// fakeConn is a dash.Conn fed from a channel of frames.
type fakeConn struct {
	in chan []byte

	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16)}
}

func (c *fakeConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return 0, nil, websocket.CloseError{Code: websocket.StatusNormalClosure}
		}
		return websocket.MessageText, data, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, typ websocket.MessageType, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), p...))
	return nil
}

func (c *fakeConn) Close(code websocket.StatusCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

func mapFrame(w, h int, gray uint8) []byte {
	cells := make([]int, w*h)
	for i := range cells {
		cells[i] = int(gray)
	}
	b, _ := json.Marshal(map[string]any{
		"type": "map", "width": w, "height": h, "gray": cells,
		"res": 0.05, "origin": map[string]float64{"x": 0, "y": 0},
	})
	return b
}

func poseFrame(x, y float64) []byte {
	b, _ := json.Marshal(map[string]any{"type": "amcl_pose", "x": x, "y": y, "yaw": 0})
	return b
}

// newTestConsole returns a console that is torn down with the test.
func newTestConsole(t *testing.T) *dash.Console {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c := dash.NewConsole(ctx, dash.ConsoleOptions{
		Camera:     dash.DefaultConfig().Camera,
		ViewWidth:  80,
		ViewHeight: 60,
	})
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})
	return c
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

// ---------------------------------------------------------------------------
// options and config
// ---------------------------------------------------------------------------

func TestApplyOptions(t *testing.T) {
	app := NewApp()
	app.ApplyOptions(AppOptions{
		ConfigFile:   "robot.yaml",
		EnvFile:      "robot.env",
		HttpPort:     9000,
		ViewWidth:    640,
		ViewHeight:   480,
		MqttMode:     true,
		HttpMode:     true,
		OutputFile:   "out.svg",
		RenderFormat: "vector",
		RenderWait:   time.Second,
		Debug:        true,
	})

	assert.Equal(t, "robot.yaml", app.ConfigFile)
	assert.Equal(t, "robot.env", app.EnvFile)
	assert.Equal(t, 9000, app.HttpPort)
	assert.Equal(t, 640, app.ViewWidth)
	assert.Equal(t, 480, app.ViewHeight)
	assert.True(t, app.MqttMode)
	assert.True(t, app.HttpMode)
	assert.Equal(t, "out.svg", app.OutputFile)
	assert.Equal(t, "vector", app.RenderFormat)
	assert.Equal(t, time.Second, app.RenderWait)
	assert.True(t, app.Debug)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	app := NewApp()
	app.ConfigFile = filepath.Join(t.TempDir(), "absent.yaml")

	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "ws://192.168.0.57:8000/ws/realtime", cfg.WebsocketURL())
	assert.Equal(t, dash.ReconnectDelay, cfg.ReconnectDelay)
	assert.Same(t, cfg, app.Config)
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	app := NewApp()
	app.ConfigFile = writeConfig(t, "server:\n  url: ws://robot.local:9000/ws/realtime\nhttp:\n  port: 8081\n")
	app.HttpPort = 9191
	app.ViewWidth = 320
	app.ViewHeight = 240

	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "ws://robot.local:9000/ws/realtime", cfg.WebsocketURL())
	assert.Equal(t, 9191, cfg.HTTP.Port)
	assert.Equal(t, 320, cfg.View.Width)
	assert.Equal(t, 240, cfg.View.Height)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	t.Setenv("PATROLDASH_WS_URL", "")
	os.Unsetenv("PATROLDASH_WS_URL")

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("PATROLDASH_WS_URL=ws://from-env:7000/ws\n"), 0644))

	app := NewApp()
	app.ConfigFile = filepath.Join(dir, "absent.yaml")
	app.EnvFile = envPath

	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "ws://from-env:7000/ws", cfg.WebsocketURL())
}

func TestLoadConfig_Invalid(t *testing.T) {
	app := NewApp()
	app.ConfigFile = writeConfig(t, "server:\n  url: http://not-a-socket\n")

	_, err := app.LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws://")
}

// ---------------------------------------------------------------------------
// start / channel wiring
// ---------------------------------------------------------------------------

func TestStart_ConnectsChannelToConsole(t *testing.T) {
	conn := newFakeConn()
	app := NewApp()
	app.ConfigFile = filepath.Join(t.TempDir(), "absent.yaml")
	app.dial = func(ctx context.Context, url string) (dash.Conn, error) { return conn, nil }
	_, err := app.LoadConfig()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.start(ctx))

	require.Eventually(t, func() bool {
		return app.Console.Snapshot().Connection == dash.StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	conn.in <- mapFrame(4, 4, 200)
	conn.in <- poseFrame(0.1, 0.1)
	require.Eventually(t, func() bool {
		s := app.Console.Snapshot()
		return s.Map != nil && s.Pose != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, app.Console.PublishCommand(dash.CmdStop))
	written := conn.Written()
	require.Len(t, written, 1)
	assert.JSONEq(t, `{"type":"cmd_vel","linear":0,"angular":0}`, string(written[0]))
	assert.Equal(t, dash.StatusStopped, app.Console.Snapshot().Status)
}

func TestStart_MQTTModeWithoutBroker(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	app := NewApp()
	app.ConfigFile = filepath.Join(t.TempDir(), "absent.yaml")
	app.MqttMode = true
	app.dial = func(ctx context.Context, url string) (dash.Conn, error) { return newFakeConn(), nil }
	_, err := app.LoadConfig()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err = app.start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mqtt.broker")
}

// ---------------------------------------------------------------------------
// render mode
// ---------------------------------------------------------------------------

func TestWaitForMap(t *testing.T) {
	app := NewApp()
	app.Console = newTestConsole(t)

	err := app.waitForMap(context.Background(), 20*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no map received")

	go func() {
		time.Sleep(10 * time.Millisecond)
		app.Console.FrameReceived(mapFrame(3, 3, 100))
	}()
	require.NoError(t, app.waitForMap(context.Background(), 2*time.Second))

	// Already loaded.
	require.NoError(t, app.waitForMap(context.Background(), time.Millisecond))
}

func TestWriteRender(t *testing.T) {
	app := NewApp()
	app.Console = newTestConsole(t)
	app.Console.FrameReceived(mapFrame(40, 30, 250))
	app.Console.FrameReceived(poseFrame(1, 1))
	require.Eventually(t, func() bool { return app.Console.Snapshot().Pose != nil }, time.Second, 5*time.Millisecond)

	dir := t.TempDir()

	t.Run("raster", func(t *testing.T) {
		app.RenderFormat = "raster"
		path := filepath.Join(dir, "live.png")
		require.NoError(t, app.writeRender(path, 80, 60))

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()
		img, err := png.Decode(f)
		require.NoError(t, err)
		assert.Equal(t, 80, img.Bounds().Dx())
		assert.Equal(t, 60, img.Bounds().Dy())
	})

	t.Run("vector", func(t *testing.T) {
		app.RenderFormat = "vector"
		path := filepath.Join(dir, "live.svg")
		require.NoError(t, app.writeRender(path, 80, 60))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(data), "<svg"))
	})

	t.Run("unknown format", func(t *testing.T) {
		app.RenderFormat = "gif"
		err := app.writeRender(filepath.Join(dir, "live.gif"), 80, 60)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown render format")
	})
}

func TestWriteRender_NoMap(t *testing.T) {
	app := NewApp()
	app.Console = newTestConsole(t)

	err := app.writeRender(filepath.Join(t.TempDir(), "live.png"), 80, 60)
	assert.ErrorIs(t, err, dash.ErrNoMap)
}
