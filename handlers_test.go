package main

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/patroldash/dash"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type recordingSender struct {
	mu   sync.Mutex
	sent []any
}

func (s *recordingSender) Send(v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, v)
	return true
}

func (s *recordingSender) Sent() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.sent...)
}

func testServer(t *testing.T, connected bool) (http.Handler, *dash.Console, *recordingSender) {
	t.Helper()
	c := newTestConsole(t)
	snd := &recordingSender{}
	c.SetSender(snd)
	if connected {
		c.ConnectionChanged(dash.StateConnected)
	}
	cfg := dash.DefaultConfig()
	cfg.View = dash.ViewConfig{Width: 80, Height: 60}
	return newHTTPServer(c, cfg), c, snd
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// ---------------------------------------------------------------------------
// read endpoints
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	h, c, _ := testServer(t, true)

	rec := do(h, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Status     string `json:"status"`
		Connection string `json:"connection"`
		HasMap     bool   `json:"hasMap"`
	}
	decodeJSON(t, rec, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "connected", body.Connection)
	assert.False(t, body.HasMap)

	c.FrameReceived(mapFrame(4, 4, 0))
	rec = do(h, http.MethodGet, "/health")
	decodeJSON(t, rec, &body)
	assert.True(t, body.HasMap)
}

func TestStatusEndpoint(t *testing.T) {
	h, c, _ := testServer(t, true)
	c.FrameReceived([]byte(`{"type":"battery","percentage":87}`))
	c.FrameReceived([]byte(`{"type":"state","text":"순찰중"}`))

	rec := do(h, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap dash.Snapshot
	decodeJSON(t, rec, &snap)
	assert.Equal(t, dash.StateConnected, snap.Connection)
	assert.Equal(t, dash.StatusPatrolling, snap.Status)
	assert.True(t, snap.Metrics.BatterySet)
	assert.Equal(t, 87.0, snap.Metrics.BatteryPercent)
	assert.Equal(t, dash.ViewMap, snap.View)
	assert.Equal(t, dash.ViewVideo, snap.Secondary)
}

func TestLivePNG(t *testing.T) {
	h, c, _ := testServer(t, true)

	t.Run("placeholder before map", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/live.png")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		img, err := png.Decode(rec.Body)
		require.NoError(t, err)
		assert.Equal(t, 80, img.Bounds().Dx())
		assert.Equal(t, 60, img.Bounds().Dy())
	})

	c.FrameReceived(mapFrame(40, 30, 255))

	t.Run("custom size", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/live.png?w=120&h=90")
		require.Equal(t, http.StatusOK, rec.Code)
		img, err := png.Decode(rec.Body)
		require.NoError(t, err)
		assert.Equal(t, 120, img.Bounds().Dx())
		assert.Equal(t, 90, img.Bounds().Dy())
	})

	t.Run("bad size", func(t *testing.T) {
		for _, q := range []string{"w=0", "h=-3", "w=abc", "w=99999"} {
			rec := do(h, http.MethodGet, "/live.png?"+q)
			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		}
	})
}

func TestLiveSVG(t *testing.T) {
	h, c, _ := testServer(t, true)

	rec := do(h, http.MethodGet, "/live.svg")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c.FrameReceived(mapFrame(4, 3, 128))
	c.FrameReceived(poseFrame(0.1, 0.05))
	rec = do(h, http.MethodGet, "/live.svg?w=160&h=120")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<svg")
}

func TestMapPNG(t *testing.T) {
	h, c, _ := testServer(t, true)

	rec := do(h, http.MethodGet, "/map.png")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c.FrameReceived(mapFrame(7, 5, 42))
	rec = do(h, http.MethodGet, "/map.png")
	require.Equal(t, http.StatusOK, rec.Code)
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 7, img.Bounds().Dx())
	assert.Equal(t, 5, img.Bounds().Dy())
	r, g, b, a := img.At(3, 2).RGBA()
	assert.Equal(t, uint32(42*0x101), r)
	assert.Equal(t, r, g)
	assert.Equal(t, r, b)
	assert.Equal(t, uint32(0xffff), a)
}

func TestPoseGeoJSON(t *testing.T) {
	h, c, _ := testServer(t, true)
	c.FrameReceived(mapFrame(400, 300, 255))
	c.FrameReceived(poseFrame(1.0, 2.0))

	rec := do(h, http.MethodGet, "/pose.geojson")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	decodeJSON(t, rec, &fc)
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "Polygon", fc.Features[0].Geometry.Type)
	assert.Equal(t, "Point", fc.Features[1].Geometry.Type)
	assert.Equal(t, true, fc.Features[1].Properties["onMap"])
}

func TestVideoRedirect(t *testing.T) {
	h, _, _ := testServer(t, true)

	rec := do(h, http.MethodGet, "/video")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodPost, "/video/toggle")
	require.Equal(t, http.StatusOK, rec.Code)
	var toggled map[string]bool
	decodeJSON(t, rec, &toggled)
	assert.True(t, toggled["videoRunning"])

	rec = do(h, http.MethodGet, "/video")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t,
		"http://192.168.0.100:8080/stream?topic=/image_raw&type=ros_compressed&width=640&height=480&quality=50",
		rec.Header().Get("Location"))

	rec = do(h, http.MethodPost, "/video/toggle?on=false")
	decodeJSON(t, rec, &toggled)
	assert.False(t, toggled["videoRunning"])

	rec = do(h, http.MethodPost, "/video/toggle?on=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ---------------------------------------------------------------------------
// operator actions
// ---------------------------------------------------------------------------

func TestCommand_ForwardInMapModeIsRejected(t *testing.T) {
	h, c, snd := testServer(t, true)

	rec := do(h, http.MethodPost, "/command/forward")
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp actionResponse
	decodeJSON(t, rec, &resp)
	assert.False(t, resp.Sent)
	assert.Equal(t, dash.NoticeManualDriveVideoOnly, resp.Notice)
	assert.Empty(t, snd.Sent())
	assert.Len(t, c.Notifications(0), 1)
}

func TestCommand_ForwardInVideoMode(t *testing.T) {
	h, _, snd := testServer(t, true)

	rec := do(h, http.MethodPost, "/view/video")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap dash.Snapshot
	decodeJSON(t, rec, &snap)
	assert.Equal(t, dash.ViewVideo, snap.View)
	assert.True(t, snap.VideoRunning)

	rec = do(h, http.MethodPost, "/command/forward")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{dash.VelocityCommand{Type: "cmd_vel", Linear: 0.4, Angular: 0}}, snd.Sent())
}

func TestCommand_StopAlwaysSends(t *testing.T) {
	h, c, snd := testServer(t, true)

	rec := do(h, http.MethodPost, "/command/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{dash.VelocityCommand{Type: "cmd_vel"}}, snd.Sent())
	assert.Equal(t, dash.StatusStopped, c.Snapshot().Status)
}

func TestCommand_DisconnectedIsDropped(t *testing.T) {
	h, c, snd := testServer(t, false)

	rec := do(h, http.MethodPost, "/command/stop")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp actionResponse
	decodeJSON(t, rec, &resp)
	assert.False(t, resp.Sent)
	assert.Empty(t, snd.Sent())
	assert.Empty(t, c.Notifications(0))
}

// failingSender accepts nothing, like a channel whose socket just dropped.
type failingSender struct{}

func (failingSender) Send(any) bool { return false }

func TestActions_FailedWriteIsReported(t *testing.T) {
	h, c, _ := testServer(t, true)
	c.SetSender(failingSender{})

	rec := do(h, http.MethodPost, "/command/stop")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	var resp actionResponse
	decodeJSON(t, rec, &resp)
	assert.False(t, resp.Sent)
	assert.Contains(t, resp.Error, dash.ErrNotSent.Error())
	assert.NotEqual(t, dash.StatusStopped, c.Snapshot().Status)

	rec = do(h, http.MethodPost, "/mission/repeat")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	resp = actionResponse{}
	decodeJSON(t, rec, &resp)
	assert.False(t, resp.Sent)
	assert.Equal(t, dash.NoticeMissionNeedsLink, resp.Notice)
	assert.NotEqual(t, dash.StatusPatrolling, c.Snapshot().Status)
}

func TestMission(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		h, c, snd := testServer(t, true)
		rec := do(h, http.MethodPost, "/mission/return")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp actionResponse
		decodeJSON(t, rec, &resp)
		assert.True(t, resp.Sent)
		assert.Equal(t, dash.NoticeReturnSent, resp.Notice)
		assert.Equal(t, []any{dash.PatrolCommand{Type: "patrol", Action: "return"}}, snd.Sent())
		assert.Equal(t, dash.StatusReturning, c.Snapshot().Status)
	})

	t.Run("disconnected", func(t *testing.T) {
		h, _, snd := testServer(t, false)
		rec := do(h, http.MethodPost, "/mission/single")
		require.Equal(t, http.StatusConflict, rec.Code)

		var resp actionResponse
		decodeJSON(t, rec, &resp)
		assert.Equal(t, dash.NoticeMissionNeedsLink, resp.Notice)
		assert.Empty(t, snd.Sent())
	})

	t.Run("unknown", func(t *testing.T) {
		h, _, snd := testServer(t, true)
		rec := do(h, http.MethodPost, "/mission/dance")
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Empty(t, snd.Sent())
	})
}

func TestView_Invalid(t *testing.T) {
	h, _, _ := testServer(t, true)
	rec := do(h, http.MethodPost, "/view/sideways")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFormRedirects(t *testing.T) {
	h, _, _ := testServer(t, true)
	for _, target := range []string{"/command/stop?redirect=1", "/mission/repeat?redirect=1", "/view/video?redirect=1", "/video/toggle?redirect=1"} {
		rec := do(h, http.MethodPost, target)
		assert.Equal(t, http.StatusSeeOther, rec.Code, target)
		assert.Equal(t, "/", rec.Header().Get("Location"), target)
	}
}

func TestNotifications(t *testing.T) {
	h, _, _ := testServer(t, true)

	rec := do(h, http.MethodGet, "/notifications")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	do(h, http.MethodPost, "/command/left")
	do(h, http.MethodPost, "/command/right")

	var notes []dash.Notification
	decodeJSON(t, do(h, http.MethodGet, "/notifications"), &notes)
	require.Len(t, notes, 2)

	decodeJSON(t, do(h, http.MethodGet, "/notifications?since="+strconv.Itoa(notes[0].ID)), &notes)
	require.Len(t, notes, 1)

	rec = do(h, http.MethodGet, "/notifications?since=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPage(t *testing.T) {
	h, c, _ := testServer(t, true)
	c.FrameReceived([]byte(`{"type":"state","text":"docking"}`))
	c.FrameReceived([]byte(`{"type":"distance","meters":12.5}`))

	rec := do(h, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "docking")
	assert.Contains(t, body, "12.50 m")
	assert.Contains(t, body, `/live.png`)
	assert.Contains(t, body, `/mission/return?redirect=1`)
	assert.Contains(t, body, "Video feed is off")
}

func TestUnknownRoute(t *testing.T) {
	h, _, _ := testServer(t, true)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/composite-map.png").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodGet, "/command/stop").Code)
}
