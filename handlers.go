package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"image"
	"image/png"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kwv/patroldash/dash"
)

// dashboard is the part of *dash.Console the HTTP surface drives.
type dashboard interface {
	Snapshot() dash.Snapshot
	Render(w, h int) *image.RGBA
	RenderSVG(w io.Writer, vw, vh int) error
	MapImage() *image.RGBA
	PublishCommand(cmd string) error
	PublishMission(mission string) error
	SetView(mode dash.ViewMode) dash.Snapshot
	ToggleVideo(force *bool) bool
	Notifications(since int) []dash.Notification
}

// maxViewSide caps ?w= and ?h= on the render endpoints.
const maxViewSide = 4096

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(d dashboard, cfg *dash.Config) http.Handler {
	h := &httpHandlers{d: d, viewW: cfg.View.Width, viewH: cfg.View.Height}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", h.page)
	r.Get("/health", h.health)
	r.Get("/status", h.status)
	r.Get("/live.png", h.livePNG)
	r.Get("/live.svg", h.liveSVG)
	r.Get("/map.png", h.mapPNG)
	r.Get("/pose.geojson", h.poseGeoJSON)
	r.Get("/video", h.video)
	r.Get("/notifications", h.notifications)

	r.Post("/command/{name}", h.command)
	r.Post("/mission/{type}", h.mission)
	r.Post("/view/{mode}", h.view)
	r.Post("/video/toggle", h.toggleVideo)
	return r
}

type httpHandlers struct {
	d            dashboard
	viewW, viewH int
}

func (h *httpHandlers) health(w http.ResponseWriter, r *http.Request) {
	log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
	snap := h.d.Snapshot()
	status := struct {
		Status     string               `json:"status"`
		Timestamp  time.Time            `json:"timestamp"`
		Connection dash.ConnectionState `json:"connection"`
		HasMap     bool                 `json:"hasMap"`
	}{
		Status:     "ok",
		Timestamp:  time.Now(),
		Connection: snap.Connection,
		HasMap:     snap.Map != nil,
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *httpHandlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.d.Snapshot())
}

// viewSize reads ?w= and ?h=, falling back to the configured view size.
func (h *httpHandlers) viewSize(r *http.Request) (int, int, error) {
	vw, vh := h.viewW, h.viewH
	for _, q := range []struct {
		name string
		dst  *int
	}{{"w", &vw}, {"h", &vh}} {
		v := r.URL.Query().Get(q.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxViewSide {
			return 0, 0, fmt.Errorf("%s must be between 1 and %d", q.name, maxViewSide)
		}
		*q.dst = n
	}
	return vw, vh, nil
}

func (h *httpHandlers) livePNG(w http.ResponseWriter, r *http.Request) {
	vw, vh, err := h.viewSize(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	img := h.d.Render(vw, vh)
	if img == nil {
		img = dash.Placeholder(vw, vh, "Waiting for map...")
	}
	writePNG(w, img)
}

func (h *httpHandlers) liveSVG(w http.ResponseWriter, r *http.Request) {
	vw, vh, err := h.viewSize(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	if err := h.d.RenderSVG(w, vw, vh); err != nil {
		if errors.Is(err, dash.ErrNoMap) {
			w.Header().Del("Content-Type")
			http.Error(w, "No map available", http.StatusServiceUnavailable)
			return
		}
		log.Printf("Error rendering live SVG: %v", err)
	}
}

func (h *httpHandlers) mapPNG(w http.ResponseWriter, r *http.Request) {
	img := h.d.MapImage()
	if img == nil {
		http.Error(w, "No map available", http.StatusServiceUnavailable)
		return
	}
	writePNG(w, img)
}

func (h *httpHandlers) poseGeoJSON(w http.ResponseWriter, r *http.Request) {
	fc := dash.PoseGeoJSON(h.d.Snapshot())
	data, err := fc.MarshalJSON()
	if err != nil {
		http.Error(w, "encoding GeoJSON", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if _, err := w.Write(data); err != nil {
		log.Printf("Error writing GeoJSON: %v", err)
	}
}

func (h *httpHandlers) video(w http.ResponseWriter, r *http.Request) {
	snap := h.d.Snapshot()
	if !snap.VideoRunning || snap.VideoURL == "" {
		http.Error(w, "Video feed is off", http.StatusNotFound)
		return
	}
	http.Redirect(w, r, snap.VideoURL, http.StatusFound)
}

func (h *httpHandlers) notifications(w http.ResponseWriter, r *http.Request) {
	since := 0
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "since must be an integer", http.StatusBadRequest)
			return
		}
		since = n
	}
	notes := h.d.Notifications(since)
	if notes == nil {
		notes = []dash.Notification{}
	}
	writeJSON(w, http.StatusOK, notes)
}

type actionResponse struct {
	Sent   bool   `json:"sent"`
	Error  string `json:"error,omitempty"`
	Notice string `json:"notice,omitempty"`
}

func (h *httpHandlers) command(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := h.d.PublishCommand(name)
	switch {
	case err == nil:
		h.respondAction(w, r, http.StatusOK, actionResponse{Sent: true})
	case errors.Is(err, dash.ErrNotConnected):
		// Dropped without telling the operator, same as the keyboard path.
		h.respondAction(w, r, http.StatusAccepted, actionResponse{Error: err.Error()})
	case errors.Is(err, dash.ErrNotSent):
		h.respondAction(w, r, http.StatusBadGateway, actionResponse{Error: err.Error()})
	default:
		h.reject(w, r, err)
	}
}

func (h *httpHandlers) mission(w http.ResponseWriter, r *http.Request) {
	err := h.d.PublishMission(chi.URLParam(r, "type"))
	switch {
	case errors.Is(err, dash.ErrNotSent):
		h.respondAction(w, r, http.StatusBadGateway, actionResponse{Error: err.Error(), Notice: h.lastNotice()})
		return
	case err != nil:
		h.reject(w, r, err)
		return
	}
	h.respondAction(w, r, http.StatusOK, actionResponse{Sent: true, Notice: h.lastNotice()})
}

func (h *httpHandlers) reject(w http.ResponseWriter, r *http.Request, err error) {
	h.respondAction(w, r, http.StatusConflict, actionResponse{Error: err.Error(), Notice: h.lastNotice()})
}

func (h *httpHandlers) lastNotice() string {
	if n := h.d.Snapshot().LastNotification; n != nil {
		return n.Text
	}
	return ""
}

// respondAction answers API clients with JSON and sends dashboard forms back
// to the page.
func (h *httpHandlers) respondAction(w http.ResponseWriter, r *http.Request, code int, resp actionResponse) {
	if r.URL.Query().Get("redirect") != "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, code, resp)
}

func (h *httpHandlers) view(w http.ResponseWriter, r *http.Request) {
	mode, ok := dash.ParseViewMode(chi.URLParam(r, "mode"))
	if !ok {
		http.Error(w, "view must be map or video", http.StatusBadRequest)
		return
	}
	snap := h.d.SetView(mode)
	if r.URL.Query().Get("redirect") != "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *httpHandlers) toggleVideo(w http.ResponseWriter, r *http.Request) {
	var force *bool
	if v := r.URL.Query().Get("on"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "on must be true or false", http.StatusBadRequest)
			return
		}
		force = &on
	}
	running := h.d.ToggleVideo(force)
	if r.URL.Query().Get("redirect") != "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"videoRunning": running})
}

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="2">
<title>patroldash</title>
<style>
body { font-family: sans-serif; margin: 1.5em; background: #f3f4f6; color: #111827; }
.badge { padding: 2px 8px; border-radius: 4px; color: #111827; font-weight: bold; }
.panes { display: flex; gap: 1em; align-items: flex-start; }
.secondary { width: 240px; }
form { display: inline; }
.notice { background: #fef3c7; padding: 6px 10px; margin: 8px 0; }
</style>
</head>
<body>
<h1>patroldash</h1>
<p>{{.S.ConnectionLabel}} <span class="badge" style="background: {{.Color}}">{{.S.StatusText}}</span></p>
<p>Distance {{.S.DistanceText}} | Time {{.S.ElapsedText}} | Battery {{.S.BatteryText}} | {{.S.PoseText}}</p>
{{with .S.LastNotification}}<div class="notice">{{.Text}}</div>{{end}}
<div class="panes">
{{if eq .S.View "video"}}
  <div>{{if .S.VideoRunning}}<img src="{{.S.VideoURL}}" width="{{.W}}" alt="video">{{else}}Video feed is off{{end}}</div>
  <div class="secondary"><img src="/live.png?w=240&h=180" alt="map"></div>
{{else}}
  <div><img src="/live.png" width="{{.W}}" height="{{.H}}" alt="map"></div>
  <div class="secondary">{{if .S.VideoRunning}}<img src="{{.S.VideoURL}}" width="240" alt="video">{{else}}Video feed is off{{end}}</div>
{{end}}
</div>
<p>
<form method="post" action="/view/map?redirect=1"><button>Map</button></form>
<form method="post" action="/view/video?redirect=1"><button>Video</button></form>
<form method="post" action="/video/toggle?redirect=1"><button>Toggle feed</button></form>
</p>
<p>
{{range .Commands}}<form method="post" action="/command/{{.}}?redirect=1"><button>{{.}}</button></form> {{end}}
</p>
<p>
{{range .Missions}}<form method="post" action="/mission/{{.}}?redirect=1"><button>{{.}}</button></form> {{end}}
</p>
</body>
</html>
`))

func (h *httpHandlers) page(w http.ResponseWriter, r *http.Request) {
	snap := h.d.Snapshot()
	data := struct {
		S        dash.Snapshot
		Color    template.CSS
		W, H     int
		Commands []string
		Missions []string
	}{
		S:        snap,
		Color:    template.CSS(snap.Status.Color()),
		W:        h.viewW,
		H:        h.viewH,
		Commands: []string{dash.CmdForward, dash.CmdBackward, dash.CmdLeft, dash.CmdRight, dash.CmdStop},
		Missions: []string{dash.MissionReturn, dash.MissionRepeat, dash.MissionSingle},
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		log.Printf("Error rendering page: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding response: %v", err)
	}
}

func writePNG(w http.ResponseWriter, img image.Image) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, img); err != nil {
		log.Printf("Error encoding PNG: %v", err)
	}
}
