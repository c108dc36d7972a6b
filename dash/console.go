package dash

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"
)

const (
	inboxSize        = 64
	notificationKeep = 32
)

// ErrNoMap is returned by views that need a map before one has arrived.
var ErrNoMap = errors.New("no map received yet")

// Notification is an operator-facing message, the dashboard's alert popup.
type Notification struct {
	ID   int       `json:"id"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Snapshot is an immutable copy of the console state.
type Snapshot struct {
	Version          uint64          `json:"version"`
	Connection       ConnectionState `json:"connection"`
	ConnectionLabel  string          `json:"connectionLabel"`
	View             ViewMode        `json:"view"`
	Secondary        ViewMode        `json:"secondary"`
	VideoRunning     bool            `json:"videoRunning"`
	VideoURL         string          `json:"videoUrl,omitempty"`
	Status           RobotStatus     `json:"status"`
	StatusText       string          `json:"statusText"`
	Metrics          Metrics         `json:"metrics"`
	Pose             *Pose           `json:"pose,omitempty"`
	PoseStale        bool            `json:"poseStale"`
	Map              *MapMeta        `json:"map,omitempty"`
	LastNotification *Notification   `json:"lastNotification,omitempty"`
}

// PoseText formats the pose the way the location card shows it.
func (s Snapshot) PoseText() string {
	if s.Pose == nil {
		return "X=-, Y=-"
	}
	return fmt.Sprintf("X=%.2f m, Y=%.2f m", s.Pose.X, s.Pose.Y)
}

// DistanceText, ElapsedText and BatteryText format metrics, or "-" before
// the first value.
func (s Snapshot) DistanceText() string {
	if !s.Metrics.DistanceSet {
		return "-"
	}
	return fmt.Sprintf("%.2f m", s.Metrics.DistanceMeters)
}

func (s Snapshot) ElapsedText() string {
	if !s.Metrics.ElapsedSet {
		return "-"
	}
	return fmt.Sprintf("%.1f min", s.Metrics.ElapsedMinutes)
}

func (s Snapshot) BatteryText() string {
	if !s.Metrics.BatterySet {
		return "-"
	}
	return fmt.Sprintf("%g%%", s.Metrics.BatteryPercent)
}

// Observer is called on the console goroutine after every state change.
// It must not block and must not call back into the console.
type Observer func(Snapshot)

// ConsoleOptions configures a Console.
type ConsoleOptions struct {
	Clock      Clock
	Sender     Sender
	Camera     CameraConfig
	ViewWidth  int
	ViewHeight int
}

// Console is the application root. It owns every piece of live dashboard
// state and applies inbound frames, connection changes and operator intents
// one at a time on its own goroutine.
type Console struct {
	ctx   context.Context
	inbox chan consoleMsg
	done  chan struct{}
}

type consoleMsg interface{ isConsoleMsg() }

type connChanged struct{ state ConnectionState }
type frameIn struct{ data []byte }
type setSender struct{ s Sender }
type subscribe struct{ fn Observer }
type commandReq struct {
	name  string
	reply chan error
}
type missionReq struct {
	name  string
	reply chan error
}
type viewReq struct {
	mode  ViewMode
	reply chan Snapshot
}
type videoReq struct {
	force *bool
	reply chan bool
}
type snapshotReq struct{ reply chan Snapshot }
type renderReq struct {
	w, h  int
	reply chan *image.RGBA
}
type mapImageReq struct{ reply chan *image.RGBA }
type vectorReq struct{ reply chan *vectorFrame }
type notificationsReq struct {
	since int
	reply chan []Notification
}

func (connChanged) isConsoleMsg()      {}
func (frameIn) isConsoleMsg()          {}
func (setSender) isConsoleMsg()        {}
func (subscribe) isConsoleMsg()        {}
func (commandReq) isConsoleMsg()       {}
func (missionReq) isConsoleMsg()       {}
func (viewReq) isConsoleMsg()          {}
func (videoReq) isConsoleMsg()         {}
func (snapshotReq) isConsoleMsg()      {}
func (renderReq) isConsoleMsg()        {}
func (mapImageReq) isConsoleMsg()      {}
func (vectorReq) isConsoleMsg()        {}
func (notificationsReq) isConsoleMsg() {}

// NewConsole starts the console goroutine. It stops when ctx is cancelled.
func NewConsole(ctx context.Context, opts ConsoleOptions) *Console {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.ViewWidth <= 0 || opts.ViewHeight <= 0 {
		opts.ViewWidth, opts.ViewHeight = 800, 600
	}
	c := &Console{
		ctx:   ctx,
		inbox: make(chan consoleMsg, inboxSize),
		done:  make(chan struct{}),
	}
	s := newSession(opts)
	go c.loop(s)
	return c
}

// Done is closed once the console goroutine has exited.
func (c *Console) Done() <-chan struct{} { return c.done }

func (c *Console) loop(s *session) {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case m := <-c.inbox:
			if s.apply(m) {
				s.version++
				snap := s.snapshot()
				for _, fn := range s.observers {
					fn(snap)
				}
			}
		}
	}
}

func (c *Console) post(m consoleMsg) bool {
	select {
	case c.inbox <- m:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// ConnectionChanged implements Sink.
func (c *Console) ConnectionChanged(state ConnectionState) {
	c.post(connChanged{state: state})
}

// FrameReceived implements Sink.
func (c *Console) FrameReceived(frame []byte) {
	c.post(frameIn{data: frame})
}

// SetSender installs the outbound writer, normally the transport channel.
func (c *Console) SetSender(s Sender) {
	c.post(setSender{s: s})
}

// Subscribe registers an observer for state changes.
func (c *Console) Subscribe(fn Observer) {
	c.post(subscribe{fn: fn})
}

// PublishCommand forwards a manual drive command.
func (c *Console) PublishCommand(cmd string) error {
	reply := make(chan error, 1)
	if !c.post(commandReq{name: cmd, reply: reply}) {
		return c.ctx.Err()
	}
	return c.await(reply)
}

// PublishMission forwards a patrol mission.
func (c *Console) PublishMission(mission string) error {
	reply := make(chan error, 1)
	if !c.post(missionReq{name: mission, reply: reply}) {
		return c.ctx.Err()
	}
	return c.await(reply)
}

func (c *Console) await(reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// SetView switches the primary pane. Entering video mode starts the feed.
func (c *Console) SetView(mode ViewMode) Snapshot {
	reply := make(chan Snapshot, 1)
	if !c.post(viewReq{mode: mode, reply: reply}) {
		return Snapshot{}
	}
	return recv(c.ctx, reply)
}

// ToggleVideo flips the video feed, or forces it on or off when force is set.
// It returns whether the feed is now running.
func (c *Console) ToggleVideo(force *bool) bool {
	reply := make(chan bool, 1)
	if !c.post(videoReq{force: force, reply: reply}) {
		return false
	}
	return recv(c.ctx, reply)
}

// Snapshot returns a copy of the current state.
func (c *Console) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if !c.post(snapshotReq{reply: reply}) {
		return Snapshot{}
	}
	return recv(c.ctx, reply)
}

// Render returns a freshly composed w x h frame owned by the caller, or nil
// before the first map.
func (c *Console) Render(w, h int) *image.RGBA {
	reply := make(chan *image.RGBA, 1)
	if !c.post(renderReq{w: w, h: h, reply: reply}) {
		return nil
	}
	return recv(c.ctx, reply)
}

// MapImage returns a copy of the unrotated map bitmap, or nil.
func (c *Console) MapImage() *image.RGBA {
	reply := make(chan *image.RGBA, 1)
	if !c.post(mapImageReq{reply: reply}) {
		return nil
	}
	return recv(c.ctx, reply)
}

// RenderSVG writes the live view as SVG sized vw x vh. It returns
// ErrNoMap before the first map.
func (c *Console) RenderSVG(w io.Writer, vw, vh int) error {
	reply := make(chan *vectorFrame, 1)
	if !c.post(vectorReq{reply: reply}) {
		return c.ctx.Err()
	}
	f := recv(c.ctx, reply)
	if f == nil {
		return ErrNoMap
	}
	if vw <= 0 || vh <= 0 {
		vw, vh = f.viewW, f.viewH
	}
	return RenderSVG(w, f.meta, f.gray, f.pose, vw, vh)
}

// Notifications returns the retained notifications with ID greater than since.
func (c *Console) Notifications(since int) []Notification {
	reply := make(chan []Notification, 1)
	if !c.post(notificationsReq{since: since, reply: reply}) {
		return nil
	}
	return recv(c.ctx, reply)
}

func recv[T any](ctx context.Context, ch <-chan T) T {
	select {
	case v := <-ch:
		return v
	case <-ctx.Done():
		var zero T
		return zero
	}
}

// session is the state owned by the console goroutine.
type session struct {
	clock    Clock
	sender   Sender
	emitter  *CommandEmitter
	renderer *MapRenderer
	pose     *PoseTracker
	camera   CameraConfig

	conn       ConnectionState
	view       ViewMode
	video      bool
	status     RobotStatus
	statusText string
	metrics    Metrics

	viewW, viewH int
	surface      *image.RGBA

	notes     []Notification
	noteSeq   int
	observers []Observer
	version   uint64
}

func newSession(opts ConsoleOptions) *session {
	s := &session{
		clock:    opts.Clock,
		renderer: NewMapRenderer(),
		pose:     NewPoseTracker(opts.Clock),
		camera:   opts.Camera,
		conn:     StateDisconnected,
		view:     ViewMap,
		status:   StatusWaiting,
		viewW:    opts.ViewWidth,
		viewH:    opts.ViewHeight,
	}
	s.setSender(opts.Sender)
	return s
}

func (s *session) setSender(snd Sender) {
	if snd == nil {
		snd = discardSender{}
	}
	s.sender = snd
	s.emitter = NewCommandEmitter(snd)
}

// apply handles one message and reports whether state changed.
func (s *session) apply(m consoleMsg) bool {
	switch msg := m.(type) {
	case connChanged:
		s.onConnection(msg.state)
		return true
	case frameIn:
		return Dispatch(msg.data, s) == nil
	case setSender:
		s.setSender(msg.s)
		return false
	case subscribe:
		s.observers = append(s.observers, msg.fn)
		return false
	case commandReq:
		msg.reply <- s.emitter.PublishCommand(s, msg.name)
		return true
	case missionReq:
		msg.reply <- s.emitter.PublishMission(s, msg.name)
		return true
	case viewReq:
		changed := s.setView(msg.mode)
		msg.reply <- s.snapshot()
		return changed
	case videoReq:
		next := !s.video
		if msg.force != nil {
			next = *msg.force
		}
		s.video = next
		msg.reply <- s.video
		return true
	case snapshotReq:
		msg.reply <- s.snapshot()
	case renderReq:
		msg.reply <- s.render(msg.w, msg.h)
	case mapImageReq:
		msg.reply <- cloneRGBA(s.renderer.Bitmap())
	case vectorReq:
		msg.reply <- s.vector()
	case notificationsReq:
		var out []Notification
		for _, n := range s.notes {
			if n.ID > msg.since {
				out = append(out, n)
			}
		}
		msg.reply <- out
	}
	return false
}

func (s *session) onConnection(state ConnectionState) {
	s.conn = state
	switch state {
	case StateConnected:
		s.setStatusText(StatusWaiting, "")
	case StateError:
		s.setStatusText(StatusConnectionError, "")
	case StateDisconnected:
		s.setStatusText(StatusDisconnected, "")
	}
}

func (s *session) setView(mode ViewMode) bool {
	if mode == s.view || (mode != ViewMap && mode != ViewVideo) {
		return false
	}
	s.view = mode
	if mode == ViewVideo && !s.video {
		s.video = true
	}
	return true
}

func (s *session) redraw() {
	s.surface = s.renderer.Redraw(s.surface, s.viewW, s.viewH, s.pose.Current())
}

func (s *session) render(w, h int) *image.RGBA {
	if !s.renderer.HasMap() {
		return nil
	}
	if w <= 0 || h <= 0 {
		w, h = s.viewW, s.viewH
	}
	if w == s.viewW && h == s.viewH && s.surface != nil {
		return cloneRGBA(s.surface)
	}
	return s.renderer.Redraw(nil, w, h, s.pose.Current())
}

type vectorFrame struct {
	meta         MapMeta
	gray         []uint8
	pose         *Pose
	viewW, viewH int
}

func (s *session) vector() *vectorFrame {
	bmp := s.renderer.Bitmap()
	if bmp == nil {
		return nil
	}
	gray := make([]uint8, len(bmp.Pix)/4)
	for i := range gray {
		gray[i] = bmp.Pix[i*4]
	}
	return &vectorFrame{meta: s.renderer.Meta(), gray: gray, pose: s.pose.Current(), viewW: s.viewW, viewH: s.viewH}
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		Version:         s.version,
		Connection:      s.conn,
		ConnectionLabel: s.conn.Label(),
		View:            s.view,
		Secondary:       s.view.Secondary(),
		VideoRunning:    s.video,
		Status:          s.status,
		StatusText:      s.statusText,
		Metrics:         s.metrics,
		Pose:            s.pose.Current(),
		PoseStale:       s.pose.Stale(),
	}
	if snap.StatusText == "" {
		snap.StatusText = s.status.Label()
	}
	if s.video {
		snap.VideoURL = StreamURL(s.camera)
	}
	if s.renderer.HasMap() {
		meta := s.renderer.Meta()
		snap.Map = &meta
	}
	if n := len(s.notes); n > 0 {
		last := s.notes[n-1]
		snap.LastNotification = &last
	}
	return snap
}

func (s *session) setStatusText(st RobotStatus, text string) {
	s.status = st
	s.statusText = text
}

// Handler

func (s *session) OnMap(m MapMessage) {
	if err := s.renderer.SetMap(m); err != nil {
		Debugf("[WS] map rejected: %v", err)
		return
	}
	s.redraw()
}

func (s *session) OnPose(m PoseMessage) {
	s.pose.Update(m)
	s.redraw()
}

func (s *session) OnDistance(m DistanceMessage) {
	s.metrics.DistanceMeters, s.metrics.DistanceSet = m.Meters, true
}

func (s *session) OnElapsed(m ElapsedMessage) {
	s.metrics.ElapsedMinutes, s.metrics.ElapsedSet = m.Minutes, true
}

func (s *session) OnBattery(m BatteryMessage) {
	s.metrics.BatteryPercent, s.metrics.BatterySet = m.Percentage, true
}

func (s *session) OnState(m StateMessage) {
	if m.Text == "" {
		return
	}
	st, ok := ParseStatus(m.Text)
	if ok {
		s.setStatusText(st, "")
		return
	}
	// Unknown text keeps its wording but takes the waiting badge.
	s.setStatusText(st, m.Text)
}

// CommandContext

func (s *session) Connection() ConnectionState { return s.conn }
func (s *session) View() ViewMode              { return s.view }
func (s *session) SetStatus(st RobotStatus)    { s.setStatusText(st, "") }

func (s *session) Notify(text string) {
	s.noteSeq++
	s.notes = append(s.notes, Notification{ID: s.noteSeq, Text: text, At: s.clock.Now()})
	if len(s.notes) > notificationKeep {
		s.notes = s.notes[len(s.notes)-notificationKeep:]
	}
	Logf("[NOTICE] %s", text)
}

type discardSender struct{}

func (discardSender) Send(any) bool { return false }

func cloneRGBA(src *image.RGBA) *image.RGBA {
	if src == nil {
		return nil
	}
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

// ApplyIntent runs a remote operator intent through the same gating as
// local input.
func (c *Console) ApplyIntent(in RemoteIntent) error {
	switch {
	case in.Command != "":
		return c.PublishCommand(in.Command)
	case in.Mission != "":
		return c.PublishMission(in.Mission)
	case in.View != "":
		mode, ok := ParseViewMode(in.View)
		if !ok {
			return fmt.Errorf("unknown view %q", in.View)
		}
		c.SetView(mode)
		return nil
	}
	return fmt.Errorf("empty intent")
}
