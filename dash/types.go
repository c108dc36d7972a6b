package dash

import (
	"strings"
	"time"
)

// DefaultResolution is the map resolution (meters per pixel) used until a map
// message provides one.
const DefaultResolution = 0.05

// Point represents a 2D point. Depending on context it is in world meters,
// map pixels or view pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AffineMatrix represents a 2D affine transformation
// | a  b  tx |
// | c  d  ty |
// | 0  0  1  |
type AffineMatrix struct {
	A, B, Tx float64
	C, D, Ty float64
}

// Identity returns an identity matrix (no transformation)
func Identity() AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: 0, C: 0, D: 1, Ty: 0}
}

// MapMeta describes the occupancy grid currently loaded.
// It is replaced wholesale on every map message.
type MapMeta struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Resolution float64 `json:"resolution"` // meters per pixel
	Origin     Point   `json:"origin"`     // world coordinate of the bottom-left pixel
}

// Pose is the latest localized robot position in world meters.
type Pose struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Yaw       float64   `json:"yaw"` // radians, informational only
	UpdatedAt time.Time `json:"updatedAt"`
}

// ViewMode selects which pane is primary.
type ViewMode string

const (
	ViewMap   ViewMode = "map"
	ViewVideo ViewMode = "video"
)

// Secondary returns the mode shown in the small pane.
func (v ViewMode) Secondary() ViewMode {
	if v == ViewVideo {
		return ViewMap
	}
	return ViewVideo
}

// ParseViewMode accepts "map" or "video" (case-insensitive).
func ParseViewMode(s string) (ViewMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "map":
		return ViewMap, true
	case "video":
		return ViewVideo, true
	}
	return "", false
}

// ConnectionState is the lifecycle state of the control-server link.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateError        ConnectionState = "error"
	StateDisconnected ConnectionState = "disconnected"
)

// Label returns the operator-facing connection text.
func (s ConnectionState) Label() string {
	switch s {
	case StateConnected:
		return "ROS connected"
	case StateError:
		return "ROS error"
	case StateDisconnected:
		return "ROS disconnected"
	default:
		return "Connecting..."
	}
}

// RobotStatus is the mission status shown on the status badge.
type RobotStatus string

const (
	StatusPatrolling      RobotStatus = "patrolling"
	StatusReturning       RobotStatus = "returning"
	StatusCharging        RobotStatus = "charging"
	StatusStopped         RobotStatus = "stopped"
	StatusMissionComplete RobotStatus = "mission_complete"
	StatusWaiting         RobotStatus = "waiting"
	StatusConnectionError RobotStatus = "connection_error"
	StatusDisconnected    RobotStatus = "disconnected"
)

var statusLabels = map[RobotStatus]string{
	StatusPatrolling:      "Patrolling",
	StatusReturning:       "Returning",
	StatusCharging:        "Charging",
	StatusStopped:         "Stopped",
	StatusMissionComplete: "Mission complete",
	StatusWaiting:         "Waiting",
	StatusConnectionError: "Connection error",
	StatusDisconnected:    "Disconnected",
}

// statusAliases maps the labels published by the robot (Korean) and common
// English spellings onto statuses.
var statusAliases = map[string]RobotStatus{
	"순찰중":   StatusPatrolling,
	"복귀중":   StatusReturning,
	"충전중":   StatusCharging,
	"정지":    StatusStopped,
	"임무완료":  StatusMissionComplete,
	"대기 중":  StatusWaiting,
	"연결 오류": StatusConnectionError,
	"연결 끊김": StatusDisconnected,

	"mission complete": StatusMissionComplete,
	"connection error": StatusConnectionError,
}

// ParseStatus maps free-form state text onto a known status.
// Unrecognized text yields StatusWaiting and ok=false.
func ParseStatus(text string) (RobotStatus, bool) {
	key := strings.TrimSpace(text)
	if s, ok := statusAliases[key]; ok {
		return s, true
	}
	lower := strings.ToLower(key)
	if s, ok := statusAliases[lower]; ok {
		return s, true
	}
	if _, ok := statusLabels[RobotStatus(lower)]; ok {
		return RobotStatus(lower), true
	}
	return StatusWaiting, false
}

// Label returns the badge text for the status.
func (s RobotStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return statusLabels[StatusWaiting]
}

// Color returns the badge color as a hex string.
func (s RobotStatus) Color() string {
	switch s {
	case StatusPatrolling:
		return "#22c55e"
	case StatusReturning:
		return "#6366f1"
	case StatusCharging:
		return "#3b82f6"
	case StatusStopped, StatusConnectionError:
		return "#ef4444"
	case StatusMissionComplete:
		return "#14b8a6"
	case StatusDisconnected:
		return "#eab308"
	default:
		return "#9ca3af"
	}
}

// Metrics holds the latest scalar telemetry. The *Set flags stay false until
// the first message of that kind arrives.
type Metrics struct {
	DistanceMeters float64 `json:"distanceMeters"`
	DistanceSet    bool    `json:"distanceSet"`
	ElapsedMinutes float64 `json:"elapsedMinutes"`
	ElapsedSet     bool    `json:"elapsedSet"`
	BatteryPercent float64 `json:"batteryPercent"`
	BatterySet     bool    `json:"batterySet"`
}
