package dash

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Message tags carried in the "type" field of inbound frames.
const (
	TagMap      = "map"
	TagPose     = "amcl_pose"
	TagDistance = "distance"
	TagTime     = "time"
	TagBattery  = "battery"
	TagState    = "state"
)

var (
	ErrMalformed    = errors.New("malformed frame")
	ErrUntagged     = errors.New("frame has no type tag")
	ErrUnknownTag   = errors.New("unknown message type")
	ErrMissingField = errors.New("missing required field")
	ErrGridMismatch = errors.New("gray grid length does not match width*height")
)

// Message is one decoded inbound frame.
type Message interface {
	Tag() string
}

// MapMessage carries a full occupancy grid.
type MapMessage struct {
	Width      int
	Height     int
	Gray       []uint8
	Resolution *float64 // nil when the frame omitted res
	Origin     *Point   // nil when the frame omitted origin
}

// PoseMessage carries a localized robot position.
type PoseMessage struct {
	X, Y, Yaw float64
}

type DistanceMessage struct{ Meters float64 }

type ElapsedMessage struct{ Minutes float64 }

type BatteryMessage struct{ Percentage float64 }

// StateMessage carries the robot's status text. Text is empty when the frame
// had none.
type StateMessage struct{ Text string }

func (MapMessage) Tag() string      { return TagMap }
func (PoseMessage) Tag() string     { return TagPose }
func (DistanceMessage) Tag() string { return TagDistance }
func (ElapsedMessage) Tag() string  { return TagTime }
func (BatteryMessage) Tag() string  { return TagBattery }
func (StateMessage) Tag() string    { return TagState }

// envelope is the superset of fields any inbound frame can carry.
type envelope struct {
	Type       *string    `json:"type"`
	Width      *int       `json:"width"`
	Height     *int       `json:"height"`
	Gray       []float64  `json:"gray"`
	Res        *float64   `json:"res"`
	Origin     *rawOrigin `json:"origin"`
	X          *float64   `json:"x"`
	Y          *float64   `json:"y"`
	Yaw        *float64   `json:"yaw"`
	Meters     *float64   `json:"meters"`
	Minutes    *float64   `json:"minutes"`
	Percentage *float64   `json:"percentage"`
	Text       *string    `json:"text"`
}

type rawOrigin struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// Decode parses a raw frame into one of the Message variants.
// The type field is probed first, then the fields required by that tag are
// validated. A frame whose type is not a string counts as malformed.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == nil {
		return nil, ErrUntagged
	}

	tag := strings.TrimSpace(*env.Type)
	switch tag {
	case TagMap:
		return decodeMap(&env)
	case TagPose:
		if env.X == nil || env.Y == nil {
			return nil, fmt.Errorf("%w: amcl_pose needs x and y", ErrMissingField)
		}
		msg := PoseMessage{X: *env.X, Y: *env.Y}
		if env.Yaw != nil {
			msg.Yaw = *env.Yaw
		}
		return msg, nil
	case TagDistance:
		if env.Meters == nil {
			return nil, fmt.Errorf("%w: distance needs meters", ErrMissingField)
		}
		return DistanceMessage{Meters: *env.Meters}, nil
	case TagTime:
		if env.Minutes == nil {
			return nil, fmt.Errorf("%w: time needs minutes", ErrMissingField)
		}
		return ElapsedMessage{Minutes: *env.Minutes}, nil
	case TagBattery:
		if env.Percentage == nil {
			return nil, fmt.Errorf("%w: battery needs percentage", ErrMissingField)
		}
		return BatteryMessage{Percentage: *env.Percentage}, nil
	case TagState:
		msg := StateMessage{}
		if env.Text != nil {
			msg.Text = *env.Text
		}
		return msg, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
}

func decodeMap(env *envelope) (Message, error) {
	if env.Width == nil || env.Height == nil || env.Gray == nil {
		return nil, fmt.Errorf("%w: map needs width, height and gray", ErrMissingField)
	}
	w, h := *env.Width, *env.Height
	if !gridFits(w, h, len(env.Gray)) {
		return nil, fmt.Errorf("%w: %dx%d with %d values", ErrGridMismatch, w, h, len(env.Gray))
	}

	gray := make([]uint8, len(env.Gray))
	for i, v := range env.Gray {
		gray[i] = grayByte(v)
	}

	msg := MapMessage{Width: w, Height: h, Gray: gray, Resolution: env.Res}
	if env.Origin != nil {
		o := Point{}
		if env.Origin.X != nil {
			o.X = *env.Origin.X
		}
		if env.Origin.Y != nil {
			o.Y = *env.Origin.Y
		}
		msg.Origin = &o
	}
	return msg, nil
}

// gridFits reports whether n values fill a w by h grid exactly. It divides
// instead of multiplying so huge dimensions cannot wrap around.
func gridFits(w, h, n int) bool {
	return w > 0 && h > 0 && n%w == 0 && n/w == h
}

// grayByte truncates toward zero and clamps into 0..255.
func grayByte(v float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	t := math.Trunc(v)
	if t <= 0 {
		return 0
	}
	if t >= 255 {
		return 255
	}
	return uint8(t)
}
