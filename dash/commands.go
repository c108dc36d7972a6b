package dash

import (
	"errors"
	"fmt"
)

// Drive speeds sent with cmd_vel.
const (
	LinearSpeed  = 0.4 // m/s
	AngularSpeed = 0.8 // rad/s
)

// Manual drive commands.
const (
	CmdForward    = "forward"
	CmdBackward   = "backward"
	CmdLeft       = "left"
	CmdRight      = "right"
	CmdStop       = "stop"
	CmdManualStop = "manual_stop"
)

// Mission types.
const (
	MissionReturn = "return"
	MissionRepeat = "repeat"
	MissionSingle = "single"
)

// Operator notifications.
const (
	NoticeManualDriveVideoOnly = "Manual control (arrow keys) is only available in webcam mode."
	NoticeMissionNeedsLink     = "Connect to the ROS server before sending mission commands."
	NoticeReturnSent           = "Return command sent."
	NoticeRepeatStarted        = "Starting repeat patrol."
	NoticeSingleStarted        = "Starting single patrol."
)

var (
	ErrManualDriveRequiresVideo = errors.New("manual drive is only available in video mode")
	ErrUnknownMission           = errors.New("unknown mission type")
	// ErrNotSent means the gates passed but the sender did not write the
	// message, usually because the link dropped before the console noticed.
	ErrNotSent = errors.New("message was not written to the control server")
)

// VelocityCommand is the outbound cmd_vel envelope.
type VelocityCommand struct {
	Type    string  `json:"type"`
	Linear  float64 `json:"linear"`
	Angular float64 `json:"angular"`
}

// PatrolCommand is the outbound patrol envelope.
type PatrolCommand struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

// Sender writes outbound messages. Send reports whether the message went out.
type Sender interface {
	Send(v any) bool
}

// CommandContext is the slice of console state the emitter reads and updates.
type CommandContext interface {
	Connection() ConnectionState
	View() ViewMode
	SetStatus(RobotStatus)
	Notify(text string)
}

// CommandEmitter translates operator intents into outbound messages.
type CommandEmitter struct {
	sender Sender
}

// NewCommandEmitter creates an emitter writing to s.
func NewCommandEmitter(s Sender) *CommandEmitter {
	return &CommandEmitter{sender: s}
}

// Velocity returns the linear and angular speed for a drive command.
// Unknown commands, stop included, map to zero.
func Velocity(cmd string) (linear, angular float64) {
	switch cmd {
	case CmdForward:
		return LinearSpeed, 0
	case CmdBackward:
		return -LinearSpeed, 0
	case CmdLeft:
		return 0, AngularSpeed
	case CmdRight:
		return 0, -AngularSpeed
	}
	return 0, 0
}

// PublishCommand sends a manual drive command.
// When disconnected the command is dropped without a notification. Outside
// video mode only stop and manual_stop go through; anything else notifies
// the operator instead. A failed write returns ErrNotSent.
func (e *CommandEmitter) PublishCommand(cc CommandContext, cmd string) error {
	if cc.Connection() != StateConnected {
		return ErrNotConnected
	}
	if cc.View() != ViewVideo && cmd != CmdStop && cmd != CmdManualStop {
		cc.Notify(NoticeManualDriveVideoOnly)
		return ErrManualDriveRequiresVideo
	}

	lin, ang := Velocity(cmd)
	if !e.sender.Send(VelocityCommand{Type: "cmd_vel", Linear: lin, Angular: ang}) {
		return fmt.Errorf("%w: %s", ErrNotSent, cmd)
	}
	if cmd == CmdStop {
		cc.SetStatus(StatusStopped)
	}
	return nil
}

// PublishMission sends a patrol mission. It is rejected with a notification
// when disconnected or when the mission type is unknown.
func (e *CommandEmitter) PublishMission(cc CommandContext, mission string) error {
	if cc.Connection() != StateConnected {
		cc.Notify(NoticeMissionNeedsLink)
		return ErrNotConnected
	}

	var status RobotStatus
	var notice string
	switch mission {
	case MissionReturn:
		status, notice = StatusReturning, NoticeReturnSent
	case MissionRepeat:
		status, notice = StatusPatrolling, NoticeRepeatStarted
	case MissionSingle:
		status, notice = StatusPatrolling, NoticeSingleStarted
	default:
		cc.Notify(fmt.Sprintf("Unknown mission type %q.", mission))
		return fmt.Errorf("%w: %q", ErrUnknownMission, mission)
	}

	if !e.sender.Send(PatrolCommand{Type: "patrol", Action: mission}) {
		cc.Notify(NoticeMissionNeedsLink)
		return fmt.Errorf("%w: %s", ErrNotSent, mission)
	}
	cc.SetStatus(status)
	cc.Notify(notice)
	return nil
}
