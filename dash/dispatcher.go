package dash

// Handler receives decoded inbound messages, one method per variant.
type Handler interface {
	OnMap(MapMessage)
	OnPose(PoseMessage)
	OnDistance(DistanceMessage)
	OnElapsed(ElapsedMessage)
	OnBattery(BatteryMessage)
	OnState(StateMessage)
}

// Dispatch decodes a raw frame and routes it to exactly one handler method.
// Frames that fail to decode are dropped; the error is returned only so
// callers can count or log it.
func Dispatch(frame []byte, h Handler) error {
	msg, err := Decode(frame)
	if err != nil {
		Debugf("[WS] dropping frame: %v", err)
		return err
	}
	Route(msg, h)
	return nil
}

// Route sends an already decoded message to its handler method.
func Route(msg Message, h Handler) {
	switch m := msg.(type) {
	case MapMessage:
		h.OnMap(m)
	case PoseMessage:
		h.OnPose(m)
	case DistanceMessage:
		h.OnDistance(m)
	case ElapsedMessage:
		h.OnElapsed(m)
	case BatteryMessage:
		h.OnBattery(m)
	case StateMessage:
		h.OnState(m)
	}
}
