package dash

import (
	"sync"
	"time"
)

// PoseStaleAfter is how long a pose is considered fresh.
const PoseStaleAfter = 2000 * time.Millisecond

// PoseTracker holds the latest robot pose. Last write wins.
type PoseTracker struct {
	mu    sync.RWMutex
	clock Clock
	pose  *Pose
}

// NewPoseTracker creates a tracker that stamps updates with clk.
func NewPoseTracker(clk Clock) *PoseTracker {
	if clk == nil {
		clk = RealClock{}
	}
	return &PoseTracker{clock: clk}
}

// Update overwrites the stored pose and stamps it with the current time.
func (pt *PoseTracker) Update(m PoseMessage) Pose {
	p := Pose{X: m.X, Y: m.Y, Yaw: m.Yaw, UpdatedAt: pt.clock.Now()}
	pt.mu.Lock()
	pt.pose = &p
	pt.mu.Unlock()
	return p
}

// Current returns a copy of the latest pose, or nil before the first update.
func (pt *PoseTracker) Current() *Pose {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	if pt.pose == nil {
		return nil
	}
	p := *pt.pose
	return &p
}

// Stale reports whether the latest pose is older than PoseStaleAfter.
// With no pose at all it reports true.
func (pt *PoseTracker) Stale() bool {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	if pt.pose == nil {
		return true
	}
	return pt.clock.Now().Sub(pt.pose.UpdatedAt) > PoseStaleAfter
}
