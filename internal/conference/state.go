package conference

import "time"

// State is a Conference's position in the Starting → Running → Ending
// lifecycle (spec.md §4.H).
type State int

const (
	// Starting is the state before any participant has ever joined; the
	// empty-conference grace period (Config.SingleParticipantTimeout) is
	// running.
	Starting State = iota
	// Running is the normal operating state: at least one participant has
	// joined at some point.
	Running
	// Ending is terminal: no new participant may be added, and every
	// resource is being released.
	Ending
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Ending:
		return "ending"
	default:
		return "unknown"
	}
}

// Config bounds one conference's policy knobs (spec.md §6 configuration
// surface, conference.* keys).
type Config struct {
	MaxAudioSenders          int
	MaxVideoSenders          int
	MaxSourcesPerEndpoint    int
	MaxGroupsPerEndpoint     int
	SingleParticipantTimeout time.Duration
	SessionExpirationTimeout time.Duration
	InviteConcurrency        int64
	// BridgeHighStressThreshold is forwarded to bridge.SelectionInput for
	// every invite task's bridge selection (configuration surface key
	// bridge.highStressThreshold).
	BridgeHighStressThreshold float64
}
