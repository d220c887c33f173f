package proto

type CommandKind int

const (
	CmdUnhandled    CommandKind = iota // logged, never an error
	CmdSetVolume                       // setpoint from the device or broker
	CmdSetPlayback                     // peer reports playing/paused
	CmdMedia                           // play, pause, forward, rewind
	CmdStateRequest                    // peer asks for a full snapshot
	CmdConfigValue                     // key=value from a configuration dump
	CmdConfigEnd                       // end of a configuration dump
)

func (k CommandKind) String() string {
	switch k {
	case CmdSetVolume:
		return "set_volume"
	case CmdSetPlayback:
		return "set_playback"
	case CmdMedia:
		return "media"
	case CmdStateRequest:
		return "state_request"
	case CmdConfigValue:
		return "config_value"
	case CmdConfigEnd:
		return "config_end"
	default:
		return "unhandled"
	}
}

type MediaAction string

const (
	MediaPlay    MediaAction = "play"
	MediaPause   MediaAction = "pause"
	MediaForward MediaAction = "forward"
	MediaRewind  MediaAction = "rewind"
)

func ParseMediaAction(s string) (MediaAction, bool) {
	switch a := MediaAction(s); a {
	case MediaPlay, MediaPause, MediaForward, MediaRewind:
		return a, true
	}
	return "", false
}

// Command is one parsed inbound message. Only the fields relevant to Kind are set.
type Command struct {
	Kind    CommandKind
	Volume  int
	Playing bool
	Media   MediaAction
	Key     string
	Value   string
	Raw     string
}
