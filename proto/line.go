package proto

import (
	"strconv"
	"strings"
)

const (
	MinVolume = 0
	MaxVolume = 100
)

// FrameLine terminates a device command with a newline if it lacks one.
func FrameLine(cmd string) string {
	if strings.HasSuffix(cmd, "\n") {
		return cmd
	}
	return cmd + "\n"
}

// ParseLine turns one line from a device transport into a Command. key=value
// lines are only recognised while configView is set; otherwise they come back
// as CmdUnhandled like any other unknown text.
func ParseLine(line string, configView bool) (Command, error) {
	line = strings.TrimSpace(line)
	cmd := Command{Kind: CmdUnhandled, Raw: line}

	switch {
	case line == "":
		return cmd, nil

	case strings.HasPrefix(line, "setpoint="):
		v, err := ParseSetpoint(strings.TrimPrefix(line, "setpoint="))
		if err != nil {
			return cmd, err
		}
		cmd.Kind = CmdSetVolume
		cmd.Volume = v

	case line == "playing" || line == "paused":
		cmd.Kind = CmdSetPlayback
		cmd.Playing = line == "playing"

	case strings.Contains(line, ConfigDumpEnd):
		cmd.Kind = CmdConfigEnd

	case configView:
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if ok && key != "" {
			cmd.Kind = CmdConfigValue
			cmd.Key = key
			cmd.Value = strings.TrimSpace(value)
		}
	}
	return cmd, nil
}

// ParseSetpoint parses a volume percentage. Anything that is not an integer in
// [0,100] is a ParseFailure; values are never clamped.
func ParseSetpoint(s string) (int, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, NewError(ParseFailure, "invalid setpoint "+strconv.Quote(s), err)
	}
	if v < MinVolume || v > MaxVolume {
		return 0, NewError(ParseFailure, "setpoint "+s+" out of range", nil)
	}
	return v, nil
}
