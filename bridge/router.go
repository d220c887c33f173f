package bridge

import (
	"log/slog"

	"github.com/mbocsi/qnob/broker"
	"github.com/mbocsi/qnob/proto"
	"github.com/mbocsi/qnob/transport"
)

// Router parses inbound traffic from every channel and hands the resulting
// commands to the reconciler. Runs on the control goroutine.
type Router struct {
	rec     *Reconciler
	session *SessionContext
	dump    *ConfigDump
	log     *MessageLog
	notes   *Notifier
}

func NewRouter(rec *Reconciler, session *SessionContext, dump *ConfigDump, log *MessageLog, notes *Notifier) *Router {
	return &Router{rec: rec, session: session, dump: dump, log: log, notes: notes}
}

// HandleLine routes one decoded line from a device transport.
func (rt *Router) HandleLine(kind transport.Kind, line string) {
	rt.log.Add(kind, LevelReceived, line, false)

	cmd, err := proto.ParseLine(line, rt.session.ConfigView)
	if err != nil {
		slog.Warn("Bad line from device", "transport", kind.String(), "line", line, "error", err)
		rt.log.Warn(kind, err.Error())
		return
	}
	rt.dispatch(cmd, kind)
}

// HandleMQTTEvent routes message traffic from the broker channel. Connection
// events are handled by the coordinator.
func (rt *Router) HandleMQTTEvent(ev broker.Event) {
	switch ev.Kind {
	case broker.EventMessage:
		text := ev.Topic + " " + ev.Payload
		if ev.Self {
			rt.log.Add(transport.KindMQTT, LevelReceived, text, true)
			slog.Debug("Own message echoed", "topic", ev.Topic)
			return
		}
		rt.log.Add(transport.KindMQTT, LevelReceived, text, false)
		if ev.Err != nil {
			slog.Warn("Bad MQTT payload", "topic", ev.Topic, "payload", ev.Payload, "error", ev.Err)
			rt.log.Warn(transport.KindMQTT, ev.Err.Error())
			return
		}
		rt.dispatch(ev.Inbound.Command, transport.KindMQTT)

	case broker.EventSent:
		slog.Debug("Publish handed to client", "topic", ev.Topic)

	case broker.EventPublished:
		slog.Debug("Publish acknowledged", "topic", ev.Topic)

	case broker.EventError:
		rt.log.Error(transport.KindMQTT, ev.Err.Error())
	}
}

func (rt *Router) dispatch(cmd proto.Command, source transport.Kind) {
	switch cmd.Kind {
	case proto.CmdSetVolume:
		rt.rec.ObserveRemoteSetpoint(cmd.Volume, source)

	case proto.CmdSetPlayback:
		rt.rec.ObserveRemotePlayback(cmd.Playing, source)

	case proto.CmdMedia:
		rt.rec.HandleRemoteMediaCommand(cmd.Media, source)

	case proto.CmdStateRequest:
		if source.IsDevice() {
			slog.Warn("State request from device transport has no reply framing", "transport", source.String())
			return
		}
		rt.rec.HandleStateRequest(source)

	case proto.CmdConfigValue:
		rt.dump.Add(cmd.Key, cmd.Value)

	case proto.CmdConfigEnd:
		if !rt.dump.Active() {
			return
		}
		values := rt.dump.End()
		rt.session.ConfigView = false
		rt.log.Status(source, "Device configuration loaded")
		rt.notes.Publish(TopicDeviceConfig, values)

	default:
		slog.Debug("Unhandled command", "transport", source.String(), "raw", cmd.Raw)
	}
}
