package services

import (
	"context"
	"strconv"

	"github.com/mbocsi/qnob/bridge"
	"github.com/mbocsi/qnob/proto"
)

// StateServiceImpl implements StateService
type StateServiceImpl struct {
	coord *bridge.Coordinator
}

func NewStateService(coord *bridge.Coordinator) StateService {
	return &StateServiceImpl{coord: coord}
}

func (s *StateServiceImpl) GetState(ctx context.Context) (*StateInfo, error) {
	st, session, err := s.coord.State(ctx)
	if err != nil {
		return nil, translateError(err, "Failed to read state")
	}
	info := &StateInfo{
		Volume:      st.Volume,
		Playback:    st.Playback,
		Suppressing: st.Suppressing,
		Session:     session,
	}
	if st.HaveSent {
		v := st.LastSent
		info.LastSent = &v
	}
	return info, nil
}

func (s *StateServiceImpl) SetVolume(ctx context.Context, volume int) error {
	if volume < proto.MinVolume || volume > proto.MaxVolume {
		return invalidInput("Volume must be between 0 and 100, got "+strconv.Itoa(volume), nil)
	}
	return translateError(s.coord.SetVolume(ctx, volume), "Failed to set volume")
}

func (s *StateServiceImpl) Media(ctx context.Context, action string) error {
	a, ok := proto.ParseMediaAction(action)
	if !ok {
		return invalidInput("Unknown media action: "+action, nil)
	}
	return translateError(s.coord.Media(ctx, a), "Failed to "+action)
}

func (s *StateServiceImpl) MessageLog(kind string, includeSelf bool) ([]bridge.LogEntry, error) {
	k, err := parseKind(kind)
	if err != nil {
		return nil, err
	}
	return s.coord.Log.Entries(k, includeSelf), nil
}

func (s *StateServiceImpl) ClearMessageLog(kind string) error {
	k, err := parseKind(kind)
	if err != nil {
		return err
	}
	s.coord.Log.Clear(k)
	return nil
}
