package services

import (
	"context"
	"errors"

	"github.com/mbocsi/qnob/audio"
	"github.com/mbocsi/qnob/bridge"
	"github.com/mbocsi/qnob/proto"
	"github.com/mbocsi/qnob/transport"
)

// translateError maps bridge and channel errors onto service codes.
func translateError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var se ServiceError
	if errors.As(err, &se) {
		return se
	}

	code := ErrCodeInternal
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, proto.ErrHandshakeTimeout):
		code = ErrCodeTimeout
	case errors.Is(err, proto.ErrParseFailure):
		code = ErrCodeInvalidInput
	case errors.Is(err, bridge.ErrNoDevice), errors.Is(err, audio.ErrNoPlayer),
		errors.Is(err, bridge.ErrStopped), errors.Is(err, proto.ErrConnectionFailure),
		errors.Is(err, proto.ErrPublishFailure), errors.Is(err, proto.ErrUnexpectedDisconnect):
		code = ErrCodeUnavailable
	}
	return ServiceError{Code: code, Message: msg, Cause: err}
}

func invalidInput(msg string, cause error) error {
	return ServiceError{Code: ErrCodeInvalidInput, Message: msg, Cause: cause}
}

func parseKind(raw string) (transport.Kind, error) {
	kind, ok := transport.ParseKind(raw)
	if !ok {
		return 0, ServiceError{Code: ErrCodeNotFound, Message: "Unknown transport: " + raw}
	}
	return kind, nil
}
