package proto

import "errors"

type ErrorKind int

const (
	ConnectionFailure ErrorKind = iota + 1
	HandshakeTimeout
	ParseFailure
	PublishFailure
	UnexpectedDisconnect
)

func (k ErrorKind) String() string {
	switch k {
	case ConnectionFailure:
		return "connection failure"
	case HandshakeTimeout:
		return "handshake timeout"
	case ParseFailure:
		return "parse failure"
	case PublishFailure:
		return "publish failure"
	case UnexpectedDisconnect:
		return "unexpected disconnect"
	default:
		return "unknown error"
	}
}

// Error is the error type every channel and parser returns. Compare kinds with
// errors.Is against the Err* sentinels.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

var (
	ErrConnectionFailure    = &Error{Kind: ConnectionFailure}
	ErrHandshakeTimeout     = &Error{Kind: HandshakeTimeout}
	ErrParseFailure         = &Error{Kind: ParseFailure}
	ErrPublishFailure       = &Error{Kind: PublishFailure}
	ErrUnexpectedDisconnect = &Error{Kind: UnexpectedDisconnect}
)

func NewError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
