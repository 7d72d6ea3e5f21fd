package client

import "errors"

var (
	// ErrNameRequired is returned by Connect for an empty or blank player name.
	ErrNameRequired = errors.New("player name is required")

	// ErrNameTooLong is returned by Connect for names over model.MaxNameLength characters.
	ErrNameTooLong = errors.New("player name must be 16 characters or less")

	// ErrNameInvalid is returned for names containing line terminators.
	ErrNameInvalid = errors.New("player name must not contain line breaks")

	// ErrAlreadyConnected is returned by Connect while a session is live.
	ErrAlreadyConnected = errors.New("already connected to the server")

	// ErrConnectAborted is returned by Connect when Disconnect ran during the dial.
	ErrConnectAborted = errors.New("connect aborted")

	// ErrNotStreaming is returned by SendMove outside the Streaming state.
	ErrNotStreaming = errors.New("not streaming")

	// ErrConnectionLost wraps mid-session transport failures delivered to OnError.
	ErrConnectionLost = errors.New("connection lost")
)
