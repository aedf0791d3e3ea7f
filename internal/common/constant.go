package common

// Request header and cookie names shared by the transport and the services.
const (
	// AccessTokenCookieName carries the principal JWT when no Authorization header is sent.
	AccessTokenCookieName = "access-token"

	// VideoTokenCookieName carries the video-stream token.
	VideoTokenCookieName = "video-access-token"

	// ClientUUIDHeaderName identifies the browser session a video token is bound to.
	ClientUUIDHeaderName = "uuid"

	// TempTokenQueryName is the query parameter used for download tokens.
	TempTokenQueryName = "tempToken"
)
