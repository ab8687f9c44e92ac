package provider

// Event is the fixed set of lifecycle notifications a provider client can
// emit for its account. Consumers switch on the concrete type; there is no
// dynamic event-name dispatch.
type Event interface {
	// Kind returns the wire name of the event, used as the SSE event field
	// and for account status mapping.
	Kind() string
	// Payload returns the JSON-serializable body of the event.
	Payload() map[string]any
}

// QrEvent carries a pairing code the end user scans. PNG is a base64-encoded
// PNG rendering of Code; clients that render their own QR can use Code raw.
type QrEvent struct {
	Code string
	PNG  string
}

func (QrEvent) Kind() string { return "qr" }

func (e QrEvent) Payload() map[string]any {
	return map[string]any{"code": e.Code, "png": e.PNG}
}

// AuthenticatedEvent fires once the device has been paired.
type AuthenticatedEvent struct{}

func (AuthenticatedEvent) Kind() string            { return "authenticated" }
func (AuthenticatedEvent) Payload() map[string]any { return map[string]any{} }

// ReadyEvent fires when the client is connected and able to send messages.
type ReadyEvent struct{}

func (ReadyEvent) Kind() string            { return "ready" }
func (ReadyEvent) Payload() map[string]any { return map[string]any{} }

// AuthFailureEvent fires when pairing or login is rejected.
type AuthFailureEvent struct {
	Message string
}

func (AuthFailureEvent) Kind() string { return "auth_failure" }

func (e AuthFailureEvent) Payload() map[string]any {
	return map[string]any{"message": e.Message}
}

// DisconnectedEvent fires when the connection is lost or the account is
// logged out remotely.
type DisconnectedEvent struct {
	Reason string
}

func (DisconnectedEvent) Kind() string { return "disconnected" }

func (e DisconnectedEvent) Payload() map[string]any {
	return map[string]any{"reason": e.Reason}
}

// LoadingEvent reports cold-start progress.
type LoadingEvent struct {
	Percent int
	Message string
}

func (LoadingEvent) Kind() string { return "loading" }

func (e LoadingEvent) Payload() map[string]any {
	return map[string]any{"percent": e.Percent, "message": e.Message}
}

// ErrorEvent carries a diagnostic for an initialization or runtime failure.
type ErrorEvent struct {
	Message string
}

func (ErrorEvent) Kind() string { return "error" }

func (e ErrorEvent) Payload() map[string]any {
	return map[string]any{"message": e.Message}
}

// MessageEvent is an inbound message notification, informational only.
type MessageEvent struct {
	From string
	Body string
}

func (MessageEvent) Kind() string { return "message" }

func (e MessageEvent) Payload() map[string]any {
	return map[string]any{"from": e.From, "body": e.Body}
}
