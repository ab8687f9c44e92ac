package provider

import "context"

// EmitFunc receives lifecycle events from a client. Implementations must not
// block; the registry fans events out through buffered channels.
type EmitFunc func(Event)

// Client is a live messaging connection for one account.
//
// Start is asynchronous: it kicks off initialization (pairing or reconnect)
// and returns immediately. Failures surface as ErrorEvent / AuthFailureEvent
// through the emit callback, never as a Start error after wiring succeeded.
type Client interface {
	// Start begins initialization. The context bounds the whole client
	// lifetime; cancelling it stops background work.
	Start(ctx context.Context) error

	// SendText delivers a plain text message to the recipient identified by
	// a normalized phone number. Returns the provider message ID.
	SendText(ctx context.Context, phone string, body string) (string, error)

	// SendMedia delivers a document or image with an optional caption.
	SendMedia(ctx context.Context, phone string, caption string, data []byte, mimetype string, filename string) (string, error)

	// Connected reports whether the client is connected and logged in.
	Connected() bool

	// Logout unpairs the account and deletes its stored credentials so the
	// next Start begins with a fresh QR pairing.
	Logout(ctx context.Context) error

	// Close releases the connection without unpairing.
	Close()
}

// Factory constructs clients bound to an account's credential namespace.
// New must not perform network I/O; slow work belongs in Client.Start.
type Factory interface {
	New(accountID string, emit EmitFunc) (Client, error)
}
