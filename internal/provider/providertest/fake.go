// Package providertest provides an in-memory provider implementation for
// tests that drive lifecycle events by hand.
package providertest

import (
	"context"
	"errors"
	"sync"

	"wagate/internal/provider"
)

// Factory records every client it creates and exposes them by account ID.
type Factory struct {
	mu      sync.Mutex
	clients map[string][]*Client

	// NewErr, when set, is returned from New instead of a client.
	NewErr error
}

func NewFactory() *Factory {
	return &Factory{clients: make(map[string][]*Client)}
}

func (f *Factory) New(accountID string, emit provider.EmitFunc) (provider.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NewErr != nil {
		return nil, f.NewErr
	}
	c := &Client{AccountID: accountID, emit: emit}
	f.clients[accountID] = append(f.clients[accountID], c)
	return c, nil
}

// Created returns how many clients were built for accountID.
func (f *Factory) Created(accountID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients[accountID])
}

// Client returns the most recent client for accountID, or nil.
func (f *Factory) Client(accountID string) *Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.clients[accountID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// SentMessage records one SendText/SendMedia call.
type SentMessage struct {
	Phone    string
	Body     string
	Mimetype string
	Filename string
}

// Client is a hand-driven provider client.
type Client struct {
	AccountID string

	mu        sync.Mutex
	emit      provider.EmitFunc
	started   bool
	connected bool
	closed    bool
	loggedOut bool
	sent      []SentMessage

	// SendErr, when set, fails the next send.
	SendErr error
	// LogoutErr, when set, is returned from Logout.
	LogoutErr error
}

func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	return nil
}

// Emit pushes a lifecycle event through the wiring installed by the registry.
func (c *Client) Emit(ev provider.Event) {
	c.mu.Lock()
	emit := c.emit
	switch ev.(type) {
	case provider.ReadyEvent:
		c.connected = true
	case provider.DisconnectedEvent, provider.AuthFailureEvent:
		c.connected = false
	}
	c.mu.Unlock()
	if emit != nil {
		emit(ev)
	}
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) SendText(ctx context.Context, phone string, body string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	if !c.connected {
		return "", errors.New("client is not connected")
	}
	c.sent = append(c.sent, SentMessage{Phone: phone, Body: body})
	return "fake-msg-id", nil
}

func (c *Client) SendMedia(ctx context.Context, phone string, caption string, data []byte, mimetype string, filename string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	if !c.connected {
		return "", errors.New("client is not connected")
	}
	c.sent = append(c.sent, SentMessage{Phone: phone, Body: caption, Mimetype: mimetype, Filename: filename})
	return "fake-media-id", nil
}

func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedOut = true
	c.connected = false
	return c.LogoutErr
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.connected = false
}

// Sent returns a copy of all recorded sends.
func (c *Client) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// Started reports whether Start was called.
func (c *Client) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// LoggedOut reports whether Logout was called.
func (c *Client) LoggedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedOut
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
