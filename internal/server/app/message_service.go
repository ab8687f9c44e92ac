package app

import (
	"context"
	"encoding/base64"

	"wagate/internal/logging"
	"wagate/internal/registry"
	"wagate/internal/store"
)

// Media describes an optional attachment for a send request.
type Media struct {
	// Data is the base64-encoded file content.
	Data     string `json:"data"`
	Mimetype string `json:"mimetype"`
	Filename string `json:"filename"`
}

// SendResult reports one completed delivery attempt.
type SendResult struct {
	Phone     string `json:"phone"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MessageService delivers messages through ready sessions and keeps the
// delivery log when a message store is configured.
type MessageService struct {
	registry           *registry.Registry
	messages           store.MessageStore // optional
	defaultCountryCode string
	logger             logging.Logger
}

// MessageServiceOption configures optional behavior.
type MessageServiceOption func(*MessageService)

// WithMessageLog wires the delivery log.
func WithMessageLog(messages store.MessageStore) MessageServiceOption {
	return func(svc *MessageService) { svc.messages = messages }
}

// WithDefaultCountryCode sets the prefix applied to local phone numbers.
func WithDefaultCountryCode(code string) MessageServiceOption {
	return func(svc *MessageService) { svc.defaultCountryCode = code }
}

func NewMessageService(reg *registry.Registry, opts ...MessageServiceOption) *MessageService {
	svc := &MessageService{
		registry: reg,
		logger:   logging.NewComponentLogger("MessageService"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// EnsureReady reports whether accountID has a ready session, using the same
// error taxonomy as Send.
func (svc *MessageService) EnsureReady(ctx context.Context, accountID string) error {
	if err := registry.ValidateAccountID(accountID); err != nil {
		return ValidationError(err.Error())
	}
	session, err := svc.registry.Get(accountID)
	if err != nil {
		return NotFoundError("account " + accountID + " has no active session")
	}
	if !session.Ready() || session.Client() == nil {
		return NotReadyError("account " + accountID + " is not ready")
	}
	return nil
}

// Send validates, normalizes and delivers one message. The provider is never
// reached unless the session is ready. A persistence failure after a
// successful send is logged, not compensated; the message stays sent.
func (svc *MessageService) Send(ctx context.Context, accountID, phone, body string, media *Media) (*SendResult, error) {
	if err := registry.ValidateAccountID(accountID); err != nil {
		return nil, ValidationError(err.Error())
	}
	if body == "" && media == nil {
		return nil, ValidationError("message body or media is required")
	}

	normalized, err := NormalizePhone(phone, svc.defaultCountryCode)
	if err != nil {
		return nil, err
	}

	session, err := svc.registry.Get(accountID)
	if err != nil {
		return nil, NotFoundError("account " + accountID + " has no active session")
	}
	if !session.Ready() {
		return nil, NotReadyError("account " + accountID + " is not ready")
	}
	client := session.Client()
	if client == nil {
		return nil, NotReadyError("account " + accountID + " is still initializing")
	}

	var payload []byte
	if media != nil {
		payload, err = base64.StdEncoding.DecodeString(media.Data)
		if err != nil {
			return nil, ValidationError("media data is not valid base64")
		}
	}

	record := svc.logAttempt(ctx, accountID, normalized, body, media)

	var messageID string
	if media != nil {
		messageID, err = client.SendMedia(ctx, normalized, body, payload, media.Mimetype, media.Filename)
	} else {
		messageID, err = client.SendText(ctx, normalized, body)
	}
	if err != nil {
		svc.logOutcome(ctx, record, store.MessageFailed, "", err.Error())
		return nil, ProviderError(err)
	}

	svc.logOutcome(ctx, record, store.MessageDelivered, messageID, "")
	return &SendResult{Phone: normalized, MessageID: messageID}, nil
}

func (svc *MessageService) logAttempt(ctx context.Context, accountID, phone, body string, media *Media) *store.MessageRecord {
	if svc.messages == nil {
		return nil
	}
	record := &store.MessageRecord{
		AccountID: accountID,
		Phone:     phone,
		Body:      body,
		Status:    store.MessageSending,
	}
	if media != nil {
		record.MediaType = media.Mimetype
	}
	if err := svc.messages.CreateMessage(ctx, record); err != nil {
		svc.logger.Warn("Failed to log delivery attempt for account %s: %v", accountID, err)
		return nil
	}
	return record
}

func (svc *MessageService) logOutcome(ctx context.Context, record *store.MessageRecord, status, providerID, errMsg string) {
	if svc.messages == nil || record == nil {
		return
	}
	if err := svc.messages.UpdateMessageStatus(ctx, record.ID, status, providerID, errMsg); err != nil {
		svc.logger.Warn("Failed to update delivery log %d: %v", record.ID, err)
	}
}

// History returns the most recent delivery attempts for an account.
func (svc *MessageService) History(ctx context.Context, accountID string, limit int) ([]store.MessageRecord, error) {
	if err := registry.ValidateAccountID(accountID); err != nil {
		return nil, ValidationError(err.Error())
	}
	if svc.messages == nil {
		return nil, nil
	}
	records, err := svc.messages.ListMessages(ctx, accountID, limit)
	if err != nil {
		return nil, PersistenceError(err)
	}
	return records, nil
}
