package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"wagate/internal/logging"
)

const qrImageSize = 256

// routing table maps our account identifiers to the whatsmeow device JID so
// a restarted process can reattach each account to its stored credentials.
const routingSchema = `
CREATE TABLE IF NOT EXISTS wagate_device_routing (
	account_id TEXT PRIMARY KEY,
	jid        TEXT NOT NULL
);`

// WhatsmeowFactory builds whatsmeow-backed clients that share one credential
// datastore. Each account gets its own device row inside the container.
type WhatsmeowFactory struct {
	container *sqlstore.Container
	db        *sqlx.DB
	logger    logging.Logger
}

// NewWhatsmeowFactory opens the shared credential datastore and the device
// routing table. driver/dsn follow database/sql conventions (sqlite3 or
// pgx, same as the rest of the examples' deployments).
func NewWhatsmeowFactory(ctx context.Context, driver, dsn string, db *sqlx.DB, logger logging.Logger) (*WhatsmeowFactory, error) {
	container, err := sqlstore.New(ctx, driver, dsn, waLog.Stdout("Datastore", "WARN", false))
	if err != nil {
		return nil, fmt.Errorf("open credential datastore: %w", err)
	}
	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("upgrade credential datastore: %w", err)
	}
	if _, err := db.ExecContext(ctx, routingSchema); err != nil {
		return nil, fmt.Errorf("init device routing table: %w", err)
	}
	return &WhatsmeowFactory{
		container: container,
		db:        db,
		logger:    logging.OrNop(logger),
	}, nil
}

// New builds a client for accountID, reusing a previously paired device when
// the routing table knows one.
func (f *WhatsmeowFactory) New(accountID string, emit EmitFunc) (Client, error) {
	if emit == nil {
		return nil, errors.New("event emitter is required")
	}

	ctx := context.Background()
	device := f.lookupDevice(ctx, accountID)
	if device == nil {
		device = f.container.NewDevice()
	}

	cli := whatsmeow.NewClient(device, waLog.Stdout("Client/"+accountID, "WARN", false))
	cli.EnableAutoReconnect = false // reconnection is the registry's policy, not the transport's

	wc := &waClient{
		accountID: accountID,
		cli:       cli,
		emit:      emit,
		factory:   f,
		logger:    f.logger,
	}
	cli.AddEventHandler(wc.handleEvent)
	return wc, nil
}

func (f *WhatsmeowFactory) lookupDevice(ctx context.Context, accountID string) *store.Device {
	var raw string
	err := f.db.GetContext(ctx, &raw, `SELECT jid FROM wagate_device_routing WHERE account_id = ?`, accountID)
	if err != nil {
		return nil
	}
	jid, err := types.ParseJID(raw)
	if err != nil {
		f.logger.Warn("Invalid routing JID for account %s: %v", accountID, err)
		return nil
	}
	device, err := f.container.GetDevice(ctx, jid)
	if err != nil || device == nil {
		return nil
	}
	return device
}

func (f *WhatsmeowFactory) saveRouting(ctx context.Context, accountID string, jid types.JID) {
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO wagate_device_routing (account_id, jid) VALUES (?, ?)
		 ON CONFLICT(account_id) DO UPDATE SET jid = excluded.jid`,
		accountID, jid.String())
	if err != nil {
		f.logger.Warn("Failed to save device routing for account %s: %v", accountID, err)
	}
}

func (f *WhatsmeowFactory) deleteRouting(ctx context.Context, accountID string) {
	if _, err := f.db.ExecContext(ctx, `DELETE FROM wagate_device_routing WHERE account_id = ?`, accountID); err != nil {
		f.logger.Warn("Failed to delete device routing for account %s: %v", accountID, err)
	}
}

type waClient struct {
	accountID string
	cli       *whatsmeow.Client
	emit      EmitFunc
	factory   *WhatsmeowFactory
	logger    logging.Logger
}

func (c *waClient) Start(ctx context.Context) error {
	go c.run(ctx)
	return nil
}

func (c *waClient) run(ctx context.Context) {
	c.emit(LoadingEvent{Percent: 10, Message: "initializing session"})

	if c.cli.Store.ID == nil {
		// Fresh device: pairing flow. The QR channel must be requested
		// before Connect.
		qrChan, err := c.cli.GetQRChannel(ctx)
		if err != nil {
			c.emit(ErrorEvent{Message: fmt.Sprintf("qr channel: %v", err)})
			return
		}
		if err := c.cli.Connect(); err != nil {
			c.emit(ErrorEvent{Message: fmt.Sprintf("connect: %v", err)})
			return
		}
		c.emit(LoadingEvent{Percent: 40, Message: "waiting for QR scan"})
		c.pumpQR(ctx, qrChan)
		return
	}

	c.emit(LoadingEvent{Percent: 60, Message: "restoring session"})
	if err := c.cli.Connect(); err != nil {
		c.emit(ErrorEvent{Message: fmt.Sprintf("connect: %v", err)})
	}
}

func (c *waClient) pumpQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-qrChan:
			if !ok {
				return
			}
			switch item.Event {
			case "code":
				png, err := qrcode.Encode(item.Code, qrcode.Medium, qrImageSize)
				if err != nil {
					c.emit(ErrorEvent{Message: fmt.Sprintf("render qr: %v", err)})
					continue
				}
				c.emit(QrEvent{Code: item.Code, PNG: base64.StdEncoding.EncodeToString(png)})
			case whatsmeow.QRChannelSuccess.Event:
				// PairSuccess from the event handler reports authentication.
				return
			case whatsmeow.QRChannelTimeout.Event:
				c.emit(AuthFailureEvent{Message: "qr pairing timed out"})
				c.cli.Disconnect()
				return
			default:
				if item.Error != nil {
					c.emit(AuthFailureEvent{Message: item.Error.Error()})
				} else {
					c.emit(AuthFailureEvent{Message: "qr pairing failed: " + item.Event})
				}
				c.cli.Disconnect()
				return
			}
		}
	}
}

func (c *waClient) handleEvent(raw any) {
	switch evt := raw.(type) {
	case *events.PairSuccess:
		c.factory.saveRouting(context.Background(), c.accountID, evt.ID)
		c.emit(AuthenticatedEvent{})
	case *events.Connected:
		if c.cli.Store.ID != nil {
			c.factory.saveRouting(context.Background(), c.accountID, *c.cli.Store.ID)
		}
		c.emit(ReadyEvent{})
	case *events.Disconnected:
		c.emit(DisconnectedEvent{Reason: "connection lost"})
	case *events.LoggedOut:
		c.cli.Disconnect()
		c.emit(DisconnectedEvent{Reason: "logged out from phone"})
	case *events.StreamReplaced:
		c.cli.Disconnect()
		c.emit(DisconnectedEvent{Reason: "stream replaced by another session"})
	case *events.TemporaryBan:
		c.emit(AuthFailureEvent{Message: fmt.Sprintf("temporarily banned: %s", evt.Code)})
	case *events.ConnectFailure:
		c.emit(ErrorEvent{Message: fmt.Sprintf("connect failure: %s", evt.Reason)})
	case *events.Message:
		c.emit(MessageEvent{From: evt.Info.Sender.User, Body: extractText(evt.Message)})
	}
}

func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return text
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	return ""
}

func (c *waClient) Connected() bool {
	return c.cli.IsConnected() && c.cli.IsLoggedIn()
}

func (c *waClient) SendText(ctx context.Context, phone string, body string) (string, error) {
	if !c.Connected() {
		return "", errors.New("client is not connected")
	}
	jid := types.NewJID(phone, types.DefaultUserServer)
	extra := whatsmeow.SendRequestExtra{ID: c.cli.GenerateMessageID()}
	content := &waE2E.Message{Conversation: proto.String(body)}
	if _, err := c.cli.SendMessage(ctx, jid, content, extra); err != nil {
		return "", err
	}
	return extra.ID, nil
}

func (c *waClient) SendMedia(ctx context.Context, phone string, caption string, data []byte, mimetype string, filename string) (string, error) {
	if !c.Connected() {
		return "", errors.New("client is not connected")
	}
	jid := types.NewJID(phone, types.DefaultUserServer)
	extra := whatsmeow.SendRequestExtra{ID: c.cli.GenerateMessageID()}

	var content *waE2E.Message
	if strings.HasPrefix(mimetype, "image/") {
		uploaded, err := c.cli.Upload(ctx, data, whatsmeow.MediaImage)
		if err != nil {
			return "", fmt.Errorf("upload image: %w", err)
		}
		content = &waE2E.Message{
			ImageMessage: &waE2E.ImageMessage{
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				Mimetype:      proto.String(mimetype),
				Caption:       proto.String(caption),
				FileLength:    proto.Uint64(uploaded.FileLength),
				FileSHA256:    uploaded.FileSHA256,
				FileEncSHA256: uploaded.FileEncSHA256,
				MediaKey:      uploaded.MediaKey,
			},
		}
	} else {
		uploaded, err := c.cli.Upload(ctx, data, whatsmeow.MediaDocument)
		if err != nil {
			return "", fmt.Errorf("upload document: %w", err)
		}
		content = &waE2E.Message{
			DocumentMessage: &waE2E.DocumentMessage{
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				Mimetype:      proto.String(mimetype),
				FileName:      proto.String(filename),
				Caption:       proto.String(caption),
				FileLength:    proto.Uint64(uploaded.FileLength),
				FileSHA256:    uploaded.FileSHA256,
				FileEncSHA256: uploaded.FileEncSHA256,
				MediaKey:      uploaded.MediaKey,
			},
		}
	}

	if _, err := c.cli.SendMessage(ctx, jid, content, extra); err != nil {
		return "", err
	}
	return extra.ID, nil
}

func (c *waClient) Logout(ctx context.Context) error {
	defer c.factory.deleteRouting(ctx, c.accountID)

	if c.cli.Store.ID == nil {
		c.cli.Disconnect()
		return nil
	}

	if err := c.cli.Logout(ctx); err != nil {
		// Remote logout failed; drop credentials locally so the next login
		// starts from a clean pairing.
		c.cli.Disconnect()
		if derr := c.cli.Store.Delete(ctx); derr != nil {
			return fmt.Errorf("logout: %v; delete credentials: %w", err, derr)
		}
	}
	return nil
}

func (c *waClient) Close() {
	c.cli.Disconnect()
}
