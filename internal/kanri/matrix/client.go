// Package matrix connects Kanri to a Matrix homeserver: it turns room
// messages into Inbound values and delivers replies to the room each user
// last wrote from.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Kanri/common/retry"
)

// ErrNoRoom is returned by Send for a user Kanri has not heard from.
var ErrNoRoom = errors.New("matrix: no known room for user")

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms restricts Kanri to these room IDs. When empty every joined room
	// is served and invites are accepted.
	Rooms []string
	// AllowedSenders, when non-empty, is the only set of users answered.
	AllowedSenders []string
	// DB persists the sync position. When nil, history is replayed on
	// restart.
	DB *sql.DB
	// Retry governs message delivery. Zero means retry.DefaultConfig.
	Retry retry.Config
}

// Inbound is one accepted text message.
type Inbound struct {
	UserID  string
	Name    string
	RoomID  string
	EventID string
	Text    string
	At      time.Time
}

// MessageHandler processes an accepted message.
type MessageHandler func(ctx context.Context, msg Inbound)

// api is the slice of *mautrix.Client that Send and name lookup need.
type api interface {
	SendText(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error)
	GetDisplayName(ctx context.Context, userID id.UserID) (*mautrix.RespUserDisplayName, error)
}

// Client wraps the mautrix client.
type Client struct {
	client  *mautrix.Client
	api     api
	config  Config
	stopCh  chan struct{}
	handler MessageHandler

	mu    sync.Mutex
	rooms map[string]id.RoomID // user → room of their last message
	names map[string]string
}

// New creates a Client. It does not contact the homeserver.
func New(config Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}
	if config.DB != nil {
		client.Store = NewSQLSyncStore(config.DB)
	} else {
		slog.Warn("matrix: no database configured; room history will replay on restart")
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.DefaultConfig
	}
	return &Client{
		client: client,
		api:    client,
		config: config,
		stopCh: make(chan struct{}),
		rooms:  make(map[string]id.RoomID),
		names:  make(map[string]string),
	}, nil
}

// Start joins the configured rooms and syncs in the background until Stop
// or ctx is cancelled.
func (c *Client) Start(ctx context.Context, handler MessageHandler) error {
	c.handler = handler

	slog.Warn("matrix: end-to-end encryption is not enabled; only unencrypted rooms are served")

	syncer := c.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.handleMessage)
	if len(c.config.Rooms) == 0 {
		syncer.OnEventType(event.StateMember, c.handleMembership)
	}

	for _, roomID := range c.config.Rooms {
		if err := c.joinRoom(ctx, id.RoomID(roomID)); err != nil {
			return fmt.Errorf("matrix: join %s: %w", roomID, err)
		}
	}

	go c.syncLoop(ctx)
	return nil
}

// syncLoop keeps syncing with exponential back-off so a transient homeserver
// error does not leave Kanri deaf.
func (c *Client) syncLoop(ctx context.Context) {
	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		started := time.Now()
		err := c.client.SyncWithContext(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		select {
		case <-c.stopCh:
			return
		default:
		}
		if time.Since(started) > backoffMax {
			backoff = backoffMin
		}
		slog.Error("matrix: sync stopped; reconnecting", "err", err, "backoff", backoff)
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, backoffMax)
	}
}

// Stop ends syncing. It is safe to call once.
func (c *Client) Stop() {
	close(c.stopCh)
	c.client.StopSync()
}

// Send delivers text to the room userID last wrote from, retrying transient
// failures. It implements the reply sender the orchestrator uses.
func (c *Client) Send(ctx context.Context, userID, text string) error {
	c.mu.Lock()
	room, ok := c.rooms[userID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRoom, userID)
	}
	err := retry.Do(ctx, c.config.Retry, func(ctx context.Context) error {
		_, err := c.api.SendText(ctx, room, text)
		if errors.Is(err, mautrix.MForbidden) || errors.Is(err, mautrix.MUnknownToken) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("matrix: send to %s: %w", room, err)
	}
	return nil
}

func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	msg, ok := c.accept(evt)
	if !ok {
		return
	}
	c.mu.Lock()
	c.rooms[msg.UserID] = evt.RoomID
	c.mu.Unlock()
	msg.Name = c.displayName(ctx, evt.Sender)

	if c.handler != nil {
		c.handler(ctx, msg)
	}
}

// accept filters events down to plain text from other users in served rooms.
func (c *Client) accept(evt *event.Event) (Inbound, bool) {
	if evt.Sender == id.UserID(c.config.UserID) {
		return Inbound{}, false
	}
	if len(c.config.Rooms) > 0 && !slices.Contains(c.config.Rooms, evt.RoomID.String()) {
		return Inbound{}, false
	}
	if len(c.config.AllowedSenders) > 0 && !slices.Contains(c.config.AllowedSenders, evt.Sender.String()) {
		return Inbound{}, false
	}
	content := evt.Content.AsMessage()
	if content == nil || content.MsgType != event.MsgText {
		return Inbound{}, false
	}
	// Edits arrive as new events; only the original is acted on.
	if content.RelatesTo != nil && content.RelatesTo.Type == event.RelReplace {
		return Inbound{}, false
	}
	at := time.UnixMilli(evt.Timestamp)
	if evt.Timestamp == 0 {
		at = time.Now()
	}
	return Inbound{
		UserID:  evt.Sender.String(),
		RoomID:  evt.RoomID.String(),
		EventID: evt.ID.String(),
		Text:    content.Body,
		At:      at,
	}, true
}

// displayName returns the sender's profile name, cached, falling back to the
// localpart of their ID.
func (c *Client) displayName(ctx context.Context, userID id.UserID) string {
	key := userID.String()
	c.mu.Lock()
	name, ok := c.names[key]
	c.mu.Unlock()
	if ok {
		return name
	}

	name = localpart(key)
	if resp, err := c.api.GetDisplayName(ctx, userID); err == nil && resp != nil && resp.DisplayName != "" {
		name = resp.DisplayName
	} else if err != nil {
		slog.Debug("matrix: display name lookup failed", "user", key, "err", err)
	}
	c.mu.Lock()
	c.names[key] = name
	c.mu.Unlock()
	return name
}

func localpart(userID string) string {
	s := strings.TrimPrefix(userID, "@")
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return s
}

// handleMembership accepts invites addressed to Kanri.
func (c *Client) handleMembership(ctx context.Context, evt *event.Event) {
	if evt.GetStateKey() != c.config.UserID {
		return
	}
	if m := evt.Content.AsMember(); m == nil || m.Membership != event.MembershipInvite {
		return
	}
	if err := c.joinRoom(ctx, evt.RoomID); err != nil {
		slog.Warn("matrix: could not accept invite", "room", evt.RoomID, "err", err)
		return
	}
	slog.Info("matrix: joined room on invite", "room", evt.RoomID, "inviter", evt.Sender)
}

func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	if _, err := c.client.JoinRoomByID(ctx, roomID); err != nil {
		// Homeservers answer M_FORBIDDEN when already joined.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("matrix: join forbidden, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}
