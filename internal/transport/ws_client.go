package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	gosync "sync"
	"time"

	"github.com/gorilla/websocket"

	"focuschat/internal/models"
	"focuschat/internal/sync"
)

// Client implements sync.Transport against the focuschat service: channel
// subscriptions over a websocket, persisted-table operations over the REST
// API.
type Client struct {
	baseURL string
	wsURL   string
	token   string
	rest    *restClient
}

// NewClient builds a transport for the given service base URL (http or
// https) and bearer token.
func NewClient(baseURL, token string) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	wsScheme := "ws"
	if parsed.Scheme == "https" {
		wsScheme = "wss"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		wsURL:   wsScheme + "://" + parsed.Host,
		token:   token,
		rest:    newRESTClient(strings.TrimRight(baseURL, "/"), token),
	}, nil
}

// Subscribe dials the channel websocket. The subscribed acknowledgement
// arrives through h.OnStatus once the server confirms the channel.
func (c *Client) Subscribe(ctx context.Context, channelID string, h sync.Handlers) (sync.Subscription, error) {
	endpoint := fmt.Sprintf("%s/ws/channels/%s?token=%s", c.wsURL, url.PathEscape(channelID), url.QueryEscape(c.token))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial channel %s: %w", channelID, err)
	}

	sub := &subscription{conn: conn}
	go sub.readLoop(h)
	return sub, nil
}

type subscription struct {
	conn    *websocket.Conn
	writeMu gosync.Mutex
	closed  gosync.Once
}

// Track publishes this identity's presence record.
func (s *subscription) Track(rec models.PresenceRecord) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(models.TrackFrame{Type: "track", Presence: rec})
}

// Close tears the socket down. Idempotent.
func (s *subscription) Close() error {
	s.closed.Do(func() {
		s.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	return nil
}

func (s *subscription) readLoop(h sync.Handlers) {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if h.OnStatus != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.OnStatus(models.StatusClosed, nil)
				} else {
					h.OnStatus(models.StatusChannelError, err)
				}
			}
			return
		}

		var event models.ChannelEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			log.Printf("malformed channel event: %v", err)
			continue
		}
		s.dispatch(event, h)
	}
}

func (s *subscription) dispatch(event models.ChannelEvent, h sync.Handlers) {
	switch event.Type {
	case models.EventStatus:
		if h.OnStatus != nil {
			h.OnStatus(event.Status, nil)
		}
	case models.EventMessageInserted:
		if h.OnMessageInserted != nil && event.Message != nil {
			h.OnMessageInserted(*event.Message)
		}
	case models.EventMessageUpdated:
		if h.OnMessageUpdated != nil && event.Message != nil {
			h.OnMessageUpdated(*event.Message)
		}
	case models.EventBanInserted:
		if h.OnBanInserted != nil && event.Ban != nil {
			h.OnBanInserted(*event.Ban)
		}
	case models.EventBanDeleted:
		if h.OnBanDeleted != nil && event.BanUserID != "" {
			h.OnBanDeleted(event.BanUserID)
		}
	case models.EventPresenceSync:
		if h.OnPresenceSync != nil {
			h.OnPresenceSync(event.Presence)
		}
	}
}
