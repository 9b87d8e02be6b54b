package bybit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type wsReq struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// wsMsg is the common envelope of the v5 public stream. Topic messages carry
// Topic/Type/Ts/Data; command acks carry Success/RetMsg/Op instead.
type wsMsg struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Ts    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`

	Success *bool  `json:"success,omitempty"`
	RetMsg  string `json:"ret_msg,omitempty"`
	Op      string `json:"op,omitempty"`
}

// wsEvent is one routed topic message.
type wsEvent struct {
	Type string
	Ts   int64
	Data json.RawMessage
}

// run keeps a single websocket session alive for the client's lifetime,
// resubscribing every registered topic after each reconnect. Dial failures
// and disconnects back off 500ms doubling to 10s.
func (c *Client) run(ctx context.Context) {
	backoff := 500 * time.Millisecond
	const maxBackoff = 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		log.Debug().Str("url", c.wsURL).Msg("bybit ws connecting")
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, c.wsURL, nil)
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("bybit ws dial failed")
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		if err := c.attach(conn); err != nil {
			_ = conn.Close()
			log.Error().Err(err).Msg("bybit ws subscribe failed")
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		backoff = 500 * time.Millisecond
		log.Info().Msg("bybit ws connected")

		err = readLoop(ctx, conn, c.dispatch)

		c.detach()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}

		log.Warn().Err(err).Msg("bybit ws disconnected, reconnecting")
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = minDur(backoff*2, maxBackoff)
	}
}

// attach publishes the live conn for mid-session subscribes and replays the
// subscription for every topic registered so far.
func (c *Client) attach(conn *websocket.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn = conn
	if len(c.topics) == 0 {
		return nil
	}
	args := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		args = append(args, topic)
	}
	return conn.WriteJSON(wsReq{Op: "subscribe", Args: args})
}

func (c *Client) detach() {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
}

// dispatch routes one raw frame to the waiting topic channel. Delivery is
// latest-wins: when a topic buffer is full the oldest pending event is
// dropped so a stalled reader never backs up the read loop.
func (c *Client) dispatch(b []byte) {
	var msg wsMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		log.Error().Err(err).Msg("bybit ws unmarshal failed")
		return
	}

	if msg.Success != nil {
		if !*msg.Success {
			log.Error().Str("ret_msg", msg.RetMsg).Str("op", msg.Op).Msg("bybit ws command rejected")
		}
		return
	}
	if msg.Topic == "" || len(msg.Data) == 0 {
		return
	}

	c.mu.Lock()
	ch := c.topics[msg.Topic]
	c.mu.Unlock()
	if ch == nil {
		return
	}

	ev := wsEvent{Type: msg.Type, Ts: msg.Ts, Data: msg.Data}
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(25 * time.Second)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			onMsg(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
