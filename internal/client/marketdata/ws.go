package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// QuoteTick is one streamed price update.
type QuoteTick struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	TS     int64  `json:"ts"`
}

type subscribeRequest struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols,omitempty"`
}

// SymbolProvider supplies the symbol set the stream should track; it is
// polled so the subscription follows the held instruments.
type SymbolProvider func(context.Context) ([]string, error)

type WSClient struct {
	url  string
	conn *websocket.Conn
}

func NewWSClient(url string) *WSClient {
	return &WSClient{url: strings.TrimSpace(url)}
}

func (c *WSClient) Connect(ctx context.Context) error {
	if c == nil || c.url == "" {
		return fmt.Errorf("ws url is empty")
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(1 << 20) // 1MB
	c.conn = conn
	return nil
}

func (c *WSClient) Close(status websocket.StatusCode, reason string) error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close(status, reason)
}

func (c *WSClient) send(ctx context.Context, action string, symbols []string) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("ws not connected")
	}
	payload, err := json.Marshal(subscribeRequest{Action: action, Symbols: symbols})
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (c *WSClient) Subscribe(ctx context.Context, symbols []string) error {
	return c.send(ctx, "subscribe", symbols)
}

func (c *WSClient) Unsubscribe(ctx context.Context, symbols []string) error {
	return c.send(ctx, "unsubscribe", symbols)
}

func (c *WSClient) Read(ctx context.Context) (QuoteTick, error) {
	if c == nil || c.conn == nil {
		return QuoteTick{}, fmt.Errorf("ws not connected")
	}
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return QuoteTick{}, err
	}
	var tick QuoteTick
	_ = json.Unmarshal(data, &tick)
	return tick, nil
}

type QuoteStreamOptions struct {
	URL               string
	SymbolProvider    SymbolProvider
	RefreshInterval   time.Duration
	HeartbeatInterval time.Duration
	PingTimeout       time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	Logger            *zap.Logger
}

// QuoteStream keeps one subscription alive against the quote feed,
// reconnecting with jittered backoff and re-resolving the symbol set as
// holdings change.
type QuoteStream struct {
	opts QuoteStreamOptions
}

func NewQuoteStream(opts QuoteStreamOptions) *QuoteStream {
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 20 * time.Second
	}
	if opts.PingTimeout == 0 {
		opts.PingTimeout = 5 * time.Second
	}
	if opts.BackoffMin == 0 {
		opts.BackoffMin = 1 * time.Second
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.RefreshInterval == 0 {
		opts.RefreshInterval = time.Minute
	}
	return &QuoteStream{opts: opts}
}

func (s *QuoteStream) Run(ctx context.Context, onTick func(QuoteTick)) error {
	if s == nil {
		return fmt.Errorf("stream is nil")
	}
	backoff := s.opts.BackoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		client := NewWSClient(s.opts.URL)
		symbols, err := s.resolveSymbols(ctx)
		if err == nil && len(symbols) == 0 {
			err = fmt.Errorf("no symbols to subscribe")
		}
		if err == nil {
			err = client.Connect(ctx)
		}
		if err == nil {
			err = client.Subscribe(ctx, symbols)
		}
		if err != nil {
			_ = client.Close(websocket.StatusInternalError, "setup failed")
			if s.opts.Logger != nil {
				s.opts.Logger.Warn("quote stream setup failed", zap.Error(err))
			}
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		if s.opts.Logger != nil {
			s.opts.Logger.Info("quote stream connected", zap.Int("symbols", len(symbols)))
		}
		backoff = s.opts.BackoffMin

		err = s.consume(ctx, client, onTick, setFromSlice(symbols))
		_ = client.Close(websocket.StatusNormalClosure, "reconnect")
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, s.opts.BackoffMax)
	}
}

func (s *QuoteStream) resolveSymbols(ctx context.Context) ([]string, error) {
	if s.opts.SymbolProvider == nil {
		return nil, nil
	}
	return s.opts.SymbolProvider(ctx)
}

func (s *QuoteStream) consume(ctx context.Context, client *WSClient, onTick func(QuoteTick), current map[string]struct{}) error {
	heartbeatErr := make(chan error, 1)
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(s.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				heartbeatErr <- loopCtx.Err()
				return
			case <-ticker.C:
				pingCtx, cancelPing := context.WithTimeout(loopCtx, s.opts.PingTimeout)
				err := client.conn.Ping(pingCtx)
				cancelPing()
				if err != nil {
					heartbeatErr <- err
					return
				}
			}
		}
	}()

	if s.opts.SymbolProvider != nil && s.opts.RefreshInterval > 0 {
		go func() {
			ticker := time.NewTicker(s.opts.RefreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-loopCtx.Done():
					return
				case <-ticker.C:
					symbols, err := s.opts.SymbolProvider(loopCtx)
					if err != nil {
						continue
					}
					next := setFromSlice(symbols)
					added, removed := diffSets(current, next)
					if len(added) > 0 {
						_ = client.Subscribe(loopCtx, added)
					}
					if len(removed) > 0 {
						_ = client.Unsubscribe(loopCtx, removed)
					}
					current = next
				}
			}
		}()
	}

	for {
		select {
		case err := <-heartbeatErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		default:
		}
		tick, err := client.Read(ctx)
		if err != nil {
			if s.opts.Logger != nil && !errors.Is(err, context.Canceled) {
				s.opts.Logger.Warn("quote stream read failed", zap.Error(err))
			}
			return err
		}
		if onTick != nil && tick.Type == "quote" {
			onTick(tick)
		}
	}
}

func sleepWithJitter(ctx context.Context, d time.Duration) error {
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	timer := time.NewTimer(d + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func setFromSlice(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		out[item] = struct{}{}
	}
	return out
}

func diffSets(current, next map[string]struct{}) (added, removed []string) {
	for item := range next {
		if _, ok := current[item]; !ok {
			added = append(added, item)
		}
	}
	for item := range current {
		if _, ok := next[item]; !ok {
			removed = append(removed, item)
		}
	}
	return added, removed
}
