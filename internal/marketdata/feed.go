// Package marketdata implements the VenueMarketDataSource boundary: a
// websocket feed client that keeps a thread-safe per-symbol snapshot cache
// fresh for the Order-Routing Core and RiskGuardian.
package marketdata

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/brain/internal/domain"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10

	defaultStaleThreshold = 5 * time.Second
)

// tickMessage is the wire shape a venue feed pushes per symbol update.
type tickMessage struct {
	Symbol  string  `json:"symbol"`
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
	BidSize float64 `json:"bidSize"`
	AskSize float64 `json:"askSize"`
	Volume  float64 `json:"volume"`
}

// Feed maintains a live connection to a venue's market-data websocket and
// exposes the latest per-symbol snapshot. Implements
// router.MarketDataSource and risk price-observation feeding.
type Feed struct {
	url        string
	httpClient *http.Client
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	mu         sync.RWMutex

	onTick func(domain.MarketSnapshot)
	log    zerolog.Logger

	connected    bool
	reconnecting bool
	stopChan     chan struct{}
	stopped      bool

	staleThreshold time.Duration
	cache          map[string]domain.MarketSnapshot
	cacheMu        sync.RWMutex
}

// createHTTP1Client forces HTTP/1.1 ALPN so the upgrade handshake succeeds
// behind TLS-terminating proxies that would otherwise negotiate HTTP/2.
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig:   &tls.Config{NextProtos: []string{"http/1.1"}},
			ForceAttemptHTTP2: false,
		},
	}
}

// New constructs a Feed against url. onTick, if non-nil, fires synchronously
// on every parsed tick in addition to the internal cache update.
func New(url string, onTick func(domain.MarketSnapshot), log zerolog.Logger) *Feed {
	return &Feed{
		url:            url,
		httpClient:     createHTTP1Client(),
		onTick:         onTick,
		log:            log.With().Str("component", "marketdata_feed").Logger(),
		cache:          make(map[string]domain.MarketSnapshot),
		stopChan:       make(chan struct{}),
		staleThreshold: defaultStaleThreshold,
	}
}

// Start dials the feed and begins the read loop, retrying in the
// background on initial failure.
func (f *Feed) Start() error {
	f.log.Info().Msg("starting market data feed")
	if err := f.Connect(); err != nil {
		f.log.Warn().Err(err).Msg("initial connect failed, retrying in background")
		go f.reconnectLoop()
		return err
	}

	f.mu.RLock()
	ctx := f.connCtx
	f.mu.RUnlock()
	go f.readMessages(ctx)
	return nil
}

// Stop gracefully shuts down the feed.
func (f *Feed) Stop() error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return nil
	}
	f.stopped = true
	f.mu.Unlock()

	close(f.stopChan)
	return f.Disconnect()
}

// Connect dials the websocket.
func (f *Feed) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, f.url, &websocket.DialOptions{HTTPClient: f.httpClient})
	if err != nil {
		return fmt.Errorf("marketdata: dial: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	f.conn = conn
	f.connCtx = connCtx
	f.cancelFunc = connCancel
	f.connected = true

	f.log.Info().Msg("connected to market data feed")
	return nil
}

// Disconnect closes the websocket connection.
func (f *Feed) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return nil
	}
	if f.cancelFunc != nil {
		f.cancelFunc()
		f.cancelFunc = nil
	}
	err := f.conn.Close(websocket.StatusNormalClosure, "")
	f.conn = nil
	f.connCtx = nil
	f.connected = false
	if err != nil {
		return fmt.Errorf("marketdata: close: %w", err)
	}
	return nil
}

func (f *Feed) readMessages(ctx context.Context) {
	defer func() {
		f.mu.RLock()
		stopped := f.stopped
		f.mu.RUnlock()
		if !stopped {
			go f.reconnectLoop()
		}
	}()

	for {
		select {
		case <-f.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				f.log.Info().Int("status", int(status)).Msg("feed closed normally")
			} else if ctx.Err() != nil {
				f.log.Debug().Msg("read canceled by context")
			} else {
				f.log.Error().Err(err).Msg("unexpected feed read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}
		if err := f.handleMessage(message); err != nil {
			f.log.Error().Err(err).Msg("failed to handle tick message")
		}
	}
}

func (f *Feed) handleMessage(message []byte) error {
	var tick tickMessage
	if err := json.Unmarshal(message, &tick); err != nil {
		return fmt.Errorf("parse tick: %w", err)
	}
	if tick.Symbol == "" {
		return nil
	}

	snapshot := domain.MarketSnapshot{
		Symbol:   tick.Symbol,
		Bid:      tick.Bid,
		Ask:      tick.Ask,
		BidSize:  tick.BidSize,
		AskSize:  tick.AskSize,
		Volume:   tick.Volume,
		Observed: time.Now().UTC().UnixMilli(),
	}

	f.cacheMu.Lock()
	f.cache[tick.Symbol] = snapshot
	f.cacheMu.Unlock()

	if f.onTick != nil {
		f.onTick(snapshot)
	}
	return nil
}

func (f *Feed) reconnectLoop() {
	f.mu.Lock()
	if f.reconnecting || f.stopped {
		f.mu.Unlock()
		return
	}
	f.reconnecting = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.reconnecting = false
		f.mu.Unlock()
	}()

	attempt := 0
	for {
		select {
		case <-f.stopChan:
			return
		default:
		}

		f.mu.RLock()
		stopped := f.stopped
		f.mu.RUnlock()
		if stopped {
			return
		}

		attempt++
		delay := calculateBackoff(attempt)
		f.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting to market data feed")

		select {
		case <-time.After(delay):
		case <-f.stopChan:
			return
		}

		if err := f.Connect(); err != nil {
			f.log.Error().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			continue
		}

		f.mu.RLock()
		ctx := f.connCtx
		f.mu.RUnlock()
		go f.readMessages(ctx)
		return
	}
}

func calculateBackoff(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	_ = maxReconnectAttempts // retried indefinitely past this count, same as the teacher's loop
	return time.Duration(delay)
}

// Snapshot implements router.MarketDataSource: returns the latest cached
// tick for symbol and whether one is cached. Freshness is not checked here;
// see IsStale.
func (f *Feed) Snapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, bool) {
	f.cacheMu.RLock()
	defer f.cacheMu.RUnlock()
	snap, ok := f.cache[symbol]
	if !ok {
		return domain.MarketSnapshot{}, false
	}
	return snap, true
}

// IsStale reports whether symbol's cached snapshot is older than the
// configured staleness threshold.
func (f *Feed) IsStale(symbol string) bool {
	f.cacheMu.RLock()
	defer f.cacheMu.RUnlock()
	snap, ok := f.cache[symbol]
	if !ok {
		return true
	}
	return time.Since(time.UnixMilli(snap.Observed)) > f.staleThreshold
}

// IsConnected reports the current connection status.
func (f *Feed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}
