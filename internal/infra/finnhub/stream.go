package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamReadTimeout = 60 * time.Second
	streamMaxRetries  = 10
)

// TradePrint is one trade observed on the upstream websocket feed.
type TradePrint struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}

type subscribeRequest struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

type streamMessage struct {
	Type string `json:"type"`
	Data []struct {
		Symbol string  `json:"s"`
		Price  float64 `json:"p"`
		Volume float64 `json:"v"`
		TsMs   int64   `json:"t"`
	} `json:"data"`
}

// StreamWorker maintains the upstream trade websocket with automatic
// reconnection and hands every trade print to the onTrade callback.
type StreamWorker struct {
	wsURL   string
	apiKey  string
	symbols []string
	onTrade func(TradePrint)

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewStreamWorker creates a trade stream worker for the given symbols.
func NewStreamWorker(wsURL, apiKey string, symbols []string, onTrade func(TradePrint)) *StreamWorker {
	return &StreamWorker{
		wsURL:   wsURL,
		apiKey:  apiKey,
		symbols: symbols,
		onTrade: onTrade,
	}
}

// Connect starts the websocket connection loop in the background.
func (w *StreamWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.connectionLoop(ctx)

	return nil
}

func (w *StreamWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Quote stream panic recovered", slog.Any("panic", r))
		}
	}()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("Quote stream connection loop stopped")
			return
		default:
		}

		err := w.connect(ctx)
		if err != nil {
			slog.Warn("Quote stream connection failed",
				slog.Any("error", err),
				slog.Int("retry", retryCount),
			)

			delay := backoffDelay(retryCount)
			retryCount++
			if retryCount > streamMaxRetries {
				retryCount = 0
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retryCount = 0
		w.readLoop(ctx)
	}
}

func backoffDelay(retryCount int) time.Duration {
	if retryCount > 5 {
		retryCount = 5
	}
	return time.Second * time.Duration(1<<retryCount)
}

func (w *StreamWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, w.wsURL+"?token="+w.apiKey, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	slog.Info("Quote stream connected", slog.Int("symbols", len(w.symbols)))
	return nil
}

func (w *StreamWorker) subscribe() error {
	for _, symbol := range w.symbols {
		msg, err := json.Marshal(subscribeRequest{Type: "subscribe", Symbol: symbol})
		if err != nil {
			return err
		}
		if err := w.threadSafeWrite(websocket.TextMessage, msg); err != nil {
			return err
		}
	}
	return nil
}

func (w *StreamWorker) threadSafeWrite(messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection is nil")
	}

	return conn.WriteMessage(messageType, data)
}

func (w *StreamWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Quote stream read error", slog.Any("error", err))
			}
			w.closeConnection()
			return
		}

		w.handleMessage(message)
	}
}

func (w *StreamWorker) handleMessage(message []byte) {
	var msg streamMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "ping":
		// Upstream keepalive; answer in kind.
		pong, _ := json.Marshal(map[string]string{"type": "pong"})
		if err := w.threadSafeWrite(websocket.TextMessage, pong); err != nil {
			slog.Warn("Quote stream pong failed", slog.Any("error", err))
		}
	case "trade":
		if w.onTrade == nil {
			return
		}
		for _, d := range msg.Data {
			w.onTrade(TradePrint{
				Symbol:    d.Symbol,
				Price:     d.Price,
				Volume:    d.Volume,
				Timestamp: time.UnixMilli(d.TsMs),
			})
		}
	}
}

func (w *StreamWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
}

// Disconnect closes the connection and waits for the loop to exit.
func (w *StreamWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
	slog.Info("Quote stream disconnected")
}

// IsConnected returns connection status.
func (w *StreamWorker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}
