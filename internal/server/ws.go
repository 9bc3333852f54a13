package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cyberbuild/cb-trade-data-service/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The service sits behind infrastructure that enforces origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wireRequest is the single JSON frame a client sends after connecting.
type wireRequest struct {
	Exchange string `json:"exchange"`
	Coin     string `json:"coin"`
	Start    string `json:"start"` // RFC 3339
	End      string `json:"end"`   // RFC 3339
}

func (r wireRequest) toStreamRequest() (stream.Request, error) {
	if r.Exchange == "" || r.Coin == "" {
		return stream.Request{}, fmt.Errorf("exchange and coin are required")
	}
	start, err := time.Parse(time.RFC3339, r.Start)
	if err != nil {
		return stream.Request{}, fmt.Errorf("invalid start %q: %w", r.Start, err)
	}
	end, err := time.Parse(time.RFC3339, r.End)
	if err != nil {
		return stream.Request{}, fmt.Errorf("invalid end %q: %w", r.End, err)
	}
	if !start.Before(end) {
		return stream.Request{}, fmt.Errorf("start must precede end")
	}
	return stream.Request{
		Exchange: r.Exchange,
		Coin:     r.Coin,
		Start:    start.UTC(),
		End:      end.UTC(),
	}, nil
}

// wsSink delivers stream frames over one WebSocket connection. Writes are
// serialized; gorilla/websocket allows one concurrent writer.
type wsSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

func (s *wsSink) Send(ctx context.Context, msg stream.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteJSON(msg)
}

// handleHistorical upgrades the connection, reads one request frame and
// streams the reconciled range back in chunks.
func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var wire wireRequest
	if err := conn.ReadJSON(&wire); err != nil {
		s.logger.Warn("request frame not readable", "error", err)
		return
	}

	req, err := wire.toStreamRequest()
	if err != nil {
		conn.WriteJSON(stream.Message{Type: stream.MsgError, Error: err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Read pump: the client sends nothing after the request frame, so the
	// next read returning is the disconnect signal.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sink := &wsSink{conn: conn, writeTimeout: s.cfg.WriteTimeout}

	state, err := s.coordinator.Stream(ctx, req, sink)
	if err != nil {
		s.logger.Info("streaming request ended",
			"state", state, "exchange", req.Exchange, "coin", req.Coin, "error", err,
		)
	}

	if state == stream.StateCompleted {
		deadline := time.Now().Add(time.Second)
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
	}
}
