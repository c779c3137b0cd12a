package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"rentalpricing/pricing"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// PredictionStream serves /ws/predict. Every text frame is one
// PredictionRequest; the reply frame carries the same JSON body /predict
// would return.
type PredictionStream struct {
	ctx        context.Context
	handlers   *Handlers
	upgrader   websocket.Upgrader
	maxMessage int64
	logger     *zap.Logger
}

// NewPredictionStream 创建预测流，ctx 结束时关闭所有连接
func NewPredictionStream(ctx context.Context, handlers *Handlers, origins []string, maxMessage int64) *PredictionStream {
	return &PredictionStream{
		ctx:      ctx,
		handlers: handlers,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || originAllowed(origins, origin)
			},
		},
		maxMessage: maxMessage,
		logger:     handlers.logger,
	}
}

func RegisterStream(mux *http.ServeMux, s *PredictionStream) {
	mux.Handle("GET /ws/predict", s)
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

func (s *PredictionStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan []byte, 16),
		id:   uuid.NewString(),
	}
	s.logger.Info("prediction stream opened", zap.String("client_id", client.id), zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(s.ctx)
	go client.writePump(ctx, cancel, s.logger)
	s.readPump(ctx, cancel, client)

	s.logger.Info("prediction stream closed", zap.String("client_id", client.id))
}

// readPump 在处理器协程中运行，负责 client.send
func (s *PredictionStream) readPump(ctx context.Context, cancel context.CancelFunc, c *streamClient) {
	defer func() {
		cancel()
		close(c.send)
	}()

	if s.maxMessage > 0 {
		c.conn.SetReadLimit(s.maxMessage)
	}
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for seq := 1; ; seq++ {
		kind, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("prediction stream read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}

		var body any
		if kind != websocket.TextMessage {
			body = errorBody{Error: "invalid request", Details: "expected a text frame with a JSON object"}
		} else {
			reqCtx := context.WithValue(ctx, RequestIDKey, fmt.Sprintf("%s-%d", c.id, seq))
			body = s.predict(reqCtx, payload)
		}

		reply, err := json.Marshal(body)
		if err != nil {
			s.logger.Error("encode stream reply", zap.String("client_id", c.id), zap.Error(err))
			return
		}
		select {
		case c.send <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func (s *PredictionStream) predict(ctx context.Context, payload []byte) any {
	req, err := pricing.ParseRequest(payload)
	if err != nil {
		_, body := s.handlers.predictionResponse(ctx, pricing.Estimate{}, err)
		return body
	}
	est, err := s.handlers.predictor.Predict(ctx, req)
	_, body := s.handlers.predictionResponse(ctx, est, err)
	return body
}

func (c *streamClient) writePump(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("prediction stream write error", zap.String("client_id", c.id), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}
