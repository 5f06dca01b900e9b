package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/gmfm-scoring/internal/catalog"
	"github.com/terra-clan/gmfm-scoring/internal/scoring"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = (livePongWait * 9) / 10
	liveMaxMessage = 4096
)

// LiveMessage is sent by the client while rating a session
type LiveMessage struct {
	Type   string `json:"type"`
	Item   int    `json:"item,omitempty"`
	Rating *int   `json:"rating,omitempty"`
}

// LiveUpdate is pushed back after every accepted message
type LiveUpdate struct {
	Type    string               `json:"type"`
	Result  *scoring.ScoreResult `json:"result,omitempty"`
	Missing int                  `json:"missing,omitempty"`
	Message string               `json:"message,omitempty"`
}

// liveSession is the running rating sheet of one connection
type liveSession struct {
	scale   catalog.ScaleVariant
	items   map[catalog.ItemID]bool
	ratings scoring.RatingMap
}

func (ls *liveSession) apply(msg LiveMessage) error {
	switch msg.Type {
	case "rate":
		if msg.Rating == nil {
			return errors.New("rating is required")
		}
		id := catalog.ItemID(msg.Item)
		if !ls.items[id] {
			return fmt.Errorf("item %d is not part of the %s scale", msg.Item, ls.scale)
		}
		r, err := scoring.ParseRating(*msg.Rating)
		if err != nil {
			return err
		}
		ls.ratings[id] = r
	case "clear":
		delete(ls.ratings, catalog.ItemID(msg.Item))
	case "reset":
		ls.ratings = make(scoring.RatingMap)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}

func (s *Server) liveUpgrader() *websocket.Upgrader {
	origins := s.allowedOrigins()
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range origins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// handleLiveScoring rescores the sheet on every rating change over a websocket
func (s *Server) handleLiveScoring(w http.ResponseWriter, r *http.Request) {
	scale, ok := s.scaleParam(w, r)
	if !ok {
		return
	}

	engine := s.service.Engine()
	ids, err := engine.Catalog().ItemIDsFor(scale)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	ls := &liveSession{
		scale:   scale,
		items:   make(map[catalog.ItemID]bool, len(ids)),
		ratings: make(scoring.RatingMap),
	}
	for _, id := range ids {
		ls.items[id] = true
	}

	conn, err := s.liveUpgrader().Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	s.metrics.LiveConnOpened()
	defer s.metrics.LiveConnClosed()

	slog.Info("live scoring connected", "scale", scale, "remote_addr", r.RemoteAddr)

	var writeMu sync.Mutex
	send := func(u LiveUpdate) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
		return conn.WriteJSON(u)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(livePingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(liveMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})

	rescore := func() error {
		result, err := engine.Score(scale, ls.ratings)
		if err != nil {
			return send(LiveUpdate{Type: "error", Message: err.Error()})
		}
		return send(LiveUpdate{Type: "score", Result: result, Missing: result.ItemsTotal - result.ItemsScored})
	}

	if err := rescore(); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("live scoring read error", "error", err)
			}
			break
		}

		var msg LiveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := send(LiveUpdate{Type: "error", Message: "invalid message: " + err.Error()}); err != nil {
				break
			}
			continue
		}

		if err := ls.apply(msg); err != nil {
			if err := send(LiveUpdate{Type: "error", Message: err.Error()}); err != nil {
				break
			}
			continue
		}
		if err := rescore(); err != nil {
			break
		}
	}

	slog.Info("live scoring disconnected", "scale", scale, "items_rated", len(ls.ratings))
}
