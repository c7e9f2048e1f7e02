package signal

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (c *WsSignalConn) pongWait() time.Duration {
	return c.opts.PingPeriod * 10 / 9
}

func (c *WsSignalConn) writePump() {
	var tick <-chan time.Time
	if c.opts.PingPeriod > 0 {
		ticker := time.NewTicker(c.opts.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.done:
			log.Debug().Str("module", "signal").Msg("writePump done")
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				_ = c.Close()
				return
			}
		case <-tick:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("ping failed")
				_ = c.Close()
				return
			}
		}
	}
}

func (c *WsSignalConn) readPump() {
	defer func() {
		log.Info().Str("module", "signal").Msg("readPump closing")
		_ = c.Close()
		close(c.events)
	}()

	if c.opts.ReadLimit > 0 {
		c.conn.SetReadLimit(c.opts.ReadLimit)
	}
	if c.opts.PingPeriod > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		})
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
			}
			return
		}
		if !c.handleFrame(data) {
			return
		}
	}
}

// handleFrame reports false once the connection is shutting down.
func (c *WsSignalConn) handleFrame(data []byte) bool {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return true
	}

	switch f.Type {
	case frameResponse:
		c.resolve(f)
	case framePush:
		ev, err := decodeEvent(f.Event, f.Data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("event", f.Event).Msg("dropped push")
			return true
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return false
		}
	default:
		log.Warn().Str("module", "signal").Str("type", f.Type).Msg("unknown frame")
	}
	return true
}
