// Package foxglove streams reconstructed telemetry to Foxglove Studio over
// its WebSocket protocol: an event channel carrying every decoded message
// and a barometer channel carrying calibrated physical values for plotting.
package foxglove

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"novafc/pkg/engine"
	"novafc/pkg/stream"
	"novafc/pkg/telemetry"
)

type EventRecord struct {
	T            float64  `json:"t"`
	Ticks        uint64   `json:"ticks"`
	Kind         string   `json:"kind"`
	Data         any      `json:"data,omitempty"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	PressurePa   *float64 `json:"pressure_pa,omitempty"`
}

type BaroRecord struct {
	Timestamp    FrameTime `json:"timestamp"`
	TemperatureC float64   `json:"temperature_c"`
	PressurePa   float64   `json:"pressure_pa"`
}

type FrameTime struct {
	Sec  uint32 `json:"sec"`
	Nsec uint32 `json:"nsec"`
}

type Server struct {
	cfg     Config
	hub     *engine.Hub
	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	subs map[uint32]uint64
	mu   sync.RWMutex
	once sync.Once
}

func NewServer(cfg Config, hub *engine.Hub) *Server {
	defaults := DefaultConfig()
	if cfg.WSAddr == "" {
		cfg.WSAddr = defaults.WSAddr
	}
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.Topic == "" {
		cfg.Topic = defaults.Topic
	}
	if cfg.ChannelID == 0 {
		cfg.ChannelID = defaults.ChannelID
	}
	if cfg.BaroTopic == "" {
		cfg.BaroTopic = defaults.BaroTopic
	}
	if cfg.BaroChannelID == 0 || cfg.BaroChannelID == cfg.ChannelID {
		cfg.BaroChannelID = cfg.ChannelID + 1
	}
	if cfg.SchemaEncoding == "" {
		cfg.SchemaEncoding = defaults.SchemaEncoding
	}
	if cfg.Encoding == "" {
		cfg.Encoding = defaults.Encoding
	}
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = defaults.SendBuf
	}

	return &Server{
		cfg:     cfg,
		hub:     hub,
		clients: make(map[string]*client),
	}
}

func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)

	httpServer := &http.Server{
		Addr:    s.cfg.WSAddr,
		Handler: mux,
	}

	sub := s.hub.Subscribe()
	go s.broadcastLoop(ctx, sub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		Subprotocols: []string{"foxglove.websocket.v1"},
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(conn, s.cfg.SendBuf)
	s.addClient(c)

	if err := conn.WriteJSON(s.serverInfo()); err != nil {
		c.close()
		s.removeClient(c)
		return
	}
	if err := conn.WriteJSON(s.advertise()); err != nil {
		c.close()
		s.removeClient(c)
		return
	}

	go c.writeLoop()
	c.readLoop(map[uint64]struct{}{
		s.cfg.ChannelID:     {},
		s.cfg.BaroChannelID: {},
	})

	c.close()
	s.removeClient(c)
}

func (s *Server) serverInfo() ServerInfoMsg {
	return ServerInfoMsg{
		Op:                 OpServerInfo,
		Name:               s.cfg.Name,
		Capabilities:       []string{},
		SupportedEncodings: []string{},
		SessionID:          uuid.NewString(),
	}
}

func (s *Server) advertise() AdvertiseMsg {
	return AdvertiseMsg{Op: OpAdvertise, Channels: []Channel{
		{
			ID:             s.cfg.ChannelID,
			Topic:          s.cfg.Topic,
			Encoding:       s.cfg.Encoding,
			SchemaName:     "novafc.Event",
			SchemaEncoding: s.cfg.SchemaEncoding,
			Schema:         EventSchema,
		},
		{
			ID:             s.cfg.BaroChannelID,
			Topic:          s.cfg.BaroTopic,
			Encoding:       s.cfg.Encoding,
			SchemaName:     "novafc.Barometer",
			SchemaEncoding: s.cfg.SchemaEncoding,
			Schema:         BaroSchema,
		},
	}}
}

func (s *Server) broadcastLoop(ctx context.Context, sub <-chan stream.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			s.broadcastEvent(ev)
		}
	}
}

func (s *Server) broadcastEvent(ev stream.Event) {
	logTime := flightNanos(ev.Seconds)

	s.publishJSONToChannel(s.cfg.ChannelID, logTime, eventRecord(ev))
	if baro, ok := baroRecord(ev); ok {
		s.publishJSONToChannel(s.cfg.BaroChannelID, logTime, baro)
	}
}

func (s *Server) publishJSONToChannel(channelID uint64, logTime uint64, message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		return
	}

	for _, c := range s.snapshotClients() {
		for _, subID := range c.subIDsForChannel(channelID) {
			c.trySend(EncodeMessageData(subID, logTime, payload))
		}
	}
}

// eventRecord mirrors the JSONL log record shape, so tooling can treat the
// live channel and the archived log interchangeably.
func eventRecord(ev stream.Event) EventRecord {
	rec := EventRecord{
		T:     ev.Seconds,
		Ticks: ev.Ticks,
		Kind:  ev.Message.Data.Kind().String(),
		Data:  ev.Message.Data,
	}
	if raw, ok := ev.Message.Data.(telemetry.BarometerData); ok && ev.Calibration != nil {
		tempC, pressurePa := ev.Calibration.Convert(raw)
		rec.TemperatureC = &tempC
		rec.PressurePa = &pressurePa
	}
	return rec
}

func baroRecord(ev stream.Event) (BaroRecord, bool) {
	raw, ok := ev.Message.Data.(telemetry.BarometerData)
	if !ok || ev.Calibration == nil {
		return BaroRecord{}, false
	}
	tempC, pressurePa := ev.Calibration.Convert(raw)
	return BaroRecord{
		Timestamp:    frameTime(ev.Seconds),
		TemperatureC: tempC,
		PressurePa:   pressurePa,
	}, true
}

// Timestamps are flight time: seconds since flight computer power-on, not
// wall clock.
func flightNanos(seconds float64) uint64 {
	return uint64(seconds * 1e9)
}

func frameTime(seconds float64) FrameTime {
	sec := uint32(seconds)
	nsec := uint32((seconds - float64(sec)) * 1e9)
	return FrameTime{Sec: sec, Nsec: nsec}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
}

func (s *Server) snapshotClients() []*client {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	return clients
}

func newClient(conn *websocket.Conn, sendBuf int) *client {
	if sendBuf <= 0 {
		sendBuf = DefaultConfig().SendBuf
	}
	return &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuf),
		subs: make(map[uint32]uint64),
	}
}

func (c *client) readLoop(supportedChannels map[uint64]struct{}) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var header struct {
			Op string `json:"op"`
		}
		if err := json.Unmarshal(data, &header); err != nil {
			continue
		}

		switch header.Op {
		case OpSubscribe:
			var msg SubscribeMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			for _, sub := range msg.Subscriptions {
				if _, ok := supportedChannels[sub.ChannelID]; ok {
					c.addSub(sub.ID, sub.ChannelID)
				}
			}
		case OpUnsubscribe:
			var msg UnsubscribeMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			for _, id := range msg.SubscriptionIDs {
				c.removeSub(id)
			}
		}
	}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			c.close()
			return
		}
	}
}

func (c *client) trySend(msg []byte) {
	defer func() {
		_ = recover()
	}()
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) addSub(id uint32, channelID uint64) {
	c.mu.Lock()
	c.subs[id] = channelID
	c.mu.Unlock()
}

func (c *client) removeSub(id uint32) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

func (c *client) subIDsForChannel(channelID uint64) []uint32 {
	c.mu.RLock()
	ids := make([]uint32, 0, len(c.subs))
	for id, ch := range c.subs {
		if ch == channelID {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()
	return ids
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}
