package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"

	"mepclicker.app/internal/protocol"
	"mepclicker.app/internal/sim/game"
	"mepclicker.app/internal/sim/notation"
)

type Options struct {
	// StateEvery throttles STATE pushes; events in between are folded into
	// the next one.
	StateEvery time.Duration
	// ActsPerSecond and ActBurst bound each connection's ACT rate.
	ActsPerSecond float64
	ActBurst      int
	// ActSchema, when set, validates each raw ACT before dispatch.
	ActSchema *jsonschema.Schema
}

func DefaultOptions() Options {
	return Options{StateEvery: 250 * time.Millisecond, ActsPerSecond: 40, ActBurst: 80}
}

type Server struct {
	engine *game.Engine
	log    *log.Logger
	opts   Options

	upgrader websocket.Upgrader

	sessions atomic.Int64
	acts     atomic.Uint64
	rejected atomic.Uint64
	dropped  atomic.Uint64
}

type Stats struct {
	Sessions      int64
	ActsTotal     uint64
	RejectedTotal uint64
	DroppedTotal  uint64
}

func NewServer(e *game.Engine, logger *log.Logger, opts Options) *Server {
	def := DefaultOptions()
	if opts.StateEvery <= 0 {
		opts.StateEvery = def.StateEvery
	}
	if opts.ActsPerSecond <= 0 {
		opts.ActsPerSecond = def.ActsPerSecond
	}
	if opts.ActBurst <= 0 {
		opts.ActBurst = def.ActBurst
	}
	s := &Server{
		engine: e,
		log:    logger,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Stats() Stats {
	return Stats{
		Sessions:      s.sessions.Load(),
		ActsTotal:     s.acts.Load(),
		RejectedTotal: s.rejected.Load(),
		DroppedTotal:  s.dropped.Load(),
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}
		s.sessions.Add(1)
		defer s.sessions.Add(-1)
		s.logf("session open id=%s remote=%s", sessionID, r.RemoteAddr)

		events, unsubscribe := s.engine.Subscribe(64)
		defer unsubscribe()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.writeLoop(ctx, conn, out, events)
			cancel()
		}()

		limiter := rate.NewLimiter(rate.Limit(s.opts.ActsPerSecond), s.opts.ActBurst)

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeAct {
				continue
			}
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				continue
			}
			var ack protocol.AckMsg
			switch {
			case act.ProtocolVersion != protocol.Version:
				ack = reject(act, protocol.ErrProtoVersion, "bad protocol_version")
			case !limiter.Allow():
				ack = reject(act, protocol.ErrRateLimit, "too many actions")
			case !s.validAct(msg):
				ack = reject(act, protocol.ErrProtoBadRequest, "act does not match schema")
			default:
				ack = s.Dispatch(act)
			}
			if !ack.Accepted {
				s.rejected.Add(1)
			}
			b, err := json.Marshal(ack)
			if err != nil {
				continue
			}
			if !sendLatest(out, b) {
				s.dropped.Add(1)
			}
		}

		cancel()
		<-done
		s.logf("session closed id=%s", sessionID)
	}
}

// Dispatch applies one ACT to the engine and answers it.
func (s *Server) Dispatch(act protocol.ActMsg) protocol.AckMsg {
	s.acts.Add(1)
	if !protocol.KnownOp(act.Op) {
		return reject(act, protocol.ErrUnknownOp, "unknown op "+act.Op)
	}
	target, needs := act.Target()
	target = strings.TrimSpace(target)
	if needs && target == "" {
		return reject(act, protocol.ErrBadRequest, "missing target id")
	}

	f := s.engine.Tuning().Features
	if f.Maintenance && act.Op != protocol.OpSave {
		return reject(act, protocol.ErrMaintenance, f.MOTD)
	}

	var ok bool
	var items []string
	switch act.Op {
	case protocol.OpTap:
		ok = s.engine.Tap(act.X, act.Y).Applied
	case protocol.OpUpgrade:
		ok = s.engine.PurchaseUpgrade(target)
	case protocol.OpOpenCrate:
		if !f.CratesEnabled {
			return reject(act, protocol.ErrDisabled, "crates are disabled")
		}
		items = s.engine.OpenCrate(target)
		ok = len(items) > 0
	case protocol.OpEquip:
		ok = s.engine.Equip(target)
	case protocol.OpSell:
		ok = s.engine.Sell(target)
	case protocol.OpRebirth:
		if !f.RebirthEnabled {
			return reject(act, protocol.ErrDisabled, "rebirth is disabled")
		}
		ok = s.engine.Rebirth()
	case protocol.OpSave:
		ok = s.engine.RequestSave()
	}
	if !ok {
		return reject(act, protocol.ErrRejected, "not applied")
	}
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          act.ID,
		Accepted:        true,
		Items:           items,
	}
}

func (s *Server) validAct(raw []byte) bool {
	if s.opts.ActSchema == nil {
		return true
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	return s.opts.ActSchema.Validate(v) == nil
}

func reject(act protocol.ActMsg, code, msg string) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          act.ID,
		Code:            code,
		Message:         msg,
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan []byte, events <-chan game.Event) {
	ticker := time.NewTicker(s.opts.StateEvery)
	defer ticker.Stop()

	var (
		seq   uint64
		dirty bool
	)
	write := func(b []byte) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteMessage(websocket.TextMessage, b) == nil
	}
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-out:
			if !write(b) {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			dirty = true
			if ev.Type == game.EventPassive {
				continue
			}
			b, err := json.Marshal(EventMsg(ev))
			if err != nil {
				continue
			}
			if !write(b) {
				return
			}
		case <-ticker.C:
			if !dirty {
				continue
			}
			dirty = false
			seq++
			b, err := json.Marshal(protocol.StateMsg{
				Type:            protocol.TypeState,
				ProtocolVersion: protocol.Version,
				Seq:             seq,
				State:           View(s.engine),
			})
			if err != nil {
				continue
			}
			if !write(b) {
				return
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	sessionID = uuid.NewString()
	cats := s.engine.Catalogs()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		Catalogs: protocol.CatalogDigests{
			Items:         protocol.DigestRef{Digest: cats.Items.Digest, Count: len(cats.Items.Order)},
			Upgrades:      protocol.DigestRef{Digest: cats.Upgrades.Digest, Count: len(cats.Upgrades.Order)},
			Crates:        protocol.DigestRef{Digest: cats.Crates.Digest, Count: len(cats.Crates.Order)},
			RebirthStages: protocol.DigestRef{Digest: cats.Rebirth.Digest, Count: len(cats.Rebirth.Stages)},
		},
		State: View(s.engine),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil
	}
	return sessionID, out
}

// View snapshots e for a client.
func View(e *game.Engine) protocol.StateView {
	info := e.RebirthInfo()
	return protocol.NewStateView(e.Snapshot(), e.SlotLimit(), info.Stage.Milestone, info.Ready, e.AutoTapInterval())
}

// EventMsg converts an engine event to its wire form.
func EventMsg(ev game.Event) protocol.EventMsg {
	m := protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Event:           string(ev.Type),
		Target:          ev.Target,
		Gain:            ev.Gain,
		Crit:            ev.Crit,
		Auto:            ev.Auto,
		X:               ev.X,
		Y:               ev.Y,
		Items:           ev.Items,
	}
	if ev.Gain != 0 {
		m.GainText = "+" + notation.Format(ev.Gain)
	}
	return m
}

// sendLatest drops the oldest queued message when out is full. It reports
// false when something was dropped.
func sendLatest(out chan []byte, b []byte) bool {
	select {
	case out <- b:
		return true
	default:
	}
	select {
	case <-out:
	default:
	}
	select {
	case out <- b:
	default:
	}
	return false
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
