package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"mepclicker.app/internal/persistence/save"
	"mepclicker.app/internal/protocol"
	"mepclicker.app/internal/sim/catalogs"
	"mepclicker.app/internal/sim/clock"
	"mepclicker.app/internal/sim/game"
	"mepclicker.app/internal/sim/tuning"
)

func newEngine(t *testing.T, mutate func(*tuning.Tuning)) *game.Engine {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	require.NoError(t, err)
	tune := tuning.Defaults()
	if mutate != nil {
		mutate(&tune)
	}
	e, err := game.New(game.Config{
		Catalogs: cats,
		Tuning:   tune,
		Clock:    clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Store:    save.NewMemory(),
	})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func act(op string) protocol.ActMsg {
	return protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, ID: "a1", Op: op}
}

func TestDispatch(t *testing.T) {
	e := newEngine(t, nil)
	s := NewServer(e, nil, Options{})

	ack := s.Dispatch(act(protocol.OpTap))
	require.True(t, ack.Accepted)
	require.Equal(t, "a1", ack.AckFor)
	require.Greater(t, e.Snapshot().Balance, 0.0)

	ack = s.Dispatch(act("DANCE"))
	require.False(t, ack.Accepted)
	require.Equal(t, protocol.ErrUnknownOp, ack.Code)

	ack = s.Dispatch(act(protocol.OpUpgrade))
	require.Equal(t, protocol.ErrBadRequest, ack.Code)

	up := act(protocol.OpUpgrade)
	up.UpgradeID = "click-1"
	ack = s.Dispatch(up)
	require.Equal(t, protocol.ErrRejected, ack.Code, "cannot afford yet")

	ack = s.Dispatch(act(protocol.OpSave))
	require.True(t, ack.Accepted)

	st := s.Stats()
	require.EqualValues(t, 5, st.ActsTotal)
}

func TestDispatch_FeatureGates(t *testing.T) {
	e := newEngine(t, func(tu *tuning.Tuning) {
		tu.Features.CratesEnabled = false
		tu.Features.RebirthEnabled = false
	})
	s := NewServer(e, nil, Options{})

	c := act(protocol.OpOpenCrate)
	c.CrateID = "basic"
	require.Equal(t, protocol.ErrDisabled, s.Dispatch(c).Code)
	require.Equal(t, protocol.ErrDisabled, s.Dispatch(act(protocol.OpRebirth)).Code)

	m := newEngine(t, func(tu *tuning.Tuning) { tu.Features.Maintenance = true })
	ms := NewServer(m, nil, Options{})
	ack := ms.Dispatch(act(protocol.OpTap))
	require.Equal(t, protocol.ErrMaintenance, ack.Code)
	require.Zero(t, m.Snapshot().Balance)
	require.True(t, ms.Dispatch(act(protocol.OpSave)).Accepted)
}

func TestSendLatestDropsOldest(t *testing.T) {
	out := make(chan []byte, 2)
	require.True(t, sendLatest(out, []byte("1")))
	require.True(t, sendLatest(out, []byte("2")))
	require.False(t, sendLatest(out, []byte("3")))
	require.Equal(t, "2", string(<-out))
	require.Equal(t, "3", string(<-out))
}

func TestEventMsgFormatsGain(t *testing.T) {
	m := EventMsg(game.Event{Type: game.EventTap, Gain: 1500, Crit: true})
	require.Equal(t, "TAP", m.Event)
	require.Equal(t, "+1.50K", m.GainText)
	require.True(t, m.Crit)
}

func TestHandler_HelloActAck(t *testing.T) {
	e := newEngine(t, nil)
	s := NewServer(e, nil, Options{StateEvery: 10 * time.Millisecond})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version}))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var welcome protocol.WelcomeMsg
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, protocol.TypeWelcome, welcome.Type)
	require.Len(t, welcome.SessionID, 36)
	require.Equal(t, 48, welcome.Catalogs.Items.Count)
	require.Equal(t, []string{"m-orig"}, welcome.State.Inventory)

	tap := act(protocol.OpTap)
	tap.ID = "t1"
	require.NoError(t, conn.WriteJSON(tap))

	seen := map[string]bool{}
	for !(seen[protocol.TypeAck] && seen[protocol.TypeEvent] && seen[protocol.TypeState]) {
		_, b, err := conn.ReadMessage()
		require.NoError(t, err)
		base, err := protocol.DecodeBase(b)
		require.NoError(t, err)
		seen[base.Type] = true
		if base.Type == protocol.TypeAck {
			var ack protocol.AckMsg
			require.NoError(t, json.Unmarshal(b, &ack))
			require.True(t, ack.Accepted)
			require.Equal(t, "t1", ack.AckFor)
		}
	}
}

func TestHandler_ActSchema(t *testing.T) {
	schema, err := jsonschema.Compile("../../../schemas/act.schema.json")
	require.NoError(t, err)
	e := newEngine(t, nil)
	srv := httptest.NewServer(NewServer(e, nil, Options{ActSchema: schema}).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version}))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var welcome protocol.WelcomeMsg
	require.NoError(t, conn.ReadJSON(&welcome))

	// EQUIP without item_id fails the schema before reaching the engine.
	bad := act(protocol.OpEquip)
	bad.ID = "b1"
	require.NoError(t, conn.WriteJSON(bad))
	for {
		_, b, err := conn.ReadMessage()
		require.NoError(t, err)
		base, err := protocol.DecodeBase(b)
		require.NoError(t, err)
		if base.Type != protocol.TypeAck {
			continue
		}
		var ack protocol.AckMsg
		require.NoError(t, json.Unmarshal(b, &ack))
		require.Equal(t, "b1", ack.AckFor)
		require.Equal(t, protocol.ErrProtoBadRequest, ack.Code)
		break
	}
}

func TestHandler_RejectsWrongHello(t *testing.T) {
	e := newEngine(t, nil)
	srv := httptest.NewServer(NewServer(e, nil, Options{}).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "0.1"}))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}
