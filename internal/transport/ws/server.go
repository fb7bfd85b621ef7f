package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"stellarforge.dev/internal/protocol"
	"stellarforge.dev/internal/sim/game"
)

// Limits for client messages on one connection.
const (
	cmdRatePerSecond = 10
	cmdBurst         = 20
)

type Server struct {
	game *game.Game
	log  *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(g *game.Game, logger *log.Logger) *Server {
	s := &Server{
		game: g,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
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
		s.printf("session %s connected from %s", sessionID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		lim := rate.NewLimiter(cmdRatePerSecond, cmdBurst)

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			env, reject := decodeEnvelope(sessionID, msg)
			if reject != nil {
				reply(out, *reject)
				continue
			}
			if !lim.Allow() {
				reply(out, rejectFor(env, protocol.ErrRateLimit, "too many messages"))
				continue
			}
			select {
			case s.game.Inbox() <- env:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}

		// Cleanup.
		s.game.Leave() <- sessionID
		s.printf("session %s disconnected", sessionID)
	}
}

// decodeEnvelope routes one client message. A non-nil result is sent back
// instead of forwarding the message.
func decodeEnvelope(sessionID string, msg []byte) (game.Envelope, *protocol.ResultMsg) {
	env := game.Envelope{SessionID: sessionID}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		res := protoReject("", "", "malformed json")
		return env, &res
	}
	if base.ProtocolVersion != protocol.Version {
		res := protoReject("", base.Type, "bad protocol_version")
		return env, &res
	}
	switch base.Type {
	case protocol.TypeCmd:
		var cmd protocol.CmdMsg
		if err := json.Unmarshal(msg, &cmd); err != nil || cmd.Cmd == "" {
			res := protoReject(cmd.ID, protocol.TypeCmd, "bad CMD")
			return env, &res
		}
		env.Cmd = &cmd
	case protocol.TypeEventBatchReq:
		var req protocol.EventBatchReqMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			res := protoReject("", base.Type, "bad EVENT_BATCH_REQ")
			return env, &res
		}
		env.Batch = &req
	default:
		res := protoReject("", base.Type, "unsupported message type")
		return env, &res
	}
	return env, nil
}

func protoReject(id, cmd, message string) protocol.ResultMsg {
	return protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ResultFor:       id,
		Cmd:             cmd,
		Code:            protocol.ErrProtoBadRequest,
		Message:         message,
	}
}

func rejectFor(env game.Envelope, code, message string) protocol.ResultMsg {
	res := protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	}
	switch {
	case env.Cmd != nil:
		res.ResultFor = env.Cmd.ID
		res.Cmd = env.Cmd.Cmd
	case env.Batch != nil:
		res.ResultFor = env.Batch.ReqID
		res.Cmd = protocol.TypeEventBatchReq
	}
	return res
}

// reply queues a transport-level result without blocking the reader.
func reply(out chan []byte, res protocol.ResultMsg) {
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
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
	if !supportsVersion(hello) {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	respCh := make(chan game.JoinResponse, 1)
	s.game.Join() <- game.JoinRequest{
		Name: hello.ClientName,
		Out:  out,
		Resp: respCh,
	}
	resp := <-respCh

	// Send welcome + catalogs immediately.
	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.game.Leave() <- resp.Welcome.SessionID
		return "", nil
	}
	for _, c := range resp.Catalogs {
		if err := writeJSON(conn, c); err != nil {
			s.game.Leave() <- resp.Welcome.SessionID
			return "", nil
		}
	}

	return resp.Welcome.SessionID, out
}

func supportsVersion(h protocol.HelloMsg) bool {
	if h.ProtocolVersion == protocol.Version {
		return true
	}
	for _, v := range h.SupportedVersions {
		if v == protocol.Version {
			return true
		}
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

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
