package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.BattleService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.BattleService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type readyPayload struct {
	Ready bool `json:"ready"`
}

type answerPayload struct {
	QuestionID  string `json:"questionId"`
	Answer      string `json:"answer"`
	TimeTakenMs int64  `json:"timeTakenMs"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into one
// battle room. Connect with ?battleId=... or ?code=... plus userId.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	battleID := r.URL.Query().Get("battleId")
	code := r.URL.Query().Get("code")
	userID := r.URL.Query().Get("userId")
	teamID := r.URL.Query().Get("teamId")
	if userID == "" || (battleID == "" && code == "") {
		http.Error(w, "missing userId and battleId or code", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	if code != "" {
		resolved, err := h.service.JoinByCode(ctx, code, userID, teamID, r.RemoteAddr, r.UserAgent())
		if err != nil && !errors.Is(err, domain.ErrAlreadyMember) {
			_ = conn.WriteJSON(errMsg(err.Error()))
			return
		}
		battleID = resolved
	} else {
		err := h.service.Join(ctx, battleID, userID, teamID, r.RemoteAddr, r.UserAgent())
		// Reconnecting members pass through: a leader auto-joins at creation,
		// and a running battle rejects fresh joins but not its own
		// participants coming back.
		if err != nil && !errors.Is(err, domain.ErrAlreadyMember) && !h.isMember(ctx, battleID, userID) {
			_ = conn.WriteJSON(errMsg(err.Error()))
			return
		}
	}

	updates, cancel, err := h.service.Subscribe(ctx, battleID)
	if err != nil {
		_ = conn.WriteJSON(errMsg(err.Error()))
		return
	}
	defer cancel()
	defer h.cleanupOnDisconnect(battleID, userID)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: string(update.Kind), Payload: update.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.handleMessage(ctx, battleID, userID, inbound, send)
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handleMessage(ctx context.Context, battleID, userID string, inbound inboundMessage, send chan outboundMessage[any]) {
	switch inbound.Type {
	case "ready":
		var payload readyPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errMsg("invalid ready payload")
			return
		}
		if err := h.service.SetReady(ctx, battleID, userID, payload.Ready); err != nil {
			send <- errMsg(err.Error())
		}
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errMsg("invalid answer payload")
			return
		}
		record, err := h.service.SubmitAnswer(ctx, battleID, app.AnswerRequest{
			UserID:      userID,
			QuestionID:  payload.QuestionID,
			Answer:      payload.Answer,
			TimeTakenMs: payload.TimeTakenMs,
			Timestamp:   time.Now(),
		})
		if err != nil {
			send <- errMsg(err.Error())
			return
		}
		send <- outboundMessage[any]{Type: "answerResult", Payload: record}
	case "tabSwitch":
		if _, err := h.service.ReportTabSwitch(ctx, battleID, userID); err != nil {
			send <- errMsg(err.Error())
		}
	case "complete":
		if err := h.service.CompleteBattle(ctx, battleID, userID); err != nil {
			send <- errMsg(err.Error())
		}
	case "emote":
		var payload interface{}
		_ = json.Unmarshal(inbound.Payload, &payload)
		if err := h.service.SendEmote(ctx, battleID, payload); err != nil {
			send <- errMsg(err.Error())
		}
	default:
		send <- errMsg("unsupported message type")
	}
}

func (h *WSHandler) isMember(ctx context.Context, battleID, userID string) bool {
	views, err := h.service.GetParticipants(ctx, battleID)
	if err != nil {
		return false
	}
	for _, v := range views {
		if v.UserID == userID {
			return true
		}
	}
	return false
}

// cleanupOnDisconnect frees the user's seat when the socket drops while the
// room is still filling up. A running battle keeps the participant so a
// reconnect can resume it.
func (h *WSHandler) cleanupOnDisconnect(battleID, userID string) {
	ctx := context.Background()
	state, err := h.service.GetState(ctx, battleID)
	if err != nil || state.Status != domain.StatusWaiting {
		return
	}
	if err := h.service.RemoveParticipant(ctx, battleID, userID); err != nil {
		log.Printf("disconnect cleanup for %s/%s: %v", battleID, userID, err)
	}
}

func errMsg(message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}
}
