package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/udisondev/playhub/internal/auth"
	"github.com/udisondev/playhub/internal/games"
	"github.com/udisondev/playhub/internal/lobby"
	"github.com/udisondev/playhub/internal/metrics"
	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/protocol"
	"github.com/udisondev/playhub/internal/store"
)

// handlerFunc handles one decoded request. A nil response means the handler
// already wrote its own frames (the download stream).
type handlerFunc func(ctx context.Context, c *Client, sess *model.Session, raw []byte) protocol.Response

// route gates one action: open routes skip the login check, a non-empty
// role restricts the action to that client kind.
type route struct {
	open bool
	role model.Role
	fn   handlerFunc
}

// Handler routes framed requests into the managers. One instance serves all
// connections.
type Handler struct {
	store   store.Store
	auth    *auth.Manager
	games   *games.Manager
	lobby   *lobby.Manager
	subs    *Subscriptions
	metrics *metrics.Metrics

	table map[string]route
}

// NewHandler builds the action table.
func NewHandler(st store.Store, am *auth.Manager, gm *games.Manager, lm *lobby.Manager, subs *Subscriptions, m *metrics.Metrics) *Handler {
	h := &Handler{store: st, auth: am, games: gm, lobby: lm, subs: subs, metrics: m}

	h.table = map[string]route{
		protocol.ActionRegister: {open: true, fn: h.handleRegister},
		protocol.ActionLogin:    {open: true, fn: h.handleLogin},
		protocol.ActionLogout:   {fn: h.handleLogout},

		protocol.ActionListGames:   {fn: h.handleListGames},
		protocol.ActionGetGameInfo: {fn: h.handleGetGameInfo},
		protocol.ActionListRooms:   {fn: h.handleListRooms},
		protocol.ActionGetRoomInfo: {fn: h.handleGetRoomInfo},

		protocol.ActionUploadGameInit:  {role: model.RoleDeveloper, fn: h.handleUploadInit},
		protocol.ActionUploadGameChunk: {role: model.RoleDeveloper, fn: h.handleUploadChunk},
		protocol.ActionMyGames:         {role: model.RoleDeveloper, fn: h.handleMyGames},
		protocol.ActionDeleteGame:      {role: model.RoleDeveloper, fn: h.handleDeleteGame},

		protocol.ActionDownloadGame:    {role: model.RolePlayer, fn: h.handleDownloadGame},
		protocol.ActionSubmitReview:    {role: model.RolePlayer, fn: h.handleSubmitReview},
		protocol.ActionCreateRoom:      {role: model.RolePlayer, fn: h.handleCreateRoom},
		protocol.ActionJoinRoom:        {role: model.RolePlayer, fn: h.handleJoinRoom},
		protocol.ActionLeaveRoom:       {role: model.RolePlayer, fn: h.handleLeaveRoom},
		protocol.ActionSetReady:        {role: model.RolePlayer, fn: h.handleSetReady},
		protocol.ActionCloseRoom:       {role: model.RolePlayer, fn: h.handleCloseRoom},
		protocol.ActionStartGame:       {role: model.RolePlayer, fn: h.handleStartGame},
		protocol.ActionEndGame:         {role: model.RolePlayer, fn: h.handleEndGame},
		protocol.ActionSubscribeRoom:   {role: model.RolePlayer, fn: h.handleSubscribeRoom},
		protocol.ActionUnsubscribeRoom: {role: model.RolePlayer, fn: h.handleUnsubscribeRoom},
	}
	return h
}

// Handle processes one raw frame. The returned error is fatal for the
// connection (the socket is gone); every handler failure is serialized as an
// error response instead.
func (h *Handler) Handle(ctx context.Context, c *Client, raw []byte) error {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("malformed request frame", "conn_id", c.ConnID(), "err", err)
		return c.Send(protocol.Error("Malformed JSON request"))
	}
	if env.Action == "" {
		return c.Send(protocol.Error("Missing action"))
	}

	resp := h.dispatch(ctx, c, env.Action, raw)

	status := protocol.StatusOK
	if resp != nil {
		if s, ok := resp["status"].(string); ok {
			status = s
		}
	}
	// Client-supplied action strings would blow up label cardinality.
	action := env.Action
	if _, known := h.table[action]; !known {
		action = "unknown"
	}
	h.metrics.RequestsTotal.WithLabelValues(action, status).Inc()

	if resp == nil {
		return nil
	}
	return c.Send(resp)
}

func (h *Handler) dispatch(ctx context.Context, c *Client, action string, raw []byte) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panic", "action", action, "conn_id", c.ConnID(), "panic", r)
			resp = protocol.Error("Internal server error")
		}
	}()

	rt, known := h.table[action]
	if !known {
		return protocol.Error(fmt.Sprintf("Unknown or unauthorized action: %s", action))
	}

	var sess *model.Session
	if !rt.open {
		var err error
		sess, err = h.auth.Require(c.ConnID())
		if err != nil {
			return errorResponse(err)
		}
		if rt.role != "" && sess.Role != rt.role {
			return protocol.Error(fmt.Sprintf("Unknown or unauthorized action: %s", action))
		}
	}

	slog.Debug("request", "conn_id", c.ConnID(), "action", action)
	return rt.fn(ctx, c, sess, raw)
}

// decode unmarshals a request payload; failures surface as validation
// errors.
func decode[T any](raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("invalid request payload: %w", err)
	}
	return v, nil
}
