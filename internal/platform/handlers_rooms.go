package platform

import (
	"context"
	"errors"

	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/protocol"
	"github.com/udisondev/playhub/internal/store"
)

func (h *Handler) handleListRooms(ctx context.Context, _ *Client, _ *model.Session, _ []byte) protocol.Response {
	rooms, err := h.lobby.ListRooms(ctx)
	if err != nil {
		return errorResponse(err)
	}
	return protocol.OK().Set("rooms", rooms)
}

func (h *Handler) handleGetRoomInfo(ctx context.Context, _ *Client, _ *model.Session, raw []byte) protocol.Response {
	req, err := decode[protocol.RoomRequest](raw)
	if err != nil {
		return errorResponse(err)
	}
	if req.RoomID == "" {
		return protocol.Error("room_id required")
	}

	room, err := h.lobby.GetRoom(ctx, req.RoomID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Room")
	}
	if err != nil {
		return errorResponse(err)
	}
	return protocol.OK().Set("room", room)
}

func (h *Handler) handleCreateRoom(ctx context.Context, _ *Client, sess *model.Session, raw []byte) protocol.Response {
	req, err := decode[protocol.CreateRoomRequest](raw)
	if err != nil {
		return errorResponse(err)
	}
	if req.GameID == "" {
		return protocol.Error("game_id required")
	}

	room, err := h.lobby.CreateRoom(ctx, sess.Username, req)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Game")
	}
	if err != nil {
		return errorResponse(err)
	}
	return protocol.OK().
		Set("room_id", room.RoomID).
		Set("game_port", room.GamePort).
		Set("room_info", room)
}

func (h *Handler) handleJoinRoom(ctx context.Context, _ *Client, sess *model.Session, raw []byte) protocol.Response {
	req, err := decode[protocol.RoomRequest](raw)
	if err != nil {
		return errorResponse(err)
	}
	if req.RoomID == "" {
		return protocol.Error("room_id required")
	}

	room, err := h.lobby.JoinRoom(ctx, sess.Username, req.RoomID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Room")
	}
	if err != nil {
		return errorResponse(err)
	}
	return protocol.OK().Set("room_info", room)
}

func (h *Handler) handleLeaveRoom(ctx context.Context, c *Client, sess *model.Session, raw []byte) protocol.Response {
	req, err := decode[protocol.RoomRequest](raw)
	if err != nil {
		return errorResponse(err)
	}
	if req.RoomID == "" {
		return protocol.Error("room_id required")
	}

	if err := h.lobby.LeaveRoom(ctx, sess.Username, req.RoomID); err != nil {
		return errorResponse(err)
	}
	h.subs.Unsubscribe(c.ConnID())
	return protocol.OK()
}

func (h *Handler) handleSetReady(ctx context.Context, _ *Client, sess *model.Session, raw []byte) protocol.Response {
	req, err := decode[protocol.SetReadyRequest](raw)
	if err != nil {
		return errorResponse(err)
	}
	if req.RoomID == "" {
		return protocol.Error("room_id required")
	}

	room, err := h.lobby.SetReady(ctx, sess.Username, req.RoomID, req.Ready)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Room")
	}
	if err != nil {
		return errorResponse(err)
	}
	return protocol.OK().
		Set("ready", req.Ready).
		Set("room_info", room)
}

func (h *Handler) handleCloseRoom(ctx context.Context, _ *Client, sess *model.Session, raw []byte) protocol.Response {
	req, err := decode[protocol.RoomRequest](raw)
	if err != nil {
		return errorResponse(err)
	}
	if req.RoomID == "" {
		return protocol.Error("room_id required")
	}

	err = h.lobby.CloseRoom(ctx, sess.Username, req.RoomID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Room")
	}
	if err != nil {
		return errorResponse(err)
	}
	h.metrics.RunningGameServers.Set(float64(h.lobby.RunningServers()))
	return protocol.OK()
}

func (h *Handler) handleStartGame(ctx context.Context, _ *Client, sess *model.Session, raw []byte) protocol.Response {
	req, err := decode[protocol.RoomRequest](raw)
	if err != nil {
		return errorResponse(err)
	}
	if req.RoomID == "" {
		return protocol.Error("room_id required")
	}

	room, err := h.lobby.StartGame(ctx, sess.Username, req.RoomID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Room")
	}
	if err != nil {
		return errorResponse(err)
	}
	h.metrics.RunningGameServers.Set(float64(h.lobby.RunningServers()))
	return protocol.OK().
		Set("room_info", room).
		Set("game_port", room.GamePort)
}

func (h *Handler) handleEndGame(ctx context.Context, _ *Client, sess *model.Session, raw []byte) protocol.Response {
	req, err := decode[protocol.RoomRequest](raw)
	if err != nil {
		return errorResponse(err)
	}
	if req.RoomID == "" {
		return protocol.Error("room_id required")
	}

	room, err := h.lobby.EndGame(ctx, sess.Username, req.RoomID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Room")
	}
	if err != nil {
		return errorResponse(err)
	}
	h.metrics.RunningGameServers.Set(float64(h.lobby.RunningServers()))
	return protocol.OK().Set("room_info", room)
}

func (h *Handler) handleSubscribeRoom(ctx context.Context, c *Client, _ *model.Session, raw []byte) protocol.Response {
	req, err := decode[protocol.RoomRequest](raw)
	if err != nil {
		return errorResponse(err)
	}
	if req.RoomID == "" {
		return protocol.Error("room_id required")
	}

	room, err := h.lobby.GetRoom(ctx, req.RoomID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Room")
	}
	if err != nil {
		return errorResponse(err)
	}

	h.subs.Subscribe(room.RoomID, c)
	return protocol.OK().Set("room", room)
}

func (h *Handler) handleUnsubscribeRoom(_ context.Context, c *Client, _ *model.Session, _ []byte) protocol.Response {
	h.subs.Unsubscribe(c.ConnID())
	return protocol.OK()
}
