package platform

import (
	"context"
	"errors"
	"strings"

	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/protocol"
	"github.com/udisondev/playhub/internal/store"
)

func (h *Handler) handleListGames(ctx context.Context, _ *Client, _ *model.Session, _ []byte) protocol.Response {
	list, err := h.store.ListGames(ctx)
	if err != nil {
		return errorResponse(err)
	}
	return protocol.OK().Set("games", list)
}

func (h *Handler) handleGetGameInfo(ctx context.Context, _ *Client, _ *model.Session, raw []byte) protocol.Response {
	req, err := decode[protocol.GameRequest](raw)
	if err != nil {
		return errorResponse(err)
	}
	if req.GameID == "" {
		return protocol.Error("game_id required")
	}

	game, err := h.store.GetGame(ctx, req.GameID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Game")
	}
	if err != nil {
		return errorResponse(err)
	}
	return protocol.OK().Set("game", game)
}

func (h *Handler) handleMyGames(ctx context.Context, _ *Client, sess *model.Session, _ []byte) protocol.Response {
	list, err := h.store.ListGames(ctx)
	if err != nil {
		return errorResponse(err)
	}

	mine := make([]*model.Game, 0, len(list))
	for _, g := range list {
		if g.Developer == sess.Username {
			mine = append(mine, g)
		}
	}
	return protocol.OK().Set("games", mine)
}

func (h *Handler) handleUploadInit(ctx context.Context, c *Client, sess *model.Session, raw []byte) protocol.Response {
	req, err := decode[protocol.UploadInitRequest](raw)
	if err != nil {
		return errorResponse(err)
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Version = strings.TrimSpace(req.Version)
	if req.Name == "" || req.Version == "" {
		return protocol.Error("name and version are required")
	}
	if req.MaxPlayers < model.MinRoomPlayers || req.MaxPlayers > model.MaxRoomPlayers {
		return protocol.Error("max_players must be between 2 and 8")
	}

	// Re-publishing an existing game requires owning it.
	if req.GameID != "" {
		game, err := h.store.GetGame(ctx, req.GameID)
		if errors.Is(err, store.ErrNotFound) {
			return notFound("Game")
		}
		if err != nil {
			return errorResponse(err)
		}
		if game.Developer != sess.Username {
			return protocol.Error("You can only update your own games")
		}
	}

	upload, chunkSize, err := h.games.StartUpload(c.ConnID(), sess.Username, req)
	if err != nil {
		return errorResponse(err)
	}
	return protocol.OK().
		Set("upload_id", upload.UploadID).
		Set("chunk_size", chunkSize)
}

func (h *Handler) handleUploadChunk(ctx context.Context, _ *Client, _ *model.Session, raw []byte) protocol.Response {
	req, err := decode[protocol.UploadChunkRequest](raw)
	if err != nil {
		return errorResponse(err)
	}
	if req.UploadID == "" {
		return protocol.Error("upload_id and data are required")
	}

	chunk, err := protocol.DecodeChunk(req.Data)
	if err != nil {
		return protocol.Error("Invalid base64 data: " + err.Error())
	}

	if _, err := h.games.WriteChunk(ctx, req.UploadID, chunk, req.EOF); err != nil {
		return errorResponse(err)
	}
	h.metrics.UploadedBytes.Add(float64(len(chunk)))
	return protocol.OK().Set("finished", req.EOF)
}

func (h *Handler) handleDeleteGame(ctx context.Context, _ *Client, sess *model.Session, raw []byte) protocol.Response {
	req, err := decode[protocol.GameRequest](raw)
	if err != nil {
		return errorResponse(err)
	}
	if req.GameID == "" {
		return protocol.Error("game_id required")
	}

	game, err := h.store.GetGame(ctx, req.GameID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Game")
	}
	if err != nil {
		return errorResponse(err)
	}
	if game.Developer != sess.Username {
		return protocol.Error("You can only delete your own games")
	}

	if err := h.store.DeleteGame(ctx, req.GameID); err != nil {
		return errorResponse(err)
	}
	return protocol.OK().Set("message", "Game deleted successfully")
}

func (h *Handler) handleSubmitReview(ctx context.Context, _ *Client, sess *model.Session, raw []byte) protocol.Response {
	req, err := decode[protocol.ReviewRequest](raw)
	if err != nil {
		return errorResponse(err)
	}
	if req.GameID == "" || req.Rating < 1 || req.Rating > 5 {
		return protocol.Error("Invalid review")
	}

	err = h.store.AddReview(ctx, req.GameID, sess.Username, req.Rating, strings.TrimSpace(req.Comment))
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Game")
	}
	if err != nil {
		return errorResponse(err)
	}
	return protocol.OK()
}
