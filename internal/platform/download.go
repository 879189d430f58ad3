package platform

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/protocol"
	"github.com/udisondev/playhub/internal/store"
)

// handleDownloadGame streams the bundle to the player as server-initiated
// download_chunk frames. Ownership is recorded before the first chunk goes
// out, so a mid-stream disconnect still credits the game; the write lock is
// held for the whole stream so no other frame can interleave.
func (h *Handler) handleDownloadGame(ctx context.Context, c *Client, sess *model.Session, raw []byte) protocol.Response {
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

	f, err := os.Open(game.BundlePath)
	if err != nil {
		return protocol.Error("Game file missing on server")
	}
	defer f.Close()

	if err := h.store.IncrementDownload(ctx, sess.Username, game.GameID); err != nil {
		return errorResponse(err)
	}

	err = c.Stream(func(send func(v any) error) error {
		buf := make([]byte, protocol.DefaultChunkSize)
		for {
			n, readErr := f.Read(buf)
			if n > 0 {
				if err := send(protocol.DownloadChunk(buf[:n], false)); err != nil {
					return err
				}
				h.metrics.DownloadedBytes.Add(float64(n))
			}
			if errors.Is(readErr, io.EOF) {
				return send(protocol.DownloadChunk(nil, true))
			}
			if readErr != nil {
				return readErr
			}
		}
	})
	if err != nil {
		// The client is gone or the file went away mid-stream; ownership is
		// already recorded and the worker notices the dead socket on its
		// next read.
		slog.Warn("download stream aborted",
			"game_id", game.GameID, "username", sess.Username, "err", err)
	} else {
		slog.Info("bundle downloaded", "game_id", game.GameID, "username", sess.Username)
	}
	return nil
}
