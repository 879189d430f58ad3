package platform

import (
	"context"
	"strings"

	"github.com/udisondev/playhub/internal/model"
	"github.com/udisondev/playhub/internal/protocol"
)

func (h *Handler) handleRegister(ctx context.Context, _ *Client, _ *model.Session, raw []byte) protocol.Response {
	req, err := decode[protocol.AuthRequest](raw)
	if err != nil {
		return errorResponse(err)
	}

	req.Username = strings.TrimSpace(req.Username)
	if !req.Role.Valid() {
		return protocol.Error("Invalid role")
	}
	if req.Username == "" || req.Password == "" {
		return protocol.Error("Username and password required")
	}

	if err := h.auth.Register(ctx, req.Username, req.Password, req.Role); err != nil {
		return errorResponse(err)
	}
	return protocol.OK().Set("message", "Registration successful")
}

func (h *Handler) handleLogin(ctx context.Context, c *Client, _ *model.Session, raw []byte) protocol.Response {
	req, err := decode[protocol.AuthRequest](raw)
	if err != nil {
		return errorResponse(err)
	}

	req.Username = strings.TrimSpace(req.Username)
	if !req.Role.Valid() {
		return protocol.Error("Invalid role")
	}

	sess, err := h.auth.Login(ctx, c.ConnID(), req.Username, req.Password, req.Role)
	if err != nil {
		return errorResponse(err)
	}
	h.metrics.ActiveSessions.Set(float64(h.auth.Count()))
	return protocol.OK().
		Set("username", sess.Username).
		Set("role", sess.Role)
}

func (h *Handler) handleLogout(_ context.Context, c *Client, _ *model.Session, _ []byte) protocol.Response {
	h.auth.Logout(c.ConnID())
	h.metrics.ActiveSessions.Set(float64(h.auth.Count()))
	return protocol.OK()
}
