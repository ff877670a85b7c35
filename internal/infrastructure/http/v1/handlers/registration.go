package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"kardex/internal/domain/posting"
	"kardex/internal/infrastructure/http/v1/dto"
)

// Registrar registers documents.
type Registrar interface {
	Register(ctx context.Context, cmd posting.Command) (*posting.Result, error)
}

// RegistrationHandler handles document registration.
type RegistrationHandler struct {
	*BaseHandler
	registrar Registrar
}

// NewRegistrationHandler creates a new registration handler.
func NewRegistrationHandler(base *BaseHandler, registrar Registrar) *RegistrationHandler {
	return &RegistrationHandler{BaseHandler: base, registrar: registrar}
}

// Register handles POST /api/v1/registrations.
// A document dated before recorded movements answers with the cascade
// summary in "cascade".
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req dto.RegistrationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cmd, err := req.ToCommand(h.OwnerID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.registrar.Register(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}
