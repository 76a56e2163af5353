package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/mathieu-neron/chanwatch/internal/control"
	"github.com/mathieu-neron/chanwatch/internal/middleware"
	"github.com/mathieu-neron/chanwatch/internal/model"
	"github.com/mathieu-neron/chanwatch/internal/service"
)

// ControlHandler exposes control commands as GET routes with plain-text replies.
type ControlHandler struct {
	surface *control.Surface
}

func NewControlHandler(surface *control.Surface) *ControlHandler {
	return &ControlHandler{surface: surface}
}

// Help handles GET /help
func (h *ControlHandler) Help(c fiber.Ctx) error {
	return h.run(c, control.Command{Kind: control.KindHelp})
}

// Status handles GET /status and GET /status/:channel
func (h *ControlHandler) Status(c fiber.Ctx) error {
	return h.run(c, control.Command{Kind: control.KindStatus, Channel: channelParam(c)})
}

// List handles GET /list
func (h *ControlHandler) List(c fiber.Ctx) error {
	return h.run(c, control.Command{Kind: control.KindList})
}

// Add handles GET /add/:channel
func (h *ControlHandler) Add(c fiber.Ctx) error {
	return h.run(c, control.Command{Kind: control.KindAdd, Channel: channelParam(c)})
}

// Remove handles GET /remove/:channel
func (h *ControlHandler) Remove(c fiber.Ctx) error {
	return h.run(c, control.Command{Kind: control.KindRemove, Channel: channelParam(c)})
}

// Change handles GET /change/:channel
func (h *ControlHandler) Change(c fiber.Ctx) error {
	return h.run(c, control.Command{Kind: control.KindChange, Channel: channelParam(c)})
}

// Exit handles GET /exit
func (h *ControlHandler) Exit(c fiber.Ctx) error {
	return h.run(c, control.Command{Kind: control.KindExit})
}

// NotFound answers unknown paths with 404 and the usage text.
func (h *ControlHandler) NotFound(c fiber.Ctx) error {
	return middleware.TextError(c, fiber.StatusNotFound, control.Usage())
}

func (h *ControlHandler) run(c fiber.Ctx, cmd control.Command) error {
	reply, err := h.surface.Execute(c.Context(), cmd)
	recordCommand(cmd.Kind, err)
	if err != nil {
		return middleware.TextError(c, StatusForError(err), err.Error())
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(reply)
}

// channelParam prefers the name normalized by RequireChannelParam.
func channelParam(c fiber.Ctx) string {
	if v, ok := c.Locals("channel").(string); ok {
		return v
	}
	return c.Params("channel")
}

// StatusForError maps control and orchestrator errors to HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrNotReady):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, service.ErrCapacityExceeded), errors.Is(err, service.ErrAlreadyWatching):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrNotWatching):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrProtectedChannel):
		return fiber.StatusForbidden
	case errors.Is(err, model.ErrChannelRequired),
		errors.Is(err, model.ErrChannelTooLong),
		errors.Is(err, model.ErrChannelInvalid),
		errors.Is(err, control.ErrMissingArgument):
		return fiber.StatusBadRequest
	case errors.Is(err, control.ErrUnknownCommand):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}
