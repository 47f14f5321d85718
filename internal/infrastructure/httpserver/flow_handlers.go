package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goldkiwi/storefront/internal/core/domain/flow"
	"github.com/goldkiwi/storefront/internal/core/domain/verification"
	"github.com/goldkiwi/storefront/internal/core/ports"
	"github.com/goldkiwi/storefront/internal/infrastructure/httpserver/helpers"
	"github.com/labstack/echo/v4"
)

type flowResponse struct {
	Message string     `json:"message,omitempty"`
	Flow    *flow.View `json:"flow,omitempty"`
}

type updateFlowRequest struct {
	Email    *string `json:"email" validate:"omitempty,max=254"`
	Code     *string `json:"code" validate:"omitempty,max=32"`
	Username *string `json:"username" validate:"omitempty,max=64"`
	Name     *string `json:"name" validate:"omitempty,max=100"`
}

type submitFlowRequest struct {
	Password        string `json:"password" validate:"max=128"`
	ConfirmPassword string `json:"confirm_password" validate:"max=128"`
	Name            string `json:"name" validate:"max=100"`
}

// Flow handlers
func (s *Server) startFlow(c echo.Context) error {
	kind, err := flow.ParseKind(c.Param("kind"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resume := verification.ParseResumeParams(c.QueryParams())

	ctx, rec := helpers.AuthContext(c)
	f, err := s.flows.Start(ctx, kind, resume)
	helpers.RelayCookies(c, rec)
	return s.respondFlow(c, http.StatusCreated, f, err)
}

func (s *Server) getFlow(c echo.Context) error {
	id, err := helpers.GetFlowIDFromParam(c)
	if err != nil {
		return err
	}
	f, err := s.flows.Get(c.Request().Context(), id)
	return s.respondFlow(c, http.StatusOK, f, err)
}

func (s *Server) updateFlow(c echo.Context) error {
	id, err := helpers.GetFlowIDFromParam(c)
	if err != nil {
		return err
	}
	var req updateFlowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := s.flows.Update(c.Request().Context(), id, ports.FieldChanges{
		Email:    req.Email,
		Code:     req.Code,
		Username: req.Username,
		Name:     req.Name,
	})
	return s.respondFlow(c, http.StatusOK, f, err)
}

func (s *Server) sendCode(c echo.Context) error {
	id, err := helpers.GetFlowIDFromParam(c)
	if err != nil {
		return err
	}
	ctx, rec := helpers.AuthContext(c)
	f, err := s.flows.SendCode(ctx, id)
	helpers.RelayCookies(c, rec)
	return s.respondFlow(c, http.StatusOK, f, err)
}

func (s *Server) verifyCode(c echo.Context) error {
	id, err := helpers.GetFlowIDFromParam(c)
	if err != nil {
		return err
	}
	ctx, rec := helpers.AuthContext(c)
	f, err := s.flows.VerifyCode(ctx, id)
	helpers.RelayCookies(c, rec)
	return s.respondFlow(c, http.StatusOK, f, err)
}

func (s *Server) submitFlow(c echo.Context) error {
	id, err := helpers.GetFlowIDFromParam(c)
	if err != nil {
		return err
	}
	var req submitFlowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx, rec := helpers.AuthContext(c)
	f, err := s.flows.Submit(ctx, id, flow.FinalizeInput{
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Name:            req.Name,
	})
	helpers.RelayCookies(c, rec)
	return s.respondFlow(c, http.StatusOK, f, err)
}

func (s *Server) backFlow(c echo.Context) error {
	id, err := helpers.GetFlowIDFromParam(c)
	if err != nil {
		return err
	}
	f, err := s.flows.Back(c.Request().Context(), id)
	return s.respondFlow(c, http.StatusOK, f, err)
}

func (s *Server) discardFlow(c echo.Context) error {
	id, err := helpers.GetFlowIDFromParam(c)
	if err != nil {
		return err
	}
	if err := s.flows.Discard(c.Request().Context(), id); err != nil {
		s.logger.WithError(err).WithField("flow_id", id).Error("failed to discard flow")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to discard flow")
	}
	return c.NoContent(http.StatusNoContent)
}

const msgConcurrentUpdate = "the flow is being changed elsewhere, please try again"

// respondFlow writes f on success and maps service errors to statuses.
// Errors that leave a usable flow behind include it so the page can render
// the message and state together.
func (s *Server) respondFlow(c echo.Context, status int, f *flow.Flow, err error) error {
	var view *flow.View
	if f != nil {
		v := f.View(s.flows.Now())
		view = &v
	}
	if err == nil {
		return c.JSON(status, flowResponse{Flow: view})
	}

	var ve *flow.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusUnprocessableEntity, flowResponse{Message: ve.Message, Flow: view})
	case errors.Is(err, ports.ErrUpstream):
		return c.JSON(http.StatusBadGateway, flowResponse{Message: upstreamMessage(f, err), Flow: view})
	case errors.Is(err, ports.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, trimSentinel(err, ports.ErrUnauthorized))
	case errors.Is(err, flow.ErrRequestInFlight), errors.Is(err, flow.ErrWrongStep), errors.Is(err, flow.ErrNotSupported):
		return c.JSON(http.StatusConflict, flowResponse{Message: err.Error(), Flow: view})
	case errors.Is(err, ports.ErrCacheConflict):
		return c.JSON(http.StatusConflict, flowResponse{Message: msgConcurrentUpdate})
	case errors.Is(err, flow.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "flow not found")
	case errors.Is(err, flow.ErrUnknownKind):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		s.logger.WithError(err).WithField("path", c.Path()).Error("flow operation failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}

func upstreamMessage(f *flow.Flow, err error) string {
	if f != nil && f.Message != nil && f.Message.Type == flow.MessageError {
		return f.Message.Text
	}
	return trimSentinel(err, ports.ErrUpstream)
}

// trimSentinel strips the "<sentinel>: " prefix added when wrapping.
func trimSentinel(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == "" {
		return sentinel.Error()
	}
	return msg
}
