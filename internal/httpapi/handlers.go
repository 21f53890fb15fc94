package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/roach88/evertag/internal/domain"
	"github.com/roach88/evertag/internal/fulfillment"
	"github.com/roach88/evertag/internal/gateway"
)

const processingMessage = "your payment is being processed"

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func abortJSON(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}

func errorJSON(c *gin.Context, status int, err error) {
	c.JSON(status, errorResponse{Error: err.Error(), Code: string(domain.CodeOf(err))})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{Status: "ok"})
}

// handleWebhook is the signed gateway callback. 2xx tells the gateway to
// stop redelivering; 5xx asks it to try again later.
func (s *Server) handleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		abortJSON(c, http.StatusBadRequest, "unreadable body")
		return
	}
	if s.deps.Webhooks == nil {
		abortJSON(c, http.StatusServiceUnavailable, "webhooks are not configured")
		return
	}

	event, err := s.deps.Webhooks.VerifyEvent(payload, c.GetHeader(gateway.SignatureHeader))
	if err != nil {
		s.logger.Warn("rejected webhook", "error", err)
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if !event.Completes() {
		c.JSON(http.StatusOK, statusResponse{Status: "ignored"})
		return
	}

	details, err := event.Data.Object.PaymentDetails()
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	res, err := s.deps.Fulfiller.Fulfill(c.Request.Context(), fulfillment.Request{
		Reference: details.Reference,
		Verified:  &details,
		SessionID: details.CartSessionID,
		Source:    fulfillment.SourceWebhook,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "fulfilled", "order_id": res.Order.ID})
	case domain.IsPaymentNotConfirmed(err):
		c.JSON(http.StatusOK, statusResponse{Status: "pending"})
	case domain.IsInvalidArgument(err):
		errorJSON(c, http.StatusBadRequest, err)
	default:
		s.logger.Error("webhook fulfillment failed", "reference", details.Reference, "event_id", event.ID, "error", err)
		errorJSON(c, http.StatusInternalServerError, err)
	}
}

type confirmRequest struct {
	Reference string `json:"reference"`
	SessionID string `json:"session_id"`
}

// handleConfirm is polled by the success page. Concurrent polls for one
// reference share a single fulfillment call.
func (s *Server) handleConfirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortJSON(c, http.StatusBadRequest, "invalid request body")
		return
	}
	ref := strings.TrimSpace(req.Reference)
	if ref == "" {
		abortJSON(c, http.StatusBadRequest, "reference is required")
		return
	}

	v, err, _ := s.confirm.Do(ref, func() (any, error) {
		return s.deps.Fulfiller.Fulfill(c.Request.Context(), fulfillment.Request{
			Reference: ref,
			SessionID: req.SessionID,
			Source:    fulfillment.SourcePoll,
		})
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, v.(fulfillment.Result).Fulfillment)
	case domain.IsPaymentNotConfirmed(err):
		c.JSON(http.StatusAccepted, statusResponse{Status: "processing", Message: processingMessage})
	default:
		s.logger.Warn("confirmation poll failed", "reference", ref, "error", err)
		c.JSON(http.StatusServiceUnavailable, statusResponse{Status: "processing", Message: processingMessage})
	}
}

func (s *Server) handleRepair(c *gin.Context) {
	res, err := s.deps.Fulfiller.Repair(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case domain.IsNotFound(err):
		errorJSON(c, http.StatusNotFound, err)
	default:
		s.logger.Error("repair failed", "order_id", c.Param("id"), "error", err)
		errorJSON(c, http.StatusInternalServerError, err)
	}
}

type generateRequest struct {
	Prefix string `json:"prefix"`
	Count  int    `json:"count"`
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortJSON(c, http.StatusBadRequest, "invalid request body")
		return
	}

	batch, err := s.deps.Codes.Generate(c.Request.Context(), req.Prefix, req.Count)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, batch)
	case domain.IsInvalidArgument(err):
		errorJSON(c, http.StatusBadRequest, err)
	case domain.IsConflict(err):
		errorJSON(c, http.StatusConflict, err)
	default:
		s.logger.Error("code generation failed", "prefix", req.Prefix, "error", err)
		errorJSON(c, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleScan(c *gin.Context) {
	res, err := s.deps.Scanner.OnScan(c.Request.Context(), c.Param("code"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case domain.IsNotFound(err):
		errorJSON(c, http.StatusNotFound, err)
	case domain.IsInvalidArgument(err):
		errorJSON(c, http.StatusBadRequest, err)
	case errors.Is(err, context.DeadlineExceeded):
		errorJSON(c, http.StatusGatewayTimeout, err)
	default:
		s.logger.Error("scan failed", "code", c.Param("code"), "error", err)
		errorJSON(c, http.StatusInternalServerError, err)
	}
}
