// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/payverify/internal/buildinfo"
	"github.com/traylinx/payverify/internal/hooks"
	"github.com/traylinx/payverify/internal/ledger"
	"github.com/traylinx/payverify/internal/logging"
)

// ErrInvalidInput is returned when the request body carries no string text.
var ErrInvalidInput = errors.New("invalid input: text must be a string")

// VerifyRequest is the body of POST /v1/verifications.
type VerifyRequest struct {
	// Text is a pointer so that "" is accepted while a missing field is not.
	Text *string `json:"text" binding:"required"`
}

// ApprovalResponse answers GET /v1/verifications/:id/approval.
type ApprovalResponse struct {
	VerificationID string `json:"verification_id"`
	Approved       bool   `json:"approved"`
}

// VerificationHandler serves the ledger over HTTP.
type VerificationHandler struct {
	ledger    *ledger.Ledger
	started   time.Time
	hookStats func() hooks.BusStats
}

// NewVerificationHandler creates a handler for l.
func NewVerificationHandler(l *ledger.Ledger) *VerificationHandler {
	return &VerificationHandler{ledger: l, started: time.Now()}
}

// Verify handles POST /v1/verifications.
func (h *VerificationHandler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidInput, err)
		h.entry(c).WithError(err).Debug("rejecting verification request")
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidInput.Error()})
		return
	}

	verdict, err := h.ledger.Verify(c.Request.Context(), *req.Text)
	if err != nil {
		h.entry(c).WithError(err).Warn("verification aborted")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "verification aborted"})
		return
	}
	c.JSON(http.StatusOK, verdict)
}

// Statistics handles GET /v1/verifications/statistics.
func (h *VerificationHandler) Statistics(c *gin.Context) {
	c.JSON(http.StatusOK, h.ledger.Statistics())
}

// Export handles GET /v1/verifications/export.
func (h *VerificationHandler) Export(c *gin.Context) {
	c.JSON(http.StatusOK, h.ledger.Export())
}

// Lookup handles GET /v1/verifications/:id and returns the recorded verdict.
func (h *VerificationHandler) Lookup(c *gin.Context) {
	verdict, ok := h.ledger.Lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "verification not found"})
		return
	}
	c.JSON(http.StatusOK, verdict)
}

// Approval handles GET /v1/verifications/:id/approval. Unknown ids are reported as not approved.
func (h *VerificationHandler) Approval(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, ApprovalResponse{
		VerificationID: id,
		Approved:       h.ledger.IsApproved(id),
	})
}

// Health handles GET /healthz.
func (h *VerificationHandler) Health(c *gin.Context) {
	body := gin.H{
		"status":        "ok",
		"version":       buildinfo.Version,
		"verifications": h.ledger.Len(),
		"uptime":        time.Since(h.started).Round(time.Second).String(),
	}
	if h.hookStats != nil {
		body["hooks"] = h.hookStats()
	}
	c.JSON(http.StatusOK, body)
}

func (h *VerificationHandler) entry(c *gin.Context) *log.Entry {
	return log.WithField(logging.RequestIDKey, c.GetString(logging.RequestIDKey))
}
