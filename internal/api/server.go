// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the verification ledger over HTTP.
package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/traylinx/payverify/internal/hooks"
	"github.com/traylinx/payverify/internal/ledger"
	"github.com/traylinx/payverify/internal/logging"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

// RouterOption configures NewRouter.
type RouterOption func(*VerificationHandler)

// WithHookStats adds the hook event bus counters to /healthz.
func WithHookStats(stats func() hooks.BusStats) RouterOption {
	return func(h *VerificationHandler) {
		h.hookStats = stats
	}
}

// NewRouter builds the gin engine serving the verification endpoints.
func NewRouter(l *ledger.Ledger, opts ...RouterOption) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), logging.GinLogrusLogger(), logging.GinLogrusRecovery())

	h := NewVerificationHandler(l)
	for _, opt := range opts {
		opt(h)
	}
	r.GET("/healthz", h.Health)

	v1 := r.Group("/v1/verifications")
	{
		v1.POST("", h.Verify)
		v1.GET("/statistics", h.Statistics)
		v1.GET("/export", h.Export)
		v1.GET("/:id", h.Lookup)
		v1.GET("/:id/approval", h.Approval)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

// RequestID reuses the caller's X-Request-ID or issues a new one,
// stores it in the gin context and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Set(logging.RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
