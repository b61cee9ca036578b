// Package handler exposes the audit ledger's narrow inbound interface
// over HTTP: record a fact, verify the chain, read blocks and stats.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/auditmesh/auditmesh/internal/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LedgerHandler serves the audit ledger endpoints.
type LedgerHandler struct {
	ledger ledger.Ledger
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(l ledger.Ledger, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: l, logger: logger}
}

// Register mounts the routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/events", h.RecordEvent)
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/blocks/:idx", h.GetBlock)
	}
}

type recordRequest struct {
	ActorType  string          `json:"actor_type" binding:"required"`
	ActorID    *string         `json:"actor_id"`
	EntityType string          `json:"entity_type" binding:"required"`
	EntityID   string          `json:"entity_id" binding:"required"`
	Action     string          `json:"action" binding:"required"`
	Before     json.RawMessage `json:"before"`
	After      json.RawMessage `json:"after"`
	Meta       json.RawMessage `json:"meta"`
}

// RecordEvent handles POST /events — durably witnesses one business fact.
// Before/after/meta are opaque payloads and are not validated.
func (h *LedgerHandler) RecordEvent(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.ledger.Record(c.Request.Context(), ledger.RecordInput{
		ActorType:  req.ActorType,
		ActorID:    req.ActorID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Action:     req.Action,
		Before:     req.Before,
		After:      req.After,
		Meta:       req.Meta,
	})
	if err != nil {
		h.logger.Error("record event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record event"})
		return
	}

	c.JSON(http.StatusCreated, event)
}

// Overview handles GET /ledger — event/block counts and the chain tip.
func (h *LedgerHandler) Overview(c *gin.Context) {
	stats, err := h.ledger.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Verify handles GET /ledger/verify — replays the full chain and reports
// the first integrity violation, if any.
func (h *LedgerHandler) Verify(c *gin.Context) {
	report, err := h.ledger.Verify(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger verify", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify ledger"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetBlock handles GET /ledger/blocks/:idx — one block plus its leaves.
func (h *LedgerHandler) GetBlock(c *gin.Context) {
	ctx := c.Request.Context()

	idx, err := strconv.ParseInt(c.Param("idx"), 10, 64)
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}

	block, err := h.ledger.Block(ctx, idx)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
		return
	}

	members, err := h.ledger.Memberships(ctx, idx)
	if err != nil {
		h.logger.Error("block memberships", zap.Int64("idx", idx), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query memberships"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"block":       block,
		"memberships": members,
	})
}
