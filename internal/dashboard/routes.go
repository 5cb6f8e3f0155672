package dashboard

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/intellifactory/internal/logging"
	"github.com/zulandar/intellifactory/internal/orchestration"
)

const (
	defaultDecisionLimit = 20
	maxDecisionLimit     = 200
)

type handlers struct {
	store     Store
	runner    Runner
	hub       Subscriber
	heartbeat time.Duration
	log       logging.Logger
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/", handleIndex())

	api := router.Group("/api")
	api.GET("/machines", h.handleMachines)
	api.GET("/orders", h.handleOrders)
	api.GET("/energy", h.handleEnergy)
	api.GET("/decisions", h.handleDecisions)

	api.POST("/agents/run_all", h.handleRunAll)
	api.POST("/agents/:agent", h.handleRunAgent)

	api.GET("/events/stream", h.handleSSE)
}

func handleIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "IntelliFactory API is running"})
	}
}

func (h *handlers) handleMachines(c *gin.Context) {
	machines, err := h.store.Machines(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, machines)
}

func (h *handlers) handleOrders(c *gin.Context) {
	orders, err := h.store.Orders(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *handlers) handleEnergy(c *gin.Context) {
	prices, err := h.store.EnergyPrices(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, prices)
}

func (h *handlers) handleDecisions(c *gin.Context) {
	limit := defaultDecisionLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxDecisionLimit)
	}
	recs, err := h.store.RecentDecisions(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

// Agent runs continue if the client disconnects; the decision is still
// persisted and broadcast.
func (h *handlers) handleRunAgent(c *gin.Context) {
	res, err := h.runner.RunAgent(context.WithoutCancel(c.Request.Context()), c.Param("agent"))
	if errors.Is(err, orchestration.ErrUnknownAgent) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) handleRunAll(c *gin.Context) {
	res, err := h.runner.RunAll(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) fail(c *gin.Context, err error) {
	h.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
