// Package dashboard serves the factory HTTP API and the live event stream.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/intellifactory/internal/events"
	"github.com/zulandar/intellifactory/internal/factory"
	"github.com/zulandar/intellifactory/internal/logging"
	"github.com/zulandar/intellifactory/internal/orchestration"
)

// DefaultHeartbeat is the interval between heartbeat frames on idle streams.
const DefaultHeartbeat = 15 * time.Second

// Store is the read surface the API serves from.
type Store interface {
	Machines(ctx context.Context) ([]factory.MachineState, error)
	Orders(ctx context.Context) ([]factory.OrderState, error)
	EnergyPrices(ctx context.Context) ([]factory.PricePoint, error)
	RecentDecisions(ctx context.Context, limit int) ([]factory.DecisionRecord, error)
}

// Runner triggers agent invocations.
type Runner interface {
	RunAgent(ctx context.Context, name string) (*orchestration.AgentResult, error)
	RunAll(ctx context.Context) (*orchestration.RunAllResult, error)
}

// Subscriber is the subscribe side of the event hub.
type Subscriber interface {
	Subscribe() *events.Subscription
	Unsubscribe(*events.Subscription)
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Store     Store
	Runner    Runner
	Hub       Subscriber
	Port      int
	Heartbeat time.Duration
	Out       io.Writer
	Logger    logging.Logger
}

// NewRouter validates opts and builds the Gin router with every route
// registered.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("dashboard: store is required")
	}
	if opts.Runner == nil {
		return nil, fmt.Errorf("dashboard: runner is required")
	}
	if opts.Hub == nil {
		return nil, fmt.Errorf("dashboard: hub is required")
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), allowCORS())

	registerRoutes(router, &handlers{
		store:     opts.Store,
		runner:    opts.Runner,
		hub:       opts.Hub,
		heartbeat: opts.Heartbeat,
		log:       opts.Logger.With("component", "dashboard"),
	})
	return router, nil
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
		// Streams are long-lived; only bound the header read.
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown on context cancellation. Open event streams see
	// their request contexts cancelled and unsubscribe.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// allowCORS lets browser dashboards on other origins read the API.
func allowCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
