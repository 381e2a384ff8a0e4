package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Yendza/controller-backend/internal/core/domain"
	"github.com/Yendza/controller-backend/internal/core/service"
	"github.com/Yendza/controller-backend/internal/port"
)

const maxMovementPage = 1000

type HTTPHandler struct {
	coordinator *service.TransactionCoordinator
	ledger      *service.LedgerService
	checker     *service.ConsistencyChecker
	catalog     port.ProductCatalog
	log         *zap.Logger
}

func NewHTTPHandler(
	coordinator *service.TransactionCoordinator,
	ledger *service.LedgerService,
	checker *service.ConsistencyChecker,
	catalog port.ProductCatalog,
	log *zap.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		coordinator: coordinator,
		ledger:      ledger,
		checker:     checker,
		catalog:     catalog,
		log:         log.Named("http"),
	}
}

// NewRouter builds the gin engine with every route registered. gatherer may be nil.
func (h *HTTPHandler) NewRouter(gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.log), ErrorHandlingMiddleware())

	r.GET("/health", h.HealthCheck)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/v1")
	api.POST("/transactions", h.Submit)
	api.GET("/transactions/:id", h.GetTransaction)
	api.GET("/stock/:product", h.CurrentLevel)
	api.GET("/stock/:product/movements", h.Movements)
	api.GET("/stock/:product/history", h.History)
	api.POST("/stock/:product/reconcile", h.Reconcile)
	return r
}

func (h *HTTPHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}

	txn, err := h.coordinator.Submit(c.Request.Context(), req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTransactionResponse(txn))
}

func (h *HTTPHandler) GetTransaction(c *gin.Context) {
	txn, err := h.ledger.ReadTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTransactionResponse(txn))
}

func (h *HTTPHandler) CurrentLevel(c *gin.Context) {
	ctx := c.Request.Context()
	product, err := h.catalog.Product(ctx, c.Param("product"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	key := domain.StockKey{ProductID: product.ID, Location: c.Query("location")}
	levels, err := h.coordinator.CurrentLevels(ctx, key)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newLevelResponse(levels[0], product))
}

func (h *HTTPHandler) Movements(c *gin.Context) {
	after, err := queryInt(c, "after", 0)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if limit <= 0 || limit > maxMovementPage {
		limit = maxMovementPage
	}

	movements, err := h.ledger.ReadMovements(c.Request.Context(), c.Param("product"), after, int(limit))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]MovementResponse, len(movements))
	for i, m := range movements {
		out[i] = newMovementResponse(m)
	}
	c.JSON(http.StatusOK, gin.H{"movements": out})
}

func (h *HTTPHandler) History(c *gin.Context) {
	at := time.Now().UTC()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, fmt.Errorf("%w: at must be RFC3339", errInvalidRequest))
			return
		}
		at = parsed
	}

	key := domain.StockKey{ProductID: c.Param("product"), Location: c.Query("location")}
	quantity, err := h.ledger.LevelAt(c.Request.Context(), key, at)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{ProductID: key.ProductID, Location: key.Location, At: at, Quantity: quantity})
}

func (h *HTTPHandler) Reconcile(c *gin.Context) {
	ctx := c.Request.Context()
	product, err := h.catalog.Product(ctx, c.Param("product"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	results, err := h.checker.Reconcile(ctx, product.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ReconcileResponse{Results: newReconciliationResponses(results)})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func queryInt(c *gin.Context, name string, fallback int64) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errInvalidRequest, name)
	}
	return v, nil
}
