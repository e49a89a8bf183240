// Package reporting is the remote reporting API that receives the local
// POS data pushed by the sync pipeline.
package reporting

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"mystore/backend/internal/config"
	"mystore/backend/internal/syncwire"
)

type Options struct {
	AllowedOrigin string
	Logger        *logrus.Entry
	Now           func() time.Time
}

type Server struct {
	store         Store
	tokens        *TokenIssuer
	allowedOrigin string
	logger        *logrus.Entry
	now           func() time.Time
}

func NewServer(store Store, tokens *TokenIssuer, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Server{
		store:         store,
		tokens:        tokens,
		allowedOrigin: opts.AllowedOrigin,
		logger:        opts.Logger.WithField("module", "reporting"),
		now:           opts.Now,
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	corsConfig := cors.DefaultConfig()
	if s.allowedOrigin != "" {
		corsConfig.AllowOrigins = strings.Split(s.allowedOrigin, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.POST(syncwire.TokenPath, s.handleToken)

	group := router.Group("/sync")
	group.Use(s.requireToken())
	{
		group.POST("/products/", s.handleProducts)
		group.POST("/receipts/", s.handleReceipts)
		group.POST("/inventory/", handleAggregate[syncwire.InventoryRequest](s))
		group.POST("/sales-daily/", handleAggregate[syncwire.SalesDailyRequest](s))
		group.POST("/top-products/", handleAggregate[syncwire.TopProductsRequest](s))
		group.POST("/stock-alerts/", handleAggregate[syncwire.StockAlertsRequest](s))
		group.POST("/category-performance/", handleAggregate[syncwire.CategoryPerformanceRequest](s))
		group.POST("/shop-performance/", handleAggregate[syncwire.ShopPerformanceRequest](s))
		group.GET("/status/", s.handleStatus)
		group.GET("/counts/", s.handleCounts)
		group.GET("/aggregate-counts/", s.handleAggregateCounts)
	}
	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("request")
	}
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		subject, err := s.tokens.Verify(strings.TrimSpace(raw))
		if err != nil {
			abort(c, http.StatusUnauthorized, "token is invalid or expired")
			return
		}
		c.Set("subject", subject)
		c.Next()
	}
}

func (s *Server) handleToken(c *gin.Context) {
	var req syncwire.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	token, err := s.tokens.Issue(req.Username, req.Password)
	if err != nil {
		abort(c, http.StatusUnauthorized, err.Error())
		return
	}
	c.JSON(http.StatusOK, syncwire.TokenResponse{Access: token})
}

func (s *Server) handleProducts(c *gin.Context) {
	var req syncwire.ProductsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Products) == 0 {
		abort(c, http.StatusBadRequest, "No products provided")
		return
	}

	created, updated, err := s.store.UpsertProducts(c.Request.Context(), req.Products)
	if err != nil {
		s.recordSync(c, SyncTypeProducts, 0, err)
		config.LogError(s.logger, "reporting", "handleProducts", "upsert products", len(req.Products), err)
		abort(c, http.StatusInternalServerError, "products sync failed")
		return
	}
	s.recordSync(c, SyncTypeProducts, created+updated, nil)
	c.JSON(http.StatusOK, syncwire.ProductsResponse{
		Status:  SyncSuccess,
		Message: "Products synced",
		Created: created,
		Updated: updated,
		Total:   len(req.Products),
	})
}

func (s *Server) handleReceipts(c *gin.Context) {
	var req syncwire.ReceiptsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Receipts) == 0 {
		c.JSON(http.StatusOK, syncwire.ReceiptsResponse{Status: SyncSuccess, Message: "No receipts to sync"})
		return
	}

	resp := syncwire.ReceiptsResponse{Status: SyncSuccess, Message: "Receipts synced"}
	for _, receipt := range req.Receipts {
		result, err := s.store.MergeReceipt(c.Request.Context(), receipt)
		if err != nil {
			s.recordSync(c, SyncTypeReceipts, resp.Synced, err)
			if errors.Is(err, ErrUnresolvedProduct) || errors.Is(err, ErrInvalidPayload) {
				abort(c, http.StatusUnprocessableEntity, err.Error())
				return
			}
			config.LogError(s.logger, "reporting", "handleReceipts", "merge receipt", receipt.LocalReceiptID, err)
			abort(c, http.StatusInternalServerError, "receipt sync failed")
			return
		}
		resp.Synced++
		resp.NewSales += result.NewSales
		resp.NewPayments += result.NewPayments
	}
	s.recordSync(c, SyncTypeReceipts, resp.Synced, nil)
	c.JSON(http.StatusOK, resp)
}

// handleAggregate accepts one rollup push. Empty pushes are valid: an empty
// stock alert list resolves every open alert.
func handleAggregate[T syncwire.AggregateRequest](s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req T
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, err.Error())
			return
		}
		kind := req.Kind()
		result, err := s.store.ApplyAggregate(c.Request.Context(), req)
		if err != nil {
			s.recordSync(c, kind, 0, err)
			if errors.Is(err, ErrInvalidPayload) {
				abort(c, http.StatusUnprocessableEntity, err.Error())
				return
			}
			config.LogError(s.logger, "reporting", "handleAggregate", "apply "+kind, req.Len(), err)
			abort(c, http.StatusInternalServerError, kind+" sync failed")
			return
		}
		s.recordSync(c, kind, req.Len(), nil)
		c.JSON(http.StatusOK, syncwire.AggregateResponse{
			Status:   SyncSuccess,
			Message:  kind + " synced",
			SyncType: kind,
			Created:  result.Created,
			Updated:  result.Updated,
			Resolved: result.Resolved,
			Total:    req.Len(),
		})
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	rows, err := s.store.ListSyncMetadata(c.Request.Context())
	if err != nil {
		config.LogError(s.logger, "reporting", "handleStatus", "list sync metadata", nil, err)
		abort(c, http.StatusInternalServerError, "could not read sync status")
		return
	}
	if len(rows) == 0 {
		abort(c, http.StatusNotFound, "No sync has been performed yet")
		return
	}
	out := make([]syncwire.SyncStatus, 0, len(rows))
	for _, row := range rows {
		out = append(out, syncwire.SyncStatus{
			SyncType:      row.SyncType,
			LastSyncTime:  row.LastSyncTime,
			SyncStatus:    row.SyncStatus,
			RecordsSynced: row.RecordsSynced,
			ErrorMessage:  row.ErrorMessage,
			Healthy:       row.SyncStatus == SyncSuccess,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sync_status": out})
}

func (s *Server) handleCounts(c *gin.Context) {
	counts, err := s.store.Counts(c.Request.Context())
	if err != nil {
		config.LogError(s.logger, "reporting", "handleCounts", "count rows", nil, err)
		abort(c, http.StatusInternalServerError, "could not count records")
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (s *Server) handleAggregateCounts(c *gin.Context) {
	counts, err := s.store.AggregateCounts(c.Request.Context())
	if err != nil {
		config.LogError(s.logger, "reporting", "handleAggregateCounts", "count rows", nil, err)
		abort(c, http.StatusInternalServerError, "could not count records")
		return
	}
	c.JSON(http.StatusOK, counts)
}

// recordSync upserts the SyncMetadata row of one sync type. A failure to
// record is logged and never fails the request itself.
func (s *Server) recordSync(c *gin.Context, syncType string, records int, syncErr error) {
	meta := SyncMetadata{
		SyncType:      syncType,
		LastSyncTime:  s.now(),
		SyncStatus:    SyncSuccess,
		RecordsSynced: records,
	}
	if syncErr != nil {
		meta.SyncStatus = SyncFailed
		meta.ErrorMessage = syncErr.Error()
	}
	if err := s.store.RecordSync(c.Request.Context(), meta); err != nil {
		config.LogError(s.logger, "reporting", "recordSync", "upsert sync metadata", syncType, err)
	}
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, syncwire.ErrorResponse{Status: "error", Message: message})
}
