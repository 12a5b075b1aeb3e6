package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/receipts_backend/config"
	"bitbucket.org/mmdatafocus/receipts_backend/gmailingest"
	"bitbucket.org/mmdatafocus/receipts_backend/models"
	"bitbucket.org/mmdatafocus/receipts_backend/models/reports"
	"bitbucket.org/mmdatafocus/receipts_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("RECEIPT_WORKER_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	// API endpoints (receipt ingestion)
	r.GET("/api/receipts/export", reports.ExportReceiptsExcel)
	r.POST("/api/receipts/:id/duplicate", markDuplicateHandler())
	r.DELETE("/api/receipts/:id/duplicate", unmarkDuplicateHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	parser, err := gmailingest.NewHTTPReceiptParser(logger)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "parser"}).Fatal(err)
	}

	receipts := models.NewReceiptStore(db, logger)
	jobs := models.NewJobStore(db, logger)
	source := gmailingest.NewGmailMessageSource(
		gmailingest.NewStaticTokenProvider(os.Getenv("GMAIL_ACCESS_TOKEN")),
		os.Getenv("RECEIPT_DOWNLOAD_DIR"),
		logger,
	)
	pipeline := &gmailingest.ReceiptPipeline{
		Receipts:     receipts,
		Jobs:         jobs,
		Integrations: models.NewIntegrationStore(db, logger),
		Source:       source,
		Parser:       parser,
		Duplicates: &gmailingest.DuplicateDetector{
			Receipts: receipts,
			Logger:   logger,
		},
		Categories: &gmailingest.CategorySuggester{
			Categories: models.NewCategoryStore(db, logger),
			History:    models.NewTransactionHistoryStore(db, logger),
			Logger:     logger,
		},
		Audit:  models.NewAuditSink(db, logger),
		Logger: logger,
	}

	processor := gmailingest.NewReceiptJobProcessor(jobs, pipeline, gmailingest.NewWorkerID(), logger)
	go processor.Run(sigCtx)

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func markDuplicateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		receiptId, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt id"})
			return
		}
		var body struct {
			OriginalId string `json:"original_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		originalId, err := uuid.Parse(body.OriginalId)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid original id"})
			return
		}

		receipt, err := models.MarkReceiptAsDuplicate(c.Request.Context(), receiptId, originalId)
		if err != nil {
			status := http.StatusBadRequest
			if err == utils.ErrorRecordNotFound {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, receipt)
	}
}

func unmarkDuplicateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		receiptId, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt id"})
			return
		}

		receipt, err := models.UnmarkReceiptDuplicate(c.Request.Context(), receiptId)
		if err != nil {
			status := http.StatusBadRequest
			if err == utils.ErrorRecordNotFound {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, receipt)
	}
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
