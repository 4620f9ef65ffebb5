package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"finquest/internal/config"
	cronrunner "finquest/internal/cron"
	"finquest/internal/db"
	"finquest/internal/handler"
	"finquest/internal/logger"
	"finquest/internal/oracle"
	gormrepository "finquest/internal/repository/gorm"
	"finquest/internal/service"

	_ "finquest/docs"
)

func main() {
	cfgPath := os.Getenv("FQ_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("FQ_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	quoteHTTP := &http.Client{Timeout: cfg.Oracle.Timeout}
	priceOracle := oracle.NewStooqClient(quoteHTTP, cfg.Oracle.QuoteBaseURL)

	fxSvc := &service.FxService{Repo: store, Oracle: priceOracle, Logger: logger}
	pricingSvc := &service.PricingService{Repo: store, Oracle: priceOracle, Logger: logger}
	instrumentSvc := &service.InstrumentService{Repo: store, Oracle: priceOracle, Logger: logger}
	ledgerSvc := &service.LedgerService{
		Repo:        store,
		Instruments: instrumentSvc,
		Fx:          fxSvc,
		Logger:      logger,
	}
	valuationSvc := &service.ValuationService{
		Repo:    store,
		Pricing: pricingSvc,
		Fx:      fxSvc,
		Logger:  logger,
	}
	snapshotSvc := &service.SnapshotService{
		Repo:      store,
		Ledger:    ledgerSvc,
		Valuation: valuationSvc,
		Pricing:   pricingSvc,
		Fx:        fxSvc,
		Logger:    logger,
	}
	streamSvc := &service.PriceStreamService{Repo: store, Logger: logger}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	portfolioHandler := &handler.PortfolioHandler{
		Repo:      store,
		Ledger:    ledgerSvc,
		Valuation: valuationSvc,
		Snapshots: snapshotSvc,
		Logger:    logger,
	}
	portfolioHandler.Register(engine)
	snapshotHandler := &handler.SnapshotHandler{
		Repo:         store,
		Snapshots:    snapshotSvc,
		Logger:       logger,
		MaxRangeDays: cfg.Snapshot.MaxRangeDays,
	}
	snapshotHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add(cfg.Cron.EODSweep, func(ctx context.Context) {
			runEODSweep(ctx, store, snapshotSvc, logger)
		})
		if err != nil {
			logger.Warn("cron register eod sweep failed", zap.Error(err))
		}
		_, err = cronRunner.Add(cfg.Cron.PriceRefresh, func(ctx context.Context) {
			runPriceRefresh(ctx, store, pricingSvc, logger)
		})
		if err != nil {
			logger.Warn("cron register price refresh failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	if cfg.PriceStream.Enabled {
		go func() {
			err := streamSvc.Run(ctx, service.PriceStreamOptions{
				URL:             cfg.PriceStream.URL,
				RefreshInterval: cfg.PriceStream.RefreshInterval,
				MaxSymbols:      cfg.PriceStream.MaxSymbols,
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("price stream stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// runEODSweep snapshots every active portfolio at its end-of-day slot.
// Portfolios already snapshotted today no-op, so the hourly cadence just
// catches each owner's midnight as it passes.
func runEODSweep(ctx context.Context, store *gormrepository.Store, snapshots *service.SnapshotService, logger *zap.Logger) {
	portfolios, err := store.ListActivePortfolios(ctx)
	if err != nil {
		logger.Warn("eod sweep list portfolios failed", zap.Error(err))
		return
	}
	created := 0
	for _, portfolio := range portfolios {
		if _, err := snapshots.SnapshotNow(ctx, portfolio.UserID, nil); err != nil {
			logger.Warn("eod sweep snapshot failed",
				zap.String("portfolio", portfolio.ID.String()),
				zap.Error(err))
			continue
		}
		created++
	}
	if created > 0 {
		logger.Info("eod sweep ok", zap.Int("portfolios", created))
	}
}

func runPriceRefresh(ctx context.Context, store *gormrepository.Store, pricing *service.PricingService, logger *zap.Logger) {
	ids, err := store.ListHeldInstrumentIDs(ctx, nil)
	if err != nil {
		logger.Warn("price refresh list instruments failed", zap.Error(err))
		return
	}
	instruments, err := store.ListInstrumentsByIDs(ctx, ids)
	if err != nil {
		logger.Warn("price refresh load instruments failed", zap.Error(err))
		return
	}
	for _, inst := range instruments {
		if err := pricing.RefreshLatest(ctx, inst); err != nil {
			logger.Warn("price refresh failed",
				zap.String("symbol", inst.Symbol),
				zap.Error(err))
		}
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-User-ID")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
