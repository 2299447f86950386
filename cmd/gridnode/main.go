package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/jmerrifield20/gridledger/internal/announce"
	"github.com/jmerrifield20/gridledger/internal/archive"
	"github.com/jmerrifield20/gridledger/internal/identity"
	"github.com/jmerrifield20/gridledger/internal/node"
	"github.com/jmerrifield20/gridledger/internal/node/handler"
	"github.com/jmerrifield20/gridledger/internal/peersync"
)

// healthService is the gRPC health service name reported alongside "".
const healthService = "gridledger.Node"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Fatal("gridnode exited with error", zap.Error(err))
	}
}

// run serves the node until ctx is cancelled.
func run(ctx context.Context, logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("gridnode")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("gridnode")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("node.id", "")
	viper.SetDefault("node.port", 8000)
	viper.SetDefault("node.grpc_port", 9000)
	viper.SetDefault("node.difficulty", 2)
	viper.SetDefault("node.max_attempts", 0)
	viper.SetDefault("node.mining_timeout", "60s")
	viper.SetDefault("node.auto_mine_interval", "0s")
	viper.SetDefault("node.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("node.rate_limit_rps", 50)
	viper.SetDefault("node.mine_rate_per_minute", 12)
	viper.SetDefault("node.mine_burst", 2)
	viper.SetDefault("node.admin_secret", "")
	viper.SetDefault("node.token_ttl", "1h")
	viper.SetDefault("node.announce_blocks", true)
	viper.SetDefault("peers.bootstrap", []string{})
	viper.SetDefault("peers.sync_interval", "30s")
	viper.SetDefault("peers.probe_timeout", "10s")
	viper.SetDefault("peers.fail_threshold", 3)
	viper.SetDefault("archive.database_url", "")
	viper.SetDefault("archive.file", "")
	viper.SetDefault("archive.keep", 100)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	// ── Node ─────────────────────────────────────────────────────────────────
	n, err := node.New(node.Config{
		Difficulty:    viper.GetInt("node.difficulty"),
		MaxAttempts:   viper.GetUint64("node.max_attempts"),
		MiningTimeout: viper.GetDuration("node.mining_timeout"),
	}, logger)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	defer n.Close()
	n.SetMetrics(handler.NodeMetrics())

	// ── Archive ──────────────────────────────────────────────────────────────
	var pgStore *archive.PostgresStore
	switch {
	case viper.GetString("archive.database_url") != "":
		db, err := pgxpool.New(ctx, viper.GetString("archive.database_url"))
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		pgStore = archive.NewPostgresStore(db, logger)
		n.SetArchive(pgStore)

	case viper.GetString("archive.file") != "":
		path := viper.GetString("archive.file")
		n.SetArchive(archive.NewFileStore(path))
		logger.Info("file archive configured", zap.String("path", path))

	default:
		logger.Info("archive: none (set archive.database_url or archive.file to persist the chain)")
	}

	if err := n.Restore(ctx); err != nil {
		logger.Warn("chain restore failed; starting from genesis", zap.Error(err))
	}

	// ── Operator tokens ──────────────────────────────────────────────────────
	nodeID := viper.GetString("node.id")
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	var tokens *identity.OperatorTokens
	if secret := viper.GetString("node.admin_secret"); secret != "" {
		tokens, err = identity.NewOperatorTokens(secret, nodeID, viper.GetDuration("node.token_ttl"))
		if err != nil {
			return fmt.Errorf("operator tokens: %w", err)
		}
		logger.Info("operator authentication enabled", zap.String("node_id", nodeID))
	} else {
		logger.Warn("operator authentication disabled; set node.admin_secret to protect mine/peer/consensus routes")
	}

	// ── Peers ────────────────────────────────────────────────────────────────
	probeTimeout := viper.GetDuration("peers.probe_timeout")

	if viper.GetBool("node.announce_blocks") {
		ann := announce.New(probeTimeout, logger)
		ann.SetMetricsRecord(handler.RecordBlockAnnouncement)
		n.SetAnnouncer(ann)
	}

	for _, addr := range viper.GetStringSlice("peers.bootstrap") {
		if _, err := n.RegisterPeer(addr); err != nil {
			logger.Warn("bootstrap peer rejected", zap.String("address", addr), zap.Error(err))
		}
	}

	syncer := peersync.New(n.Registry(), n, peersync.Config{
		SyncInterval:  viper.GetDuration("peers.sync_interval"),
		ProbeTimeout:  probeTimeout,
		FailThreshold: viper.GetInt("peers.fail_threshold"),
	}, logger)
	syncer.SetMetricsRecord(handler.RecordPeerSync)
	go syncer.Start(ctx)

	if interval := viper.GetDuration("node.auto_mine_interval"); interval > 0 {
		n.StartAutoMine(ctx, interval)
		logger.Info("auto-mine enabled", zap.Duration("interval", interval))
	}

	if pgStore != nil {
		go pruneArchive(ctx, pgStore, viper.GetInt("archive.keep"), logger)
	}

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("node.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", handler.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", handler.RequestIDHeader},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Chains travel in request bodies on /peers/snapshot, so the limit is
	// generous compared with a typical API.
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 32<<20)
		c.Next()
	})

	router.Use(handler.RequestID())

	if rps := viper.GetInt("node.rate_limit_rps"); rps > 0 {
		router.Use(handler.RateLimiter(ctx, rps, rps*2))
	}

	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "node_id": nodeID, "length": n.Ledger().Len()})
	})
	router.GET("/metrics", handler.MetricsHandler())

	nodeHandler := handler.NewNodeHandler(n, tokens, logger)
	if perMin := viper.GetFloat64("node.mine_rate_per_minute"); perMin > 0 {
		mineLimit := handler.NewRateLimit("mine", perMin/60, viper.GetInt("node.mine_burst"))
		go mineLimit.Run(ctx)
		nodeHandler.SetMineLimit(mineLimit)
	}
	nodeHandler.Register(router.Group(""))

	// ── gRPC health ──────────────────────────────────────────────────────────
	grpcPort := viper.GetInt("node.grpc_port")
	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
	if err != nil {
		return fmt.Errorf("gRPC listen on :%d: %w", grpcPort, err)
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(loggingInterceptor(logger)),
	)
	healthSvc := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthSvc)
	reflection.Register(grpcServer)
	go watchChainHealth(ctx, n, healthSvc, logger)

	go func() {
		logger.Info("gridnode gRPC health listening", zap.Int("port", grpcPort))
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("gRPC serve error", zap.Error(err))
		}
	}()

	// ── HTTP server ──────────────────────────────────────────────────────────
	httpPort := viper.GetInt("node.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	httpLis, err := net.Listen("tcp", httpSrv.Addr)
	if err != nil {
		grpcServer.Stop()
		return fmt.Errorf("HTTP listen on :%d: %w", httpPort, err)
	}

	go func() {
		logger.Info("gridnode HTTP listening",
			zap.Int("port", httpPort),
			zap.Int("difficulty", n.Ledger().Difficulty()),
			zap.String("node_id", nodeID),
		)
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP serve error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutting down gridnode...")
	healthSvc.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("gridnode stopped")
	return nil
}

// watchChainHealth reports SERVING while the local chain verifies and
// NOT_SERVING once it does not.
func watchChainHealth(ctx context.Context, n *node.Node, healthSvc *health.Server, logger *zap.Logger) {
	check := func() {
		status := grpc_health_v1.HealthCheckResponse_SERVING
		if err := n.Ledger().Verify(ctx); err != nil {
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			logger.Error("local chain failed verification", zap.Error(err))
		}
		healthSvc.SetServingStatus("", status)
		healthSvc.SetServingStatus(healthService, status)
	}

	check()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			check()
		case <-ctx.Done():
			return
		}
	}
}

// pruneArchive trims the postgres archive to the newest keep dumps every hour.
func pruneArchive(ctx context.Context, store *archive.PostgresStore, keep int, logger *zap.Logger) {
	if keep <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			removed, err := store.Prune(pctx, keep)
			cancel()
			if err != nil {
				logger.Warn("archive prune error", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("archive pruned", zap.Int64("removed", removed), zap.Int("keep", keep))
			}
		case <-ctx.Done():
			return
		}
	}
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", handler.RequestIDFromCtx(c)),
		)
	}
}

// loggingInterceptor returns a gRPC unary server interceptor that logs each call.
func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := "OK"
		if err != nil {
			code = grpc.Code(err).String() //nolint:staticcheck
		}
		logger.Debug("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", code),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
