// =============================================================================
// ファイル: main.go（メインエントリーポイント）
// 概要: ロボット制御コアサーバーの起動・停止を管理するメインファイル
//
// このゲートウェイは以下の役割を担います：
//   - Webクライアント（操作者・管理者）とロボットの仲介
//   - 単一ロボットの状態（テレメトリ、ロック、キュー）を一元管理
//   - ロボットへのコマンド配送とキュー最適化
//   - UDP/HTTPによるロボットの自動ディスカバリー
//
// 【設計パターン: グレースフルシャットダウン（Graceful Shutdown）】
//
//	サーバーを停止する際に、処理中のリクエストを適切に完了してから終了する仕組み。
//	Ctrl+Cやkillコマンドで送られるシグナルをキャッチして、安全に停止します。
//
// =============================================================================
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tabledelivery/control-core/internal/auth"
	"github.com/tabledelivery/control-core/internal/bus"
	"github.com/tabledelivery/control-core/internal/cache"
	"github.com/tabledelivery/control-core/internal/config"
	"github.com/tabledelivery/control-core/internal/discovery"
	"github.com/tabledelivery/control-core/internal/dispatch"
	"github.com/tabledelivery/control-core/internal/lock"
	mw "github.com/tabledelivery/control-core/internal/middleware"
	"github.com/tabledelivery/control-core/internal/nodecache"
	"github.com/tabledelivery/control-core/internal/safety"
	"github.com/tabledelivery/control-core/internal/server"
	"github.com/tabledelivery/control-core/internal/store"
	"github.com/tabledelivery/control-core/internal/sweeper"
	"github.com/tabledelivery/control-core/internal/telemetry"
)

// Fixed velocity limits applied to manual-drive commands. These are safety
// constants, not per-deployment configuration, matching the reference
// gateway's treatment of its own safety thresholds.
const (
	maxLinearVelocity  = 1.0
	maxAngularVelocity = 2.0
)

// udpDiscoveryAddr is the well-known port the robot announces itself on.
const udpDiscoveryAddr = "0.0.0.0:3001"

func main() {
	// -------------------------------------------------------------------------
	// ステップ1: 設定を読み込む
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// -------------------------------------------------------------------------
	// ステップ2: ロガーを初期化する
	// -------------------------------------------------------------------------
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting Robot Control Core", zap.String("addr", cfg.ServerAddress))

	// -------------------------------------------------------------------------
	// ステップ3: KVクライアント（Redis）に接続する
	// -------------------------------------------------------------------------
	// 接続に失敗しても degraded mode で動作を継続する。
	kv := cache.New(cfg.RedisURL, logger)

	// -------------------------------------------------------------------------
	// ステップ4: 認証発行者、状態ストア、コマンドバスを構築する
	// -------------------------------------------------------------------------
	issuer := auth.NewIssuer(cfg.JWTSecret, time.Duration(cfg.JWTExpiryHours)*time.Hour)
	st := store.New()
	b := bus.New(logger)

	// -------------------------------------------------------------------------
	// ステップ5: ディスパッチャ、ロックマネージャ、掃除役を構築する
	// -------------------------------------------------------------------------
	dispatcher := dispatch.New(st, b, kv, logger)
	lockMgr := lock.New(st, dispatcher, kv, logger)
	sweep := sweeper.New(lockMgr, logger)

	nodes := nodecache.New(st, kv, logger)
	discover := discovery.New(st, cfg.RobotAPIKey, logger)
	intake := telemetry.New(st, dispatcher, cfg.RobotAPIKey, logger)
	velLimiter := safety.NewVelocityLimiter(maxLinearVelocity, maxAngularVelocity, logger)

	srv := server.New(st, b, dispatcher, lockMgr, nodes, issuer, velLimiter, logger)

	// -------------------------------------------------------------------------
	// ステップ6: バックグラウンドタスクを開始する
	// -------------------------------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweep.Start(ctx)

	go func() {
		if err := discover.ListenUDP(ctx, udpDiscoveryAddr); err != nil {
			logger.Warn("discovery: udp listener stopped", zap.Error(err))
		}
	}()

	// -------------------------------------------------------------------------
	// ステップ7: HTTPサーバーを設定・起動する
	// -------------------------------------------------------------------------
	mux := srv.Routes()
	mux.HandleFunc("POST /table/state", intake.HandleState)
	mux.HandleFunc("POST /table/event", intake.HandleEvent)
	mux.HandleFunc("POST /table/register", discover.HandleRegister)

	rateLimiter := mw.NewRateLimiter(120, logger)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      rateLimiter.Middleware(mw.LoggingMiddleware(logger)(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server starting", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// -------------------------------------------------------------------------
	// ステップ8: グレースフルシャットダウン
	// -------------------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	var shutdownErr error
	shutdownErr = multierr.Append(shutdownErr, httpServer.Shutdown(shutdownCtx))
	shutdownErr = multierr.Append(shutdownErr, kv.Close())

	if shutdownErr != nil {
		logger.Error("shutdown completed with errors", zap.Error(shutdownErr))
	}

	logger.Info("control core stopped")
}

// initLogger builds a zap logger configured from the given level string,
// defaulting to info for anything unrecognized.
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      zapLevel == zapcore.DebugLevel,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
