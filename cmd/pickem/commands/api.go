package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/pickem/backend/internal/api"
	"github.com/wonny/pickem/backend/internal/api/handlers"
	"github.com/wonny/pickem/backend/internal/metrics"
	"github.com/wonny/pickem/backend/internal/scheduler"
	"github.com/wonny/pickem/backend/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `정산 결과 조회와 수동 정산 API 서버를 시작합니다.

Endpoints:
  GET  /health                                   - Health check
  GET  /metrics                                  - Prometheus metrics
  GET  /ws?game=CODE                             - 정산 완료 이벤트 (WebSocket)
  GET  /api/games/{code}/leaderboard             - 리더보드
  GET  /api/games/{code}/players/{playerId}/result - 플레이어 결과
  GET  /api/users/{userId}/stats                 - 사용자 통계
  POST /api/games/{code}/settle                  - 수동 정산 (X-User-ID 필요)

Example:
  go run ./cmd/pickem api
  go run ./cmd/pickem api --port 8080 --with-scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort       string
	withScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본값: PORT)")
	apiCmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "정산 스케줄러를 같은 프로세스에서 실행")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	routes := api.Routes{
		Settlement: handlers.NewSettlementHandler(
			a.store,
			a.settler,
			redis.NewRateLimiter(a.redis, redisPrefix),
			redis.NewCache(a.redis, redisPrefix),
			a.log,
		),
		Health: handlers.NewHealthHandler(map[string]handlers.Pinger{
			"database": a.db,
			"redis":    a.redis,
		}),
	}
	if a.cfg.MetricsEnabled {
		routes.Metrics = metrics.Handler()
	}
	if a.hub != nil {
		go a.hub.Run(ctx)
		routes.WebSocket = a.hub.HandleWS
	}

	server := api.New(a.cfg, a.log, api.NewRouter(routes, a.log))

	var sched *scheduler.Scheduler
	if withScheduler {
		sched, err = newScheduler(a)
		if err != nil {
			return err
		}
		sched.Start()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	// 별도 메트릭 포트
	var metricsServer *http.Server
	if a.cfg.MetricsEnabled && a.cfg.MetricsPort != "" && a.cfg.MetricsPort != a.cfg.Port {
		metricsServer = &http.Server{Addr: ":" + a.cfg.MetricsPort, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	PrintSuccess(fmt.Sprintf("Server running on http://localhost:%s", a.cfg.Port))
	PrintInfo("Press Ctrl+C to stop")

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	a.log.Info("Shutting down server...")
	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
