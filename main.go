package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "LIBCAT-backend/docs"
	"LIBCAT-backend/internal/catalog"
	"LIBCAT-backend/internal/disposals"
	"LIBCAT-backend/internal/lending"
	"LIBCAT-backend/internal/platform/db"
	"LIBCAT-backend/internal/platform/logger"
	"LIBCAT-backend/internal/platform/metrics"
	"LIBCAT-backend/internal/users"
)

// @title        LIBCAT API
// @version      1.0
// @description  図書の目録・貸出・予約待ち行列
// @BasePath     /api/v1

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "libcatd",
		Short:         "library catalog and lending server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", db.DefaultConfigPath, "config file")
	root.AddCommand(serveCmd(), migrateCmd(), seedCmd(), userCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app は各サブコマンドで共有する起動済みの依存
type app struct {
	cfg      *db.Config
	log      *zap.Logger
	conn     *sql.DB
	lend     *lending.Manager
	books    *catalog.Service
	users    *users.Service
	discards *disposals.Service
}

func bootstrap(ctx context.Context, migrate bool) (*app, error) {
	cfg, err := db.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Mode)
	if err != nil {
		return nil, err
	}
	logger.MakeInfo(log, "config loaded", zap.String("mode", cfg.Mode), zap.String("driver", string(cfg.DB.Driver)))

	conn, err := db.Connect(cfg.DB)
	if logger.CheckError(err, log, "connect db") {
		return nil, err
	}
	if migrate {
		if err := db.Migrate(ctx, conn, cfg.DB.Driver, log); logger.CheckError(err, log, "migrate") {
			conn.Close()
			return nil, err
		}
	}

	a := &app{cfg: cfg, log: log, conn: conn}
	a.discards = disposals.NewService(conn, log.Named("disposals"))
	a.lend = lending.NewManager(conn, cfg.DB.Driver,
		catalog.NewDirectory(conn, cfg.DB.Driver),
		users.NewDirectory(conn),
		a.discards,
		lending.WithLogger(log.Named("lending")),
		lending.WithLoanPeriod(time.Duration(cfg.Lending.LoanDays)*24*time.Hour),
		lending.WithReturnWear(cfg.Lending.ReturnWear),
	)
	a.books = catalog.NewService(conn, cfg.DB.Driver, a.lend, log.Named("catalog"))
	a.users = users.NewService(conn, a.lend, log.Named("users"))
	return a, nil
}

func (a *app) close() {
	_ = a.conn.Close()
	_ = a.log.Sync()
}

func serveCmd() *cobra.Command {
	var noMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), !noMigrate)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve()
		},
	}
	cmd.Flags().BoolVar(&noMigrate, "no-migrate", false, "skip applying migrations on start")
	return cmd
}

func (a *app) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), metrics.Middleware())
	_ = r.SetTrustedProxies(nil)

	if a.cfg.Mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     a.cfg.HTTP.CORSOrigins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Location"},
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) {
		if err := a.conn.PingContext(c.Request.Context()); err != nil {
			c.String(http.StatusServiceUnavailable, "db down")
			return
		}
		c.String(http.StatusOK, "ok")
	})
	r.GET("/metrics", metrics.Handler())

	// /api/v1
	api := r.Group("/api/v1")
	catalog.RegisterRoutes(api, a.books)
	lending.RegisterRoutes(api, a.lend)
	users.RegisterRoutes(api, a.users)
	disposals.RegisterRoutes(api, a.discards)
	return r
}

func (a *app) serve() error {
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if a.cfg.Certificate.Cert != "" {
			certFile := fmt.Sprintf("config/tls/%s/%s", a.cfg.Mode, a.cfg.Certificate.Cert)
			keyFile := fmt.Sprintf("config/tls/%s/%s", a.cfg.Mode, a.cfg.Certificate.Key)
			a.log.Info("listening (tls)", zap.String("addr", srv.Addr))
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			a.log.Info("listening", zap.String("addr", srv.Addr))
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-quit:
	}
	a.log.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), true)
			if err != nil {
				return err
			}
			a.close()
			return nil
		},
	}
}
