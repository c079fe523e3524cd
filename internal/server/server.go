package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jimmy443dd/S-675-Scrapper/internal/config"
	"github.com/jimmy443dd/S-675-Scrapper/internal/metrics"
	"github.com/jimmy443dd/S-675-Scrapper/internal/model"
	"github.com/jimmy443dd/S-675-Scrapper/internal/report"
	"github.com/jimmy443dd/S-675-Scrapper/internal/scanner"
	"github.com/jimmy443dd/S-675-Scrapper/internal/store"
)

//go:embed web/dashboard.html
var dashboard []byte

// ScanStarter is the part of the scan controller the HTTP layer needs.
type ScanStarter interface {
	StartScan(ctx context.Context, domain string) (string, error)
}

type Server struct {
	cfg        config.ServerConfig
	status     store.StatusReader
	scans      ScanStarter
	reportsDir string
	metrics    *metrics.Collector
	router     *gin.Engine
}

func New(cfg config.ServerConfig, status store.StatusReader, scans ScanStarter, reportsDir string, m *metrics.Collector) *Server {
	s := &Server{
		cfg:        cfg,
		status:     status,
		scans:      scans,
		reportsDir: reportsDir,
		metrics:    m,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.Default()
	r.Use(cors.New(corsConfig(s.cfg.CORSOrigins)))

	r.GET("/", dashboardHandler)
	r.POST("/scan", s.startHandler)
	r.GET("/status", s.statusHandler)
	r.GET("/download-report", s.downloadHandler)
	r.GET("/healthz", healthHandler)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	cfg.ExposeHeaders = []string{"Content-Disposition"}

	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down within the configured
// shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:           s.cfg.Addr(),
		Handler:        s.router,
		ReadTimeout:    s.cfg.ReadTimeout,
		WriteTimeout:   0,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on %s", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		log.Printf("[server] shutdown started")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		log.Printf("[server] shutdown complete")
		return nil
	}
}

func dashboardHandler(ctx *gin.Context) {
	ctx.Data(http.StatusOK, "text/html; charset=utf-8", dashboard)
}

func healthHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) startHandler(ctx *gin.Context) {
	var request model.ScanRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		log.Printf("[startHandler] invalid request: %v", err)
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Domain is required"})
		return
	}

	id, err := s.scans.StartScan(ctx.Request.Context(), request.Domain)
	switch {
	case errors.Is(err, scanner.ErrScanAlreadyRunning):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Scan already running"})
		return
	case errors.Is(err, scanner.ErrInvalidDomain):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Domain is required"})
		return
	case err != nil:
		log.Printf("[startHandler] StartScan error: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start scan"})
		return
	}

	log.Printf("[startHandler] scan started, id=%s domain=%s", id, request.Domain)
	ctx.JSON(http.StatusOK, model.ScanStartResponse{Message: "Scan started", ScanID: id})
}

func (s *Server) statusHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, s.status.Snapshot())
}

func (s *Server) downloadHandler(ctx *gin.Context) {
	artifact, err := report.ResolveLatest(s.reportsDir)
	if errors.Is(err, report.ErrNoReports) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "No reports found"})
		return
	}
	if err != nil {
		log.Printf("[downloadHandler] resolve latest report in %s: %v", s.reportsDir, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read reports"})
		return
	}

	log.Printf("[downloadHandler] serving %s (%d bytes)", artifact.Name, artifact.Size)
	ctx.FileAttachment(artifact.Path, artifact.Name)
}
