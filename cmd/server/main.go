// Package main serves backtest runs over a REST API: submit a run, poll its
// status, download results.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"meanrev-backtest/services/arrowexport"
	ch "meanrev-backtest/services/clickhouse"
	"meanrev-backtest/services/config"
	"meanrev-backtest/services/engine"
	"meanrev-backtest/services/marketdata"
	"meanrev-backtest/services/report"
)

type jobStatus string

const (
	statusQueued  jobStatus = "queued"
	statusRunning jobStatus = "running"
	statusDone    jobStatus = "done"
	statusFailed  jobStatus = "failed"
)

type job struct {
	ID          string          `json:"id"`
	Status      jobStatus       `json:"status"`
	SubmittedAt time.Time       `json:"submitted_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	Summary     *report.Summary `json:"summary,omitempty"`

	result *engine.Result
}

type jobStore struct {
	mu   sync.RWMutex
	jobs map[string]*job
}

func newJobStore() *jobStore {
	return &jobStore{jobs: make(map[string]*job)}
}

func (s *jobStore) put(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
}

// view returns a copy safe to marshal while the worker goroutine mutates the
// original under the store lock.
func (s *jobStore) view(id string) (job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return job{}, false
	}
	return *j, true
}

func (s *jobStore) update(id string, fn func(*job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		fn(j)
	}
}

// runRequest is the submit payload; zero fields fall back to the server's
// configured defaults.
type runRequest struct {
	Method         string   `json:"method"`
	InitialRegime  string   `json:"initial_regime"`
	InitialCapital float64  `json:"initial_capital"`
	LeverageFactor float64  `json:"leverage_factor"`
	MaxPositions   int      `json:"max_positions"`
	TimeStopDays   *int     `json:"time_stop_days"`
	VolCeiling     *float64 `json:"vol_ceiling"`
	EntryThreshold float64  `json:"entry_threshold"`
	PanicOnShutoff *bool    `json:"panic_on_shutoff"`
	AllowShorts    *bool    `json:"allow_shorts"`
	Start          string   `json:"start"`
	End            string   `json:"end"`
}

type server struct {
	cfg      config.Config
	data     *engine.Dataset
	feed     *engine.RegimeFeed
	store    *jobStore
	exporter *arrowexport.Exporter
	persist  *ch.Store // nil when persistence is disabled
	logger   *zap.Logger
	sem      chan struct{}
}

func (s *server) routes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/backtests", s.handleSubmit)
		api.GET("/backtests/:id", s.handleStatus)
		api.GET("/backtests/:id/snapshots.arrow", s.handleSnapshotsArrow)
		api.GET("/backtests/:id/trades.arrow", s.handleTradesArrow)
	}
	r.GET("/health", s.handleHealth)
}

func (s *server) handleSubmit(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ec, err := s.engineConfig(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	j := &job{
		ID:          uuid.New().String(),
		Status:      statusQueued,
		SubmittedAt: time.Now().UTC(),
	}
	s.store.put(j)
	accepted := *j
	go s.execute(j.ID, ec)

	c.JSON(http.StatusAccepted, accepted)
}

func (s *server) handleStatus(c *gin.Context) {
	j, ok := s.store.view(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	c.JSON(http.StatusOK, j)
}

func (s *server) handleSnapshotsArrow(c *gin.Context) {
	s.serveArrow(c, func(j job) ([]byte, error) {
		return s.exporter.SnapshotsIPC(j.ID, j.result.Snapshots)
	})
}

func (s *server) handleTradesArrow(c *gin.Context) {
	s.serveArrow(c, func(j job) ([]byte, error) {
		return s.exporter.TradesIPC(j.ID, j.result.Trades)
	})
}

func (s *server) serveArrow(c *gin.Context, build func(job) ([]byte, error)) {
	j, ok := s.store.view(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	if j.Status != statusDone || j.result == nil {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("job is %s", j.Status)})
		return
	}
	raw, err := build(j)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", raw)
}

func (s *server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"tickers":   len(s.data.Tickers()),
		"sessions":  len(s.data.Calendar()),
	})
}

func (s *server) execute(id string, ec engine.Config) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	s.store.update(id, func(j *job) { j.Status = statusRunning })
	started := time.Now()
	res, err := engine.New(ec, s.data, s.feed, s.logger.Named("sim")).Run()
	finished := time.Now().UTC()

	if err != nil {
		s.store.update(id, func(j *job) {
			j.Status = statusFailed
			j.Error = err.Error()
			j.FinishedAt = &finished
		})
		s.logger.Error("run failed", zap.String("job_id", id), zap.Error(err))
		return
	}
	s.store.update(id, func(j *job) {
		j.result = res
		if summary, err := report.BuildSummary(res.Snapshots, res.Trades); err == nil {
			j.Summary = &summary
		}
		j.Status = statusDone
		j.FinishedAt = &finished
	})
	s.logger.Info("run finished",
		zap.String("job_id", id),
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("trades", len(res.Trades)),
		zap.Bool("insolvent", res.Insolvent),
	)

	if s.persist != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.persist.SaveRun(ctx, id, ec, res); err != nil {
			s.logger.Error("persist failed", zap.String("job_id", id), zap.Error(err))
		}
	}
}

// engineConfig merges the request over the configured defaults.
func (s *server) engineConfig(req runRequest) (engine.Config, error) {
	base := s.cfg
	sim := &base.Simulation
	if req.Method != "" {
		sim.Method = req.Method
	}
	if req.InitialRegime != "" {
		sim.InitialRegime = req.InitialRegime
	}
	if req.InitialCapital > 0 {
		sim.InitialCapital = req.InitialCapital
	}
	if req.LeverageFactor > 0 {
		sim.LeverageFactor = req.LeverageFactor
	}
	if req.MaxPositions > 0 {
		sim.MaxPositions = req.MaxPositions
	}
	if req.TimeStopDays != nil {
		sim.TimeStopDays = *req.TimeStopDays
	}
	if req.VolCeiling != nil {
		sim.VolCeiling = *req.VolCeiling
	}
	if req.EntryThreshold > 0 {
		sim.EntryThreshold = req.EntryThreshold
	}
	if req.PanicOnShutoff != nil {
		sim.PanicOnShutoff = *req.PanicOnShutoff
	}
	if req.AllowShorts != nil {
		sim.AllowShorts = *req.AllowShorts
	}
	if req.Start != "" {
		sim.Start = req.Start
	}
	if req.End != "" {
		sim.End = req.End
	}
	return base.Engine()
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc.Level = level
	return zc.Build()
}

func loadMarketData(cfg config.Config) (*engine.Dataset, *engine.RegimeFeed, error) {
	bars, err := marketdata.LoadBarDir(cfg.Data.BarsDir)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Data.TickersFile != "" {
		universe, err := marketdata.LoadTickerList(cfg.Data.TickersFile)
		if err != nil {
			return nil, nil, err
		}
		allowed := make(map[string]bool, len(universe))
		for _, t := range universe {
			allowed[t] = true
		}
		for t := range bars {
			if !allowed[t] {
				delete(bars, t)
			}
		}
	}
	ds, err := marketdata.BuildDataset(bars)
	if err != nil {
		return nil, nil, err
	}

	var src marketdata.FeedSources
	for _, f := range []struct {
		path string
		dst  *[]marketdata.Bar
	}{
		{cfg.Data.BenchmarkFile, &src.Benchmark},
		{cfg.Data.VolIndexFile, &src.VolIndex},
		{cfg.Data.BaseRateFile, &src.BaseRate},
	} {
		if f.path == "" {
			continue
		}
		series, err := marketdata.LoadBars(f.path)
		if err != nil {
			return nil, nil, err
		}
		*f.dst = series
	}
	return ds, marketdata.BuildRegimeFeed(ds.Calendar(), src), nil
}

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	data, feed, err := loadMarketData(cfg)
	if err != nil {
		logger.Fatal("market data", zap.Error(err))
	}
	logger.Info("market data loaded",
		zap.Int("tickers", len(data.Tickers())),
		zap.Int("sessions", len(data.Calendar())),
	)

	srv := &server{
		cfg:      cfg,
		data:     data,
		feed:     feed,
		store:    newJobStore(),
		exporter: arrowexport.NewExporter(),
		logger:   logger,
		sem:      make(chan struct{}, cfg.Server.Workers),
	}
	if cfg.ClickHouse.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err := ch.NewStore(ctx, cfg.ClickHouse, logger.Named("clickhouse"))
		cancel()
		if err != nil {
			logger.Fatal("clickhouse", zap.Error(err))
		}
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		err = store.EnsureSchema(ctx)
		cancel()
		if err != nil {
			logger.Fatal("clickhouse schema", zap.Error(err))
		}
		defer store.Close()
		srv.persist = store
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	srv.routes(router)

	httpServer := &http.Server{Addr: cfg.Server.ListenAddr, Handler: router}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}
