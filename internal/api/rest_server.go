package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/mmo-multipart/internal/cache"
	"github.com/annel0/mmo-multipart/internal/logging"
	"github.com/annel0/mmo-multipart/internal/middleware"
	"github.com/annel0/mmo-multipart/internal/vec"
)

// CellReader отдаёт JSON-снимок клетки; cache.ErrCacheMiss: клетка неизвестна
type CellReader interface {
	Get(ctx context.Context, pos vec.Vec3) ([]byte, error)
}

// GameStats: сводка состояния авторитетного сервера
type GameStats struct {
	Tick           uint64 `json:"tick"`
	LoadedChunks   int    `json:"loaded_chunks"`
	Containers     int    `json:"containers"`
	Peers          int    `json:"peers"`
	PendingChanges int    `json:"pending_changes"`
	InboundQueue   int    `json:"inbound_queue"`
}

// StatsSource предоставляет сводку, безопасную для чтения из HTTP-горутин
type StatsSource interface {
	GameStats() GameStats
}

// RestServer: административный REST API
type RestServer struct {
	router     *gin.Engine
	cells      CellReader
	stats      StatsSource
	addr       string
	metrics    *ServerMetrics
	httpServer *http.Server
	listener   net.Listener
	logger     *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Addr  string      // адрес для запуска сервера
	Cells CellReader  // снимки клеток
	Stats StatsSource // может быть nil

	// Registerer и Gatherer метрик; nil: глобальный регистр
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.Addr == "" {
		config.Addr = ":8088"
	}
	if config.Cells == nil {
		return nil, errors.New("api: не задан источник снимков клеток")
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(otelgin.Middleware("admin_api"))
	router.Use(middleware.NewRequestLogger().Handler())

	promMw, err := middleware.NewPrometheusMiddleware("admin_api", config.Registerer)
	if err != nil {
		return nil, fmt.Errorf("метрики HTTP: %w", err)
	}
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, config.Gatherer)

	rs := &RestServer{
		router:  router,
		cells:   config.Cells,
		stats:   config.Stats,
		addr:    config.Addr,
		metrics: NewServerMetrics(),
		logger:  logging.GetComponentLogger("api"),
	}
	rs.setupRoutes()
	return rs, nil
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)
	rs.router.GET("/cells/:x/:y/:z", rs.handleCell)

	api := rs.router.Group("/api")
	{
		api.GET("/stats", rs.handleStats)
		api.GET("/cells/:x/:y/:z", rs.handleCell)
	}
}

// Handler возвращает http.Handler сервера (используется в тестах)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// handleHealth отвечает на проверку живости
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// handleCell отдаёт снимок клетки как есть, без перекодирования
func (rs *RestServer) handleCell(c *gin.Context) {
	pos, err := parsePos(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: err.Error()})
		return
	}

	data, err := rs.cells.Get(c.Request.Context(), pos)
	if cache.IsCacheMiss(err) {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("Клетка %s неизвестна", pos),
		})
		return
	}
	if err != nil {
		rs.logger.Error("Ошибка чтения снимка %s: %v", pos, err)
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Внутренняя ошибка сервера",
		})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// handleStats возвращает сводку сервера и процесса
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := make(map[string]interface{})
	if rs.stats != nil {
		stats["game"] = rs.stats.GameStats()
	}

	process := map[string]interface{}{
		"uptime":      rs.metrics.GetUptime(),
		"server_time": time.Now().Unix(),
	}
	if cpuPercent, err := rs.metrics.GetCPUUsage(); err == nil {
		process["cpu_percent"] = fmt.Sprintf("%.2f", cpuPercent)
	}
	if rss, err := rs.metrics.GetRSS(); err == nil {
		process["rss_mb"] = fmt.Sprintf("%.2f", rss)
	}
	stats["process"] = process
	stats["memory_details"] = rs.metrics.GetDetailedMemoryStats()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

func parsePos(c *gin.Context) (vec.Vec3, error) {
	var coords [3]int
	for i, name := range []string{"x", "y", "z"} {
		n, err := strconv.Atoi(c.Param(name))
		if err != nil {
			return vec.Vec3{}, fmt.Errorf("неверная координата %s: %q", name, c.Param(name))
		}
		coords[i] = n
	}
	return vec.Vec3{X: coords[0], Y: coords[1], Z: coords[2]}, nil
}

// Start начинает принимать запросы в фоне
func (rs *RestServer) Start() error {
	ln, err := net.Listen("tcp", rs.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", rs.addr, err)
	}
	rs.listener = ln
	rs.httpServer = &http.Server{
		Handler:           rs.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := rs.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rs.logger.Error("REST сервер остановлен с ошибкой: %v", err)
		}
	}()
	rs.logger.Info("🌐 REST API слушает %s", ln.Addr())
	return nil
}

// Addr возвращает фактический адрес после Start
func (rs *RestServer) Addr() net.Addr {
	if rs.listener == nil {
		return nil
	}
	return rs.listener.Addr()
}

// Stop завершает обработку запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.httpServer == nil {
		return nil
	}
	return rs.httpServer.Shutdown(ctx)
}
