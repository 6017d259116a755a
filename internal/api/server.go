package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"

	"github.com/lattibeaudiere/eigenclaw/internal/classify"
	"github.com/lattibeaudiere/eigenclaw/internal/job"
	"github.com/lattibeaudiere/eigenclaw/internal/observability/metrics"
	"github.com/lattibeaudiere/eigenclaw/internal/storage/mysql"
	"github.com/lattibeaudiere/eigenclaw/internal/wallet"
	"github.com/lattibeaudiere/eigenclaw/pkg/logger"
)

// Server 负责暴露 REST 接口，供外部驱动交易标注。
type Server struct {
	addr       string
	network    string
	classifier classify.Classifier
	dispatcher *classify.Dispatcher
	jobs       *job.Service
	history    mysql.LabelRepository
	logger     *slog.Logger
}

// Option 定义可选配置。
type Option func(*Server)

// WithNetwork 设置 /info 展示的网络名。
func WithNetwork(network string) Option {
	return func(s *Server) {
		if network != "" {
			s.network = network
		}
	}
}

// WithJobService 启用异步批量任务接口。
func WithJobService(jobs *job.Service) Option {
	return func(s *Server) {
		s.jobs = jobs
	}
}

// WithLabelHistory 启用标注历史查询接口。
func WithLabelHistory(history mysql.LabelRepository) Option {
	return func(s *Server) {
		s.history = history
	}
}

// WithDispatcher 替换同步批量接口使用的标注器。
func WithDispatcher(dispatcher *classify.Dispatcher) Option {
	return func(s *Server) {
		s.dispatcher = dispatcher
	}
}

// WithServerLogger 指定日志输出。
func WithServerLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, classifier classify.Classifier, opts ...Option) *Server {
	s := &Server{
		addr:       addr,
		network:    "mainnet",
		classifier: classifier,
		logger:     logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.dispatcher == nil && classifier != nil {
		s.dispatcher = classify.NewDispatcher(classifier)
	}
	return s
}

// Handler 返回完整的路由，便于测试直接挂到 httptest。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/info", s.handleInfo)
	mux.HandleFunc("/label", metrics.Instrument("label", s.handleLabel))
	mux.HandleFunc("/label/batch", metrics.Instrument("label_batch", s.handleLabelBatch))
	mux.HandleFunc("/api/v1/jobs", metrics.Instrument("jobs", s.handleJobs))
	mux.HandleFunc("/api/v1/jobs/", metrics.Instrument("job_detail", s.handleJobByID))
	mux.HandleFunc("/api/v1/labels", metrics.Instrument("label_history", s.handleLabelHistory))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method_not_allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method_not_allowed"})
		return
	}
	backend := "none (not configured)"
	if s.classifier != nil {
		backend = s.classifier.Backend()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"backend": backend,
		"network": s.network,
		// 只包含派生地址，密钥材料永不出现在响应里。
		"wallet": wallet.Info(),
	})
}

func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method_not_allowed"})
		return
	}
	if s.classifier == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "classifier_not_configured"})
		return
	}

	var body struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Description) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": `body must be {"description": "..."}`})
		return
	}

	label, err := s.classifier.Classify(r.Context(), body.Description)
	if err != nil {
		s.writeClassifyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, label)
}

func (s *Server) handleLabelBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method_not_allowed"})
		return
	}
	if s.dispatcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "classifier_not_configured"})
		return
	}

	var records []classify.Record
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "body must be a JSON array"})
		return
	}
	results := s.dispatcher.Run(r.Context(), records, "")
	writeJSON(w, http.StatusOK, results)
}

// handleJobs 创建异步批量任务。
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method_not_allowed"})
		return
	}
	if s.jobs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "jobs_not_configured"})
		return
	}

	var body struct {
		Records []classify.Record `json:"records"`
		Field   string            `json:"field"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_json_body"})
		return
	}
	submitted, err := s.jobs.Submit(r.Context(), body.Records, body.Field)
	if err != nil {
		status := http.StatusInternalServerError
		if xerrors.CodeOf(err) == job.CodeJobValidation {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, submitted)
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method_not_allowed"})
		return
	}
	if s.jobs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "jobs_not_configured"})
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not_found"})
		return
	}
	found, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		if job.IsNotFound(err) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "not_found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	// 任务结果里原始输入不再回传，避免响应体积失控。
	found.Records = nil
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleLabelHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method_not_allowed"})
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "history_not_configured"})
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := s.history.ListLatest(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// writeClassifyError 把分类失败翻译成响应。后端答非所问时仍按 200
// 返回错误标记与原文，方便调用方排查。
func (s *Server) writeClassifyError(w http.ResponseWriter, err error) {
	if e, ok := xerrors.From(err); ok && e.Code() == xerrors.CodeNonJSONResponse {
		marker := map[string]any{"error": "non_json_response"}
		if raw, ok := e.Metadata()["raw"]; ok {
			marker["raw"] = raw
		}
		writeJSON(w, http.StatusOK, marker)
		return
	}
	s.logger.Error("标注请求失败", slog.String("error", err.Error()))
	status := http.StatusBadGateway
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument, xerrors.CodeInvalidInput:
		status = http.StatusBadRequest
	case xerrors.CodeNotConfigured:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
