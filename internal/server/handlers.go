package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kpi-insights/internal/artifact"
	"github.com/sells-group/kpi-insights/internal/export"
	"github.com/sells-group/kpi-insights/internal/model"
	"github.com/sells-group/kpi-insights/internal/pipeline"
	"github.com/sells-group/kpi-insights/internal/sheet"
	"github.com/sells-group/kpi-insights/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
}

func renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: msg})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.MaxUploadMB << 20
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			renderError(w, r, http.StatusRequestEntityTooLarge,
				"file exceeds the "+strconv.FormatInt(s.cfg.MaxUploadMB, 10)+" MB upload limit")
			return
		}
		renderError(w, r, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close() //nolint:errcheck

	if !strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		renderError(w, r, http.StatusBadRequest, "Only .xlsx files are supported")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "could not read uploaded file")
		return
	}

	ctx := r.Context()
	if s.cfg.RequestTimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.RequestTimeoutSecs)*time.Second)
		defer cancel()
	}

	result, err := s.runner.Run(ctx, pipeline.Upload{Filename: header.Filename, Data: data})
	if err != nil {
		if eris.Is(err, sheet.ErrInvalidWorkbook) || eris.Is(err, sheet.ErrNoSheets) {
			renderError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		zap.L().Error("server: upload processing failed",
			zap.String("filename", header.Filename),
			zap.Error(err),
		)
		renderError(w, r, http.StatusInternalServerError, "processing failed: "+err.Error())
		return
	}

	render.JSON(w, r, result)
}

// resultRun resolves the run a download refers to: ?run_id= when given,
// otherwise the latest completed run.
func (s *Server) resultRun(r *http.Request) (*model.Run, error) {
	if id := r.URL.Query().Get("run_id"); id != "" {
		run, err := s.store.GetRun(r.Context(), id)
		if err != nil {
			return nil, err
		}
		if run.Status != model.RunStatusComplete || run.Result == nil {
			return nil, eris.Wrapf(store.ErrNotFound, "run %s has no result", id)
		}
		return run, nil
	}
	return s.store.LatestCompleted(r.Context())
}

func (s *Server) handleDownloadKPIs(w http.ResponseWriter, r *http.Request) {
	run, err := s.resultRun(r)
	if err != nil {
		s.downloadError(w, r, err)
		return
	}

	data, err := s.artifacts.Get(r.Context(), run.ID, artifact.KPIFile)
	if err != nil {
		if !eris.Is(err, artifact.ErrNotFound) {
			zap.L().Warn("server: read archived kpi file", zap.String("run_id", run.ID), zap.Error(err))
		}
		data, err = json.MarshalIndent(run.Result.KPIs, "", "  ")
		if err != nil {
			renderError(w, r, http.StatusInternalServerError, "could not encode KPI file")
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="supplier_kpi.json"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

func (s *Server) handleDownloadWorkbook(w http.ResponseWriter, r *http.Request) {
	run, err := s.resultRun(r)
	if err != nil {
		s.downloadError(w, r, err)
		return
	}

	data, err := export.KPIWorkbook(run.Result.KPIs)
	if err != nil {
		zap.L().Error("server: build kpi workbook", zap.String("run_id", run.ID), zap.Error(err))
		renderError(w, r, http.StatusInternalServerError, "could not build KPI workbook")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="supplier_kpi.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

func (s *Server) downloadError(w http.ResponseWriter, r *http.Request, err error) {
	if eris.Is(err, store.ErrNotFound) {
		renderError(w, r, http.StatusNotFound, "No KPI file found")
		return
	}
	zap.L().Error("server: load run for download", zap.Error(err))
	renderError(w, r, http.StatusInternalServerError, "could not load run")
}

// runSummary is a run without its result, for listings.
type runSummary struct {
	ID        string          `json:"id"`
	Filename  string          `json:"filename"`
	Status    model.RunStatus `json:"status"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Status: model.RunStatus(q.Get("status"))}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			renderError(w, r, http.StatusBadRequest, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("server: list runs", zap.Error(err))
		renderError(w, r, http.StatusInternalServerError, "could not list runs")
		return
	}

	out := make([]runSummary, len(runs))
	for i, run := range runs {
		out[i] = runSummary{
			ID:        run.ID,
			Filename:  run.Filename,
			Status:    run.Status,
			Error:     run.Error,
			CreatedAt: run.CreatedAt,
			UpdatedAt: run.UpdatedAt,
		}
	}
	render.JSON(w, r, map[string]any{"runs": out})
}

func (s *Server) handleRunStats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			renderError(w, r, http.StatusBadRequest, "hours must be a non-negative integer")
			return
		}
		hours = n
	}

	snap, err := s.stats.Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("server: collect run stats", zap.Error(err))
		renderError(w, r, http.StatusInternalServerError, "could not collect run stats")
		return
	}
	render.JSON(w, r, snap)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			renderError(w, r, http.StatusNotFound, "run not found")
			return
		}
		zap.L().Error("server: get run", zap.Error(err))
		renderError(w, r, http.StatusInternalServerError, "could not load run")
		return
	}
	render.JSON(w, r, run)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ok"})
}
