package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"wxsync/internal/models"
	"wxsync/internal/service"
)

type operatorRequest struct {
	OperatorID string `json:"operator_id"`
}

func (s *HTTPServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var body operatorRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.OperatorID == "" {
			writeError(w, http.StatusBadRequest, "operator_id is required")
			return
		}

		task, err := s.tasks.CreateTask(r.Context(), body.OperatorID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"task_id":     task.ID,
			"total_staff": task.TotalStaff,
		})

	case http.MethodGet:
		operatorID := strings.TrimSpace(r.URL.Query().Get("operator_id"))
		if operatorID == "" {
			writeError(w, http.StatusBadRequest, "operator_id is required")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		tasks, err := s.tasks.GetTaskList(r.Context(), operatorID, limit)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTaskByID serves /api/v1/tasks/{id} and /api/v1/tasks/{id}/start.
func (s *HTTPServer) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/")
	idPart, action, _ := strings.Cut(rest, "/")

	taskID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || taskID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		task, items, err := s.tasks.GetTaskDetail(r.Context(), taskID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"task": task, "items": items})

	case action == "start" && r.Method == http.MethodPost:
		queued, err := s.tasks.StartTask(r.Context(), taskID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"queued": queued})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTaskItem serves /api/v1/task-items/{id}/retry.
func (s *HTTPServer) handleTaskItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/task-items/")
	idPart, action, _ := strings.Cut(rest, "/")

	itemID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || itemID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid task item id")
		return
	}

	if action != "retry" || r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.tasks.RetryTaskItem(r.Context(), itemID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "retry queued"})
}

func (s *HTTPServer) handleCustomers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	operatorID := strings.TrimSpace(r.URL.Query().Get("operator_id"))
	if operatorID == "" {
		writeError(w, http.StatusBadRequest, "operator_id is required")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	result, err := s.customers.ListCustomers(r.Context(), operatorID, page, pageSize)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleRosterSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body operatorRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.OperatorID == "" {
		writeError(w, http.StatusBadRequest, "operator_id is required")
		return
	}

	count, err := s.roster.SyncRoster(r.Context(), body.OperatorID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff_count": count})
}

func (s *HTTPServer) handleExportUnionIDs(w http.ResponseWriter, r *http.Request) {
	s.handleExport(w, r, s.exports.ExportUnionIDs)
}

func (s *HTTPServer) handleExportCustomers(w http.ResponseWriter, r *http.Request) {
	s.handleExport(w, r, s.exports.ExportCustomersToExcel)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, export func(ctx context.Context, operatorID string) (string, error)) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body operatorRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.OperatorID == "" {
		writeError(w, http.StatusBadRequest, "operator_id is required")
		return
	}

	filePath, err := export(r.Context(), body.OperatorID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file_path": filePath})
}

func (s *HTTPServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	type settingsRequest struct {
		OperatorID string `json:"operator_id"`
		CorpID     string `json:"corp_id"`
		CorpSecret string `json:"corp_secret"`
		CorpRemark string `json:"corp_remark"`
	}

	var body settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.OperatorID == "" {
		writeError(w, http.StatusBadRequest, "operator_id is required")
		return
	}
	if body.CorpID == "" && body.CorpSecret == "" && body.CorpRemark == "" {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	ctx := r.Context()
	if body.CorpID != "" {
		if err := s.settings.SetSetting(ctx, body.OperatorID, models.SettingCorpID, body.CorpID); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}
	if body.CorpSecret != "" {
		if err := s.settings.SetSetting(ctx, body.OperatorID, models.SettingCorpSecret, body.CorpSecret); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}
	if body.CorpRemark != "" {
		if err := s.settings.SetSetting(ctx, body.OperatorID, models.SettingCorpRemark, body.CorpRemark); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "settings saved"})
}

// writeServiceError maps sentinel service errors onto HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrTaskNotFound), errors.Is(err, service.ErrItemNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrCorpNotConfigured),
		errors.Is(err, service.ErrNoCredential),
		errors.Is(err, service.ErrNoStaff),
		errors.Is(err, service.ErrNoPendingItems):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidTaskState),
		errors.Is(err, service.ErrInvalidItemState),
		errors.Is(err, service.ErrTaskCompleted):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
