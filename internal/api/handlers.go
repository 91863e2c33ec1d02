package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tasksync/internal/domain"
	"tasksync/internal/models"
	"tasksync/internal/service"
)

// taskRequest is the body of create and update calls.
type taskRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Priority     string   `json:"priority"`
	Completed    bool     `json:"completed"`
	CompletedBy  string   `json:"completed_by"`
	PhotoPath    *string  `json:"photo_path"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	LocationName *string  `json:"location_name"`
}

// apply copies the request onto task. Flipping completed on stamps the
// completion time; flipping it off clears who and when.
func (req taskRequest) apply(task *models.Task, now time.Time) error {
	priority, err := models.ParsePriority(req.Priority)
	if err != nil {
		return err
	}
	task.Title = strings.TrimSpace(req.Title)
	task.Description = req.Description
	task.Priority = priority
	task.PhotoPath = req.PhotoPath
	task.Latitude = req.Latitude
	task.Longitude = req.Longitude
	task.LocationName = req.LocationName
	switch {
	case req.Completed && !task.Completed:
		task.MarkCompleted(strings.TrimSpace(req.CompletedBy), now)
	case !req.Completed:
		task.Completed = false
		task.CompletedAt = nil
		task.CompletedBy = nil
	}
	return nil
}

func decodeTaskRequest(r *http.Request) (taskRequest, error) {
	var body taskRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(&body)
	return body, err
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.deps.Tasks.List(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *HTTPServer) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	body, err := decodeTaskRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var task models.Task
	if err := body.apply(&task, time.Now().UTC()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.deps.Tasks.Create(r.Context(), &task)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	task, err := s.deps.Tasks.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *HTTPServer) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	body, err := decodeTaskRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	task, err := s.deps.Tasks.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := body.apply(task, time.Now().UTC()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.deps.Tasks.Update(r.Context(), task)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	if err := s.deps.Tasks.Delete(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	var body struct {
		CompletedBy string `json:"completed_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	task, err := s.deps.Tasks.Complete(r.Context(), id, strings.TrimSpace(body.CompletedBy))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *HTTPServer) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	radius := 0.0
	if raw := q.Get("radius"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "invalid radius")
			return
		}
		radius = v
	}

	nearby, err := s.deps.Tasks.Nearby(r.Context(), lat, lon, radius)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if nearby == nil {
		nearby = []service.NearbyTask{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": nearby})
}

func (s *HTTPServer) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := s.deps.Ledger.PendingSyncCount(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"pending": pending,
		"syncing": s.deps.Sync.IsSyncing(),
		"online":  s.deps.Monitor != nil && s.deps.Monitor.CurrentState(),
	}
	if last := s.deps.Sync.LastResult(); last != nil {
		lastRun := map[string]any{
			"run_id":     last.RunID,
			"started_at": last.StartedAt,
			"processed":  last.Processed,
			"conflicts":  last.Conflicts,
			"remaining":  last.Remaining,
		}
		if last.Err != nil {
			lastRun["error"] = last.Err.Error()
		}
		resp["last_run"] = lastRun
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSyncNow runs a batch immediately, independent of connectivity.
func (s *HTTPServer) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Sync.SyncNow(r.Context())
	if errors.Is(err, domain.ErrSyncInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	resp := map[string]any{
		"run_id":    res.RunID,
		"processed": res.Processed,
		"conflicts": res.Conflicts,
		"remaining": res.Remaining,
	}
	if err != nil {
		resp["error"] = err.Error()
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleConflicts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}
	conflicts, err := s.deps.Ledger.ListConflicts(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if conflicts == nil {
		conflicts = []models.ConflictRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

// writeDomainError maps the error taxonomy onto status codes.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case domain.IsConstraint(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
