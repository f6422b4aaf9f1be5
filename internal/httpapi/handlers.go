package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"sendlater/internal/registry"
	"sendlater/internal/services/scheduling"
	logx "sendlater/pkg/logx"
)

type errorBody struct {
	Error string `json:"error"`
}

type scheduledBody struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

type cancelledBody struct {
	Status string `json:"status"`
}

type destinationBody struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type taskBody struct {
	ID           string `json:"id"`
	GroupID      string `json:"groupId"`
	ScheduleTime string `json:"scheduleTime"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleDestinations(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "Delivery channel is not connected."})
		return
	}
	dests, err := s.svc.Destinations(r.Context())
	if err != nil {
		s.log.Error("destination listing failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to list destinations."})
		return
	}
	out := make([]destinationBody, 0, len(dests))
	for _, d := range dests {
		out = append(out, destinationBody{Name: d.Name, ID: d.ID})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleTasks lists pending tasks, soonest trigger first.
func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	pending := s.svc.Pending()
	out := make([]taskBody, 0, len(pending))
	for _, p := range pending {
		out = append(out, taskBody{
			ID:           p.ID,
			GroupID:      p.Destination,
			ScheduleTime: p.TriggerAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid multipart form."})
		return
	}

	var payloadRef string
	file, header, err := r.FormFile("image")
	if err == nil {
		defer file.Close()
		payloadRef, err = s.blobs.Save(r.Context(), header.Filename, file)
		if err != nil {
			s.log.Error("upload store failed", logx.Err(err))
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to store upload."})
			return
		}
	}

	id, err := s.svc.RequestSchedule(r.Context(), scheduling.ScheduleRequest{
		ID:          r.FormValue("uiId"),
		Destination: r.FormValue("groupId"),
		PayloadRef:  payloadRef,
		TriggerAt:   r.FormValue("scheduleTime"),
	})
	if err != nil {
		code, msg := scheduleError(err)
		writeJSON(w, code, errorBody{Error: msg})
		return
	}
	writeJSON(w, http.StatusOK, scheduledBody{Status: "Scheduled", ID: id})
}

func scheduleError(err error) (int, string) {
	switch {
	case errors.Is(err, scheduling.ErrNoFile):
		return http.StatusBadRequest, "No file uploaded."
	case errors.Is(err, scheduling.ErrMissingField):
		return http.StatusBadRequest, "Missing required field."
	case errors.Is(err, scheduling.ErrBadTime):
		return http.StatusBadRequest, "Invalid schedule time."
	case errors.Is(err, registry.ErrPastTime):
		return http.StatusBadRequest, "Scheduled time is in the past."
	case errors.Is(err, registry.ErrDuplicateTask):
		return http.StatusConflict, "A task with this id is already scheduled."
	default:
		return http.StatusInternalServerError, "Failed to schedule task."
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON body."})
		return
	}
	if err := s.svc.RequestCancel(r.Context(), req.ID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "Task not found or already resolved."})
			return
		}
		s.log.Error("cancel failed", logx.String("id", req.ID), logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to cancel task."})
		return
	}
	writeJSON(w, http.StatusOK, cancelledBody{Status: "Cancelled"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "channel_ready": s.svc.Ready()})
}
