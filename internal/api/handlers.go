package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/scriptoria/weaver/internal/model"
	"github.com/scriptoria/weaver/internal/orchestrator"
)

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// DocumentRequest is the POST /documents request body: the resources to
// assemble plus the strategy/layout/granularity matrix to assemble them
// under.
type DocumentRequest struct {
	Resources []model.ResourceRequest  `json:"resources"`
	Config    model.AssemblyConfig     `json:"config"`
}

// DocumentAccepted is the POST /documents response body.
type DocumentAccepted struct {
	TaskID string `json:"task_id"`
}

// TaskStatusResponse is the GET /task_status/{id} response body, per
// spec.md §6's four-state contract.
type TaskStatusResponse struct {
	State   orchestrator.TaskState   `json:"state"`
	Result  string                   `json:"result,omitempty"`
	Error   string                   `json:"error,omitempty"`
	Unfound []model.FailedRequest    `json:"unfound,omitempty"`
}

// orc is the process-wide Orchestrator, set once by Start.
var orc *orchestrator.Orchestrator

var startTime = time.Now()

func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"name":    "Weaver Assembly API",
		"version": "0.1.0",
		"endpoints": []string{
			"GET /health",
			"POST /documents",
			"GET /task_status/:id",
			"GET /language_codes",
			"GET /resource_types",
			"GET /resource_codes",
			"WS /ws",
		},
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(startTime).String(),
	})
}

// handleDocuments handles POST /documents: submit a set of resource
// requests plus an AssemblyConfig, returning a task id immediately. The
// actual fetch/parse/assemble work runs in the orchestrator's own
// goroutine; progress is observable via GET /task_status/{id} or /ws.
func handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}
	if len(req.Resources) == 0 {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "resources must not be empty")
		return
	}

	taskID := orc.Submit(req.Resources, req.Config)
	BroadcastProgress(taskID, "submitted", "task accepted", 0)

	respond(w, http.StatusAccepted, DocumentAccepted{TaskID: taskID})
}

// handleTaskStatus handles GET /task_status/{id} and DELETE /task_status/{id}
// (cancellation). The external contract exposes only the four states of
// spec.md §6; cancellation surfaces as FAILURE with a human-readable reason.
func handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/task_status/")
	if id == "" {
		respondError(w, http.StatusBadRequest, "MISSING_ID", "task id is required")
		return
	}
	if err := ValidateID(id); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		getTaskStatusHandler(w, id)
	case http.MethodDelete:
		cancelTaskHandler(w, id)
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and DELETE are allowed")
	}
}

func getTaskStatusHandler(w http.ResponseWriter, id string) {
	task, ok := orc.Status(id)
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "task not found")
		return
	}

	respond(w, http.StatusOK, TaskStatusResponse{
		State:   task.State,
		Result:  task.DocumentKey,
		Error:   task.Error,
		Unfound: task.Unfound,
	})
}

func cancelTaskHandler(w http.ResponseWriter, id string) {
	if err := orc.Cancel(id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "CANCEL_FAILED", err.Error())
		return
	}
	BroadcastError(id, "cancelled by caller")
	respond(w, http.StatusOK, map[string]string{"message": "task cancelled"})
}

func handleLanguageCodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	codes, err := orc.Enum.Languages(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "ENUM_FAILED", err.Error())
		return
	}
	respondList(w, codes)
}

func handleResourceTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	codes, err := orc.Enum.ResourceTypes(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "ENUM_FAILED", err.Error())
		return
	}
	respondList(w, codes)
}

func handleResourceCodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	codes, err := orc.Enum.BookCodes(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "ENUM_FAILED", err.Error())
		return
	}
	respondList(w, codes)
}

func respondList(w http.ResponseWriter, items []string) {
	response := APIResponse{
		Success: true,
		Data:    items,
		Meta: &APIMeta{
			Total:     len(items),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	response := APIResponse{
		Success: true,
		Data:    data,
		Meta: &APIMeta{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Meta: &APIMeta{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}
