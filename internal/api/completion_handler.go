package api

import (
	"encoding/json"
	"net/http"
)

// ReportCompletion принимает сигнал завершения от робота.
// POST /api/v1/completions
//
// Ответ всегда 202: повторный, запоздавший или чужой сигнал
// не ошибка для робота.
func (h *Handler) ReportCompletion(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.TaskToken == "" {
		BadRequest(w, "task_token is required")
		return
	}

	success := req.Success == nil || *req.Success
	resolved := h.engine.ReportCompletion(req.TaskToken, success, req.Info)

	Accepted(w, CompletionResponse{Resolved: resolved})
}
