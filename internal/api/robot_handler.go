package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/smoothie-dispatch/internal/telemetry"
)

// ListRobots возвращает всех роботов.
// GET /api/v1/robots
func (h *Handler) ListRobots(w http.ResponseWriter, r *http.Request) {
	robots, err := h.registry.List(r.Context())
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	result := make([]RobotResponse, len(robots))
	for i, robot := range robots {
		result[i] = RobotFromDomain(robot)
	}

	List(w, result, len(result))
}

// GetRobot возвращает робота по имени.
// GET /api/v1/robots/{name}
func (h *Handler) GetRobot(w http.ResponseWriter, r *http.Request) {
	robot, err := h.registry.Get(r.Context(), r.PathValue("name"))
	if HandleStoreError(w, h.logger, err, "robot not found") {
		return
	}

	Success(w, RobotFromDomain(*robot))
}

// RegisterRobot добавляет робота в статусе AVAILABLE.
// POST /api/v1/robots
func (h *Handler) RegisterRobot(w http.ResponseWriter, r *http.Request) {
	var req RegisterRobotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := h.registry.Register(r.Context(), req.Name); HandleStoreError(w, h.logger, err, "") {
		return
	}

	robot, err := h.registry.Get(r.Context(), req.Name)
	if HandleStoreError(w, h.logger, err, "robot not found") {
		return
	}

	telemetry.WithRobot(h.logger, req.Name).Info("robot registered")
	Created(w, RobotFromDomain(*robot))
}

// SetRobotStatus меняет статус робота.
// PUT /api/v1/robots/{name}/status
//
// Основной сценарий — вернуть FAULTED робота в пул после проверки.
func (h *Handler) SetRobotStatus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req SetRobotStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if !req.Status.IsValid() {
		BadRequest(w, "invalid status")
		return
	}

	if err := h.registry.SetStatus(r.Context(), name, req.Status); HandleStoreError(w, h.logger, err, "robot not found") {
		return
	}

	robot, err := h.registry.Get(r.Context(), name)
	if HandleStoreError(w, h.logger, err, "robot not found") {
		return
	}

	telemetry.WithRobot(h.logger, name).Warn("robot status set manually", "status", req.Status)
	Success(w, RobotFromDomain(*robot))
}
