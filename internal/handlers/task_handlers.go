package handlers

import (
	"net/http"
	"time"

	"caseTasks/internal/engine"
	"caseTasks/internal/handlers/dto"
	"caseTasks/internal/logger"
	"caseTasks/internal/middleware"
	"caseTasks/internal/models/task"
	"caseTasks/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const serviceName = "case-tasks"

type TaskHandler struct {
	TaskService Service
	now         func() time.Time
}

func NewTaskHandler(taskService Service) *TaskHandler {
	return &TaskHandler{
		TaskService: taskService,
		now:         time.Now,
	}
}

// Routes mounts the task API on r. Identification must already be in the chain.
func (h *TaskHandler) Routes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", h.PostTask)
		r.Get("/", h.GetTasks)
		r.Get("/overdue", h.GetOverdueTasks)
		r.Get("/{id}", h.GetTaskByID)
		r.Patch("/{id}", h.PatchTask)
		r.Patch("/{id}/cancel", h.CancelTask)
		r.Post("/{id}/response", h.RespondToTask)
		r.Post("/{id}/transitions", h.TransitionTask)
	})
	r.Post("/templates/{id}/instantiate", h.InstantiateTemplate)
}

func (h *TaskHandler) viewer(w http.ResponseWriter, r *http.Request) (engine.Viewer, bool) {
	v, ok := middleware.ViewerFrom(r.Context())
	if !ok {
		logger.Warn("HTTP: request without caller", zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusUnauthorized, service.CodeUnauthenticated, "", "caller is not identified", nil)
	}
	return v, ok
}

func needWork(a engine.Access) bool { return a.Work }
func needEdit(a engine.Access) bool { return a.Edit }

// authorize loads the caller's rights on the task before its body is read and
// answers 403 when need is not met, so the body cannot change the answer.
func (h *TaskHandler) authorize(w http.ResponseWriter, r *http.Request, v engine.Viewer, id uuid.UUID, operation string, need func(engine.Access) bool) (engine.Access, bool) {
	access, err := h.TaskService.Access(r.Context(), v, id)
	if err != nil {
		handleServiceError(w, r, err, operation)
		return access, false
	}
	if !need(access) {
		forbidden(w, r, id, operation)
		return access, false
	}
	return access, true
}

// decodeFor reads the body of a mutation. A caller who is not an editor may only
// send well-formed work requests, so anything it sends that cannot be read is
// answered with 403 rather than with a validation error.
func decodeFor(w http.ResponseWriter, r *http.Request, access engine.Access, id uuid.UUID, operation string, dst any) bool {
	if access.Edit {
		return decodeJSON(w, r, dst)
	}
	if err := readJSON(r, dst); err != nil {
		forbidden(w, r, id, operation)
		return false
	}
	return true
}

func forbidden(w http.ResponseWriter, r *http.Request, id uuid.UUID, operation string) {
	logger.Warn("HTTP: mutation forbidden",
		zap.String("task_id", id.String()),
		zap.String("operation", operation),
		zap.String("client_ip", r.RemoteAddr))
	responseWithError(w, http.StatusForbidden, service.CodeForbidden, "", "not allowed to "+operation+" this task", nil)
}

func (h *TaskHandler) respondTask(w http.ResponseWriter, code int, t *task.Task) {
	responseWithJSON(w, code, toPayload("task", dto.FromTask(t, h.now())))
}

func (h *TaskHandler) respondTasks(w http.ResponseWriter, tasks []*task.Task, page, limit int) {
	responseWithJSON(w, http.StatusOK,
		toPayload("tasks", dto.FromTaskList(tasks, h.now())),
		toPayload("page", page),
		toPayload("limit", limit),
		toPayload("count", len(tasks)))
}

func (h *TaskHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP: health check")

	err := h.TaskService.HealthCheck(r.Context())
	if err != nil {
		logger.Error("HTTP: unhealthy", err)
	}
	healthCheck(w, err)
}

func (h *TaskHandler) PostTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}

	var request dto.CreateTaskRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	created, err := h.TaskService.CreateTask(r.Context(), v, request.ToInput())
	if err != nil {
		handleServiceError(w, r, err, "create_task")
		return
	}

	logger.Info("HTTP_OUT: task created",
		zap.String("task_id", created.UUID.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusCreated))
	h.respondTask(w, http.StatusCreated, created)
}

func (h *TaskHandler) GetTasks(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}

	page, limit, err := parsePaging(r)
	if err != nil {
		responseWithError(w, http.StatusBadRequest, service.CodeValidation, "", err.Error(), nil)
		return
	}
	templates, err := parseBool(r.URL.Query().Get("templates"))
	if err != nil {
		responseWithError(w, http.StatusBadRequest, service.CodeValidation, "templates", "templates must be true or false", nil)
		return
	}

	q := service.ListQuery{
		Search:    r.URL.Query().Get("search"),
		Templates: templates,
		Page:      page,
		Limit:     limit,
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := task.Status(raw)
		q.Status = &status
	}
	if raw := r.URL.Query().Get("taskPriority"); raw != "" {
		priority := task.Priority(raw)
		q.Priority = &priority
	}

	tasks, err := h.TaskService.ListTasks(r.Context(), v, q)
	if err != nil {
		handleServiceError(w, r, err, "list_tasks")
		return
	}
	h.respondTasks(w, tasks, page, limit)
}

func (h *TaskHandler) GetOverdueTasks(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}

	page, limit, err := parsePaging(r)
	if err != nil {
		responseWithError(w, http.StatusBadRequest, service.CodeValidation, "", err.Error(), nil)
		return
	}

	tasks, err := h.TaskService.ListOverdue(r.Context(), v, page, limit)
	if err != nil {
		handleServiceError(w, r, err, "list_overdue")
		return
	}
	h.respondTasks(w, tasks, page, limit)
}

func (h *TaskHandler) GetTaskByID(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	found, err := h.TaskService.GetTask(r.Context(), v, id)
	if err != nil {
		handleServiceError(w, r, err, "get_task")
		return
	}
	h.respondTask(w, http.StatusOK, found)
}

func (h *TaskHandler) PatchTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	access, ok := h.authorize(w, r, v, id, "update", needWork)
	if !ok {
		return
	}
	var request dto.UpdateTaskRequest
	if !decodeFor(w, r, access, id, "update", &request) {
		return
	}

	updated, err := h.TaskService.UpdateTask(r.Context(), v, id, request.ToInput())
	if err != nil {
		handleServiceError(w, r, err, "update_task")
		return
	}

	logger.Info("HTTP_OUT: task updated",
		zap.String("task_id", id.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))
	h.respondTask(w, http.StatusOK, updated)
}

func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if _, ok := h.authorize(w, r, v, id, "cancel", needEdit); !ok {
		return
	}
	var request dto.CancelTaskRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	cancelled, err := h.TaskService.CancelTask(r.Context(), v, id, request.CancellationReason, request.ExpectedVersion)
	if err != nil {
		handleServiceError(w, r, err, "cancel_task")
		return
	}
	h.respondTask(w, http.StatusOK, cancelled)
}

func (h *TaskHandler) RespondToTask(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	access, ok := h.authorize(w, r, v, id, "respond to", needWork)
	if !ok {
		return
	}
	var request dto.TaskResponseRequest
	if !decodeFor(w, r, access, id, "respond to", &request) {
		return
	}

	answered, err := h.TaskService.RespondToTask(r.Context(), v, id, request.Completed, request.Comment)
	if err != nil {
		handleServiceError(w, r, err, "respond_to_task")
		return
	}
	h.respondTask(w, http.StatusOK, answered)
}

func (h *TaskHandler) TransitionTask(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	access, ok := h.authorize(w, r, v, id, "transition", needWork)
	if !ok {
		return
	}
	var request dto.TransitionRequest
	if !decodeFor(w, r, access, id, "transition", &request) {
		return
	}
	action, ok := engine.ParseAction(request.Action)
	if !ok {
		logger.Warn("HTTP: unknown action",
			zap.String("action", request.Action),
			zap.String("client_ip", r.RemoteAddr))
		if !access.Edit {
			forbidden(w, r, id, "transition")
			return
		}
		responseWithError(w, http.StatusBadRequest, service.CodeValidation, "action", "unknown action "+request.Action, nil)
		return
	}
	if !access.Allows(action) {
		forbidden(w, r, id, string(action))
		return
	}

	moved, err := h.TaskService.TransitionTask(r.Context(), v, id, action, engine.TransitionContext{
		Comment:            request.Comment,
		CancellationReason: request.CancellationReason,
	}, request.ExpectedVersion)
	if err != nil {
		handleServiceError(w, r, err, "transition_task")
		return
	}
	h.respondTask(w, http.StatusOK, moved)
}

func (h *TaskHandler) InstantiateTemplate(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var request dto.InstantiateRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	created, err := h.TaskService.InstantiateTemplate(r.Context(), v, id, request.ToInput())
	if err != nil {
		handleServiceError(w, r, err, "instantiate_template")
		return
	}

	logger.Info("HTTP_OUT: template instantiated",
		zap.String("template_id", id.String()),
		zap.String("task_id", created.UUID.String()),
		zap.Int("http_status", http.StatusCreated))
	h.respondTask(w, http.StatusCreated, created)
}
