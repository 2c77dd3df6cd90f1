package leavehandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"leaveflow/internal/domain/auth"
	"leaveflow/internal/domain/leave"
	"leaveflow/internal/requestctx"
	"leaveflow/internal/transport/http/api"
	"leaveflow/internal/transport/http/middleware"
	"leaveflow/internal/transport/http/shared"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type Handler struct {
	Service *leave.Service
}

func NewHandler(service *leave.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/leave", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermLeaveApply)).Post("/requests", h.handleApply)
		r.With(middleware.RequirePermission(auth.PermLeaveReadOwn)).Get("/requests/mine", h.handleListMine)
		r.With(middleware.RequirePermission(auth.PermLeaveReadOwn)).Get("/dashboard", h.handleDashboard)
		r.With(middleware.RequirePermission(auth.PermLeaveApply)).Post("/requests/{requestID}/cancel", h.handleCancel)

		r.With(middleware.RequirePermission(auth.PermLeaveDecide)).Get("/requests/pending", h.handleListPending)
		r.With(middleware.RequirePermission(auth.PermLeaveDecide)).Post("/requests/{requestID}/approve", h.handleApprove)
		r.With(middleware.RequirePermission(auth.PermLeaveDecide)).Post("/requests/{requestID}/reject", h.handleReject)

		r.With(middleware.RequirePermission(auth.PermLeaveReadAll)).Get("/requests", h.handleListAll)
		r.With(middleware.RequirePermission(auth.PermLeaveOverride)).Post("/requests/{requestID}/override", h.handleOverride)
		r.With(middleware.RequirePermission(auth.PermLeaveReadAll)).Get("/requests/{requestID}/history.pdf", h.handleHistoryPDF)

		r.With(middleware.RequirePermission(auth.PermLeaveHistory)).Get("/requests/{requestID}/history", h.handleHistory)
		r.With(middleware.RequirePermission(auth.PermLeaveReadOwn, auth.PermLeaveHistory)).Get("/requests/{requestID}", h.handleGet)
	})
}

type applyPayload struct {
	LeaveType string `json:"leaveType" validate:"required,max=50"`
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
	Reason    string `json:"reason" validate:"max=1000"`
}

type decisionPayload struct {
	Remarks string `json:"remarks" validate:"max=1000"`
}

type overridePayload struct {
	Status  string `json:"status" validate:"required"`
	Remarks string `json:"remarks" validate:"max=1000"`
}

type changedResponse struct {
	Changed bool `json:"changed"`
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())

	var payload applyPayload
	if !decodeJSON(w, r, &payload, false) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	start, _ := v.Date("startDate", payload.StartDate)
	end, _ := v.Date("endDate", payload.EndDate)
	if v.Reject(w, reqID) {
		return
	}

	id, err := h.Service.Apply(r.Context(), user.UserID, leave.ApplyInput{
		LeaveType: payload.LeaveType,
		StartDate: start,
		EndDate:   end,
		Reason:    payload.Reason,
	})
	if err != nil {
		failService(w, r, "leave_apply_failed", "failed to apply for leave", err)
		return
	}
	api.Created(w, map[string]int64{"id": id}, reqID)
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	rows, err := h.Service.ListForEmployee(r.Context(), user.UserID)
	if err != nil {
		failService(w, r, "leave_list_failed", "failed to list leave requests", err)
		return
	}
	writePage(w, r, rows)
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.ListPendingForManagers(r.Context())
	if err != nil {
		failService(w, r, "leave_list_failed", "failed to list pending leave requests", err)
		return
	}
	writePage(w, r, rows)
}

func (h *Handler) handleListAll(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.ListAll(r.Context())
	if err != nil {
		failService(w, r, "leave_list_failed", "failed to list leave requests", err)
		return
	}
	writePage(w, r, rows)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	dash, err := h.Service.Dashboard(r.Context(), user.UserID)
	if err != nil {
		failService(w, r, "leave_dashboard_failed", "failed to build dashboard", err)
		return
	}
	api.Success(w, dash, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	user, _ := middleware.GetUser(r.Context())
	changed, err := h.Service.Cancel(r.Context(), id, user.UserID)
	if err != nil {
		failService(w, r, "leave_cancel_failed", "failed to cancel leave request", err)
		return
	}
	api.Success(w, changedResponse{Changed: changed}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Service.Approve, "leave_approve_failed")
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Service.Reject, "leave_reject_failed")
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, leaveID int64, actorID, remarks string) (bool, error), failCode string) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	var payload decisionPayload
	if !decodeJSON(w, r, &payload, true) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	user, _ := middleware.GetUser(r.Context())
	changed, err := fn(r.Context(), id, user.UserID, payload.Remarks)
	if err != nil {
		failService(w, r, failCode, "failed to update leave request", err)
		return
	}
	api.Success(w, changedResponse{Changed: changed}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	var payload overridePayload
	if !decodeJSON(w, r, &payload, false) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	user, _ := middleware.GetUser(r.Context())
	changed, err := h.Service.Override(r.Context(), id, user.UserID, leave.ParseStatus(payload.Status), payload.Remarks)
	if err != nil {
		failService(w, r, "leave_override_failed", "failed to override leave status", err)
		return
	}
	api.Success(w, changedResponse{Changed: changed}, middleware.GetRequestID(r.Context()))
}

// handleGet lets employees read only their own requests; others get 404.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	req, ok := h.load(w, r, id)
	if !ok {
		return
	}
	user, _ := middleware.GetUser(r.Context())
	if !auth.HasPermission(user.RoleName, auth.PermLeaveHistory) && req.EmployeeID != user.UserID {
		api.Fail(w, http.StatusNotFound, "not_found", "leave request not found", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	if _, ok := h.load(w, r, id); !ok {
		return
	}
	history, err := h.Service.History(r.Context(), id)
	if err != nil {
		failService(w, r, "leave_history_failed", "failed to load leave history", err)
		return
	}
	api.Success(w, history, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleHistoryPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	req, ok := h.load(w, r, id)
	if !ok {
		return
	}
	history, err := h.Service.History(r.Context(), id)
	if err != nil {
		failService(w, r, "leave_history_failed", "failed to load leave history", err)
		return
	}

	var buf bytes.Buffer
	if err := leave.RenderHistoryPDF(&buf, req, history); err != nil {
		failService(w, r, "leave_history_pdf_failed", "failed to render leave history", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="leave-%d-history.pdf"`, id))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		requestctx.Logger(r.Context()).Warn("write leave history pdf failed", "leaveId", id, "err", err)
	}
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request, id int64) (leave.LeaveRequest, bool) {
	req, err := h.Service.Get(r.Context(), id)
	if errors.Is(err, leave.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", "leave request not found", middleware.GetRequestID(r.Context()))
		return leave.LeaveRequest{}, false
	}
	if err != nil {
		failService(w, r, "leave_get_failed", "failed to load leave request", err)
		return leave.LeaveRequest{}, false
	}
	return req, true
}

func requestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "requestID"), 10, 64)
	if err != nil || id <= 0 {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "invalid leave request id", middleware.GetRequestID(r.Context()))
		return 0, false
	}
	return id, true
}

// decodeJSON reads the body into dst. An empty body is accepted when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request payload too large", middleware.GetRequestID(r.Context()))
		return false
	}
	api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
	return false
}

func writePage(w http.ResponseWriter, r *http.Request, rows []leave.Summary) {
	p := shared.ParsePagination(r, defaultPageSize, maxPageSize)
	api.SuccessPage(w, shared.Page(rows, p), api.Meta{Total: len(rows), Limit: p.Limit, Offset: p.Offset}, middleware.GetRequestID(r.Context()))
}

// failService maps engine errors: validation failures are the caller's fault,
// everything else is logged and reported as a server error.
func failService(w http.ResponseWriter, r *http.Request, code, message string, err error) {
	reqID := middleware.GetRequestID(r.Context())
	var verr *leave.ValidationError
	if errors.As(err, &verr) {
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: verr.Field, Reason: verr.Message}})
		return
	}
	requestctx.Logger(r.Context()).Error(code, "err", err)
	api.Fail(w, http.StatusInternalServerError, code, message, reqID)
}
