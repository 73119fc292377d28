// Package api exposes read models and edit sessions over a JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"logalert/internal/catalog"
	"logalert/internal/domain"
	"logalert/internal/resolver"
	"logalert/internal/session"
	"logalert/internal/view"
)

// SessionTokenHeader optionally pins a mutation to the session it was issued for.
const SessionTokenHeader = "X-Session-Token"

// Backend provides sessions and read models to the HTTP layer.
type Backend interface {
	Settings() *session.Session
	SettingsForm() view.Form
	NotificationSession(ctx context.Context, id string) (*session.Session, error)
	Notification(ctx context.Context, id string) (domain.Notification, error)
	NotificationForm(ctx context.Context, id string) (view.Form, error)
	NotificationSummary(ctx context.Context, id string) (view.Summary, error)
	NotificationDetails(ctx context.Context, id string) (view.Details, error)
	ListNotifications(ctx context.Context) ([]domain.Notification, error)
	PutDefinition(ctx context.Context, notification domain.Notification) (bool, error)
	DeleteNotification(ctx context.Context, id string) error
	Catalogs() catalog.FieldCatalog
	GlobalDefaultsState() (resolver.GlobalState, error)
}

// Options configures API routing and limits.
type Options struct {
	Prefix            string
	PermissionsHeader string
	MaxBodyBytes      int64
	Logger            *slog.Logger
}

// Handler routes API requests to the backend.
type Handler struct {
	backend           Backend
	mux               *http.ServeMux
	prefix            string
	permissionsHeader string
	maxBodyBytes      int64
	logger            *slog.Logger
}

type sessionLookup func(request *http.Request) (*session.Session, error)
type formRenderer func(request *http.Request) (view.Form, error)

type sessionState struct {
	State     session.State `json:"state"`
	Token     string        `json:"token,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

type sessionResponse struct {
	Session sessionState `json:"session"`
	Form    view.Form    `json:"form"`
}

type globalDefaults struct {
	State resolver.GlobalState `json:"state"`
	Error string               `json:"error,omitempty"`
}

type notificationResponse struct {
	Notification   domain.Notification `json:"notification"`
	Form           view.Form           `json:"form"`
	Session        sessionState        `json:"session"`
	GlobalDefaults globalDefaults      `json:"global_defaults"`
}

type editEvent struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

type definitionRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type catalogResponse struct {
	Status  catalog.Status   `json:"status"`
	Options []catalog.Option `json:"options"`
	Error   string           `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// NewHandler creates API router.
// Params: backend and routing options; prefix defaults to "/api".
// Returns: handler serving every API route under prefix.
func NewHandler(backend Backend, opts Options) *Handler {
	prefix := "/" + strings.Trim(opts.Prefix, "/")
	if prefix == "/" {
		prefix = "/api"
	}
	header := opts.PermissionsHeader
	if header == "" {
		header = "X-Permissions"
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		backend:           backend,
		mux:               http.NewServeMux(),
		prefix:            prefix,
		permissionsHeader: header,
		maxBodyBytes:      maxBody,
		logger:            logger.With("component", "api"),
	}
	h.routes()
	return h
}

// ServeHTTP dispatches one request.
func (h *Handler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	h.mux.ServeHTTP(writer, request)
}

func (h *Handler) routes() {
	settingsSession := func(*http.Request) (*session.Session, error) { return h.backend.Settings(), nil }
	settingsForm := func(*http.Request) (view.Form, error) { return h.backend.SettingsForm(), nil }
	notificationSession := func(request *http.Request) (*session.Session, error) {
		return h.backend.NotificationSession(request.Context(), request.PathValue("id"))
	}
	notificationForm := func(request *http.Request) (view.Form, error) {
		return h.backend.NotificationForm(request.Context(), request.PathValue("id"))
	}

	h.handle("GET", "/settings", h.getSessionForm(settingsSession, settingsForm))
	h.sessionRoutes("/settings/session", settingsSession, settingsForm)

	h.handle("GET", "/notifications", h.listNotifications)
	h.handle("GET", "/notifications/{id}", h.getNotification)
	h.handle("PUT", "/notifications/{id}", h.putNotification)
	h.handle("DELETE", "/notifications/{id}", h.deleteNotification)
	h.handle("GET", "/notifications/{id}/summary", func(writer http.ResponseWriter, request *http.Request) {
		summary, err := h.backend.NotificationSummary(request.Context(), request.PathValue("id"))
		h.respond(writer, request, http.StatusOK, summary, err)
	})
	h.handle("GET", "/notifications/{id}/details", func(writer http.ResponseWriter, request *http.Request) {
		details, err := h.backend.NotificationDetails(request.Context(), request.PathValue("id"))
		h.respond(writer, request, http.StatusOK, details, err)
	})
	h.sessionRoutes("/notifications/{id}/session", notificationSession, notificationForm)

	h.handle("GET", "/catalog/streams", h.getCatalog(func(c catalog.FieldCatalog) *catalog.Catalog { return c.Streams }))
	h.handle("GET", "/catalog/fields", h.getCatalog(func(c catalog.FieldCatalog) *catalog.Catalog { return c.Fields }))
}

func (h *Handler) handle(method, path string, handler http.HandlerFunc) {
	h.mux.HandleFunc(method+" "+h.prefix+path, handler)
}

func (h *Handler) sessionRoutes(path string, lookup sessionLookup, render formRenderer) {
	h.handle("POST", path, h.openSession(lookup, render))
	h.handle("PATCH", path, h.editSession(lookup, render))
	h.handle("POST", path+"/save", h.saveSession(lookup, render))
	h.handle("DELETE", path, h.cancelSession(lookup))
}

func (h *Handler) getSessionForm(lookup sessionLookup, render formRenderer) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		sess, err := lookup(request)
		if err != nil {
			h.fail(writer, request, err)
			return
		}
		h.writeSession(writer, request, http.StatusOK, sess, render)
	}
}

func (h *Handler) openSession(lookup sessionLookup, render formRenderer) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		sess, err := lookup(request)
		if err != nil {
			h.fail(writer, request, err)
			return
		}
		if _, err := sess.Open(h.authorizer(request)); err != nil {
			h.fail(writer, request, err)
			return
		}
		h.writeSession(writer, request, http.StatusOK, sess, render)
	}
}

func (h *Handler) editSession(lookup sessionLookup, render formRenderer) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		sess, err := h.mutableSession(request, lookup)
		if err != nil {
			h.fail(writer, request, err)
			return
		}
		var event editEvent
		if err := h.decodeJSON(writer, request, &event); err != nil {
			h.fail(writer, request, err)
			return
		}
		field, err := domain.ParseField(event.Field)
		if err != nil {
			h.fail(writer, request, badRequest{err: err})
			return
		}
		if len(event.Value) == 0 || string(event.Value) == "null" {
			err = sess.Unset(field)
		} else {
			var value any
			value, err = domain.DecodeValue(field, event.Value)
			if err != nil {
				h.fail(writer, request, badRequest{err: err})
				return
			}
			err = sess.Edit(field, value)
		}
		if err != nil {
			h.fail(writer, request, err)
			return
		}
		h.writeSession(writer, request, http.StatusOK, sess, render)
	}
}

func (h *Handler) saveSession(lookup sessionLookup, render formRenderer) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		sess, err := h.mutableSession(request, lookup)
		if err != nil {
			h.fail(writer, request, err)
			return
		}
		if err := sess.Save(request.Context()); err != nil {
			h.fail(writer, request, err)
			return
		}
		h.writeSession(writer, request, http.StatusOK, sess, render)
	}
}

func (h *Handler) cancelSession(lookup sessionLookup) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		sess, err := h.mutableSession(request, lookup)
		if err != nil {
			h.fail(writer, request, err)
			return
		}
		if err := sess.Cancel(); err != nil {
			h.fail(writer, request, err)
			return
		}
		writer.WriteHeader(http.StatusNoContent)
	}
}

// mutableSession checks permission and the optional session token before a mutation.
func (h *Handler) mutableSession(request *http.Request, lookup sessionLookup) (*session.Session, error) {
	sess, err := lookup(request)
	if err != nil {
		return nil, err
	}
	if !h.authorizer(request).IsPermitted(sess.Permission()) {
		return nil, fmt.Errorf("%w: %s", session.ErrForbidden, sess.Permission())
	}
	if token := request.Header.Get(SessionTokenHeader); token != "" && token != sess.Token() {
		return nil, session.ErrSuperseded
	}
	return sess, nil
}

func (h *Handler) writeSession(writer http.ResponseWriter, request *http.Request, status int, sess *session.Session, render formRenderer) {
	form, err := render(request)
	if err != nil {
		h.fail(writer, request, err)
		return
	}
	writeJSON(writer, status, sessionResponse{Session: stateOf(sess), Form: form})
}

func stateOf(sess *session.Session) sessionState {
	out := sessionState{State: sess.State(), Token: sess.Token()}
	if err := sess.LastError(); err != nil {
		out.LastError = err.Error()
	}
	return out
}

func (h *Handler) listNotifications(writer http.ResponseWriter, request *http.Request) {
	notifications, err := h.backend.ListNotifications(request.Context())
	if err != nil {
		h.fail(writer, request, err)
		return
	}
	summaries := make([]view.Summary, 0, len(notifications))
	for _, notification := range notifications {
		summary, err := h.backend.NotificationSummary(request.Context(), notification.ID)
		if err != nil {
			h.fail(writer, request, err)
			return
		}
		summaries = append(summaries, summary)
	}
	writeJSON(writer, http.StatusOK, summaries)
}

func (h *Handler) getNotification(writer http.ResponseWriter, request *http.Request) {
	id := request.PathValue("id")
	notification, err := h.backend.Notification(request.Context(), id)
	if err != nil {
		h.fail(writer, request, err)
		return
	}
	sess, err := h.backend.NotificationSession(request.Context(), id)
	if err != nil {
		h.fail(writer, request, err)
		return
	}
	form, err := h.backend.NotificationForm(request.Context(), id)
	if err != nil {
		h.fail(writer, request, err)
		return
	}
	state, loadErr := h.backend.GlobalDefaultsState()
	defaults := globalDefaults{State: state}
	if loadErr != nil {
		defaults.Error = loadErr.Error()
	}
	writeJSON(writer, http.StatusOK, notificationResponse{
		Notification:   notification,
		Form:           form,
		Session:        stateOf(sess),
		GlobalDefaults: defaults,
	})
}

func (h *Handler) putNotification(writer http.ResponseWriter, request *http.Request) {
	if !h.authorizer(request).IsPermitted(session.PermissionNotificationsEdit) {
		h.fail(writer, request, fmt.Errorf("%w: %s", session.ErrForbidden, session.PermissionNotificationsEdit))
		return
	}
	var body definitionRequest
	if err := h.decodeJSON(writer, request, &body); err != nil {
		h.fail(writer, request, err)
		return
	}
	notification := domain.Notification{ID: request.PathValue("id"), Title: body.Title, Description: body.Description}
	created, err := h.backend.PutDefinition(request.Context(), notification)
	if err != nil {
		h.fail(writer, request, err)
		return
	}
	stored, err := h.backend.Notification(request.Context(), notification.ID)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.respond(writer, request, status, stored, err)
}

func (h *Handler) deleteNotification(writer http.ResponseWriter, request *http.Request) {
	if !h.authorizer(request).IsPermitted(session.PermissionNotificationsEdit) {
		h.fail(writer, request, fmt.Errorf("%w: %s", session.ErrForbidden, session.PermissionNotificationsEdit))
		return
	}
	if err := h.backend.DeleteNotification(request.Context(), request.PathValue("id")); err != nil {
		h.fail(writer, request, err)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getCatalog(pick func(catalog.FieldCatalog) *catalog.Catalog) http.HandlerFunc {
	return func(writer http.ResponseWriter, _ *http.Request) {
		snapshot := pick(h.backend.Catalogs()).Snapshot()
		body := catalogResponse{Status: snapshot.Status, Options: snapshot.Options}
		status := http.StatusOK
		switch snapshot.Status {
		case catalog.StatusLoading:
			status = http.StatusAccepted
		case catalog.StatusFailed:
			status = http.StatusServiceUnavailable
			if snapshot.Err != nil {
				body.Error = snapshot.Err.Error()
			}
		}
		writeJSON(writer, status, body)
	}
}

func (h *Handler) decodeJSON(writer http.ResponseWriter, request *http.Request, dst any) error {
	request.Body = http.MaxBytesReader(writer, request.Body, h.maxBodyBytes)
	defer request.Body.Close()
	decoder := json.NewDecoder(request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest{err: errors.New("request body is empty")}
		}
		return badRequest{err: fmt.Errorf("decode request: %w", err)}
	}
	return nil
}

func (h *Handler) respond(writer http.ResponseWriter, request *http.Request, status int, body any, err error) {
	if err != nil {
		h.fail(writer, request, err)
		return
	}
	writeJSON(writer, status, body)
}

func (h *Handler) fail(writer http.ResponseWriter, request *http.Request, err error) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error()}
	var validation *session.ValidationError
	if errors.As(err, &validation) {
		body.Field = string(validation.Field)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("api request failed", "method", request.Method, "path", request.URL.Path, "status", status, "error", err.Error())
	} else {
		h.logger.Debug("api request rejected", "method", request.Method, "path", request.URL.Path, "status", status, "error", err.Error())
	}
	writeJSON(writer, status, body)
}

func writeJSON(writer http.ResponseWriter, status int, body any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(body)
}
