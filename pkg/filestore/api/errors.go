package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-files/pkg/filestore"
)

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusFor maps a service error to an HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, filestore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, filestore.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, filestore.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *FilesHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)

	attrs := []any{"method", r.Method, "path", r.URL.Path, "status", status, "error", err}
	var fe *filestore.FileError
	if errors.As(err, &fe) && fe.Cause() != nil {
		attrs = append(attrs, "cause", fe.Cause())
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Request failed", attrs...)
	} else {
		h.logger.DebugContext(r.Context(), "Request rejected", attrs...)
	}

	// Store causes stay in the logs
	message := http.StatusText(status)
	if kind := filestore.KindOf(err); kind != nil {
		message = kind.Error()
	}
	h.writeError(w, r, status, message)
}

func (h *FilesHandler) writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	h.writeError(w, r, http.StatusBadRequest, message)
}

func (h *FilesHandler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message})
}
