package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-files/pkg/filestore"
)

// uploadField is the multipart form field carrying the file
const uploadField = "file"

// FilesHandler exposes the file service over HTTP
type FilesHandler struct {
	service        filestore.Service
	logger         *slog.Logger
	idleTimeout    time.Duration
	maxUploadBytes int64
}

// HandlerOption configures a FilesHandler
type HandlerOption func(*FilesHandler)

// WithLogger sets the handler logger
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *FilesHandler) {
		h.logger = logger
	}
}

// WithIdleTimeout sets the deadline applied to each read of an upload and
// each write of a download
func WithIdleTimeout(d time.Duration) HandlerOption {
	return func(h *FilesHandler) {
		h.idleTimeout = d
	}
}

// WithMaxUploadBytes limits the size of upload request bodies
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *FilesHandler) {
		h.maxUploadBytes = n
	}
}

func NewFilesHandler(service filestore.Service, opts ...HandlerOption) *FilesHandler {
	h := &FilesHandler{service: service}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "api")
	return h
}

// Routes registers the file endpoints on r
func (h *FilesHandler) Routes(r chi.Router) {
	r.Post("/upload", h.Upload)
	r.Get("/files", h.ListFiles)
	r.Get("/files/{id}", h.GetFile)
	r.Get("/files/{id}/download", h.Download)
	r.Delete("/files/{id}", h.DeleteFile)
}

// FileResponse is the JSON form of a file record
type FileResponse struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

func toFileResponse(record *filestore.FileRecord) FileResponse {
	return FileResponse{
		ID:          record.ID,
		Filename:    record.Filename,
		ContentType: record.ContentType,
		SizeBytes:   record.SizeBytes,
		CreatedAt:   record.CreatedAt,
	}
}

// Upload streams the "file" part of a multipart request into the service
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		h.writeBadRequest(w, r, "expected multipart/form-data body")
		return
	}

	part, err := nextFilePart(mr)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, r, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		h.writeBadRequest(w, r, "no file uploaded")
		return
	}
	defer part.Close()

	contentType := part.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	body := newDeadlineReader(http.NewResponseController(w), part, h.idleTimeout)
	record, err := h.service.Upload(r.Context(), filestore.UploadRequest{
		Filename:    part.FileName(),
		ContentType: contentType,
		Body:        body,
	})
	if err != nil {
		var fe *filestore.FileError
		var maxErr *http.MaxBytesError
		if errors.As(err, &fe) && errors.As(fe.Cause(), &maxErr) {
			h.writeError(w, r, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toFileResponse(record))
}

// nextFilePart skips parts until the file field
func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == uploadField && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

func (h *FilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListFiles(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := make([]FileResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, toFileResponse(record))
	}
	render.JSON(w, r, resp)
}

func (h *FilesHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.GetFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	render.JSON(w, r, toFileResponse(record))
}

// Download streams the blob with attachment headers. Once bytes are on the
// wire a failure can only abort the connection.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, body, err := h.service.Download(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	defer body.Close()

	header := w.Header()
	header.Set("Content-Type", record.ContentType)
	header.Set("Content-Length", strconv.FormatInt(record.SizeBytes, 10))
	header.Set("Content-Disposition", contentDisposition(record.Filename))
	w.WriteHeader(http.StatusOK)

	out := newDeadlineWriter(http.NewResponseController(w), w, h.idleTimeout)
	if n, err := io.Copy(out, body); err != nil {
		h.logger.ErrorContext(r.Context(), "Download interrupted",
			"id", id,
			"bytes_sent", n,
			"size_bytes", record.SizeBytes,
			"error", err)
		panic(http.ErrAbortHandler)
	}
}

func (h *FilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteFile(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
