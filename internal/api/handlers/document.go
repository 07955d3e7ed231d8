package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/coursetutor/internal/api"
	"github.com/cloo-solutions/coursetutor/internal/api/middleware"
	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/service"
	"github.com/go-chi/chi/v5"
)

type DocumentService interface {
	List(ctx context.Context, p domain.Principal, input service.ListDocumentsInput) (*service.ListDocumentsOutput, error)
	Get(ctx context.Context, p domain.Principal, courseID, documentID string) (*domain.Document, error)
	SetAvailability(ctx context.Context, p domain.Principal, courseID, documentID string, available bool) (*domain.Document, error)
	Delete(ctx context.Context, p domain.Principal, courseID, documentID string) error
}

type IngestionService interface {
	Upload(ctx context.Context, p domain.Principal, input service.UploadInput) (*domain.Document, error)
}

type PayloadReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// URLSigner issues time-limited download links. When nil, payloads are
// streamed through the API.
type URLSigner interface {
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
}

type DocumentHandler struct {
	documents DocumentService
	ingestion IngestionService
	payloads  PayloadReader
	signer    URLSigner
	maxUpload int64
}

func NewDocumentHandler(documents DocumentService, ingestion IngestionService, payloads PayloadReader, signer URLSigner, maxUpload int64) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		ingestion: ingestion,
		payloads:  payloads,
		signer:    signer,
		maxUpload: maxUpload,
	}
}

type DocumentResponse struct {
	ID            string `json:"id"`
	CourseID      string `json:"course_id"`
	Name          string `json:"name"`
	ContentType   string `json:"content_type"`
	SizeBytes     int64  `json:"size_bytes"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	Available     bool   `json:"available"`
	Summary       string `json:"summary,omitempty"`
	IsHomework    bool   `json:"is_homework"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type ListDocumentsResponse struct {
	Items   []DocumentResponse `json:"items"`
	Cursor  string             `json:"cursor,omitempty"`
	HasMore bool               `json:"has_more"`
}

type AvailabilityRequest struct {
	Available *bool `json:"available"`
}

func documentToResponse(d *domain.Document) DocumentResponse {
	return DocumentResponse{
		ID:            d.ID,
		CourseID:      d.CourseID,
		Name:          d.Name,
		ContentType:   d.ContentType,
		SizeBytes:     d.SizeBytes,
		Status:        string(d.Status),
		FailureReason: d.FailureReason,
		Available:     d.Available,
		Summary:       d.Summary,
		IsHomework:    d.IsHomework,
		CreatedAt:     d.CreatedAt.Format(timeFormat),
		UpdatedAt:     d.UpdatedAt.Format(timeFormat),
	}
}

// Upload accepts a multipart form with a "file" part. The response is 202:
// ingestion continues in the background.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "failed to read file")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(payload)
	}

	doc, err := h.ingestion.Upload(r.Context(), middleware.GetPrincipal(r.Context()), service.UploadInput{
		CourseID:    chi.URLParam(r, "courseID"),
		Name:        name,
		ContentType: contentType,
		Payload:     payload,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, documentToResponse(doc))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.documents.List(r.Context(), middleware.GetPrincipal(r.Context()), service.ListDocumentsInput{
		CourseID: chi.URLParam(r, "courseID"),
		Cursor:   r.URL.Query().Get("cursor"),
		Limit:    queryInt(r, "limit", 0),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]DocumentResponse, len(out.Items))
	for i, d := range out.Items {
		items[i] = documentToResponse(d)
	}
	api.Success(w, http.StatusOK, ListDocumentsResponse{Items: items, Cursor: out.Cursor, HasMore: out.HasMore})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documents.Get(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "courseID"), chi.URLParam(r, "documentID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Available == nil {
		api.Error(w, http.StatusBadRequest, "available is required")
		return
	}

	doc, err := h.documents.SetAvailability(r.Context(), middleware.GetPrincipal(r.Context()),
		chi.URLParam(r, "courseID"), chi.URLParam(r, "documentID"), *req.Available)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.documents.Delete(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "courseID"), chi.URLParam(r, "documentID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Download redirects to a presigned URL when a signer is configured and
// otherwise writes the stored payload.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documents.Get(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "courseID"), chi.URLParam(r, "documentID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if h.signer != nil {
		url, err := h.signer.GenerateDownloadURL(r.Context(), doc.BlobKey)
		if err != nil {
			api.HandleError(w, domain.ErrStorageOperationFail.WithCause(err))
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	payload, err := h.payloads.Get(r.Context(), doc.BlobKey)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Name))
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}
