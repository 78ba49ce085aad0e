package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/folienwerk/backend-shop/internal/common"
	"github.com/folienwerk/backend-shop/internal/obs"
	"github.com/folienwerk/backend-shop/internal/store"
)

// Handler accepts print design uploads and serves them back to their owner.
type Handler struct {
	Uploads *store.UploadRepo
	Store   Storage
	MaxSize int64
	Logger  zerolog.Logger
}

// Routes mounts the upload routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{uploadID}", h.download)
}

// UploadView is the metadata returned after a successful upload.
type UploadView struct {
	ID       uuid.UUID `json:"id"`
	FileName string    `json:"fileName"`
	MimeType string    `json:"mimeType"`
	SizeBytes int64    `json:"sizeBytes"`
	WidthPx  *int      `json:"widthPx,omitempty"`
	HeightPx *int      `json:"heightPx,omitempty"`
}

func (h *Handler) countResult(result string) {
	if obs.UploadTotal != nil {
		obs.UploadTotal.WithLabelValues(result).Inc()
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	userID, hasUser := common.UserID(r.Context())
	anonID, hasAnon := common.AnonID(r.Context())
	if !hasUser && !hasAnon {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "session required", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxSize+1)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.countResult("rejected")
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "multipart field 'file' required", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.countResult("rejected")
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "read upload", nil)
		return
	}

	info, err := ValidateFile(data, h.MaxSize)
	if err != nil {
		h.countResult("rejected")
		switch {
		case errors.Is(err, ErrTooLarge):
			common.JSONError(w, http.StatusRequestEntityTooLarge, common.CodeValidation, "file exceeds the size limit", nil)
		default:
			common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, "unsupported file type, use PNG, JPEG, PDF or SVG", nil)
		}
		return
	}

	id := uuid.New()
	key := fmt.Sprintf("%s/%s%s", id.String()[:2], id, path.Ext(header.Filename))
	if err := h.Store.Save(r.Context(), key, bytes.NewReader(data)); err != nil {
		h.countResult("error")
		h.Logger.Error().Err(err).Str("key", key).Msg("store upload")
		common.RenderError(w, err)
		return
	}

	rec := store.Upload{
		FileName:    path.Base(header.Filename),
		StoragePath: key,
		MimeType:    info.MimeType,
		SizeBytes:   info.SizeBytes,
		WidthPx:     info.WidthPx,
		HeightPx:    info.HeightPx,
	}
	if hasUser {
		rec.UserID = &userID
	} else {
		rec.AnonID = &anonID
	}
	created, err := h.Uploads.Create(r.Context(), rec)
	if err != nil {
		h.countResult("error")
		_ = h.Store.Delete(r.Context(), key)
		common.RenderError(w, err)
		return
	}

	h.countResult("accepted")
	common.JSON(w, http.StatusCreated, UploadView{
		ID:        created.ID,
		FileName:  created.FileName,
		MimeType:  created.MimeType,
		SizeBytes: created.SizeBytes,
		WidthPx:   created.WidthPx,
		HeightPx:  created.HeightPx,
	})
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "uploadID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid upload id", nil)
		return
	}
	var userPtr *uuid.UUID
	var anonPtr *string
	if userID, ok := common.UserID(r.Context()); ok {
		userPtr = &userID
	}
	if anonID, ok := common.AnonID(r.Context()); ok {
		anonPtr = &anonID
	}
	if userPtr == nil && anonPtr == nil {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "session required", nil)
		return
	}

	rec, err := h.Uploads.GetForOwner(r.Context(), id, userPtr, anonPtr)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "upload not found", nil)
			return
		}
		common.RenderError(w, err)
		return
	}

	blob, err := h.Store.Open(r.Context(), rec.StoragePath)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	defer blob.Close()

	w.Header().Set("Content-Type", rec.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.FileName))
	_, _ = io.Copy(w, blob)
}
