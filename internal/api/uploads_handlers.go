package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
)

const maxUploadBytes = 256 << 20

var uploadKinds = map[string]string{
	"video":     "videos",
	"thumbnail": "thumbnails",
	"avatar":    "avatars",
	"cover":     "covers",
}

// HandleUploads accepts multipart media uploads and stores them in object
// storage. Returns 503 when no object storage backend is configured.
func (h *Handler) HandleUploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if !h.Store.ObjectStorageEnabled() {
		writeError(w, http.StatusServiceUnavailable, errors.New("object storage is not configured"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse multipart form: %w", err))
		return
	}
	kind := r.FormValue("kind")
	folder, ok := uploadKinds[kind]
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown upload kind %q", kind))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("file field is required"))
		return
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	ext := strings.ToLower(path.Ext(header.Filename))
	key := fmt.Sprintf("%s/%s/%s%s", folder, user.ID, uuid.NewString(), ext)

	h.recorder().ObserveUploadAttempt(kind)
	ref, err := h.Store.UploadObject(r.Context(), key, contentType, body)
	if err != nil {
		h.recorder().ObserveUploadFailure(kind)
		writeError(w, http.StatusBadGateway, fmt.Errorf("store upload: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, ref, "upload stored")
}
