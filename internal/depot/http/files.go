package http

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/quartzlab/depot/internal/depot/domain"
	"github.com/quartzlab/depot/internal/depot/service"
	"github.com/quartzlab/depot/pkg/httpx"
	"github.com/quartzlab/depot/pkg/slogx"
)

// maxUploadBytes caps a whole multipart upload request.
const maxUploadBytes = 100 << 20

// multipartMemory is how much of a parsed form stays in memory before
// spilling to temp files.
const multipartMemory = 10 << 20

// FilesHandler serves the object plane endpoints under
// /v1/buckets/{bucket}.
type FilesHandler struct {
	Files *service.Files
}

type fileEntryResponse struct {
	domain.FileEntry
	CanDelete bool `json:"canDelete"`
}

// HandleList serves GET /v1/buckets/{bucket}/files.
func (h *FilesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	prefix := r.URL.Query().Get("prefix")
	recursive := r.URL.Query().Get("recursive") == "true"

	entries, err := h.Files.List(r.Context(), bucket, prefix, recursive)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	id := identityFromCtx(r.Context())
	out := make([]fileEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, fileEntryResponse{
			FileEntry: e,
			CanDelete: service.CanDelete(id, e.OwnerID),
		})
	}

	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleUpload serves POST /v1/buckets/{bucket}/files. Accepts one or
// more files in the "files" multipart field; each file becomes an object
// keyed by its (optionally prefixed) filename.
func (h *FilesHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	log := slogx.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeBadRequest(w)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.Warn("cleaning multipart temp files failed", "err", err)
		}
	}()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeBadRequest(w)
		return
	}

	// An optional folder prefix for every file in the batch.
	prefix := r.FormValue("prefix")

	id := identityFromCtx(r.Context())
	uploaded := make([]domain.ObjectInfo, 0, len(headers))

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeBadRequest(w)
			return
		}

		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeBadRequest(w)
			return
		}

		key := path.Base(fh.Filename)
		if prefix != "" {
			key = prefix + key
		}

		contentType := fh.Header.Get("Content-Type")
		if contentType == "" {
			contentType = mime.TypeByExtension(path.Ext(key))
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		info, err := h.Files.Upload(r.Context(), id, bucket, key, data, contentType)
		if err != nil {
			writeServiceError(r.Context(), w, err)
			return
		}
		uploaded = append(uploaded, info)
	}

	httpx.WriteJSON(w, http.StatusCreated, uploaded)
}

// HandleDownload serves GET /v1/buckets/{bucket}/object?key=.
func (h *FilesHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	key := r.URL.Query().Get("key")
	if key == "" {
		writeBadRequest(w)
		return
	}

	obj, err := h.Files.Download(r.Context(), bucket, key)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	defer obj.Body.Close()

	if obj.Info.ContentType != "" {
		w.Header().Set("Content-Type", obj.Info.ContentType)
	}
	if obj.Info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Info.Size, 10))
	}
	if obj.Info.ETag != "" {
		w.Header().Set("ETag", obj.Info.ETag)
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", path.Base(key)))

	if _, err := io.Copy(w, obj.Body); err != nil {
		// Headers are gone; nothing left to do but log.
		slogx.FromContext(r.Context()).Warn("object stream interrupted",
			"bucket", bucket, "key", key, "err", err)
	}
}

// HandleDeleteKey serves DELETE /v1/buckets/{bucket}/key?key=.
func (h *FilesHandler) HandleDeleteKey(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	key := r.URL.Query().Get("key")
	if key == "" {
		writeBadRequest(w)
		return
	}

	id := identityFromCtx(r.Context())
	if err := h.Files.Delete(r.Context(), id, bucket, []string{key}); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteFolder serves DELETE /v1/buckets/{bucket}/folder?prefix=.
func (h *FilesHandler) HandleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		writeBadRequest(w)
		return
	}

	id := identityFromCtx(r.Context())
	if err := h.Files.DeletePrefix(r.Context(), id, bucket, prefix); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
