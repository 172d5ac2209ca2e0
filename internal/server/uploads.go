package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"orderline/internal/logger"
	"orderline/internal/media"
)

// sniffLen is how much of a part DetectContentType looks at.
const sniffLen = 512

// registerUploads mounts the multipart upload endpoint as a plain chi handler
// behind the same middleware.
func registerUploads(router chi.Router, basePath string, store media.Store, log *zap.Logger) {
	router.Post(path.Join(basePath, "uploads"), func(w http.ResponseWriter, req *http.Request) {
		if store == nil {
			respondStatusError(w, newAPIError(http.StatusNotFound, "", "uploads are not configured", nil))
			return
		}
		actorID, authErr := actorIDFromContext(req.Context())
		if authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		req.Body = http.MaxBytesReader(w, req.Body, media.MaxUploadBytes+1<<20)
		mr, err := req.MultipartReader()
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "", "multipart/form-data body required", nil))
			return
		}

		var prefix string
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				respondUploadError(w, log, err)
				return
			}
			switch part.FormName() {
			case "prefix":
				b, err := io.ReadAll(io.LimitReader(part, 256))
				if err != nil {
					respondUploadError(w, log, err)
					return
				}
				prefix = strings.TrimSpace(string(b))
			case "file":
				res, err := storePart(req, store, prefix, part)
				if err != nil {
					respondUploadError(w, log, err)
					return
				}
				logger.FromContext(req.Context()).Info("upload stored",
					zap.String("actor_id", actorID),
					zap.String("key", res.Key),
					zap.String("content_type", res.ContentType))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				_ = json.NewEncoder(w).Encode(res)
				return
			}
		}
		respondStatusError(w, newAPIError(http.StatusUnprocessableEntity, "validation_failed", "file is required", map[string]any{"field": "file"}))
	})
}

func storePart(req *http.Request, store media.Store, prefix string, part io.Reader) (UploadResponse, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(part, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return UploadResponse{}, err
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	key, err := media.ObjectKey(prefix, contentType)
	if err != nil {
		return UploadResponse{}, err
	}
	url, err := store.Put(req.Context(), key, contentType, io.MultiReader(bytes.NewReader(head), part))
	if err != nil {
		return UploadResponse{}, err
	}
	return UploadResponse{URL: url, Key: key, ContentType: contentType}, nil
}

func respondUploadError(w http.ResponseWriter, log *zap.Logger, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, media.ErrUnsupportedType):
		respondStatusError(w, newAPIError(http.StatusUnprocessableEntity, "validation_failed", "only jpeg, png, webp and gif images are accepted", map[string]any{"field": "file"}))
	case errors.Is(err, media.ErrInvalidKey):
		respondStatusError(w, newAPIError(http.StatusUnprocessableEntity, "validation_failed", "invalid upload prefix", map[string]any{"field": "prefix"}))
	case errors.Is(err, media.ErrTooLarge), errors.As(err, &maxErr):
		respondStatusError(w, newAPIError(http.StatusRequestEntityTooLarge, "too_large", "upload exceeds the size limit", nil))
	default:
		log.Error("upload failed", zap.Error(err))
		respondStatusError(w, newAPIError(http.StatusInternalServerError, "", "upload failed", nil))
	}
}
