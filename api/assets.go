package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/staffdir/pkg/repository"
)

type AssetHandler struct {
	reader repository.AssetReader
}

func NewAssetHandler(reader repository.AssetReader) *AssetHandler {
	return &AssetHandler{reader: reader}
}

// Get streams a stored photo.
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	rc, contentType, err := h.reader.OpenAsset(r.Context(), mux.Vars(r)["ref"])
	if err != nil {
		writeError(w, r, "failed to load photo", err)
		return
	}
	defer rc.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logger.Warn("stream photo", "err", err)
	}
}
