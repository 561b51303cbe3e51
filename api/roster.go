package api

import (
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/garnizeh/staffdir/internal/roster"
	"github.com/garnizeh/staffdir/pkg/models"
)

// multipart overhead allowed on top of the photo limit
const formOverhead = 1 << 20

type RosterHandler struct {
	dir       *roster.Directory
	maxUpload int64
}

func NewRosterHandler(dir *roster.Directory, maxUpload int64) *RosterHandler {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &RosterHandler{dir: dir, maxUpload: maxUpload}
}

type listResponse struct {
	roster.Result
	PageNumbers []roster.PageItem `json:"pageNumbers"`
}

func (h *RosterHandler) List(w http.ResponseWriter, r *http.Request) {
	p := roster.ParseQueryParams(r.URL.Query())
	res, err := h.dir.Query(r.Context(), p)
	if err != nil {
		writeError(w, r, "failed to load roster", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{
		Result:      res,
		PageNumbers: roster.PageNumbers(res.Pagination.Page, res.Pagination.TotalPages, roster.DefaultPageDelta),
	})
}

func (h *RosterHandler) Positions(w http.ResponseWriter, r *http.Request) {
	labels, err := h.dir.Positions(r.Context())
	if err != nil {
		writeError(w, r, "failed to load positions", err)
		return
	}
	writeJSON(w, http.StatusOK, labels)
}

func (h *RosterHandler) Departments(w http.ResponseWriter, r *http.Request) {
	labels, err := h.dir.Departments(r.Context())
	if err != nil {
		writeError(w, r, "failed to load departments", err)
		return
	}
	writeJSON(w, http.StatusOK, labels)
}

func (h *RosterHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, up, err := h.readPerson(w, r)
	if err != nil {
		h.badInput(w, r, err)
		return
	}
	p, err := h.dir.Add(r.Context(), in, up)
	if err != nil {
		writeError(w, r, "failed to add person", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *RosterHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	in, up, err := h.readPerson(w, r)
	if err != nil {
		h.badInput(w, r, err)
		return
	}
	p, err := h.dir.Edit(r.Context(), id, in, up)
	if err != nil {
		writeError(w, r, "failed to update person", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *RosterHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.dir.Delete(r.Context(), id); err != nil {
		writeError(w, r, "failed to delete person", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *RosterHandler) badInput(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
		return
	}
	var verr *roster.ValidationError
	if errors.As(err, &verr) {
		writeError(w, r, "invalid request", err)
		return
	}
	http.Error(w, "Invalid request", http.StatusBadRequest)
}

// personPayload is the JSON form of a person write. Profile optionally holds
// the photo as base64 or as a data URL.
type personPayload struct {
	models.Person
	Profile string `json:"profile,omitempty"`
}

func (h *RosterHandler) readPerson(w http.ResponseWriter, r *http.Request) (models.Person, *roster.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload*4/3+formOverhead)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		return h.readMultipart(r)
	}

	var pl personPayload
	if err := decodeJSON(r, &pl); err != nil {
		return models.Person{}, nil, err
	}
	if pl.Profile == "" {
		return pl.Person, nil, nil
	}
	data, err := decodeDataURL(pl.Profile)
	if err != nil {
		return models.Person{}, nil, roster.NewValidationError("profile", "profile must be base64 image data")
	}
	return pl.Person, &roster.Upload{Data: data}, nil
}

func decodeDataURL(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		i := strings.IndexByte(s, ',')
		if i < 0 {
			return nil, errors.New("malformed data url")
		}
		s = s[i+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}

func (h *RosterHandler) readMultipart(r *http.Request) (models.Person, *roster.Upload, error) {
	if err := r.ParseMultipartForm(h.maxUpload + formOverhead); err != nil {
		return models.Person{}, nil, err
	}
	p := models.Person{
		FirstName:  strings.TrimSpace(r.FormValue("firstName")),
		LastName:   strings.TrimSpace(r.FormValue("lastName")),
		NickName:   strings.TrimSpace(r.FormValue("nickName")),
		Position:   strings.TrimSpace(r.FormValue("position")),
		Department: strings.TrimSpace(r.FormValue("department")),
		Email:      strings.TrimSpace(r.FormValue("email")),
		Phone:      strings.TrimSpace(r.FormValue("phone")),
	}

	f, hdr, err := r.FormFile("profile")
	if errors.Is(err, http.ErrMissingFile) {
		return p, nil, nil
	}
	if err != nil {
		return models.Person{}, nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return models.Person{}, nil, err
	}
	return p, &roster.Upload{Data: data, MimeType: hdr.Header.Get("Content-Type")}, nil
}
