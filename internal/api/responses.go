package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/snarg/voxguide/internal/capture"
	"github.com/snarg/voxguide/internal/catalog"
	"github.com/snarg/voxguide/internal/pipeline"
	"github.com/snarg/voxguide/internal/playback"
	"github.com/snarg/voxguide/internal/translate"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteErrorDetail writes a JSON error response with detail.
func WriteErrorDetail(w http.ResponseWriter, status int, msg, detail string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Detail: detail})
}

// WriteText writes a plain-text download with the given file name.
func WriteText(w http.ResponseWriter, filename, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// WritePipelineError maps pipeline errors to HTTP statuses. Anything
// unrecognised is a 500.
func WritePipelineError(w http.ResponseWriter, err error) {
	var langErr *translate.LanguageError
	switch {
	case errors.Is(err, pipeline.ErrNoClient):
		WriteError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, capture.ErrUnsupported), errors.Is(err, playback.ErrUnsupported):
		WriteError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, playback.ErrNotActive):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pipeline.ErrNoResult):
		WriteErrorDetail(w, http.StatusBadRequest, "invalid result index", err.Error())
	case errors.As(err, &langErr):
		WriteErrorDetail(w, http.StatusBadGateway, "translation failed", langErr.Error())
	default:
		WriteErrorDetail(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

// QueryInt extracts an integer query parameter. Returns 0, false if missing or invalid.
func QueryInt(r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// QueryBool extracts a boolean query parameter.
func QueryBool(r *http.Request, name string) (bool, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// QueryString extracts a non-empty string query parameter.
func QueryString(r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", false
	}
	return v, true
}

// QueryStringList extracts a comma-separated list of strings from a query param.
func QueryStringList(r *http.Request, name string) []string {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// QueryStringListAliased tries each name in order, returning the first non-empty result.
func QueryStringListAliased(r *http.Request, names ...string) []string {
	for _, name := range names {
		if result := QueryStringList(r, name); len(result) > 0 {
			return result
		}
	}
	return nil
}

// DecodeJSON reads and decodes a JSON request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// DecodeOptionalJSON decodes the body into v when one is present. An empty
// body leaves v untouched.
func DecodeOptionalJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
