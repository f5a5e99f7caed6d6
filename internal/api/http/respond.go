package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// statusFor maps a domain error kind to its HTTP status. Anything without a
// kind is an internal failure.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrorKindValidation:
		return http.StatusBadRequest
	case domain.ErrorKindPermission:
		return http.StatusForbidden
	case domain.ErrorKindNotFound:
		return http.StatusNotFound
	case domain.ErrorKindConflict, domain.ErrorKindCapacityExceeded,
		domain.ErrorKindCapacityConflict, domain.ErrorKindOverpayment:
		return http.StatusConflict
	case domain.ErrorKindInvalidState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	body := errorBody{Kind: string(kind), Message: err.Error()}
	var de *domain.Error
	if errors.As(err, &de) {
		body.Message = de.Message
	}
	if kind == "" {
		logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body = errorBody{Kind: "INTERNAL", Message: "internal server error"}
	}
	writeJSON(w, status, errorEnvelope{Error: body})
}

func writeUnauthenticated(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, errorEnvelope{Error: errorBody{Kind: "UNAUTHENTICATED", Message: msg}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.ValidationError("request body is required")
		}
		return domain.ValidationError("malformed request body: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	raw := mux.Vars(r)[name]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.ValidationError("%s %q is not a valid id", name, raw)
	}
	return id, nil
}

func queryID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, domain.ValidationError("%s %q is not a valid id", name, raw)
	}
	return &id, nil
}

func queryInt(r *http.Request, name string) (int32, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, domain.ValidationError("%s must be an integer", name)
	}
	return int32(n), nil
}

type page[T any] struct {
	Items []T   `json:"items"`
	Total int32 `json:"total"`
	Page  int32 `json:"page"`
	Limit int32 `json:"limit"`
}

func newPage[T any](items []T, total, pageNum, limit int32) page[T] {
	if items == nil {
		items = []T{}
	}
	pageNum, limit = domain.NormalizePage(pageNum, limit)
	return page[T]{Items: items, Total: total, Page: pageNum, Limit: limit}
}

func mustActor(r *http.Request) domain.Actor {
	a, ok := domain.ActorFromContext(r.Context())
	if !ok {
		panic(fmt.Sprintf("route %s reached without an authenticated actor", r.URL.Path))
	}
	return a
}
