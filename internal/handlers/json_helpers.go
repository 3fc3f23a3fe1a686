package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"time"

	"orienta/internal/middleware"
	"orienta/internal/service"
	"orienta/pkg/validator"
)

const (
	maxBodyBytes = 1 << 20
	errEmptyBody = "request body is required"
)

// Envelope is the body of every JSON response
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Base writes responses for every handler. In production the raw cause of
// internal errors is never sent to clients.
type Base struct {
	production bool
}

// NewBase creates the shared response writer
func NewBase(production bool) Base {
	return Base{production: production}
}

// respondWithJSON writes payload with nil slices encoded as []
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(normalizeSlices(payload)); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (b Base) ok(w http.ResponseWriter, code int, data any) {
	respondWithJSON(w, code, Envelope{Success: true, Data: normalizeSlices(data)})
}

func (b Base) message(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, Envelope{Success: code < 400, Message: message})
}

// fail maps a service error to its HTTP status
func (b Base) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *service.ValidationError
		missing    *service.MissingFieldsError
		invalid    *service.InvalidStateError
		notFound   *service.NotFoundError
		conflict   *service.ConflictError
		fields     validator.FieldErrors
	)

	env := Envelope{Message: err.Error()}
	code := http.StatusInternalServerError

	switch {
	case errors.As(err, &validation):
		code = http.StatusBadRequest
		env.Message = validation.Message
		details := map[string]any{}
		if len(validation.Fields) > 0 {
			details["fields"] = validation.Fields
		}
		if len(validation.Unknown) > 0 {
			details["unknown"] = validation.Unknown
		}
		if len(details) > 0 {
			env.Details = details
		}
	case errors.As(err, &fields):
		code = http.StatusBadRequest
		env.Message = "validation failed"
		env.Details = map[string]any{"fields": fields}
	case errors.As(err, &missing):
		code = http.StatusBadRequest
		env.Message = "missing required answers"
		env.Details = map[string]any{"missing": missing.Codes(), "sections": missing.Sections}
	case errors.As(err, &invalid):
		code = http.StatusBadRequest
		env.Details = map[string]any{"reason": invalid.Reason}
	case errors.As(err, &notFound):
		code = http.StatusNotFound
	case errors.As(err, &conflict):
		code = http.StatusConflict
		env.Details = map[string]any{"reason": conflict.Reason}
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrAdminInactive):
		code = http.StatusUnauthorized
	default:
		slog.Error("Request failed",
			"request_id", middleware.GetRequestID(r),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		env.Message = "Internal server error"
		if !b.production {
			env.Error = err.Error()
		}
	}

	respondWithJSON(w, code, env)
}

// decodeJSON reads a JSON body into dst and validates its tags
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return service.NewValidationError(errEmptyBody)
		}
		return service.NewValidationError("invalid request body: %v", err)
	}
	return validate(dst)
}

// validate checks the validate tags when dst points to a struct
func validate(dst any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return nil
	}
	return validator.ValidateStruct(dst)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return validate(dst)
	}
	err := decodeJSON(w, r, dst)
	var verr *service.ValidationError
	if errors.As(err, &verr) && verr.Message == errEmptyBody {
		return validate(dst)
	}
	return err
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, service.NewValidationError("invalid %s %q", name, r.PathValue(name))
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, service.NewValidationError("invalid %s %q", name, raw)
	}
	return n, nil
}

func queryInt64(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, service.NewValidationError("invalid %s %q", name, raw)
	}
	return &n, nil
}

// normalizeSlices recursively ensures all nil slices become empty slices
func normalizeSlices(data interface{}) interface{} {
	if data == nil {
		return data
	}

	v := reflect.ValueOf(data)

	// Handle pointers
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return data
		}
		elem := v.Elem()

		// Special case: *time.Time should not be recursively processed
		if elem.Type() == reflect.TypeOf(time.Time{}) {
			return data
		}

		normalized := normalizeSlices(elem.Interface())

		// Create a new pointer to the normalized value
		result := reflect.New(elem.Type())
		result.Elem().Set(reflect.ValueOf(normalized))
		return result.Interface()
	}

	// Handle slices. Byte slices (json.RawMessage) encode as documents, not arrays.
	if v.Kind() == reflect.Slice {
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return data
		}
		if v.IsNil() {
			// Return empty slice of the same type
			return reflect.MakeSlice(v.Type(), 0, 0).Interface()
		}

		// Normalize each element in the slice
		result := reflect.MakeSlice(v.Type(), v.Len(), v.Cap())
		for i := 0; i < v.Len(); i++ {
			if normalized := normalizeSlices(v.Index(i).Interface()); normalized != nil {
				result.Index(i).Set(reflect.ValueOf(normalized))
			}
		}
		return result.Interface()
	}

	// Handle structs - only normalize slice fields, keep other fields as-is
	if v.Kind() == reflect.Struct {
		// Special case: time.Time should not be recursively processed
		if v.Type() == reflect.TypeOf(time.Time{}) {
			return data
		}

		result := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			field := v.Field(i)
			structField := v.Type().Field(i)

			// Skip unexported fields
			if !field.CanInterface() {
				continue
			}

			// Check if field is time.Time or *time.Time
			fieldType := field.Type()
			if fieldType == reflect.TypeOf(time.Time{}) ||
				(fieldType.Kind() == reflect.Ptr && fieldType.Elem() == reflect.TypeOf(time.Time{})) {
				// Copy time fields directly without processing
				if result.Field(i).CanSet() && structField.IsExported() {
					result.Field(i).Set(field)
				}
			} else if field.Kind() == reflect.Slice || field.Kind() == reflect.Ptr || field.Kind() == reflect.Struct {
				// Only normalize if it's a slice or contains slices
				normalized := normalizeSlices(field.Interface())
				if result.Field(i).CanSet() {
					result.Field(i).Set(reflect.ValueOf(normalized))
				}
			} else {
				// Copy primitive types and other types directly
				if result.Field(i).CanSet() && structField.IsExported() {
					result.Field(i).Set(field)
				}
			}
		}
		return result.Interface()
	}

	return data
}
