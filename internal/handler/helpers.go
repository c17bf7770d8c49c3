package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/travelmate/chat/internal/apperr"
	"github.com/travelmate/chat/internal/logger"
	"github.com/travelmate/chat/internal/middleware"
)

type errorResponse struct {
	Message string `json:"message"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Message: msg})
}

// writeAppError maps an apperr code to its HTTP status. Internal details stay in the log.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, status, apperr.PublicMessage(err))
}

// decodeBody reads a JSON body and runs struct validation on it.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.InvalidArgument("invalid body")
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return apperr.InvalidArgument("%s is %s", ve[0].Field(), ve[0].Tag())
		}
		return apperr.InvalidArgument("invalid body")
	}
	return nil
}

// actingUser returns the authenticated user. A userId supplied by the client must match it.
func actingUser(r *http.Request, claimed string) (string, error) {
	uid := middleware.GetUserID(r.Context())
	if uid == "" {
		return "", apperr.Unauthorized("unauthorized")
	}
	if claimed = strings.TrimSpace(claimed); claimed != "" && claimed != uid {
		return "", apperr.Unauthorized("userId does not match the authenticated user")
	}
	return uid, nil
}

func queryInt64(r *http.Request, key string) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, apperr.InvalidArgument("%s must be a non-negative integer", key)
	}
	return n, nil
}
