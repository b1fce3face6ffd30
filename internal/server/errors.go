package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/kolehiyo/kolehiyo/backend/internal/apperr"
	"go.uber.org/zap"
)

const opBindRequest = "server.bind_request"

var registerTagNamesOnce sync.Once

// registerValidatorTagNames makes binding errors report JSON field names.
func registerValidatorTagNames() {
	registerTagNamesOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		engine.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
	})
}

// writeError maps the outermost error kind to a status and aborts the request.
// Causes are never exposed; only the code and client-facing details are.
func (h *httpHandler) writeError(c *gin.Context, err error) {
	status, message := statusFor(apperr.KindOf(err))

	body := gin.H{"error": message}
	if code := apperr.CodeOf(err); code != "" {
		body["code"] = code
	}
	if details := apperr.DetailsOf(err); details != nil {
		body["details"] = details
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("code", apperr.CodeOf(err)),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func statusFor(kind error) (int, string) {
	switch kind {
	case apperr.ErrValidation:
		return http.StatusBadRequest, "invalid_request"
	case apperr.ErrSignature:
		return http.StatusBadRequest, "invalid_signature"
	case apperr.ErrUnauthorized:
		return http.StatusUnauthorized, "unauthorized"
	case apperr.ErrNotFound:
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// bindingError converts a gin binding failure into a validation error with per-field details.
func bindingError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make(map[string]string, len(validationErrors))
		for _, fieldError := range validationErrors {
			details[fieldError.Field()] = describeFieldError(fieldError)
		}
		return apperr.Validation(opBindRequest, "invalid_fields", details)
	}

	var typeError *json.UnmarshalTypeError
	if errors.As(err, &typeError) && typeError.Field != "" {
		return apperr.Validation(opBindRequest, "invalid_fields", map[string]string{
			typeError.Field: "must be " + typeError.Type.String(),
		})
	}
	return apperr.Validation(opBindRequest, "malformed_body", nil)
}

func describeFieldError(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required":
		return "required"
	case "max":
		return "must be at most " + fieldError.Param() + " characters"
	default:
		return "failed " + fieldError.Tag()
	}
}
