package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/Skufu/MeddyPal/internal/apperr"
	"github.com/Skufu/MeddyPal/internal/platform/middleware"
)

type errorResponse struct {
	Error     string      `json:"error"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// httpError writes err as JSON using the status of its apperr.Kind.
func httpError(c *gin.Context, err error) {
	e := apperr.As(err)
	status := e.HTTPStatus()
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	message := e.Message
	if e.Kind == apperr.KindInternal {
		message = "internal server error"
	}
	c.AbortWithStatusJSON(status, errorResponse{
		Error:     e.Code,
		Message:   message,
		Details:   e.Details,
		RequestID: middleware.GetRequestID(c),
	})
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bindJSON decodes the body into dst and validates it.
func (h *Handler) bindJSON(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperr.TooLarge("request body too large")
		case errors.Is(err, io.EOF):
			return apperr.BadRequest("request body is required")
		default:
			return apperr.BadRequest("invalid JSON payload")
		}
	}
	return h.validateStruct(dst)
}

func (h *Handler) validateStruct(v interface{}) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Internal("validate request", err)
	}

	details := make([]fieldError, 0, len(verrs))
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := describe(fe)
		details = append(details, fieldError{Field: fieldPath(fe), Rule: fe.Tag(), Message: msg})
		messages = append(messages, msg)
	}
	return apperr.Validation(strings.Join(messages, "; ")).WithDetails(details)
}

// fieldPath drops the root struct name: "chatRequest.message" becomes "message".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed the %s check", field, fe.Tag())
	}
}
