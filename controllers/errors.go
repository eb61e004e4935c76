package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"prago-api/middlewares"
	"prago-api/services"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	case services.KindUnauthorized:
		return http.StatusUnauthorized
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindRateLimited:
		return http.StatusTooManyRequests
	case services.KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes err as a JSON error body. Errors that are not
// *services.Error are logged and hidden behind a generic message.
func respondError(c *gin.Context, err error) {
	var se *services.Error
	if errors.As(err, &se) {
		body := gin.H{"error": se.Message}
		if se.Details != nil {
			body["details"] = se.Details
		}
		if se.Kind == services.KindUpstream {
			log.Warn().Err(se.Err).Str("path", c.FullPath()).Msg("payment gateway rejected request")
		}
		_ = c.Error(err)
		c.JSON(statusFor(se.Kind), body)
		return
	}

	_ = c.Error(err)
	log.Error().Err(err).Str("method", c.Request.Method).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// bindError answers a failed ShouldBind* call with per-field messages.
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fieldMessage(fe)
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": details})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s.", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return "Enter a valid URL."
	}
	return fmt.Sprintf("Failed on the %q rule.", fe.Tag())
}

func init() {
	// Report validation failures under the JSON field names clients send.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	}
}

func currentUser(c *gin.Context) (int64, bool) {
	id, ok := middlewares.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
	}
	return id, ok
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// recordOperation reports the handler outcome to the order operations
// counter. Call it deferred.
func recordOperation(c *gin.Context, operation string) {
	status := c.Writer.Status()
	middlewares.RecordOrderOperation(operation, status >= 200 && status < 400)
}
