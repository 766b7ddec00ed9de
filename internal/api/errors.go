package api

import (
	"net/http"
	"strconv"

	"alcyxob/wellness-program/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// statusFor maps a service error kind onto an HTTP status.
func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindAccessDenied:
		return http.StatusForbidden
	case service.KindConflict:
		return http.StatusConflict
	case service.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with the status of its kind. Internal details stay
// in the request log.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	kind := service.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		abortWithError(c, status, "An unexpected error occurred")
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "kind": kind.String()})
}

// userID reads the caller's ID, aborting with 401 when it is missing.
func userID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return primitive.NilObjectID, false
	}
	return id, true
}

// objectIDParam parses a path parameter as an ObjectID, aborting with 400.
func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid "+name+" format.")
		return primitive.NilObjectID, false
	}
	return id, true
}

// intParam parses a path or query value as an int, aborting with 400.
func intParam(c *gin.Context, name, raw string) (int, bool) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid "+name+": must be an integer.")
		return 0, false
	}
	return n, true
}
