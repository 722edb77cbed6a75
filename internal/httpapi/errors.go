package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"geoattend/internal/attendance"
)

var rejectionStatus = map[attendance.Reason]int{
	attendance.ReasonMissingFields:       http.StatusBadRequest,
	attendance.ReasonInvalidInput:        http.StatusBadRequest,
	attendance.ReasonInvalidSecretKey:    http.StatusForbidden,
	attendance.ReasonSheetInactive:       http.StatusConflict,
	attendance.ReasonLocationRequired:    http.StatusForbidden,
	attendance.ReasonDuplicateSubmission: http.StatusConflict,
}

// writeError maps service errors to responses. Unknown errors are logged and
// reported as 500 without detail.
func (s *server) writeError(c *gin.Context, err error) {
	if r, ok := attendance.AsRejection(err); ok {
		status, known := rejectionStatus[r.Reason]
		if !known {
			status = http.StatusBadRequest
		}
		body := gin.H{"error": r.Reason, "message": r.Reason.Message()}
		if len(r.Fields) > 0 {
			body["fields"] = r.Fields
		}
		c.JSON(status, body)
		return
	}
	switch {
	case errors.Is(err, attendance.ErrSheetNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "sheet not found"})
	case errors.Is(err, attendance.ErrInvalidSheet):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
