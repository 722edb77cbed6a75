package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"geoattend/internal/attendance"
	"geoattend/internal/geo"
)

type publicSheetView struct {
	ID          string `json:"id"`
	ClassName   string `json:"class_name"`
	DateCreated string `json:"date_created"`
	Geofenced   bool   `json:"geofenced"`
}

type signInRequest struct {
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	StudentID      string          `json:"student_id"`
	SecretKey      string          `json:"secret_key"`
	Location       *geo.Coordinate `json:"location"`
	LocationDenied bool            `json:"location_denied"`
	Fingerprint    string          `json:"fingerprint" binding:"max=256"`
}

// publicSheet is what the student page loads before showing the form.
func (s *server) publicSheet(c *gin.Context) {
	sh, err := s.svc.PublicSheet(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, publicSheetView{
		ID:          sh.ID,
		ClassName:   sh.ClassName,
		DateCreated: sh.DateCreated,
		Geofenced:   sh.Geofence() != nil,
	})
}

func (s *server) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, &attendance.Rejection{Reason: attendance.ReasonInvalidInput, Fields: []string{"body"}})
		return
	}
	adm, err := s.svc.SignIn(c.Request.Context(), c.Param("id"), attendance.SubmissionAttempt{
		Identity: attendance.Identity{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			StudentID: req.StudentID,
		},
		SecretKey:      req.SecretKey,
		Location:       req.Location,
		LocationDenied: req.LocationDenied,
		Fingerprint:    req.Fingerprint,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"record_id":    adm.Record.ID,
		"status":       adm.Status,
		"signed_in_at": adm.Record.SignedInAt,
		"message":      "Your attendance has been submitted!",
	})
}
