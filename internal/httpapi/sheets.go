package httpapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/geo"
)

type sheetView struct {
	attendance.Sheet
	Geofenced bool   `json:"geofenced"`
	JoinURL   string `json:"join_url"`
}

func (s *server) view(sh attendance.Sheet) sheetView {
	return sheetView{Sheet: sh, Geofenced: sh.Geofence() != nil, JoinURL: s.joinURL(sh.ID)}
}

type createSheetRequest struct {
	ClassName       string          `json:"class_name" binding:"required"`
	DateCreated     string          `json:"date_created"`
	SecretKey       string          `json:"secret_key"`
	IsActive        bool            `json:"is_active"`
	Center          *geo.Coordinate `json:"center"`
	MaxRadiusMeters *float64        `json:"max_radius_meters"`
}

type updateSheetRequest struct {
	ClassName       *string         `json:"class_name"`
	DateCreated     *string         `json:"date_created"`
	SecretKey       *string         `json:"secret_key"`
	Center          *geo.Coordinate `json:"center"`
	MaxRadiusMeters *float64        `json:"max_radius_meters"`
	ClearGeofence   bool            `json:"clear_geofence"`
}

func (s *server) listSheets(c *gin.Context) {
	sheets, err := s.svc.ListSheets(c.Request.Context(), auth.InstructorID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	views := make([]sheetView, 0, len(sheets))
	for _, sh := range sheets {
		views = append(views, s.view(sh))
	}
	c.JSON(http.StatusOK, gin.H{"sheets": views})
}

func (s *server) createSheet(c *gin.Context) {
	var req createSheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sh, err := s.svc.CreateSheet(c.Request.Context(), auth.InstructorID(c), attendance.SheetInput{
		ClassName:       req.ClassName,
		DateCreated:     req.DateCreated,
		SecretKey:       req.SecretKey,
		IsActive:        req.IsActive,
		Center:          req.Center,
		MaxRadiusMeters: req.MaxRadiusMeters,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.view(sh))
}

func (s *server) getSheet(c *gin.Context) {
	sh, err := s.svc.OwnedSheet(c.Request.Context(), auth.InstructorID(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.view(sh))
}

func (s *server) updateSheet(c *gin.Context) {
	var req updateSheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sh, err := s.svc.UpdateSheet(c.Request.Context(), auth.InstructorID(c), c.Param("id"), attendance.SheetPatch{
		ClassName:       req.ClassName,
		DateCreated:     req.DateCreated,
		SecretKey:       req.SecretKey,
		Center:          req.Center,
		MaxRadiusMeters: req.MaxRadiusMeters,
		ClearGeofence:   req.ClearGeofence,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.view(sh))
}

func (s *server) deleteSheet(c *gin.Context) {
	if err := s.svc.DeleteSheet(c.Request.Context(), auth.InstructorID(c), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) setActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		sh, err := s.svc.SetActive(c.Request.Context(), auth.InstructorID(c), c.Param("id"), active)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, s.view(sh))
	}
}

func (s *server) sheetLog(c *gin.Context) {
	log, err := s.svc.Log(c.Request.Context(), auth.InstructorID(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

func (s *server) sheetLogCSV(c *gin.Context) {
	log, err := s.svc.Log(c.Request.Context(), auth.InstructorID(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	filename := fmt.Sprintf("%s-%s.csv", log.Sheet.ReportID, log.Sheet.DateCreated)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"name", "student_id", "signed_in_at", "status", "distance_m", "latitude", "longitude"})
	for _, e := range log.Entries {
		row := []string{csvCell(e.Name()), csvCell(e.StudentID), e.SignedInAt.Format(time.RFC3339), e.Status.Label(), "", "", ""}
		if e.DistanceMeters != nil {
			row[4] = strconv.FormatFloat(*e.DistanceMeters, 'f', 1, 64)
		}
		if e.Location != nil {
			row[5] = strconv.FormatFloat(e.Location.Lat, 'f', 6, 64)
			row[6] = strconv.FormatFloat(e.Location.Lng, 'f', 6, 64)
		}
		_ = w.Write(row)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = c.Error(err)
	}
}

// csvCell keeps spreadsheet apps from evaluating student-typed text as a formula.
func csvCell(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}

func (s *server) sheetQR(c *gin.Context) {
	sh, err := s.svc.OwnedSheet(c.Request.Context(), auth.InstructorID(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	size := 256
	if v := c.Query("size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 64 && parsed <= 1024 {
			size = parsed
		}
	}
	png, err := qrcode.Encode(s.joinURL(sh.ID), qrcode.Medium, size)
	if err != nil {
		s.writeError(c, fmt.Errorf("encode qr: %w", err))
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
