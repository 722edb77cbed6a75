package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedRouter(iss Issuer) *gin.Engine {
	r := gin.New()
	r.GET("/me", InstructorAuth(iss), func(c *gin.Context) {
		c.String(http.StatusOK, InstructorID(c))
	})
	return r
}

func get(r http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestInstructorAuth(t *testing.T) {
	iss := testIssuer()
	r := protectedRouter(iss)

	pair, err := iss.Issue("prof-1", RoleInstructor)
	require.NoError(t, err)

	w := get(r, "Bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "prof-1", w.Body.String())

	w = get(r, "bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Token "+pair.AccessToken).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer "+pair.RefreshToken).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer garbage").Code)

	student, err := iss.Issue("s-1", "student")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(r, "Bearer "+student.AccessToken).Code)
}

func TestInstructorIDOutsideMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "", InstructorID(c))
}
