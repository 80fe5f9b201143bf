package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestManagementPassthrough_RedirectsToUpstream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/threads", managementPassthrough("https://amp.example/"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/threads?page=2", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "https://amp.example/threads?page=2", w.Header().Get("Location"))
}

func TestManagementPassthrough_503WhenUnconfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/threads", managementPassthrough(""))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/threads", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "no upstream configured")
}
