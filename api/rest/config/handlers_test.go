package config

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/semidark/aichat/internal/config"
)

func TestConfigReportsStreamSettings(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := &appconfig.Config{
		Stream: appconfig.StreamConfig{ChunkSize: 24, Delay: 300 * time.Millisecond, QueueDepth: 2},
	}

	router := gin.New()
	RegisterRoutes(router.Group("/api"), cfg)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"chunk_size":24,"delay_ms":300,"queue_depth":2}`, w.Body.String())
}
