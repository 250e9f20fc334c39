package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type pingRegistrar struct{}

func (pingRegistrar) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
}

type routeRegistrarFunc func(rg *gin.RouterGroup)

func (f routeRegistrarFunc) RegisterRoutes(rg *gin.RouterGroup) { f(rg) }

func TestNewRouter(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	assert.NotNil(t, r)
	assert.Empty(t, r.registrars)
}

func TestRouterBasePath(t *testing.T) {
	engine := gin.New()

	assert.Equal(t, "/api", NewRouter(engine).BasePath())
	assert.Equal(t, "/api/v1", NewRouter(engine, WithAPIVersion("v1")).BasePath())
	assert.Equal(t, "/api/v2", NewRouter(engine, WithAPIVersion("/v2/")).BasePath())
}

func TestRouterRegister(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	r.Register(pingRegistrar{})

	assert.Len(t, r.registrars, 1)
}

func TestRouterSetup(t *testing.T) {
	t.Run("unversioned", func(t *testing.T) {
		engine := gin.New()
		r := NewRouter(engine)
		r.Register(pingRegistrar{})
		r.Setup()

		req := httptest.NewRequest("GET", "/api/ping", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "pong", w.Body.String())
	})

	t.Run("versioned", func(t *testing.T) {
		engine := gin.New()
		r := NewRouter(engine, WithAPIVersion("v1"))
		r.Register(pingRegistrar{})
		r.Setup()

		req := httptest.NewRequest("GET", "/api/v1/ping", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("multiple registrars share the base group", func(t *testing.T) {
		engine := gin.New()
		r := NewRouter(engine)
		r.Register(pingRegistrar{}).Register(routeRegistrarFunc(func(rg *gin.RouterGroup) {
			rg.GET("/other", func(c *gin.Context) {
				c.Status(http.StatusNoContent)
			})
		}))
		r.Setup()

		for path, want := range map[string]int{
			"/api/ping":  http.StatusOK,
			"/api/other": http.StatusNoContent,
		} {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
			assert.Equal(t, want, w.Code, path)
		}
	})
}
