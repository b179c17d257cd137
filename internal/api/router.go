package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/faceapi/internal/api/handlers"
	"github.com/your-org/faceapi/internal/api/ws"
	"github.com/your-org/faceapi/internal/auth"
	"github.com/your-org/faceapi/internal/identity"
	"github.com/your-org/faceapi/internal/matching"
	"github.com/your-org/faceapi/internal/search"
)

type RouterConfig struct {
	APIKey       string
	MaxBodyBytes int64

	Identity *identity.Service
	Matching *matching.Engine
	Search   *search.Engine
	Detector handlers.Detector
	Resolver handlers.Resolver
	// Tasks may be nil; /admin/reindex then answers 503.
	Tasks  identity.TaskPublisher
	Hub    *ws.Hub
	Checks map[string]handlers.Check
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())
	r.Use(BodyLimitMiddleware(cfg.MaxBodyBytes))

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	// Detection & matching
	matchH := handlers.NewMatchingHandler(cfg.Resolver, cfg.Detector, cfg.Matching)
	v1.POST("/matching/detect", matchH.Detect)
	v1.POST("/matching/match", matchH.Match)

	searchH := handlers.NewSearchHandler(cfg.Search)
	v1.POST("/search", searchH.Search)

	// Groups
	groupH := handlers.NewGroupHandler(cfg.Identity)
	v1.POST("/groups", groupH.Create)
	v1.GET("/groups", groupH.List)
	v1.GET("/groups/:id", groupH.Get)
	v1.PUT("/groups/:id", groupH.Update)
	v1.DELETE("/groups/:id", groupH.Delete)
	v1.GET("/groups/:id/persons", groupH.ListPersons)
	v1.POST("/groups/:id/persons", groupH.UpdateMembership)

	// Persons & images
	personH := handlers.NewPersonHandler(cfg.Identity)
	v1.POST("/persons", personH.Create)
	v1.GET("/persons/:id", personH.Get)
	v1.PUT("/persons/:id", personH.Update)
	v1.DELETE("/persons/:id", personH.Delete)
	v1.GET("/persons/:id/groups", personH.ListGroups)
	v1.POST("/persons/:id/images", personH.AddImage)
	v1.GET("/persons/:id/images", personH.ListImages)
	v1.GET("/persons/:id/images/:imageId", personH.GetImage)
	v1.DELETE("/persons/:id/images/:imageId", personH.DeleteImage)

	adminH := handlers.NewAdminHandler(cfg.Identity, cfg.Tasks)
	v1.POST("/admin/reindex", adminH.Reindex)

	return r
}
