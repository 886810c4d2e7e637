// Package server assembles the HTTP engine from its dependencies.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/parleychat/parley/pkg/parley/auth"
	"github.com/parleychat/parley/pkg/parley/groups"
	"github.com/parleychat/parley/pkg/parley/logging"
	"github.com/parleychat/parley/pkg/parley/messages"
	"github.com/parleychat/parley/pkg/parley/notifications"
	"github.com/parleychat/parley/pkg/parley/realtime"
	"github.com/parleychat/parley/pkg/parley/uploads"
	"github.com/parleychat/parley/pkg/parley/users"
	"github.com/parleychat/parley/pkg/parley/validation"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// Deps are the long-lived objects the routes are built from
type Deps struct {
	DB             *gorm.DB
	Hub            *realtime.Hub
	Dispatcher     *notifications.Dispatcher
	Store          *uploads.Store
	TxTimeout      time.Duration
	AllowedOrigins []string
}

// NewRouter creates a gin engine with every route registered
func NewRouter(deps Deps) *gin.Engine {
	validation.Register()

	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(), CORS(deps.AllowedOrigins))

	r.GET("/health", health)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/ws", deps.Hub.ServeWS)
	r.Static(deps.Store.URLPrefix(), deps.Store.Dir())

	directory := users.NewDirectory(deps.DB)
	messageService := messages.NewService(deps.DB, deps.Dispatcher, deps.Hub)
	manager := groups.NewManager(deps.DB, deps.TxTimeout)

	api := r.Group("/api")
	{
		api.GET("/health", health)

		// Auth routes (public)
		auth.NewHandler(auth.NewAccounts(deps.DB, directory)).RegisterRoutes(api.Group("/auth"))

		protected := api.Group("", auth.AuthMiddleware())

		users.NewHandler(directory).RegisterRoutes(protected.Group("/users"))
		messages.NewHandler(messageService).RegisterRoutes(protected.Group("/direct-messages"))

		groupsHandler := groups.NewHandler(manager, messageService)
		groupsGroup := protected.Group("/groups")
		groupsHandler.RegisterRoutes(groupsGroup)
		groupsHandler.RegisterMemberRoutes(groupsGroup)

		uploads.NewHandler(deps.Store, messageService).RegisterRoutes(protected)
		notifications.NewHandler(deps.Dispatcher).RegisterRoutes(protected.Group("/notifications"))
	}

	return r
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "parley",
	})
}
