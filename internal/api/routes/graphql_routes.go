package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/taskstream/backend/internal/api/handlers"
	"github.com/taskstream/backend/internal/api/middleware"
)

// GraphQLRoutes handles the setup of the GraphQL endpoints
type GraphQLRoutes struct {
	query        *handlers.GraphQLHandler
	subscription *handlers.SubscriptionHandler
}

// NewGraphQLRoutes creates a new GraphQLRoutes instance
func NewGraphQLRoutes(query *handlers.GraphQLHandler, subscription *handlers.SubscriptionHandler) *GraphQLRoutes {
	return &GraphQLRoutes{
		query:        query,
		subscription: subscription,
	}
}

// RegisterRoutes registers the GraphQL query and subscription endpoints
func (r *GraphQLRoutes) RegisterRoutes(router *gin.Engine, identity gin.HandlerFunc) {
	metrics := middleware.NewMetricsMiddleware()

	graphql := router.Group("/graphql")
	graphql.Use(identity)
	graphql.Use(metrics.CollectMetrics())

	graphql.POST("", r.query.Execute)
	graphql.GET("/ws", r.subscription.Serve)
}
