package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/graphql-go/graphql"

	"github.com/taskstream/backend/pkg/logger"
)

// GraphQLRequest is the standard POST body of a GraphQL call
type GraphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// GraphQLHandler serves queries and mutations
type GraphQLHandler struct {
	schema graphql.Schema
	logger *logger.Logger
}

// NewGraphQLHandler creates a new GraphQL handler
func NewGraphQLHandler(schema graphql.Schema, logger *logger.Logger) *GraphQLHandler {
	return &GraphQLHandler{schema: schema, logger: logger}
}

// Execute runs one GraphQL request. Resolver errors are part of the
// response body, not transport errors; the HTTP status stays 200.
func (h *GraphQLHandler) Execute(c *gin.Context) {
	var req GraphQLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		OperationName:  req.OperationName,
		VariableValues: req.Variables,
		Context:        c.Request.Context(),
	})

	c.JSON(http.StatusOK, result)
}
