package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mnemosyne-ai/ragcore"
)

func AddRouters(r *gin.Engine, endpoints ragcore.EndpointSet) {
	api := r.Group("/api")
	{
		api.POST("/projects/:project_id/index", ProcessAndIndexHandler(endpoints.ProcessAndIndex))
		api.POST("/projects/:project_id/answer", AnswerQueryHandler(endpoints.AnswerQuery))
		api.GET("/projects/:project_id/search", SearchHandler(endpoints.Search))
		api.GET("/projects/:project_id/collection", CollectionInfoHandler(endpoints.CollectionInfo))
		api.DELETE("/projects/:project_id/collection", ResetCollectionHandler(endpoints.ResetCollection))
	}
}
