package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/kit/endpoint"

	"github.com/mnemosyne-ai/ragcore"
	"github.com/mnemosyne-ai/ragcore/llm"
	"github.com/mnemosyne-ai/ragcore/vector"
)

func ProcessAndIndexHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ragcore.ProcessAndIndexRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			c.Error(err)
			c.Abort()
			return
		}

		req.ProjectID = c.Param("project_id")

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}

func AnswerQueryHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ragcore.AnswerQueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			c.Error(err)
			c.Abort()
			return
		}

		req.ProjectID = c.Param("project_id")

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}

func SearchHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ragcore.SearchRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			c.Error(err)
			c.Abort()
			return
		}

		req.ProjectID = c.Param("project_id")

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}

func ResetCollectionHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("project_id")

		ctx := c.Request.Context()
		_, err := endpoint(ctx, projectID)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.String(http.StatusOK, "OK")
	}
}

func CollectionInfoHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("project_id")

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, projectID)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}

// abortWithError keeps the failure classes apart: malformed input,
// no matching content, backend unavailable, and everything else.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusExpectationFailed

	switch {
	case errors.Is(err, ragcore.ErrInvalidProjectID),
		errors.Is(err, ragcore.ErrEmptyInput),
		errors.Is(err, llm.ErrInvalidEmbeddingSize):
		status = http.StatusBadRequest

	case errors.Is(err, ragcore.ErrNoMatchingContent),
		errors.Is(err, vector.ErrCollectionNotFound):
		status = http.StatusNotFound

	case errors.Is(err, vector.ErrUnavailable),
		errors.Is(err, llm.ErrEmbeddingUnavailable):
		status = http.StatusServiceUnavailable
	}

	c.String(status, err.Error())
	c.Error(err)
	c.Abort()
}
