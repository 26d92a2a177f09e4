package ragcore

import (
	"context"
	"errors"

	"github.com/go-kit/kit/endpoint"
)

type EndpointSet struct {
	ProcessAndIndex endpoint.Endpoint
	AnswerQuery     endpoint.Endpoint
	Search          endpoint.Endpoint
	ResetCollection endpoint.Endpoint
	CollectionInfo  endpoint.Endpoint
}

type ProcessAndIndexRequest struct {
	ProjectID string        `json:"project_id"`
	Documents []RawDocument `json:"documents"`
	Options   IndexOptions  `json:"options"`
}

func ProcessAndIndexEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(ProcessAndIndexRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.ProcessAndIndex(ctx, req.ProjectID, req.Documents, req.Options)
	}
}

type AnswerQueryRequest struct {
	ProjectID string `json:"project_id"`
	Query     string `json:"query"`
	Limit     int    `json:"limit,omitempty"`
}

func AnswerQueryEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(AnswerQueryRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.AnswerQuery(ctx, req.ProjectID, req.Query, req.Limit)
	}
}

type SearchRequest struct {
	ProjectID string `json:"project_id"`
	Query     string `json:"query" form:"query"`
	Limit     int    `json:"limit,omitempty" form:"limit"`
}

func SearchEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(SearchRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.Search(ctx, req.ProjectID, req.Query, req.Limit)
	}
}

func ResetCollectionEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		projectID, ok := request.(string)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return nil, svc.ResetCollection(ctx, projectID)
	}
}

func CollectionInfoEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		projectID, ok := request.(string)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.CollectionInfo(ctx, projectID)
	}
}
