package nats

import (
	"github.com/nats-io/nats.go/micro"

	"github.com/mnemosyne-ai/ragcore"
)

func AddEndpoints(group micro.Group, endpoints ragcore.EndpointSet) {
	group.AddEndpoint("process_and_index", ProcessAndIndexHandler(endpoints.ProcessAndIndex))
	group.AddEndpoint("answer_query", AnswerQueryHandler(endpoints.AnswerQuery))
	group.AddEndpoint("search", SearchHandler(endpoints.Search))
	group.AddEndpoint("reset_collection", ResetCollectionHandler(endpoints.ResetCollection))
	group.AddEndpoint("collection_info", CollectionInfoHandler(endpoints.CollectionInfo))
}
