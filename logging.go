package ragcore

import (
	"context"

	"go.uber.org/zap"

	"github.com/mnemosyne-ai/ragcore/vector"
)

func LoggingMiddleware(log *zap.Logger) ServiceMiddleware {
	log = log.With(
		zap.String("service", "ragcore"),
	)

	return func(next Service) Service {
		log.Info("service initialized")

		return &loggingMiddleware{
			log:  log,
			next: next,
		}
	}
}

type loggingMiddleware struct {
	log  *zap.Logger
	next Service
}

func (mw *loggingMiddleware) Close() error {
	log := mw.log.With(
		zap.String("action", "close"),
	)

	err := mw.next.Close()
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("service closed")
	return nil
}

func (mw *loggingMiddleware) ProcessAndIndex(ctx context.Context, projectID string, docs []RawDocument, opts IndexOptions) (*IndexReport, error) {
	log := mw.log.With(
		zap.String("action", "process_and_index"),
		zap.String("project_id", projectID),
		zap.Int("documents", len(docs)),
		zap.Bool("reset", opts.Reset),
	)

	report, err := mw.next.ProcessAndIndex(ctx, projectID, docs, opts)
	if err != nil {
		log.Error(err.Error())
		return report, err
	}

	log.Info("documents indexed",
		zap.Int("inserted_chunks", report.InsertedChunks),
		zap.Int("failed_chunks", report.FailedChunks),
	)
	return report, nil
}

func (mw *loggingMiddleware) AnswerQuery(ctx context.Context, projectID, query string, limit int) (*QueryAnswer, error) {
	log := mw.log.With(
		zap.String("action", "answer_query"),
		zap.String("project_id", projectID),
	)

	answer, err := mw.next.AnswerQuery(ctx, projectID, query, limit)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("query answered", zap.Bool("fallback", answer.Fallback))
	return answer, nil
}

func (mw *loggingMiddleware) Search(ctx context.Context, projectID, query string, limit int) ([]vector.Document, error) {
	log := mw.log.With(
		zap.String("action", "search"),
		zap.String("project_id", projectID),
	)

	docs, err := mw.next.Search(ctx, projectID, query, limit)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("search completed", zap.Int("count", len(docs)))
	return docs, nil
}

func (mw *loggingMiddleware) ResetCollection(ctx context.Context, projectID string) error {
	log := mw.log.With(
		zap.String("action", "reset_collection"),
		zap.String("project_id", projectID),
	)

	err := mw.next.ResetCollection(ctx, projectID)
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("collection reset")
	return nil
}

func (mw *loggingMiddleware) CollectionInfo(ctx context.Context, projectID string) (*vector.CollectionInfo, error) {
	log := mw.log.With(
		zap.String("action", "collection_info"),
		zap.String("project_id", projectID),
	)

	info, err := mw.next.CollectionInfo(ctx, projectID)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	return info, nil
}
