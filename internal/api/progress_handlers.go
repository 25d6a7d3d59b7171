package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/listenup-reader/internal/progress"
	"github.com/listenupapp/listenup-reader/internal/store/sqlite"
)

type bookIDInput struct {
	BookID string `path:"bookID"`
}

type latestProgress struct {
	Locator     progress.Locator `json:"locator"`
	TimestampMs int64            `json:"timestamp_ms"`
}

type latestProgressOutput struct {
	Body latestProgress
}

type historyInput struct {
	BookID string `path:"bookID"`
	Limit  int    `query:"limit"`
}

type historyOutput struct {
	Body []*sqlite.Entry
}

func (s *Server) registerProgressOperations(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-latest-progress",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{bookID}/progress",
		Summary:     "Get the newest stored position",
		Tags:        []string{"progress"},
	}, func(ctx context.Context, input *bookIDInput) (*latestProgressOutput, error) {
		loc, ts, ok, err := s.store.LatestProgress(ctx, input.BookID)
		if err != nil {
			return nil, apiError(err)
		}
		if !ok {
			return nil, huma.Error404NotFound("no progress recorded for book " + input.BookID)
		}
		return &latestProgressOutput{Body: latestProgress{Locator: loc, TimestampMs: ts}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-sync-history",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{bookID}/progress/history",
		Summary:     "List recent sync attempts",
		Description: "Returns the book's journaled progress deliveries, newest first.",
		Tags:        []string{"progress"},
	}, func(ctx context.Context, input *historyInput) (*historyOutput, error) {
		entries, err := s.journal.ListByBook(ctx, input.BookID, input.Limit)
		if err != nil {
			return nil, apiError(err)
		}
		if entries == nil {
			entries = []*sqlite.Entry{}
		}
		return &historyOutput{Body: entries}, nil
	})
}
