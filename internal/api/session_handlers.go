package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/listenup-reader/internal/progress"
	"github.com/listenupapp/listenup-reader/internal/session"
)

// SessionSummary is the compact session representation returned by open and
// list operations.
type SessionSummary struct {
	ID       string `json:"id"`
	BookID   string `json:"book_id"`
	Title    string `json:"title"`
	Chapters int    `json:"chapters"`
}

func summarize(s *session.Session) SessionSummary {
	return SessionSummary{
		ID:       s.ID(),
		BookID:   s.BookID(),
		Title:    s.Model().Title,
		Chapters: len(s.Model().Sections),
	}
}

type openSessionRequest struct {
	BookID   string `json:"book_id" validate:"required"`
	BookPath string `json:"book_path" validate:"required"`
}

type openSessionInput struct {
	Body openSessionRequest
}

type sessionSummaryOutput struct {
	Body SessionSummary
}

type sessionIDInput struct {
	ID string `path:"id"`
}

type sessionListOutput struct {
	Body []SessionSummary
}

type sessionStatusOutput struct {
	Body session.Status
}

type chapterListOutput struct {
	Body []session.Chapter
}

type reconcileResult struct {
	Adopted bool              `json:"adopted"`
	Locator *progress.Locator `json:"locator,omitempty"`
}

type reconcileOutput struct {
	Body reconcileResult
}

func (s *Server) registerSessionOperations(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "open-session",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions",
		Summary:     "Open a book",
		Description: "Opens a reading session for a book, parsing its alignment model and reconciling resume progress. Opening an already open book returns its existing session.",
		Tags:        []string{"sessions"},
	}, func(ctx context.Context, input *openSessionInput) (*sessionSummaryOutput, error) {
		if err := s.validator.Validate(input.Body); err != nil {
			return nil, apiError(err)
		}
		sess, err := s.manager.Open(ctx, input.Body.BookID, input.Body.BookPath)
		if err != nil {
			return nil, apiError(err)
		}
		return &sessionSummaryOutput{Body: summarize(sess)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions",
		Summary:     "List open sessions",
		Tags:        []string{"sessions"},
	}, func(ctx context.Context, _ *struct{}) (*sessionListOutput, error) {
		sessions := s.manager.Sessions()
		out := make([]SessionSummary, 0, len(sessions))
		for _, sess := range sessions {
			out = append(out, summarize(sess))
		}
		return &sessionListOutput{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Get session status",
		Tags:        []string{"sessions"},
	}, func(ctx context.Context, input *sessionIDInput) (*sessionStatusOutput, error) {
		sess, err := s.lookup(input.ID)
		if err != nil {
			return nil, err
		}
		status, err := sess.Status(ctx)
		if err != nil {
			return nil, apiError(err)
		}
		return &sessionStatusOutput{Body: status}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-session",
		Method:      http.MethodDelete,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Close a session",
		Description: "Performs the final progress sync and releases the session.",
		Tags:        []string{"sessions"},
	}, func(ctx context.Context, input *sessionIDInput) (*struct{}, error) {
		if err := s.manager.Close(input.ID); err != nil {
			return nil, apiError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-chapters",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/chapters",
		Summary:     "List the book's chapters",
		Tags:        []string{"sessions"},
	}, func(ctx context.Context, input *sessionIDInput) (*chapterListOutput, error) {
		sess, err := s.lookup(input.ID)
		if err != nil {
			return nil, err
		}
		return &chapterListOutput{Body: sess.Chapters()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reconcile-session",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/reconcile",
		Summary:     "Reconcile resume progress",
		Description: "Compares local activity against the newest stored position and adopts the stored one when it is strictly newer.",
		Tags:        []string{"sessions"},
	}, func(ctx context.Context, input *sessionIDInput) (*reconcileOutput, error) {
		sess, err := s.lookup(input.ID)
		if err != nil {
			return nil, err
		}
		loc, adopted, err := sess.Reconcile(ctx)
		if err != nil {
			return nil, apiError(err)
		}
		out := reconcileResult{Adopted: adopted}
		if adopted {
			out.Locator = &loc
		}
		return &reconcileOutput{Body: out}, nil
	})
}
