package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

type pageTurnRequest struct {
	Direction string `json:"direction" validate:"required,oneof=forward backward"`
}

type pageTurnInput struct {
	ID   string `path:"id"`
	Body pageTurnRequest
}

type chapterJumpRequest struct {
	Section int `json:"section" validate:"gte=0"`
}

type chapterJumpInput struct {
	ID   string `path:"id"`
	Body chapterJumpRequest
}

type seekRequest struct {
	Section int    `json:"section" validate:"gte=0"`
	Anchor  string `json:"anchor" validate:"required"`
}

type seekInput struct {
	ID   string `path:"id"`
	Body seekRequest
}

func (s *Server) registerNavigationOperations(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "turn-page",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/page",
		Summary:     "Turn the page",
		Description: "Issues a page-turn command to the attached renderer and queues the navigation intent behind it.",
		Tags:        []string{"navigation"},
	}, func(ctx context.Context, input *pageTurnInput) (*struct{}, error) {
		if err := s.validator.Validate(input.Body); err != nil {
			return nil, apiError(err)
		}
		sess, err := s.lookup(input.ID)
		if err != nil {
			return nil, err
		}
		if err := sess.TurnPage(ctx, input.Body.Direction == "forward"); err != nil {
			return nil, apiError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "jump-to-chapter",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/chapter",
		Summary:     "Jump to a chapter",
		Tags:        []string{"navigation"},
	}, func(ctx context.Context, input *chapterJumpInput) (*struct{}, error) {
		if err := s.validator.Validate(input.Body); err != nil {
			return nil, apiError(err)
		}
		sess, err := s.lookup(input.ID)
		if err != nil {
			return nil, err
		}
		if err := sess.JumpToChapter(ctx, input.Body.Section); err != nil {
			return nil, apiError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "seek-to-anchor",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/seek",
		Summary:     "Seek to an aligned paragraph",
		Description: "Moves audio to the aligned entry for the anchor, highlights it, and navigates the view there.",
		Tags:        []string{"navigation"},
	}, func(ctx context.Context, input *seekInput) (*struct{}, error) {
		if err := s.validator.Validate(input.Body); err != nil {
			return nil, apiError(err)
		}
		sess, err := s.lookup(input.ID)
		if err != nil {
			return nil, err
		}
		if err := sess.SeekToAnchor(ctx, input.Body.Section, input.Body.Anchor); err != nil {
			return nil, apiError(err)
		}
		return nil, nil
	})
}
