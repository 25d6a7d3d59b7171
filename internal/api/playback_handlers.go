package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/listenup-reader/internal/narration"
)

type playbackRequest struct {
	Action string `json:"action" validate:"required,oneof=play pause"`
}

type playbackInput struct {
	ID   string `path:"id"`
	Body playbackRequest
}

type rateRequest struct {
	Rate float64 `json:"rate" validate:"required,gt=0,lte=4"`
}

type rateInput struct {
	ID   string `path:"id"`
	Body rateRequest
}

type volumeRequest struct {
	Volume float64 `json:"volume" validate:"gte=0,lte=1"`
}

type volumeInput struct {
	ID   string `path:"id"`
	Body volumeRequest
}

type syncToggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type syncToggleInput struct {
	ID   string `path:"id"`
	Body syncToggleRequest
}

type sleepRequest struct {
	Mode string `json:"mode" validate:"required,oneof=duration end_of_chapter"`
	// DurationSeconds is required for duration mode.
	DurationSeconds float64 `json:"duration_seconds,omitempty" validate:"omitempty,gt=0"`
}

type sleepInput struct {
	ID   string `path:"id"`
	Body sleepRequest
}

type sleepStatus struct {
	Mode             narration.SleepMode `json:"mode"`
	RemainingSeconds float64             `json:"remaining_seconds,omitempty"`
}

type sleepOutput struct {
	Body sleepStatus
}

func (s *Server) registerPlaybackOperations(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "control-playback",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/playback",
		Summary:     "Start or pause playback",
		Tags:        []string{"playback"},
	}, func(ctx context.Context, input *playbackInput) (*sessionStatusOutput, error) {
		if err := s.validator.Validate(input.Body); err != nil {
			return nil, apiError(err)
		}
		sess, err := s.lookup(input.ID)
		if err != nil {
			return nil, err
		}

		var opErr error
		if input.Body.Action == "play" {
			opErr = sess.Play(ctx)
		} else {
			opErr = sess.Pause(ctx)
		}
		if opErr != nil {
			return nil, apiError(opErr)
		}

		status, err := sess.Status(ctx)
		if err != nil {
			return nil, apiError(err)
		}
		return &sessionStatusOutput{Body: status}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-rate",
		Method:      http.MethodPut,
		Path:        "/api/v1/sessions/{id}/rate",
		Summary:     "Set playback rate",
		Tags:        []string{"playback"},
	}, func(ctx context.Context, input *rateInput) (*struct{}, error) {
		if err := s.validator.Validate(input.Body); err != nil {
			return nil, apiError(err)
		}
		sess, err := s.lookup(input.ID)
		if err != nil {
			return nil, err
		}
		if err := sess.SetRate(ctx, input.Body.Rate); err != nil {
			return nil, apiError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-volume",
		Method:      http.MethodPut,
		Path:        "/api/v1/sessions/{id}/volume",
		Summary:     "Set playback volume",
		Tags:        []string{"playback"},
	}, func(ctx context.Context, input *volumeInput) (*struct{}, error) {
		if err := s.validator.Validate(input.Body); err != nil {
			return nil, apiError(err)
		}
		sess, err := s.lookup(input.ID)
		if err != nil {
			return nil, err
		}
		if err := sess.SetVolume(ctx, input.Body.Volume); err != nil {
			return nil, apiError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-sync",
		Method:      http.MethodPut,
		Path:        "/api/v1/sessions/{id}/sync",
		Summary:     "Toggle audio-follows-navigation",
		Tags:        []string{"playback"},
	}, func(ctx context.Context, input *syncToggleInput) (*struct{}, error) {
		if err := s.validator.Validate(input.Body); err != nil {
			return nil, apiError(err)
		}
		sess, err := s.lookup(input.ID)
		if err != nil {
			return nil, err
		}
		if err := sess.SetSyncEnabled(ctx, *input.Body.Enabled); err != nil {
			return nil, apiError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-sleep-timer",
		Method:      http.MethodPut,
		Path:        "/api/v1/sessions/{id}/sleep",
		Summary:     "Arm a sleep timer",
		Tags:        []string{"playback"},
	}, func(ctx context.Context, input *sleepInput) (*sleepOutput, error) {
		if err := s.validator.Validate(input.Body); err != nil {
			return nil, apiError(err)
		}
		sess, err := s.lookup(input.ID)
		if err != nil {
			return nil, err
		}

		switch input.Body.Mode {
		case "duration":
			if input.Body.DurationSeconds <= 0 {
				return nil, huma.Error400BadRequest("duration_seconds is required for duration mode")
			}
			d := time.Duration(input.Body.DurationSeconds * float64(time.Second))
			if err := sess.StartSleep(ctx, d); err != nil {
				return nil, apiError(err)
			}
		case "end_of_chapter":
			if err := sess.StartEndOfChapterSleep(ctx); err != nil {
				return nil, apiError(err)
			}
		}

		status, err := sess.Status(ctx)
		if err != nil {
			return nil, apiError(err)
		}
		return &sleepOutput{Body: sleepStatus{
			Mode:             status.SleepMode,
			RemainingSeconds: status.SleepRemaining,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-sleep-timer",
		Method:      http.MethodDelete,
		Path:        "/api/v1/sessions/{id}/sleep",
		Summary:     "Cancel the sleep timer",
		Tags:        []string{"playback"},
	}, func(ctx context.Context, input *sessionIDInput) (*struct{}, error) {
		sess, err := s.lookup(input.ID)
		if err != nil {
			return nil, err
		}
		if err := sess.CancelSleep(ctx); err != nil {
			return nil, apiError(err)
		}
		return nil, nil
	})
}
