package narration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/waustin14/StoryFill/internal/v1/metrics"
)

// HTTPProvider calls an OpenAI-compatible speech endpoint
// (POST {base}/v1/audio/speech) and returns the audio bytes.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

func NewHTTPProvider(baseURL string) *HTTPProvider {
	st := gobreaker.Settings{
		Name:        "tts",
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
		},
	}
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		cb:      gobreaker.NewCircuitBreaker(st),
	}
}

// Synthesize posts the story to the speech service. A 4xx from the service
// is treated as a content refusal; everything else is transient.
func (p *HTTPProvider) Synthesize(ctx context.Context, story, model, voice string) ([]byte, error) {
	tracer := otel.Tracer("storyfill/narration")
	ctx, span := tracer.Start(ctx, "tts.synthesize")
	span.SetAttributes(
		attribute.String("tts.model", model),
		attribute.String("tts.voice", voice),
		attribute.Int("tts.story_length", len(story)),
	)
	defer span.End()

	res, err := p.cb.Execute(func() (interface{}, error) {
		body, err := json.Marshal(speechRequest{
			Model:          model,
			Input:          story,
			Voice:          voice,
			ResponseFormat: "mp3",
		})
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			p.baseURL+"/v1/audio/speech", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, fmt.Errorf("%w: speech service returned %d", ErrDeclined, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("speech service returned %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("tts").Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res.([]byte), nil
}
