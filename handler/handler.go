// Package handler adapts the inbound SNS trigger to the turn service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

// BatchProcessor handles the decoded notification payloads of one
// invocation.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, raws []string) error
}

type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type errorBody struct {
	Error string `json:"error"`
}

type Handler struct {
	processor BatchProcessor
}

func NewHandler(p BatchProcessor) (*Handler, error) {
	if p == nil {
		return nil, errors.New("handler: batch processor must not be nil")
	}
	return &Handler{processor: p}, nil
}

// Handle processes one SNS invocation. Records are handled independently;
// the invocation reports a failure status if any record aborted, even when
// others completed.
func (h *Handler) Handle(ctx context.Context, event events.SNSEvent) (Response, error) {
	slog.Info("processing inbound notification batch", "records", len(event.Records))

	raws := make([]string, 0, len(event.Records))
	for _, r := range event.Records {
		raws = append(raws, r.SNS.Message)
	}

	if err := h.processor.ProcessBatch(ctx, raws); err != nil {
		body, mErr := json.Marshal(errorBody{Error: err.Error()})
		if mErr != nil {
			body = []byte(`{"error":"internal error"}`)
		}
		return Response{StatusCode: http.StatusInternalServerError, Body: string(body)}, nil
	}

	return Response{StatusCode: http.StatusOK, Body: "successful"}, nil
}
