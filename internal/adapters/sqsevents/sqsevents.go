// Package sqsevents implements the emission half of adapters.EventService:
// sendEvent/track fires a message onto an SQS queue for downstream
// analytics ingestion, fire-and-forget, the same way the teacher's
// tracking.Publisher dispatches email engagement events. remote nodes need
// a synchronous answer, which a queue can't give, so TrackWithResponse goes
// over a direct HTTP call instead.
package sqsevents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/journey-engine/internal/executor"
)

// Service emits events over SQS and dispatches awaited remote-node actions
// over HTTP.
type Service struct {
	sqsClient   *sqs.Client
	queueURL    string
	httpClient  *http.Client
	remoteURL   string
}

// New builds a Service. remoteURL is the host application's endpoint for
// synchronous remote-node dispatch; it may be empty if the campaign set
// never uses remote nodes in awaited mode.
func New(sqsClient *sqs.Client, queueURL, remoteURL string) *Service {
	return &Service{
		sqsClient:  sqsClient,
		queueURL:   queueURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		remoteURL:  remoteURL,
	}
}

type wireEvent struct {
	DistinctID string         `json:"distinctId"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Track publishes name/properties to SQS without waiting for delivery
// confirmation, matching the fire-and-forget shape of the publisher this
// package is grounded on.
func (s *Service) Track(ctx context.Context, distinctID, name string, properties map[string]any) {
	body, err := json.Marshal(wireEvent{DistinctID: distinctID, Name: name, Properties: properties, Timestamp: time.Now()})
	if err != nil {
		log.Printf("sqsevents: marshal event %s for %s: %v", name, distinctID, err)
		return
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.sqsClient.SendMessage(sendCtx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(s.queueURL),
			MessageBody: aws.String(string(body)),
		}); err != nil {
			log.Printf("sqsevents: publish %s for %s: %v", name, distinctID, err)
		}
	}()
}

type remoteRequest struct {
	DistinctID string         `json:"distinctId"`
	Action     string         `json:"action"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type remoteResponseWire struct {
	Success        bool           `json:"success"`
	ContextUpdates map[string]any `json:"contextUpdates,omitempty"`
	Error          *struct {
		Retryable  bool    `json:"retryable"`
		RetryAfter float64 `json:"retryAfter,omitempty"`
		Message    string  `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

// TrackWithResponse performs a remote node's awaited dispatch over HTTP,
// translating the host's response into executor.RemoteResponse.
func (s *Service) TrackWithResponse(ctx context.Context, distinctID, action string, payload map[string]any) (executor.RemoteResponse, error) {
	if s.remoteURL == "" {
		return executor.RemoteResponse{}, fmt.Errorf("sqsevents: no remote dispatch endpoint configured")
	}

	body, err := json.Marshal(remoteRequest{DistinctID: distinctID, Action: action, Payload: payload})
	if err != nil {
		return executor.RemoteResponse{}, fmt.Errorf("sqsevents: marshal remote request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.remoteURL, bytes.NewReader(body))
	if err != nil {
		return executor.RemoteResponse{}, fmt.Errorf("sqsevents: build remote request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return executor.RemoteResponse{}, fmt.Errorf("sqsevents: dispatch remote action %s: %w", action, err)
	}
	defer resp.Body.Close()

	var wire remoteResponseWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return executor.RemoteResponse{}, fmt.Errorf("sqsevents: decode remote response: %w", err)
	}

	out := executor.RemoteResponse{Success: wire.Success, ContextUpdates: wire.ContextUpdates}
	if wire.Error != nil {
		retryAfter := time.Duration(wire.Error.RetryAfter * float64(time.Second))
		out.Error = &executor.RemoteError{Retryable: wire.Error.Retryable, Message: wire.Error.Message}
		if wire.Error.RetryAfter > 0 {
			out.Error.RetryAfter = &retryAfter
		}
	}
	return out, nil
}
