// Package actor invokes external platform actors and streams their results.
package actor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blackmichael/tiktok-archiver/internal/domain"
)

// Client implements domain.ActorRunner against the actor platform API. Runs
// are started over HTTP and their result records consumed over a websocket
// dataset stream. The client holds no per-run state; everything a caller
// needs comes back on the returned ActorRun.
type Client struct {
	baseURL    string
	token      string
	actors     map[domain.ActorKind]string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger
}

// NewClient creates an actor platform client. actors maps each actor kind to
// its platform actor id.
func NewClient(baseURL, token string, actors map[domain.ActorKind]string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		actors:  actors,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer: websocket.DefaultDialer,
		logger: logger,
	}
}

// runResponse is the platform's envelope for a started run.
type runResponse struct {
	Data struct {
		ID                    string `json:"id"`
		DefaultDatasetID      string `json:"defaultDatasetId"`
		DefaultKeyValueStoreID string `json:"defaultKeyValueStoreId"`
	} `json:"data"`
}

// Invoke starts the named actor with the given job specification and returns
// the run descriptor plus a lazy stream of its result records. The run start
// and the stream dial are each wrapped in bounded exponential backoff to
// absorb transient platform failures; exhaustion surfaces the last error.
func (c *Client) Invoke(ctx context.Context, kind domain.ActorKind, input any) (domain.ActorRun, domain.RecordStream, error) {
	actorID, ok := c.actors[kind]
	if !ok {
		return domain.ActorRun{}, nil, fmt.Errorf("no actor configured for kind %q", kind)
	}

	var run domain.ActorRun
	err := retryWithBackoff(ctx, c.logger, func() error {
		started, err := c.startRun(ctx, actorID, input)
		if err != nil {
			return err
		}
		run = started
		return nil
	})
	if err != nil {
		return domain.ActorRun{}, nil, fmt.Errorf("start actor %s run: %w", actorID, err)
	}

	var conn *websocket.Conn
	err = retryWithBackoff(ctx, c.logger, func() error {
		dialed, _, err := c.dialer.DialContext(ctx, c.streamURL(run.DatasetID), nil)
		if err != nil {
			return err
		}
		conn = dialed
		return nil
	})
	if err != nil {
		return domain.ActorRun{}, nil, fmt.Errorf("dial dataset stream: %w", err)
	}

	c.logger.Debug("actor run started", "actor", actorID, "run_id", run.ID, "dataset", run.DatasetID)
	return run, &wsStream{conn: conn}, nil
}

func (c *Client) startRun(ctx context.Context, actorID string, input any) (domain.ActorRun, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return domain.ActorRun{}, permanent(fmt.Errorf("marshal job spec: %w", err))
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/runs", c.baseURL, actorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.ActorRun{}, permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ActorRun{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ActorRun{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return domain.ActorRun{}, fmt.Errorf("platform error (status %d): %s", resp.StatusCode, body)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ActorRun{}, permanent(fmt.Errorf("API error (status %d): %s", resp.StatusCode, body))
	}

	var parsed runResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.ActorRun{}, permanent(fmt.Errorf("unmarshal run response: %w", err))
	}

	return domain.ActorRun{
		ID:              parsed.Data.ID,
		DatasetID:       parsed.Data.DefaultDatasetID,
		KeyValueStoreID: parsed.Data.DefaultKeyValueStoreID,
	}, nil
}

// ResolveFetchURL derives the fetch URL for a staged media item from the
// run's key-value store id. Pure templating, no round trip.
func (c *Client) ResolveFetchURL(storeID, mediaID string) string {
	return fmt.Sprintf("%s/v2/key-value-stores/%s/records/%s", c.baseURL, storeID, mediaID)
}

// streamURL converts the HTTP base URL into the websocket endpoint for a
// dataset's record stream.
func (c *Client) streamURL(datasetID string) string {
	u, _ := url.Parse(c.baseURL)
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = fmt.Sprintf("/v2/datasets/%s/stream", datasetID)
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String()
}
