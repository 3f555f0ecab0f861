// Package study is the thin client for the learning platform's review API.
// It holds no logic of its own: requests are forwarded over an authenticated
// http.Client (normally one built by the transport package) and responses are
// reshaped for the caller. The spaced-repetition scheduling itself lives
// server-side; the client only submits ratings and renders results.
package study

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/studyhall/sessionkit/session"
)

const (
	reviewsPath   = "/api/reviews"
	dueCardsPath  = "/api/reviews/due"
	heartbeatPath = "/api/heartbeat"
)

// Card is a review card due for study.
type Card struct {
	ID     string    `json:"id"`
	Prompt string    `json:"prompt"`
	DueAt  time.Time `json:"dueAt"`
}

// ReviewResult is the server's scheduling outcome for a submitted rating.
type ReviewResult struct {
	CardID    string    `json:"cardId"`
	NextDueAt time.Time `json:"nextDueAt"`
}

// Client forwards review calls to the platform API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

var _ session.Pinger = (*Client)(nil)

// New creates a platform client. httpClient should carry the authenticated
// transport so every call bears a fresh token.
func New(baseURL string, httpClient *http.Client, options ...Option) (*Client, error) {
	if httpClient == nil {
		return nil, errors.New("[study.New] http client is required")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		log:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// SubmitRating reports how well a card was remembered (0 to 5) and returns
// the server-computed next due date.
func (c *Client) SubmitRating(ctx context.Context, cardID string, rating int) (ReviewResult, error) {
	if rating < 0 || rating > 5 {
		return ReviewResult{}, errors.Errorf("[Client.SubmitRating] rating %d out of range", rating)
	}

	payload, err := json.Marshal(struct {
		CardID string `json:"cardId"`
		Rating int    `json:"rating"`
	}{CardID: cardID, Rating: rating})
	if err != nil {
		return ReviewResult{}, errors.Wrap(err, "[Client.SubmitRating] marshal")
	}

	var result ReviewResult
	if err := c.do(ctx, http.MethodPost, reviewsPath, payload, &result); err != nil {
		return ReviewResult{}, errors.Wrap(err, "[Client.SubmitRating] post review")
	}
	return result, nil
}

// DueCards lists the cards currently due for review.
func (c *Client) DueCards(ctx context.Context) ([]Card, error) {
	var cards []Card
	if err := c.do(ctx, http.MethodGet, dueCardsPath, nil, &cards); err != nil {
		return nil, errors.Wrap(err, "[Client.DueCards] fetch due cards")
	}
	return cards, nil
}

// Ping is the lightweight keep-alive heartbeat. It satisfies session.Pinger
// so the session manager can drive it on its own interval.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, heartbeatPath, nil, nil); err != nil {
		return errors.Wrap(err, "[Client.Ping] heartbeat")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return errors.Errorf("platform returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
