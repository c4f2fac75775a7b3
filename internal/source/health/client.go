// Package health implements the client for the platform health-data gateway.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"example.com/plore/internal/domain"
)

// Client talks to the health-data gateway over HTTP. The gateway is a black
// box: authorization failures and transport errors both surface as
// domain.ErrSourceUnavailable so the synchronizer can abort the pass and let
// the caller retry.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs a Client with sane defaults.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// workoutPayload mirrors the gateway's session document. ActivityType is the
// platform's raw enumeration code serialized as a string; it is converted to
// a domain kind here and never escapes this package.
type workoutPayload struct {
	ID           string    `json:"id"`
	ActivityType string    `json:"activity_type"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Indoor       bool      `json:"indoor"`
}

type samplePayload struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Timestamp time.Time `json:"t"`
}

// FetchWorkouts queries workout sessions of the given kinds overlapping the
// window. A zero window requests the full history.
func (c *Client) FetchWorkouts(ctx context.Context, kinds []domain.ActivityKind, window domain.DateRange) ([]domain.WorkoutSession, error) {
	query := url.Values{}
	if len(kinds) > 0 {
		names := make([]string, 0, len(kinds))
		for _, kind := range kinds {
			names = append(names, string(kind))
		}
		query.Set("kinds", strings.Join(names, ","))
	}
	if !window.IsAllTime() {
		if !window.Start.IsZero() {
			query.Set("start", window.Start.UTC().Format(time.RFC3339))
		}
		if !window.End.IsZero() {
			query.Set("end", window.End.UTC().Format(time.RFC3339))
		}
	}

	endpoint := fmt.Sprintf("%s/v1/workouts", c.baseURL)
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var payloads []workoutPayload
	if err := c.getJSON(ctx, endpoint, &payloads); err != nil {
		return nil, err
	}

	sessions := make([]domain.WorkoutSession, 0, len(payloads))
	for _, p := range payloads {
		sessions = append(sessions, domain.WorkoutSession{
			ExternalID: p.ID,
			Kind:       domain.ParseKind(p.ActivityType),
			StartedAt:  p.Start,
			EndedAt:    p.End,
			Indoor:     p.Indoor,
		})
	}
	return sessions, nil
}

// FetchSamples returns the ordered location samples recorded for a session.
func (c *Client) FetchSamples(ctx context.Context, session domain.WorkoutSession) ([]domain.GeoSample, error) {
	endpoint := fmt.Sprintf("%s/v1/workouts/%s/samples", c.baseURL, url.PathEscape(session.ExternalID))

	var payloads []samplePayload
	if err := c.getJSON(ctx, endpoint, &payloads); err != nil {
		return nil, err
	}

	samples := make([]domain.GeoSample, 0, len(payloads))
	for _, p := range payloads {
		samples = append(samples, domain.GeoSample{
			Latitude:   p.Latitude,
			Longitude:  p.Longitude,
			CapturedAt: p.Timestamp,
		})
	}
	return samples, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: gateway denied authorization (status %d)", domain.ErrSourceUnavailable, resp.StatusCode)
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: gateway error (status %d): %s", domain.ErrSourceUnavailable, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed gateway response: %v", domain.ErrSourceUnavailable, err)
	}
	return nil
}
