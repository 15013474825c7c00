package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	httputil "github.com/fitglue/heatmap/pkg/infrastructure/http"
)

const (
	defaultBaseURL = "https://www.strava.com/api/v3"

	defaultPollInterval = time.Second
	defaultPollAttempts = 20
)

// ErrUploadTimeout is returned when Strava has not produced an activity for an
// upload after all poll attempts.
var ErrUploadTimeout = errors.New("strava did not return an activity id in time")

// ErrDuplicateActivity is returned when Strava rejects an upload because the
// file was already uploaded. The existing activity id is returned with it when
// Strava names one.
var ErrDuplicateActivity = errors.New("strava activity already exists")

// Strava reports duplicates as "<file> duplicate of activity 123" or with a
// link to /activities/123.
var duplicatePattern = regexp.MustCompile(`duplicate of(?:\D*?(\d+))?`)

// parseDuplicate reports whether an upload error is a duplicate rejection and
// returns the existing activity id if present.
func parseDuplicate(msg string) (int64, bool) {
	m := duplicatePattern.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	id, _ := strconv.ParseInt(m[1], 10, 64)
	return id, true
}

// Client is an API client for the Strava uploads and activities endpoints.
// The http.Client is expected to add authentication (see oauth.NewClient).
type Client struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	pollAttempts int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root, e.g. an httptest server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithPolling sets how often and how many times an upload is polled.
func WithPolling(interval time.Duration, attempts int) Option {
	return func(c *Client) {
		c.pollInterval = interval
		c.pollAttempts = attempts
	}
}

// NewClient creates a new Strava API client
func NewClient(httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{
		baseURL:      defaultBaseURL,
		client:       httpClient,
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload is the status of a file upload
type Upload struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"external_id,omitempty"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
	ActivityID int64  `json:"activity_id,omitempty"`
}

// Activity is the subset of a Strava activity we read back after updates
type Activity struct {
	ID     int64  `json:"id"`
	Name   string `json:"name,omitempty"`
	GearID string `json:"gear_id,omitempty"`
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.ParseErrorResponse(resp); err != nil {
		return fmt.Errorf("strava: %w", err)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// UploadFIT uploads a FIT file and returns the pending upload.
func (c *Client) UploadFIT(ctx context.Context, fitPath string) (*Upload, error) {
	f, err := os.Open(fitPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("data_type", "fit"); err != nil {
		return nil, err
	}
	part, err := mw.CreateFormFile("file", filepath.Base(fitPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read fit file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/uploads", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var upload Upload
	if err := c.do(req, &upload); err != nil {
		return nil, fmt.Errorf("upload fit: %w", err)
	}
	return &upload, nil
}

// GetUpload returns the current status of an upload.
func (c *Client) GetUpload(ctx context.Context, uploadID int64) (*Upload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/uploads/%d", c.baseURL, uploadID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	var upload Upload
	if err := c.do(req, &upload); err != nil {
		return nil, err
	}
	return &upload, nil
}

// WaitForActivity polls an upload until Strava reports the created activity.
func (c *Client) WaitForActivity(ctx context.Context, uploadID int64) (int64, error) {
	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		upload, err := c.GetUpload(ctx, uploadID)
		switch {
		case err != nil && !httputil.IsRetryable(err):
			return 0, fmt.Errorf("poll upload %d: %w", uploadID, err)
		case err != nil:
			// rate limited or 5xx, keep polling
		case upload.Error != "":
			if id, ok := parseDuplicate(upload.Error); ok {
				return id, fmt.Errorf("%w: upload %d: %s", ErrDuplicateActivity, uploadID, upload.Error)
			}
			return 0, fmt.Errorf("upload %d rejected: %s", uploadID, upload.Error)
		case upload.ActivityID != 0:
			return upload.ActivityID, nil
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return 0, fmt.Errorf("%w: upload %d", ErrUploadTimeout, uploadID)
}

// UpdateGear assigns a bike to an activity.
func (c *Client) UpdateGear(ctx context.Context, activityID int64, gearID string) (*Activity, error) {
	form := url.Values{"gear_id": {gearID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("%s/activities/%d", c.baseURL, activityID), bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var activity Activity
	if err := c.do(req, &activity); err != nil {
		return nil, fmt.Errorf("update gear: %w", err)
	}
	return &activity, nil
}

// UploadActivity uploads a FIT file, waits for the activity and sets its gear.
// An empty gearID leaves the gear untouched. A file Strava already has yields
// the existing activity id and an error wrapping ErrDuplicateActivity; its gear
// is not touched.
func (c *Client) UploadActivity(ctx context.Context, fitPath, gearID string) (int64, error) {
	upload, err := c.UploadFIT(ctx, fitPath)
	if err != nil {
		return 0, err
	}
	activityID, err := c.WaitForActivity(ctx, upload.ID)
	if err != nil {
		return activityID, err
	}
	if gearID == "" {
		return activityID, nil
	}
	if _, err := c.UpdateGear(ctx, activityID, gearID); err != nil {
		return activityID, err
	}
	return activityID, nil
}
