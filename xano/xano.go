package xano

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/marcus-crane/voxpro/models"
	"github.com/marcus-crane/voxpro/utils"
)

const (
	ASSET_ENDPOINT       = "/asset"
	ASSIGNMENTS_ENDPOINT = "/voxpro_assignments"

	DefaultTimeout = 12 * time.Second
)

var (
	ErrNotFound = errors.New("record not found")
	ErrNoID     = errors.New("store did not return an id")
)

// StatusError is returned for any non 2xx response
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Code, http.StatusText(e.Code))
}

// Client talks to the remote asset and assignment stores
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	connected atomic.Bool
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: utils.NewHTTPClient(DefaultTimeout),
	}
}

// Connected reports whether the most recent request reached the store
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// AssetPayload is the body used when creating an asset
type AssetPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Station     string `json:"station"`
	Tags        string `json:"tags"`
	Thumbnail   string `json:"thumbnail"`
	DatabaseURL string `json:"database_url"`
	FileURL     string `json:"file_url"`
	FileType    string `json:"file_type"`
	SubmittedBy string `json:"submitted_by"`
}

func PayloadFromAsset(a models.NormalizedAsset) AssetPayload {
	title := a.Title
	if title == "" {
		title = "Untitled"
	}
	return AssetPayload{
		Title:       title,
		Description: a.Description,
		Station:     a.Station,
		Tags:        a.Tags,
		Thumbnail:   a.ThumbnailURL,
		DatabaseURL: a.MediaURL,
		FileType:    string(a.MediaType),
		SubmittedBy: a.SubmittedBy,
	}
}

type assignmentPayload struct {
	KeyNumber int   `json:"key_number"`
	AssetID   int64 `json:"asset_id"`
}

func (c *Client) ListAssets(ctx context.Context) ([]models.AssetRecord, error) {
	var records []models.AssetRecord
	if err := c.do(ctx, http.MethodGet, ASSET_ENDPOINT, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) GetAsset(ctx context.Context, id int64) (models.AssetRecord, error) {
	var record models.AssetRecord
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%d", ASSET_ENDPOINT, id), nil, &record); err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotFound
	}
	return record, nil
}

// CreateAsset persists a new asset and returns its numeric id
func (c *Client) CreateAsset(ctx context.Context, payload AssetPayload) (int64, error) {
	var created struct {
		ID json.Number `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, ASSET_ENDPOINT, payload, &created); err != nil {
		return 0, err
	}
	id, err := created.ID.Int64()
	if err != nil || id <= 0 {
		return 0, ErrNoID
	}
	return id, nil
}

// UpdateAsset writes metadata edits. Only the fields set in edits are sent.
func (c *Client) UpdateAsset(ctx context.Context, id int64, edits models.AssetEdits) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("%s/%d", ASSET_ENDPOINT, id), edits, nil)
}

func (c *Client) ListAssignments(ctx context.Context) ([]models.Assignment, error) {
	var assignments []models.Assignment
	if err := c.do(ctx, http.MethodGet, ASSIGNMENTS_ENDPOINT, nil, &assignments); err != nil {
		return nil, err
	}
	return assignments, nil
}

func (c *Client) CreateAssignment(ctx context.Context, slot int, assetID int64) error {
	return c.do(ctx, http.MethodPost, ASSIGNMENTS_ENDPOINT, assignmentPayload{KeyNumber: slot, AssetID: assetID}, nil)
}

func (c *Client) UpdateAssignment(ctx context.Context, id int64, slot int, assetID int64) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("%s/%d", ASSIGNMENTS_ENDPOINT, id), assignmentPayload{KeyNumber: slot, AssetID: assetID}, nil)
}

func (c *Client) DeleteAssignment(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", ASSIGNMENTS_ENDPOINT, id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	url := c.BaseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header = http.Header{
		"Accept":       []string{"application/json"},
		"Content-Type": []string{"application/json"},
		"User-Agent":   []string{utils.UserAgent},
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		c.connected.Store(false)
		return err
	}
	defer res.Body.Close()
	c.connected.Store(res.StatusCode < http.StatusInternalServerError)

	if res.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &StatusError{Method: method, URL: url, Code: res.StatusCode}
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, endpoint, err)
	}
	return nil
}
