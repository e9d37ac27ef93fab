package listui

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	appLog "consultboard/internal/log"
	"consultboard/internal/record"
)

// MaxPageSize is the largest page the list-view service returns.
const MaxPageSize = 200

// Query names one list view of one object type.
type Query struct {
	ObjectAPIName   string
	ListViewAPIName string
	PageSize        int
	// Fields optionally restricts the returned columns (qualified names,
	// e.g. "Consult_Request__c.Name").
	Fields []string
}

func (q Query) String() string {
	return q.ObjectAPIName + "/" + q.ListViewAPIName
}

// Page is one page of raw records.
type Page struct {
	Records       []record.RawRecord
	NextPageToken string
	FromCache     bool // true if the body was reused after a 304
}

// Fetcher is the list-view query collaborator.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) (Page, error)
}

// cacheEntry holds HTTP cache metadata for a single list-view URL.
type cacheEntry struct {
	URL       string    `json:"url"`
	ETag      string    `json:"etag,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIVersion string
	Token      string
	CacheDir   string // empty disables the disk cache
	Timeout    time.Duration
}

// Client fetches list views from the record store's UI API, revalidating a
// disk-cached copy with If-None-Match.
type Client struct {
	http     *http.Client
	baseURL  string
	version  string
	token    string
	cacheDir string
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.APIVersion == "" {
		opts.APIVersion = "59.0"
	}
	return &Client{
		http:     &http.Client{Timeout: opts.Timeout},
		baseURL:  opts.BaseURL,
		version:  opts.APIVersion,
		token:    opts.Token,
		cacheDir: opts.CacheDir,
	}
}

type listResponse struct {
	Records struct {
		Records       []record.RawRecord `json:"records"`
		NextPageToken *string            `json:"nextPageToken"`
	} `json:"records"`
}

// Fetch loads the first page of q. Every failure is returned as *LoadFailure.
func (c *Client) Fetch(ctx context.Context, q Query) (Page, error) {
	fetchID := uuid.NewString()

	u, err := c.listURL(q)
	if err != nil {
		return Page{}, &LoadFailure{Query: q, Err: err}
	}

	var (
		cachePath  string
		meta       cacheEntry
		cachedBody []byte
	)
	if c.cacheDir != "" {
		cachePath = c.cachePathForURL(u)
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			appLog.Error("listui cache dir unavailable", err, "fetch_id", fetchID, "path", cachePath)
			cachePath = ""
		} else {
			meta, _ = loadCacheMeta(cachePath)
			cachedBody, _ = loadCacheBody(cachePath)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Page{}, &LoadFailure{Query: q, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if meta.ETag != "" && len(cachedBody) > 0 {
		req.Header.Set("If-None-Match", meta.ETag)
	}

	appLog.Info("listui fetch start", "fetch_id", fetchID, "query", q.String(), "url", redactURL(u))

	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, &LoadFailure{Query: q, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, &LoadFailure{Query: q, Status: resp.StatusCode, Err: err}
	}

	fromCache := false
	switch resp.StatusCode {
	case http.StatusOK:
		if cachePath != "" {
			newMeta := cacheEntry{URL: u, ETag: resp.Header.Get("ETag")}
			if err := saveCache(cachePath, newMeta, body); err != nil {
				appLog.Error("listui cache save failed", err, "fetch_id", fetchID, "query", q.String())
			}
		}
	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return Page{}, &LoadFailure{Query: q, Status: resp.StatusCode,
				Err: errors.New("received 304 Not Modified but no cached body available")}
		}
		body = cachedBody
		fromCache = true
	default:
		return Page{}, &LoadFailure{
			Query:   q,
			Status:  resp.StatusCode,
			Message: payloadMessage(body),
			Err:     errors.New(resp.Status),
		}
	}

	var lr listResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return Page{}, &LoadFailure{Query: q, Status: resp.StatusCode, Err: fmt.Errorf("decode list response: %w", err)}
	}

	page := Page{Records: lr.Records.Records, FromCache: fromCache}
	if lr.Records.NextPageToken != nil {
		page.NextPageToken = *lr.Records.NextPageToken
		appLog.Info("listui list view has more records than one page",
			"fetch_id", fetchID, "query", q.String(), "page_size", q.PageSize)
	}

	appLog.Info("listui fetch success",
		"fetch_id", fetchID,
		"query", q.String(),
		"status", resp.StatusCode,
		"from_cache", fromCache,
		"record_count", len(page.Records),
	)
	return page, nil
}

func (c *Client) listURL(q Query) (string, error) {
	if c.baseURL == "" {
		return "", errors.New("store base URL is empty")
	}
	if q.ObjectAPIName == "" || q.ListViewAPIName == "" {
		return "", errors.New("query needs an object and a list view")
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse store base URL: %w", err)
	}

	size := q.PageSize
	if size <= 0 || size > MaxPageSize {
		size = MaxPageSize
	}

	u := base.JoinPath("services", "data", "v"+c.version, "ui-api", "list-ui", q.ObjectAPIName, q.ListViewAPIName)
	v := url.Values{}
	v.Set("pageSize", strconv.Itoa(size))
	for _, f := range q.Fields {
		v.Add("fields", f)
	}
	u.RawQuery = v.Encode()
	return u.String(), nil
}

func (c *Client) cachePathForURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	// First 16 hex chars as directory name.
	return filepath.Join(c.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.json"))
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.json"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "listui://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
