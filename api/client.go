package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"imagecleanse/types"
)

// metadataBatch caps values per metadata request to keep URLs short.
const metadataBatch = 200

// Client talks to a remote catalog. It satisfies the same catalog interface
// as the SQLite store, so the orchestrator and resolver can use either.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// NewClient builds a client for baseURL (scheme and host, optional prefix).
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid catalog url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{baseURL: parsed, http: &http.Client{Timeout: timeout}}, nil
}

// Ingest submits a scan report as an image dataset.
func (c *Client) Ingest(ctx context.Context, report *types.ScanReport) (types.IngestSummary, error) {
	if err := report.Validate(); err != nil {
		return types.IngestSummary{}, err
	}
	var resp DatasetResponse
	if err := c.do(ctx, http.MethodPost, "/cleanse/image-dataset", nil, DatasetFromReport(report), &resp); err != nil {
		return types.IngestSummary{}, err
	}
	return types.IngestSummary{
		ImagesCreated:   resp.ImagesCreated,
		ImagesUpdated:   resp.ImagesUpdated,
		ImagesUnchanged: resp.ImagesUnchanged,
		FoldersTouched:  1,
	}, nil
}

// Images fetches catalog metadata matching q. An empty query returns everything.
func (c *Client) Images(ctx context.Context, q types.ImageQuery) ([]types.ImageRecord, error) {
	if q.Empty() {
		return c.metadata(ctx, url.Values{})
	}

	byID := make(map[int64]types.ImageRecord)
	fetch := func(key string, values []string) error {
		for start := 0; start < len(values); start += metadataBatch {
			end := min(start+metadataBatch, len(values))
			recs, err := c.metadata(ctx, url.Values{key: values[start:end]})
			if err != nil {
				return err
			}
			for _, rec := range recs {
				byID[rec.ID] = rec
			}
		}
		return nil
	}
	if err := fetch("path", q.Paths); err != nil {
		return nil, err
	}
	if err := fetch("hashes", q.Hashes); err != nil {
		return nil, err
	}
	if err := fetch("group_ids", q.GroupIDs); err != nil {
		return nil, err
	}

	out := make([]types.ImageRecord, 0, len(byID))
	for _, rec := range byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (c *Client) metadata(ctx context.Context, query url.Values) ([]types.ImageRecord, error) {
	var resp MetadataResponse
	if err := c.do(ctx, http.MethodGet, "/cleanse/images/metadata", query, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]types.ImageRecord, 0, len(resp.Images))
	for _, m := range resp.Images {
		out = append(out, m.Record())
	}
	return out, nil
}

// ReplaceGroups posts the memberships together with the rows they supersede.
func (c *Client) ReplaceGroups(ctx context.Context, w types.GroupWrite) error {
	if err := w.Validate(); err != nil {
		return err
	}
	query := url.Values{}
	if w.ReplaceAll {
		query.Set("replace_all", "true")
	}
	if len(w.ReplaceGroups) > 0 {
		query["replace_groups"] = w.ReplaceGroups
	}
	if len(w.ReplaceImages) > 0 {
		ids := make([]string, 0, len(w.ReplaceImages))
		for _, id := range w.ReplaceImages {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		query["replace_images"] = ids
	}
	var resp StatusResponse
	return c.do(ctx, http.MethodPost, "/cleanse/images/duplicates", query, membershipsToWire(w.Members), &resp)
}

// Groups lists duplicate groups. A nil ids slice returns every group.
func (c *Client) Groups(ctx context.Context, ids []string) ([]types.DuplicateGroup, error) {
	query := url.Values{}
	switch {
	case ids == nil:
	case len(ids) == 0:
		query.Set("group_ids", "")
	default:
		query["group_ids"] = ids
	}
	var resp DuplicatesResponse
	if err := c.do(ctx, http.MethodGet, "/cleanse/duplicates", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// Stats fetches catalog counters.
func (c *Client) Stats(ctx context.Context) (types.CatalogStats, error) {
	var stats types.CatalogStats
	if err := c.do(ctx, http.MethodGet, "/cleanse/stats", nil, nil, &stats); err != nil {
		return types.CatalogStats{}, err
	}
	return stats, nil
}

// Rescan asks the remote daemon for a targeted cycle.
func (c *Client) Rescan(ctx context.Context, paths []string) error {
	var resp StatusResponse
	return c.do(ctx, http.MethodPost, "/cleanse/rescan", nil, RescanRequest{Paths: paths}, &resp)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&e)
		return statusError(method, path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// statusError maps protocol rejections back onto the catalog sentinels so
// callers can use errors.Is regardless of transport.
func statusError(method, path string, status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	switch {
	case status == http.StatusBadRequest && path == "/cleanse/image-dataset":
		return fmt.Errorf("%w: %s", types.ErrInvalidReport,
			strings.TrimPrefix(message, types.ErrInvalidReport.Error()+": "))
	case status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", types.ErrInvalidGroups,
			strings.TrimPrefix(message, types.ErrInvalidGroups.Error()+": "))
	}
	return fmt.Errorf("%s %s: status %d: %s", method, path, status, message)
}
