/*
Package source retrieves the published INDEC CSV distributions and turns
them into raw tables for reshaping.

PURPOSE:
Each configured endpoint serves one wide CSV: a period column followed by
one column per series. This package owns the transport concerns only. It
fetches with retries and a bounded per-attempt timeout, tolerates a UTF-8
BOM, and hands back the header and rows as strings. Interpreting column
names and cell values belongs to the series package.

FAILURE MODEL:
A fetch that exhausts its retry budget, returns a non-2xx status, or yields
a CSV with no data rows is a hard failure. Callers treat any error from
FetchTable as structural: a partial load must never look like a complete
one.

SEE ALSO:
- series/reshape.go: consumes the tables produced here
- pipeline/run.go: drives one fetch per configured source
*/
package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/austral/ipc-engine/logger"
	"github.com/austral/ipc-engine/series"
)

var (
	// ErrBadStatus reports a non-2xx response that survived the retry budget.
	ErrBadStatus = errors.New("unexpected http status")
	// ErrEmptyBody reports a 2xx response without any data rows.
	ErrEmptyBody = errors.New("empty source body")
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

const (
	defaultTimeout = 60 * time.Second
	retryMax       = 3
	retryWaitMin   = 200 * time.Millisecond
	retryWaitMax   = 2 * time.Second
)

// Client fetches CSV distributions over HTTP.
type Client struct {
	http *retryablehttp.Client
	log  logger.Logger
}

// New returns a client with the given per-attempt timeout. A zero timeout
// selects the 60s default. Transient failures and 5xx responses are retried
// with backoff before the fetch is declared failed.
func New(timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logger.NopLogger
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = retryWaitMin
	rc.RetryWaitMax = retryWaitMax
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil

	return &Client{
		http: rc,
		log:  log.WithPrefix("source: "),
	}
}

// FetchTable downloads one CSV distribution and parses it into a table.
// The name identifies the source in logs and in the returned table; the
// first header column is expected to be the period column.
func (c *Client) FetchTable(ctx context.Context, name, url string) (series.Table, error) {
	c.log.Infof("fetching %s", name)
	c.log.Debugf("GET %s", url)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return series.Table{}, errors.Wrapf(err, "build request for %s", name)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return series.Table{}, errors.Wrapf(err, "fetch %s", name)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return series.Table{}, errors.Wrapf(ErrBadStatus, "fetch %s: %s", name, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return series.Table{}, errors.Wrapf(err, "read body of %s", name)
	}
	body = bytes.TrimPrefix(body, utf8BOM)
	if len(bytes.TrimSpace(body)) == 0 {
		return series.Table{}, errors.Wrapf(ErrEmptyBody, "source %s", name)
	}

	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return series.Table{}, errors.Wrapf(err, "parse csv from %s", name)
	}
	if len(records) < 2 {
		return series.Table{}, errors.Wrapf(ErrEmptyBody, "source %s has no data rows", name)
	}

	c.log.Infof("fetched %s: %d rows, %d columns", name, len(records)-1, len(records[0]))

	return series.Table{
		Source: name,
		Header: records[0],
		Rows:   records[1:],
	}, nil
}
