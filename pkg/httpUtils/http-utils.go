package http_utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxDrainBytes bounds how much of a response body is read before closing it.
const maxDrainBytes = 64 << 10

// PostJSON sends body to url with a JSON content type and returns the response status code.
// The response body is drained and discarded.
func PostJSON(ctx context.Context, client *http.Client, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to post to %s: %w", url, err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	return resp.StatusCode, nil
}
