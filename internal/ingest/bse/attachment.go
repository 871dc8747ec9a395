package bse

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// FetchAttachment downloads the filing PDF for an announcement. Callers
// treat failure as degradation, not a fatal error: the notification goes out
// without the document.
func (c *Client) FetchAttachment(ctx context.Context, pdfName string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pdfBaseURL+pdfName, nil)
	if err != nil {
		return nil, fmt.Errorf("create attachment request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment %s: %w", pdfName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download attachment %s: unexpected status %d", pdfName, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read attachment %s: %w", pdfName, err)
	}

	if len(body) == 0 {
		return nil, fmt.Errorf("attachment %s is empty", pdfName)
	}

	return body, nil
}
