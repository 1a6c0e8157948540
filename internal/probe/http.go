package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/leozw/quota-guardian/internal/config"
)

type HTTPChecker struct {
	client *http.Client
}

func NewHTTPChecker() *HTTPChecker {
	return &HTTPChecker{
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

// Check issues a GET against the target. Any 2xx answer counts as up; the deadline comes
// from ctx.
func (h *HTTPChecker) Check(ctx context.Context, p config.ProbeConfig) Result {
	result := Result{Name: p.Name, Type: "http"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Target, nil)
	if err != nil {
		result.Status = StatusDown
		result.Error = fmt.Sprintf("Failed to create request: %v", err)
		return result
	}
	req.Header.Set("User-Agent", "quota-guardian-probe")

	start := time.Now()
	resp, err := h.client.Do(req)
	result.ResponseTime = time.Since(start)

	if err != nil {
		result.Status = StatusDown
		result.Error = fmt.Sprintf("Request failed: %v", err)
		return result
	}
	defer resp.Body.Close()
	// drena o body para reaproveitar a conexão
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Status = StatusDown
		result.Error = fmt.Sprintf("Unexpected status code: %d", resp.StatusCode)
		return result
	}

	result.Status = StatusUp
	return result
}
