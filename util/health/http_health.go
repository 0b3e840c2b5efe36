package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CheckHTTPServer returns a check that GETs address+healthPath and passes on a 2xx response. The
// response body becomes the check's message.
func CheckHTTPServer(address string, healthPath string) func(context.Context, bool) (int, string, error) {
	client := &http.Client{
		Timeout: 2 * time.Second,
	}

	url := strings.TrimSuffix(address, "/") + "/" + strings.TrimPrefix(healthPath, "/")

	return func(ctx context.Context, _ bool) (int, string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return http.StatusServiceUnavailable, fmt.Sprintf("invalid health URL %s", url), err
		}

		resp, err := client.Do(req)
		if err != nil {
			return http.StatusServiceUnavailable, fmt.Sprintf("%s not accepting connections", address), err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return http.StatusOK, string(body), nil
		}

		return http.StatusServiceUnavailable, string(body), nil
	}
}
