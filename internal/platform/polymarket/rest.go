package polymarket

import (
	"fmt"
	"io"
	"net/http"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

// maxResponseBytes caps what is read from either REST API.
const maxResponseBytes = 4 << 20

// roundTrip sends req and returns the body of a 2xx response.
func roundTrip(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus turns an error status into the matching domain error.
func checkHTTPStatus(status int, body []byte) error {
	var kind error
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		kind = domain.ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = domain.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		kind = domain.ErrRateLimited
	case status == http.StatusBadRequest:
		kind = domain.ErrOrderRejected
	default:
		return fmt.Errorf("status %d: %s", status, body)
	}
	return fmt.Errorf("%w: %s", kind, body)
}
