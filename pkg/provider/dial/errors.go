package dial

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rhuss/plauder/pkg/api"
)

// maxErrorBody caps how much of an error response body is kept.
const maxErrorBody = 64 << 10

// mapHTTPError converts a non-2xx response into a request_failed error
// carrying the status code and the raw body. If the body is a JSON error
// envelope its message becomes the error message.
func mapHTTPError(resp *http.Response) *api.APIError {
	body := readErrorBody(resp.Body)
	return api.NewRequestFailedError(resp.StatusCode, body, extractErrorMessage(body), nil)
}

// mapNetworkError converts a transport failure (connection refused, DNS,
// timeout) into a request_failed error without a status code.
func mapNetworkError(err error) *api.APIError {
	return api.NewRequestFailedError(0, "", "connection error: "+err.Error(), err)
}

func readErrorBody(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return ""
	}
	return string(data)
}

// extractErrorMessage returns error.message from a JSON error envelope, or
// "" if body is not one.
func extractErrorMessage(body string) string {
	if body == "" {
		return ""
	}
	var errResp chatErrorResponse
	if err := json.Unmarshal([]byte(body), &errResp); err == nil {
		return errResp.Error.Message
	}
	return ""
}
