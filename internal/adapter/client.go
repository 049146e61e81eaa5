package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// maxErrorBody bounds how much of a vendor error response is captured for
// the error message.
const maxErrorBody = 2048

// PostJSON sends a JSON body and decodes a JSON response. A non-2xx status
// is returned as *VendorCallError carrying the upstream status and a
// truncated body excerpt.
func PostJSON(ctx context.Context, client *http.Client, vendor, url, secret string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}

	resp, err := client.Do(req)
	if err != nil {
		return ClassifyError(vendor, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(vendor, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", vendor, err)
	}
	return nil
}

// GetJSON performs an authenticated GET and decodes a JSON response with the
// same error classification as PostJSON.
func GetJSON(ctx context.Context, client *http.Client, vendor, url, secret string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}

	resp, err := client.Do(req)
	if err != nil {
		return ClassifyError(vendor, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(vendor, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", vendor, err)
	}
	return nil
}

func errorFromResponse(vendor string, resp *http.Response) error {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &VendorCallError{
		Vendor:  vendor,
		Status:  resp.StatusCode,
		Message: string(bytes.TrimSpace(excerpt)),
	}
}

// ClassifyError maps transport-level errors to *VendorCallError, preserving
// context cancellation for the caller to inspect.
func ClassifyError(vendor string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &VendorCallError{Vendor: vendor, Message: "request cancelled or timed out", Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &VendorCallError{Vendor: vendor, Message: "request timed out", Err: err}
	}

	return &VendorCallError{Vendor: vendor, Message: err.Error(), Err: err}
}

// RetryableStatus reports whether a response status justifies the one
// bounded fallback retry against the vendor's official endpoint.
func RetryableStatus(err error) bool {
	var vce *VendorCallError
	return errors.As(err, &vce) && vce.Status != 0
}
