package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

// postBindNotification posts a bind event to the configured callback URL.
// The MVP is explicitly no-retry; the receiver is expected to handle
// redelivery idempotently if it cares to.
func postBindNotification(ctx context.Context, url, address, userID, chain string) error {
	body, err := json.Marshal(map[string]string{
		"address": address,
		"user_id": userID,
		"chain":   chain,
	})
	if err != nil {
		return fmt.Errorf("encode bind notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build bind notification request: %w", err)
	}
	req.Header.Set(headerContentType, contentTypeJSON)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send bind notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bind notification rejected with status %d", resp.StatusCode)
	}
	return nil
}
