package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	fcmScope       = "https://www.googleapis.com/auth/firebase.messaging"
	fcmEndpointFmt = "https://fcm.googleapis.com/v1/projects/%s/messages:send"
)

// FCMPusher sends notifications through the Firebase Cloud Messaging HTTP v1 API
type FCMPusher struct {
	client   *http.Client
	endpoint string
}

// NewFCMPusher builds a pusher authenticated with a Google service account.
// An empty credentialsFile falls back to application default credentials.
func NewFCMPusher(ctx context.Context, projectID, credentialsFile string) (*FCMPusher, error) {
	if projectID == "" {
		return nil, fmt.Errorf("fcm: project id is required")
	}

	var creds *google.Credentials
	var err error
	if credentialsFile != "" {
		data, readErr := os.ReadFile(credentialsFile)
		if readErr != nil {
			return nil, fmt.Errorf("fcm: read credentials: %w", readErr)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, fcmScope)
	} else {
		creds, err = google.FindDefaultCredentials(ctx, fcmScope)
	}
	if err != nil {
		return nil, fmt.Errorf("fcm: load credentials: %w", err)
	}

	return NewFCMPusherWithClient(oauth2.NewClient(ctx, creds.TokenSource), fmt.Sprintf(fcmEndpointFmt, projectID)), nil
}

// NewFCMPusherWithClient uses an already authenticated client and an explicit
// send endpoint
func NewFCMPusherWithClient(client *http.Client, endpoint string) *FCMPusher {
	return &FCMPusher{client: client, endpoint: endpoint}
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Push implements Pusher
func (p *FCMPusher) Push(ctx context.Context, token string, n Notification) error {
	payload, err := json.Marshal(fcmRequest{Message: fcmMessage{
		Token:        token,
		Notification: fcmNotification{Title: n.Title, Body: n.Body},
		Data:         n.Data,
	}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fcm: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("fcm: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
