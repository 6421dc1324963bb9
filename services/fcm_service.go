package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"backend/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"
)

// PushService delivers push notifications to crew and office users through
// the FCM HTTP v1 API and mirrors every push into the notifications table.
type PushService struct {
	projectID   string
	db          *sql.DB
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
}

type serviceAccount struct {
	ProjectID   string `json:"project_id"`
	PrivateKey  string `json:"private_key"`
	ClientEmail string `json:"client_email"`
	TokenURI    string `json:"token_uri"`
}

// NewPushService builds a push service from a Firebase service account JSON
// file. credentialsPath usually comes from FIREBASE_CREDENTIALS.
func NewPushService(credentialsPath string, db *sql.DB) (*PushService, error) {
	if credentialsPath == "" {
		return nil, fmt.Errorf("credentials path is required")
	}

	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("error reading credentials file: %v", err)
	}

	var creds serviceAccount
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("error parsing credentials: %v", err)
	}

	// Keys pasted through env files arrive with escaped newlines.
	privateKey := strings.ReplaceAll(creds.PrivateKey, "\\n", "\n")

	config := &jwt.Config{
		Email:      creds.ClientEmail,
		PrivateKey: []byte(privateKey),
		Scopes:     []string{"https://www.googleapis.com/auth/firebase.messaging"},
		TokenURL:   creds.TokenURI,
	}

	return &PushService{
		projectID:   creds.ProjectID,
		db:          db,
		httpClient:  &http.Client{},
		tokenSource: config.TokenSource(context.Background()),
	}, nil
}

// SendToToken sends a single push message to one device token.
func (p *PushService) SendToToken(ctx context.Context, token, title, body string, data map[string]string) error {
	if token == "" {
		return fmt.Errorf("device token cannot be empty")
	}

	oauthToken, err := p.tokenSource.Token()
	if err != nil {
		return fmt.Errorf("error getting OAuth token: %v", err)
	}

	if data == nil {
		data = map[string]string{}
	}

	message := map[string]interface{}{
		"message": map[string]interface{}{
			"token": token,
			"notification": map[string]string{
				"title": title,
				"body":  body,
			},
			"data": data,
			"android": map[string]interface{}{
				"priority": "high",
				"notification": map[string]interface{}{
					"sound":      "default",
					"channel_id": "default",
				},
			},
			"apns": map[string]interface{}{
				"headers": map[string]string{
					"apns-priority": "10",
				},
				"payload": map[string]interface{}{
					"aps": map[string]interface{}{
						"alert": map[string]string{
							"title": title,
							"body":  body,
						},
						"sound": "default",
					},
				},
			},
			"webpush": map[string]interface{}{
				"notification": map[string]interface{}{
					"title": title,
					"body":  body,
				},
				"fcm_options": map[string]interface{}{
					"link": data["action"],
				},
			},
		},
	}

	endpoint := fmt.Sprintf("https://fcm.googleapis.com/v1/projects/%s/messages:send", p.projectID)
	return p.post(ctx, endpoint, oauthToken.AccessToken, message)
}

// SendToUser sends a push to a user by ID. A user without a registered device
// token is skipped silently.
func (p *PushService) SendToUser(ctx context.Context, userID int, title, body string, data map[string]string) error {
	var fcmToken string
	err := p.db.QueryRow(`SELECT fcm_token FROM users WHERE id = $1 AND fcm_token IS NOT NULL AND fcm_token != ''`, userID).Scan(&fcmToken)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("error fetching device token for user %d: %v", userID, err)
	}
	return p.SendToToken(ctx, fcmToken, title, body, data)
}

// Notify pushes to a user and records the notification in the database.
// A failed push still leaves a row behind so the bell icon stays accurate.
func (p *PushService) Notify(ctx context.Context, userID int, title, body string, data map[string]string, action string) error {
	if err := p.SendToUser(ctx, userID, title, body, data); err != nil {
		log.Printf("push to user %d failed: %v", userID, err)
	}

	_, err := p.db.Exec(`
		INSERT INTO notifications (user_id, message, status, action, created_at, updated_at)
		VALUES ($1, $2, 'unread', $3, NOW(), NOW())
	`, userID, body, action)
	if err != nil {
		return fmt.Errorf("error saving notification: %v", err)
	}
	return nil
}

// NotifyLeadAssigned tells a sales rep they picked up a lead.
func (p *PushService) NotifyLeadAssigned(ctx context.Context, userID int, lead models.Lead) error {
	body := fmt.Sprintf("Lead %s (%s) has been assigned to you", lead.CustomerName, lead.Address)
	return p.Notify(ctx, userID, "New lead assigned", body, map[string]string{
		"lead_id": fmt.Sprintf("%d", lead.ID),
		"action":  fmt.Sprintf("/leads/%d", lead.ID),
	}, fmt.Sprintf("/leads/%d", lead.ID))
}

// NotifyQuoteAccepted tells the quote owner a customer accepted.
func (p *PushService) NotifyQuoteAccepted(ctx context.Context, userID int, quote models.Quote) error {
	body := fmt.Sprintf("Quote %s was accepted ($%.2f)", quote.Number, quote.TotalAmount)
	return p.Notify(ctx, userID, "Quote accepted", body, map[string]string{
		"quote_id": fmt.Sprintf("%d", quote.ID),
		"action":   fmt.Sprintf("/quotes/%d", quote.ID),
	}, fmt.Sprintf("/quotes/%d", quote.ID))
}

// NotifyPaymentReceived tells the invoice owner a payment was recorded.
func (p *PushService) NotifyPaymentReceived(ctx context.Context, userID int, invoice models.Invoice, amount float64) error {
	body := fmt.Sprintf("Payment of $%.2f recorded on invoice %s", amount, invoice.Number)
	return p.Notify(ctx, userID, "Payment received", body, map[string]string{
		"invoice_id": fmt.Sprintf("%d", invoice.ID),
		"action":     fmt.Sprintf("/invoices/%d", invoice.ID),
	}, fmt.Sprintf("/invoices/%d", invoice.ID))
}

// SaveDeviceToken stores or replaces a user's FCM device token.
func (p *PushService) SaveDeviceToken(userID int, token string) error {
	_, err := p.db.Exec(`UPDATE users SET fcm_token = $1 WHERE id = $2`, token, userID)
	if err != nil {
		return fmt.Errorf("error saving device token: %v", err)
	}
	return nil
}

// RemoveDeviceToken clears a user's FCM device token on logout.
func (p *PushService) RemoveDeviceToken(userID int) error {
	_, err := p.db.Exec(`UPDATE users SET fcm_token = NULL WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("error removing device token: %v", err)
	}
	return nil
}

func (p *PushService) post(ctx context.Context, endpoint, accessToken string, payload map[string]interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errorResp map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&errorResp); err == nil {
			return fmt.Errorf("FCM API error (status %d): %v", resp.StatusCode, errorResp)
		}
		return fmt.Errorf("FCM API error: status code %d", resp.StatusCode)
	}
	return nil
}
