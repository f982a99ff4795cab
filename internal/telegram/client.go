// Package telegram provides the Telegram notification collaborator.
//
// This package handles:
//   - Sending a notification when a complaint is registered
//   - Sending a notification on every status transition
//   - Critical alerts for operators
//   - Uploading the queue summary image
//
// All sends are fire-and-forget from the store's point of view: a failed
// notification is logged and dropped, it never fails or rolls back the
// complaint operation that triggered it.
package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"jansahayak/internal/complaint"
)

// Client represents a Telegram bot client.
//
// Fields:
//   - BotToken: Telegram bot API token
//   - ChatID: Target chat ID for notifications
//   - DebugMode: If true, skip actual API calls (for testing)
type Client struct {
	BotToken  string
	ChatID    string
	DebugMode bool
	client    *http.Client
}

// Message represents a Telegram message for sending.
type Message struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// NewClient creates a Telegram client from the given credentials.
//
// Returns nil if the token or chat ID is missing (notifications are then
// disabled; every method on a nil client is a safe no-op).
func NewClient(botToken, chatID string, debugMode bool) *Client {
	if botToken == "" || chatID == "" {
		log.Println("⚠️  TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID not set. Telegram notifications disabled.")
		return nil
	}

	log.Println("✓ Telegram configured successfully")
	if debugMode {
		log.Println("🐛 DEBUG MODE ENABLED - Telegram calls will be simulated")
	}

	return &Client{
		BotToken:  botToken,
		ChatID:    chatID,
		DebugMode: debugMode,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// doRequest handles the common logic for sending requests to the Telegram
// API.
//
// Parameters:
//   - method: Telegram API method name (e.g., "sendMessage")
//   - payload: Request payload (will be JSON marshaled)
//
// Returns:
//   - error: Request or API error
func (c *Client) doRequest(method string, payload interface{}) error {
	if c.DebugMode {
		log.Printf("   🐛 [debug] Telegram %s skipped", method)
		return nil
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/%s", c.BotToken, method)
	resp, err := c.client.Post(apiURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if ok, exists := result["ok"].(bool); !exists || !ok {
		return fmt.Errorf("Telegram API error: %v", result)
	}
	return nil
}

// SendComplaintRegistered notifies the authority channel about a newly
// registered complaint.
//
// Message format:
//
//	🆕 Complaint : JAN-7K2M9QWX
//	⚠️ CRITICAL (risk 75/100)
//	🔧 pothole, severity 5/10
//	👤 Asha Patel, 📞 9876543210
//	📍 Near bus depot, Valod
//	🔁 3 prior reports at this location
//	💬 Details...
func (c *Client) SendComplaintRegistered(cm *complaint.Complaint) error {
	if c == nil {
		return nil
	}

	log.Println("   📨 Sending registration notice to Telegram...")

	var b strings.Builder
	fmt.Fprintf(&b, "🆕 <b>Complaint : %s</b>\n\n", cm.ID)
	fmt.Fprintf(&b, "%s <b>%s</b> (risk %d/100)\n", tierEmoji(cm.Risk.Tier), cm.Risk.Tier, cm.Risk.Score)
	fmt.Fprintf(&b, "🔧 %s, severity %d/10\n", cm.Assessment.Type, cm.Assessment.Severity)
	fmt.Fprintf(&b, "👤 %s, 📞 %s\n", cm.CitizenName, cm.CitizenPhone)
	fmt.Fprintf(&b, "📍 %s\n", cm.Location.Address)
	if cm.Recurrence.Recurring {
		fmt.Fprintf(&b, "🔁 %d prior reports at this location\n", cm.Recurrence.PriorCount)
	}
	if cm.PlanPending {
		b.WriteString("⏳ Remediation plan pending\n")
	}
	if cm.Assessment.Description != "" {
		fmt.Fprintf(&b, "\n💬 <b>Assessment:</b>\n%s", cm.Assessment.Description)
	}

	msg := Message{
		ChatID:                c.ChatID,
		Text:                  b.String(),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}
	if err := c.doRequest("sendMessage", msg); err != nil {
		return fmt.Errorf("failed to send registration notice: %w", err)
	}
	return nil
}

// SendStatusUpdate notifies the authority channel about a lifecycle
// transition.
func (c *Client) SendStatusUpdate(cm *complaint.Complaint, change complaint.StatusChange) error {
	if c == nil {
		return nil
	}

	log.Println("   📨 Sending status update to Telegram...")

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>Complaint %s → %s</b>\n\n", statusEmoji(change.Status), cm.ID, change.Status)
	fmt.Fprintf(&b, "👮 %s\n", change.Actor)
	fmt.Fprintf(&b, "📅 %s\n", change.Timestamp.Format("2006-01-02 15:04:05"))
	if change.Note != "" {
		fmt.Fprintf(&b, "📝 %s\n", change.Note)
	}
	fmt.Fprintf(&b, "📍 %s", cm.Location.Address)

	msg := Message{
		ChatID:                c.ChatID,
		Text:                  b.String(),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}
	if err := c.doRequest("sendMessage", msg); err != nil {
		return fmt.Errorf("failed to send status update: %w", err)
	}
	return nil
}

// SendCriticalAlert notifies operators about a service-level failure.
//
// Parameters:
//   - errorType: Type of error (e.g., "Store Failure")
//   - errorMsg: Detailed error message
//   - retryCount: Number of retry attempts made
func (c *Client) SendCriticalAlert(errorType, errorMsg string, retryCount int) error {
	if c == nil {
		log.Println("   ⚠️  Telegram not configured, skipping critical alert")
		return nil
	}

	log.Println("   🚨 Sending critical alert to Telegram...")

	message := fmt.Sprintf(
		"🚨 <b>CRITICAL ALERT - JANSAHAYAK SERVICE</b>\n\n"+
			"<b>Error Type:</b> %s\n"+
			"<b>Error Message:</b> %s\n"+
			"<b>Retry Attempts:</b> %d\n"+
			"<b>Timestamp:</b> %s\n\n"+
			"⚠️ <b>Action Required:</b> Please check the service immediately.",
		errorType,
		errorMsg,
		retryCount,
		time.Now().Format("2006-01-02 15:04:05"),
	)

	msg := Message{
		ChatID:                c.ChatID,
		Text:                  message,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}
	if err := c.doRequest("sendMessage", msg); err != nil {
		return fmt.Errorf("failed to send Telegram alert: %w", err)
	}

	log.Println("   ✓ Critical alert successfully sent to Telegram")
	return nil
}

// SendSummaryPhoto uploads a PNG image (the queue digest) with a caption.
func (c *Client) SendSummaryPhoto(png []byte, caption string) error {
	if c == nil {
		return nil
	}
	if c.DebugMode {
		log.Println("   🐛 [debug] Telegram sendPhoto skipped")
		return nil
	}

	log.Println("   📨 Uploading summary image to Telegram...")

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("chat_id", c.ChatID); err != nil {
		return fmt.Errorf("failed to write chat_id field: %w", err)
	}
	if err := writer.WriteField("caption", caption); err != nil {
		return fmt.Errorf("failed to write caption field: %w", err)
	}
	part, err := writer.CreateFormFile("photo", "queue-summary.png")
	if err != nil {
		return fmt.Errorf("failed to create photo part: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return fmt.Errorf("failed to write photo bytes: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize upload: %w", err)
	}

	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendPhoto", c.BotToken)
	resp, err := c.client.Post(apiURL, writer.FormDataContentType(), &body)
	if err != nil {
		return fmt.Errorf("failed to upload photo: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read upload response: %w", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("failed to parse upload response: %w", err)
	}
	if ok, exists := result["ok"].(bool); !exists || !ok {
		return fmt.Errorf("Telegram API error: %v", result)
	}
	return nil
}

func tierEmoji(tier complaint.UrgencyTier) string {
	switch tier {
	case complaint.TierCritical:
		return "🔴"
	case complaint.TierHigh:
		return "🟠"
	case complaint.TierModerate:
		return "🟡"
	default:
		return "🟢"
	}
}

func statusEmoji(status complaint.Status) string {
	switch status {
	case complaint.StatusUnderReview:
		return "🔵"
	case complaint.StatusInProgress:
		return "🟠"
	case complaint.StatusResolved:
		return "✅"
	case complaint.StatusRejected:
		return "❌"
	default:
		return "🟡"
	}
}
