package telegram

import (
	"context"
	"log"
	"time"

	"jansahayak/internal/complaint"
	"jansahayak/internal/translate"
)

// Notifier delivers complaint lifecycle events to the authority channel.
//
// It wraps the Telegram client and the optional transliterator. All
// notifications are best-effort: failures are logged and dropped, never
// propagated to the complaint operation that triggered them.
type Notifier struct {
	client     *Client
	translator *translate.Translator
}

// NewNotifier creates a Notifier. Both collaborators may be nil; a Notifier
// with a nil client drops every event silently.
func NewNotifier(client *Client, translator *translate.Translator) *Notifier {
	return &Notifier{client: client, translator: translator}
}

// ComplaintCreated sends the registration notice for a newly committed
// complaint. Text fields are transliterated to Gujarati script when the
// transliterator is configured; on transliteration failure the English
// originals are sent.
func (n *Notifier) ComplaintCreated(c *complaint.Complaint) {
	if n == nil || n.client == nil {
		return
	}

	cm := *c
	if n.translator != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		texts, err := n.translator.BatchTransliterate(ctx, []string{
			cm.CitizenName,
			cm.Assessment.Description,
			cm.Location.Address,
		})
		if err != nil {
			log.Printf("   ⚠️  Transliteration failed, sending English-only: %v", err)
		} else {
			cm.CitizenName = texts[0]
			cm.Assessment.Description = texts[1]
			cm.Location.Address = texts[2]
		}
	}

	if err := n.client.SendComplaintRegistered(&cm); err != nil {
		log.Printf("   ⚠️  Failed to send registration notice for %s: %v", c.ID, err)
		return
	}
	log.Printf("   ✓ Registration notice sent for %s", c.ID)
}

// StatusChanged sends a lifecycle transition notice.
func (n *Notifier) StatusChanged(c *complaint.Complaint, change complaint.StatusChange) {
	if n == nil || n.client == nil {
		return
	}

	if err := n.client.SendStatusUpdate(c, change); err != nil {
		log.Printf("   ⚠️  Failed to send status update for %s: %v", c.ID, err)
		return
	}
	log.Printf("   ✓ Status update sent for %s (%s)", c.ID, change.Status)
}
