// JanSahayak - Civic Complaint Processing Service
//
// Receives citizen complaints with photo evidence, scores their urgency,
// detects recurring issues at the same location, drafts remediation plans,
// and notifies the municipal authority channel on Telegram.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"jansahayak/internal/api"
	"jansahayak/internal/complaint"
	"jansahayak/internal/config"
	"jansahayak/internal/health"
	"jansahayak/internal/memory"
	"jansahayak/internal/orchestrator"
	"jansahayak/internal/planner"
	"jansahayak/internal/store"
	"jansahayak/internal/summary"
	"jansahayak/internal/telegram"
	"jansahayak/internal/translate"
	"jansahayak/internal/vision"
)

func main() {
	log.Println("🚀 Starting JanSahayak Complaint Service")
	log.Println("============================================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}
	log.Println("✓ Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("❌ Failed to open complaint store: %v", err)
	}
	defer st.Close()
	log.Printf("✓ Complaint store ready (%s)", cfg.DatabasePath)

	// Recurrence index, rebuilt from persisted complaints
	index := memory.NewIndex()
	entries, err := st.IndexEntries(ctx)
	if err != nil {
		log.Fatalf("❌ Failed to rebuild recurrence index: %v", err)
	}
	index.Load(entries)
	st.SetRecurrenceIndex(index)
	log.Printf("✓ Recurrence index rebuilt (%d entries)", index.Len())

	// Gemini collaborators
	visionClient, err := vision.NewClient(ctx, cfg.GeminiAPIKey, cfg.VisionModel)
	if err != nil {
		log.Fatalf("❌ Failed to create vision client: %v", err)
	}
	log.Printf("✓ Vision analyzer ready (%s)", cfg.VisionModel)

	plannerClient, err := planner.NewClient(ctx, cfg.GeminiAPIKey, cfg.PlannerModel)
	if err != nil {
		log.Fatalf("❌ Failed to create planner client: %v", err)
	}
	log.Printf("✓ Remediation planner ready (%s)", cfg.PlannerModel)

	// Notifications
	translator, err := translate.NewTranslator(ctx, cfg.GeminiAPIKey, cfg.PlannerModel)
	if err != nil {
		log.Fatalf("❌ Failed to create transliterator: %v", err)
	}
	tgClient := telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.DebugMode)
	st.SetNotifier(telegram.NewNotifier(tgClient, translator))

	// Health + orchestrator
	monitor := health.NewMonitor()
	orch := orchestrator.New(visionClient, plannerClient, index, st, monitor, orchestrator.Options{
		VisionTimeout:      cfg.VisionTimeout,
		PlanTimeout:        cfg.PlanTimeout,
		RetryDelay:         cfg.RetryDelay,
		RecurrenceRadius:   cfg.RecurrenceRadiusMeters,
		RecurrenceLookback: cfg.RecurrenceLookback,
	})

	// Background workers
	backfill := orchestrator.NewBackfillWorker(st, plannerClient, cfg.BackfillInterval, cfg.PlanTimeout)
	go backfill.Run(ctx)

	go runDigestLoop(ctx, st, tgClient, cfg.DigestInterval)
	log.Printf("✓ Queue digest started (every %s)", cfg.DigestInterval)

	// HTTP surface
	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.NewHandler(orch, st, monitor).RegisterRoutes(router)

	addr := ":" + cfg.ListenPort
	log.Printf("✓ Listening on %s", addr)
	log.Println("============================================")

	errCh := make(chan error, 1)
	go func() {
		errCh <- router.Run(addr)
	}()

	select {
	case err := <-errCh:
		if tgClient != nil {
			tgClient.SendCriticalAlert("Server Failure", err.Error(), 0)
		}
		log.Fatalf("❌ Server stopped: %v", err)
	case <-ctx.Done():
		log.Println("👋 Shutting down")
	}
}

// runDigestLoop periodically renders the open-complaint queue as a table
// image and sends it to the authority channel.
func runDigestLoop(ctx context.Context, st *store.Store, tg *telegram.Client, interval time.Duration) {
	if tg == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sendDigest(ctx, st, tg)
		}
	}
}

func sendDigest(ctx context.Context, st *store.Store, tg *telegram.Client) {
	log.Println("📋 Building queue digest...")

	complaints, err := openComplaints(ctx, st)
	if err != nil {
		log.Printf("   ⚠️  Digest query failed: %v", err)
		return
	}
	if len(complaints) == 0 {
		log.Println("   ✓ No open complaints, skipping digest")
		return
	}

	png, err := summary.RenderQueue(complaints)
	if err != nil {
		log.Printf("   ⚠️  Digest render failed: %v", err)
		return
	}

	caption := fmt.Sprintf("📋 Open complaints: %d (%s)",
		len(complaints), time.Now().Format("02 Jan 2006"))
	if err := tg.SendSummaryPhoto(png, caption); err != nil {
		log.Printf("   ⚠️  Digest upload failed: %v", err)
		return
	}
	log.Printf("   ✓ Digest sent (%d complaints)", len(complaints))
}

// openComplaints gathers every non-terminal complaint in queue order.
func openComplaints(ctx context.Context, st *store.Store) ([]complaint.Complaint, error) {
	var open []complaint.Complaint
	for _, status := range complaint.AllStatuses {
		if status.Terminal() {
			continue
		}
		s := status
		matched, err := st.Query(ctx, store.Filter{Status: &s})
		if err != nil {
			return nil, err
		}
		for _, c := range matched {
			open = append(open, *c)
		}
	}
	return open, nil
}
