package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/curavoy/curavoy/internal/pkg/audit"
	"github.com/curavoy/curavoy/internal/pkg/database"
	"github.com/curavoy/curavoy/internal/pkg/escrow"
	"github.com/curavoy/curavoy/internal/pkg/gateway"
	"github.com/curavoy/curavoy/internal/pkg/metrics/counter"
	"github.com/curavoy/curavoy/internal/pkg/payout"
)

const (
	payoutSweepInterval  = 5 * time.Minute
	payoutBatchLimit     = 50
	webhookSweepInterval = 10 * time.Minute
	webhookMinAge        = 15 * time.Minute
	webhookMaxAttempts   = 5
	webhookSweepLimit    = 100
	counterFlushInterval = 5 * time.Minute
)

var (
	manager     *Manager
	managerOnce sync.Once
)

// Manager owns the job queue and the periodic background tickers.
type Manager struct {
	queue  *Queue
	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	active bool
}

// GetManager returns the singleton manager instance
func GetManager() *Manager {
	managerOnce.Do(func() {
		manager = &Manager{
			queue:  NewQueue(3),
			stopCh: make(chan struct{}),
		}
	})
	return manager
}

// GetQueue returns the underlying job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the workers and the periodic tickers.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		return
	}
	m.active = true
	m.stopCh = make(chan struct{})

	m.queue.RegisterProcessor(JobTypeNotification, processNotificationJob)
	m.queue.RegisterProcessor(JobTypeArchiveWebhook, processArchiveWebhookJob)
	m.queue.Start()

	m.startTicker("payout sweep", payoutSweepInterval, m.runPayoutSweep)
	m.startTicker("webhook sweep", webhookSweepInterval, m.runWebhookSweep)
	m.startTicker("counter flush", counterFlushInterval, m.runCounterFlush)

	log.Info("[JobManager] Started")
}

// Stop stops all tickers and the queue workers.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return
	}
	m.active = false
	close(m.stopCh)
	m.wg.Wait()
	m.queue.Stop()
	log.Info("[JobManager] Stopped")
}

func (m *Manager) startTicker(name string, interval time.Duration, fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	log.Infof("[JobManager] Ticker %q running every %s", name, interval)
}

func (m *Manager) runPayoutSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := database.GetDB()
	executor := payout.NewExecutorFromDB(db, gateway.NewStripeClientFromEnv(), audit.NewRecorder(db), NewQueueNotifier(m))
	results, err := executor.RunDue(ctx, payoutBatchLimit)
	if err != nil {
		log.Errorf("[JobManager] Payout sweep failed: %v", err)
		return
	}
	if len(results) > 0 {
		log.Infof("[JobManager] Payout sweep processed %d payouts", len(results))
	}
}

func (m *Manager) runWebhookSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := database.GetDB()
	svc := escrow.NewServiceFromDB(db, gateway.NewStripeClientFromEnv(), audit.NewRecorder(db), NewQueueNotifier(m))
	n, err := svc.ReprocessStuckEvents(ctx, webhookMinAge, webhookMaxAttempts, webhookSweepLimit)
	if err != nil {
		log.Errorf("[JobManager] Webhook sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Infof("[JobManager] Webhook sweep reprocessed %d events", n)
	}
}

func (m *Manager) runCounterFlush() {
	if err := counter.FlushAll(); err != nil {
		log.Errorf("[JobManager] Counter flush failed: %v", err)
	}
}

// EnqueueNotification queues a user notification for async delivery.
func (m *Manager) EnqueueNotification(p NotificationJobPayload) (string, error) {
	return m.queue.Enqueue(JobTypeNotification, p.ToMap())
}

// EnqueueWebhookArchive queues a raw webhook payload for S3 archival.
func (m *Manager) EnqueueWebhookArchive(p ArchiveWebhookJobPayload) (string, error) {
	return m.queue.Enqueue(JobTypeArchiveWebhook, p.ToMap())
}
