package sweeper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/stakeaware/accessgate/app/models"
	"github.com/stakeaware/accessgate/internal/pkg/env"
	"github.com/stakeaware/accessgate/internal/pkg/ledger"
	"github.com/stakeaware/accessgate/internal/pkg/notify"
)

// BackupFunc uploads a ledger snapshot somewhere durable. Optional.
type BackupFunc func(ctx context.Context) error

// Config controls the sweep cadence and the reminder window.
type Config struct {
	SweepInterval  time.Duration
	AlertWindow    time.Duration
	BackupInterval time.Duration

	// AccessBotUsername builds the deep link included in admin fallback
	// reminders for subscribers who never linked a chat.
	AccessBotUsername string
}

// ConfigFromEnv reads the sweep configuration from the environment.
func ConfigFromEnv() Config {
	alertDays := 3
	if v, err := strconv.Atoi(strings.TrimSpace(env.GetEnv("EXPIRY_ALERT_DAYS", ""))); err == nil && v > 0 {
		alertDays = v
	}
	sweepMinutes := 60
	if v, err := strconv.Atoi(strings.TrimSpace(env.GetEnv("SWEEP_INTERVAL_MINUTES", ""))); err == nil && v > 0 {
		sweepMinutes = v
	}
	backupMinutes := 0
	if v, err := strconv.Atoi(strings.TrimSpace(env.GetEnv("LEDGER_BACKUP_INTERVAL_MINUTES", ""))); err == nil && v > 0 {
		backupMinutes = v
	}
	return Config{
		SweepInterval:     time.Duration(sweepMinutes) * time.Minute,
		AlertWindow:       time.Duration(alertDays) * 24 * time.Hour,
		BackupInterval:    time.Duration(backupMinutes) * time.Minute,
		AccessBotUsername: env.GetEnv("ACCESS_BOT_USERNAME", "StakeAwareAccessBot"),
	}
}

// Manager runs the periodic expiry sweep and, when configured, the ledger
// snapshot backup.
type Manager struct {
	svc      *ledger.Service
	notifier notify.Notifier
	backup   BackupFunc
	cfg      Config

	sweepTicker  *time.Ticker
	backupTicker *time.Ticker
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool

	// sweepMu makes ticks non-reentrant: a sweep still in flight turns the
	// next tick into a logged no-op instead of an overlapping run.
	sweepMu sync.Mutex
}

// NewManager creates a sweep manager. backup may be nil.
func NewManager(svc *ledger.Service, notifier notify.Notifier, backup BackupFunc, cfg Config) *Manager {
	return &Manager{
		svc:      svc,
		notifier: notifier,
		backup:   backup,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background workers. Calling Start on a running manager
// is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be
	// restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Infof("[Sweeper] Starting expiry sweeper (interval: %s, alert window: %s)", m.cfg.SweepInterval, m.cfg.AlertWindow)

	m.sweepTicker = time.NewTicker(m.cfg.SweepInterval)
	m.wg.Add(1)
	go m.sweepWorker()

	if m.backup != nil && m.cfg.BackupInterval > 0 {
		m.backupTicker = time.NewTicker(m.cfg.BackupInterval)
		m.wg.Add(1)
		go m.backupWorker()
		log.Infof("[Sweeper] Ledger backup enabled (interval: %s)", m.cfg.BackupInterval)
	}
}

// Stop stops the background workers and waits for them to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Sweeper] Stopping...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	if m.backupTicker != nil {
		m.backupTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	log.Info("[Sweeper] Stopped")
}

// IsRunning returns whether the manager is currently running.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) sweepWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Sweeper] Sweep worker stopping")
			return
		case <-m.sweepTicker.C:
			if err := m.RunSweepOnce(); err != nil {
				log.Errorf("[Sweeper] Sweep error: %v", err)
			}
		}
	}
}

func (m *Manager) backupWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Sweeper] Backup worker stopping")
			return
		case <-m.backupTicker.C:
			if err := m.backup(context.Background()); err != nil {
				log.Errorf("[Sweeper] Ledger backup error: %v", err)
			}
		}
	}
}

// RunSweepOnce performs one reconciliation pass: lapsed records are
// deactivated and announced to the admin, then due reminders go out. All
// ledger transitions are persisted by the service before any notification is
// attempted, so notifier failures never cost a state change. Also serves as
// the manual trigger for admin use.
func (m *Manager) RunSweepOnce() error {
	if !m.sweepMu.TryLock() {
		log.Warn("[Sweeper] Previous sweep still running, skipping tick")
		return nil
	}
	defer m.sweepMu.Unlock()

	ctx := context.Background()

	expired, err := m.svc.CollectExpired(ctx)
	for _, rec := range expired {
		m.notifyBestEffort(func() error {
			return m.notifier.NotifyAdmin(fmt.Sprintf("%s subscription expired.", rec.Email))
		})
	}
	if err != nil {
		return fmt.Errorf("expiry pass: %w", err)
	}

	reminders, rerr := m.svc.CollectReminders(ctx, m.cfg.AlertWindow)
	for _, rec := range reminders {
		m.sendReminder(rec)
	}
	if rerr != nil {
		return fmt.Errorf("reminder pass: %w", rerr)
	}

	if len(expired) > 0 || len(reminders) > 0 {
		log.Infof("[Sweeper] Sweep done: %d expired, %d reminded", len(expired), len(reminders))
	}
	return nil
}

func (m *Manager) sendReminder(rec models.SubscriptionRecord) {
	expires := rec.ExpiresAt.UTC().Format("2006-01-02 15:04:05 UTC")
	if rec.ChatID != nil {
		m.notifyBestEffort(func() error {
			return m.notifier.Send(*rec.ChatID,
				fmt.Sprintf("Reminder: your %s subscription expires on %s", rec.Plan, expires))
		})
		return
	}
	// Never linked a chat; tell the admin and include the deep link so the
	// subscriber can still be onboarded.
	m.notifyBestEffort(func() error {
		return m.notifier.NotifyAdmin(fmt.Sprintf(
			"User %s (%s) expires soon but has no chat_id. Deep-link: %s",
			rec.Email, rec.Plan, notify.DeepLink(m.cfg.AccessBotUsername, rec.PaymentReference)))
	})
}

func (m *Manager) notifyBestEffort(send func() error) {
	if err := send(); err != nil {
		log.Warnf("[Sweeper] Notification failed: %v", err)
	}
}
