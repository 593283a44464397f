package cron

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sahilchouksey/course-market-api/model"
	"github.com/sahilchouksey/course-market-api/services"
	"github.com/sahilchouksey/course-market-api/utils/auth"
	"gorm.io/gorm"
)

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron      *cron.Cron
	db        *gorm.DB
	payments  *services.PaymentService
	blacklist *auth.BlacklistService
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB, payments *services.PaymentService) *CronManager {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronManager{
		cron:      c,
		db:        db,
		payments:  payments,
		blacklist: auth.NewBlacklistService(db),
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	log.Println("Starting cron jobs...")

	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()

	log.Println("Cron jobs started successfully")
	return nil
}

// Stop stops all cron jobs
func (m *CronManager) Stop() {
	log.Println("Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Println("Cron jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	// Every 15 minutes: cancel pending payments whose window expired
	_, err := m.cron.AddFunc("0 */15 * * * *", func() {
		m.logJobStart("expire_pending_payments")
		m.ExpirePendingPayments()
	})
	if err != nil {
		return err
	}

	// Daily at 03:00: purge expired token blacklist entries
	_, err = m.cron.AddFunc("0 0 3 * * *", func() {
		m.logJobStart("cleanup_token_blacklist")
		m.CleanupTokenBlacklist()
	})
	if err != nil {
		return err
	}

	// Daily at 03:30: trim old cron job logs
	_, err = m.cron.AddFunc("0 30 3 * * *", func() {
		m.logJobStart("cleanup_cron_logs")
		m.CleanupCronLogs()
	})
	return err
}

// logJobStart records a job execution start in the database
func (m *CronManager) logJobStart(jobName string) {
	entry := model.CronJobLog{
		JobName:   jobName,
		Status:    "started",
		StartedAt: time.Now(),
	}
	if err := m.db.Create(&entry).Error; err != nil {
		log.Printf("Failed to log cron job start for %s: %v", jobName, err)
	}
}

// logJobComplete records a job execution result in the database
func (m *CronManager) logJobComplete(jobName string, startedAt time.Time, message string, jobErr error) {
	now := time.Now()
	entry := model.CronJobLog{
		JobName:     jobName,
		StartedAt:   startedAt,
		CompletedAt: &now,
		Duration:    int(now.Sub(startedAt).Milliseconds()),
		Message:     message,
	}
	if jobErr != nil {
		entry.Status = "failed"
		entry.ErrorMsg = jobErr.Error()
	} else {
		entry.Status = "completed"
	}
	if err := m.db.Create(&entry).Error; err != nil {
		log.Printf("Failed to log cron job completion for %s: %v", jobName, err)
	}
}
