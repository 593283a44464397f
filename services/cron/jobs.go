package cron

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sahilchouksey/course-market-api/model"
)

// pendingPaymentMaxAge is how long a payment may sit pending before the
// purchase window is considered abandoned. Both gateways expire their own
// sessions well before this.
const pendingPaymentMaxAge = 24 * time.Hour

// ExpirePendingPayments cancels pending payments whose window has expired.
// Cancellation goes through the ledger so the terminal-transition guard
// holds; a payment confirmed mid-job is left alone.
func (m *CronManager) ExpirePendingPayments() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cancelled, err := m.payments.CancelExpired(ctx, pendingPaymentMaxAge)
	if err != nil {
		log.Printf("expire_pending_payments failed: %v", err)
		m.logJobComplete("expire_pending_payments", start, "", err)
		return
	}

	msg := fmt.Sprintf("cancelled %d expired pending payments", cancelled)
	if cancelled > 0 {
		log.Println(msg)
	}
	m.logJobComplete("expire_pending_payments", start, msg, nil)
}

// CleanupTokenBlacklist removes blacklist entries whose tokens have expired
// anyway.
func (m *CronManager) CleanupTokenBlacklist() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	removed, err := m.blacklist.CleanupExpiredTokens(ctx)
	if err != nil {
		log.Printf("cleanup_token_blacklist failed: %v", err)
		m.logJobComplete("cleanup_token_blacklist", start, "", err)
		return
	}

	m.logJobComplete("cleanup_token_blacklist", start,
		fmt.Sprintf("removed %d expired blacklist entries", removed), nil)
}

// CleanupCronLogs trims job logs older than 30 days.
func (m *CronManager) CleanupCronLogs() {
	start := time.Now()

	res := m.db.Unscoped().
		Where("created_at < ?", time.Now().AddDate(0, 0, -30)).
		Delete(&model.CronJobLog{})
	if res.Error != nil {
		log.Printf("cleanup_cron_logs failed: %v", res.Error)
		m.logJobComplete("cleanup_cron_logs", start, "", res.Error)
		return
	}

	m.logJobComplete("cleanup_cron_logs", start,
		fmt.Sprintf("removed %d old cron log rows", res.RowsAffected), nil)
}
