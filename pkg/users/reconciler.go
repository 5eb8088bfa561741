package users

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bubbleup/bubbleup/pkg/identity"
	"github.com/bubbleup/bubbleup/pkg/observability"
	"github.com/bubbleup/bubbleup/pkg/rbac"
)

// orphanGracePeriod protects freshly invited accounts from being swept
// before their first role grant lands.
const orphanGracePeriod = time.Hour

// Reconciler retries the second phase of the revoke cascade: accounts left
// behind with zero role assignments (a crash between "delete last grant"
// and "delete account") are deleted on the next sweep. Sweeps are
// at-least-once and idempotent.
type Reconciler struct {
	store   *rbac.Store
	admin   identity.Admin
	logger  *observability.Logger
	metrics *observability.Metrics
	cron    *cron.Cron
}

// NewReconciler creates an orphaned-account reconciler
func NewReconciler(store *rbac.Store, admin identity.Admin, logger *observability.Logger, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{
		store:   store,
		admin:   admin,
		logger:  logger,
		metrics: metrics,
	}
}

// Start schedules sweeps with the given cron expression
func (r *Reconciler) Start(schedule string) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if swept, err := r.Sweep(ctx); err != nil {
			r.logger.WithError(err).Error("orphaned-account sweep failed")
		} else if swept > 0 {
			r.logger.WithField("swept", swept).Info("orphaned-account sweep completed")
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts scheduled sweeps, waiting for a running sweep to finish
func (r *Reconciler) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// Sweep deletes provider accounts that hold no role assignments. Returns
// the number of accounts deleted.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	accounts, err := r.admin.ListAccounts(ctx)
	if err != nil {
		return 0, err
	}

	granted, err := r.store.ListUserIDs(ctx)
	if err != nil {
		return 0, err
	}
	grantedSet := make(map[string]struct{}, len(granted))
	for _, id := range granted {
		grantedSet[id] = struct{}{}
	}

	swept := 0
	for _, account := range accounts {
		if _, ok := grantedSet[account.ID]; ok {
			continue
		}
		if time.Since(account.CreatedAt) < orphanGracePeriod {
			continue
		}

		err := r.admin.DeleteAccount(ctx, account.ID)
		if err != nil && !errors.Is(err, identity.ErrAccountNotFound) {
			r.logger.WithError(err).WithField("user_id", account.ID).Error("failed to delete orphaned account")
			continue
		}

		r.logger.WithFields(map[string]interface{}{
			"user_id": account.ID,
			"email":   account.Email,
		}).Info("deleted orphaned account")
		r.metrics.OrphanedAccountsSwept.Inc()
		swept++
	}

	return swept, nil
}
