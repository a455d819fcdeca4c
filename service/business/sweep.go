package business

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/werachapchap/service-payments/service/models"
)

const (
	reasonInitiationIncomplete = "payment initiation did not complete"
	reasonExpired              = "expired without provider confirmation"
)

// SweepReport counts what one sweep did with each stale payment.
type SweepReport struct {
	mu sync.Mutex

	Examined  int
	Resolved  int
	Expired   int
	Abandoned int
	Waiting   int
	Failed    int
}

type sweepResult int

const (
	sweepWaiting sweepResult = iota
	sweepResolved
	sweepExpired
	sweepAbandoned
)

func (r *SweepReport) record(result sweepResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.Failed++
		return
	}
	switch result {
	case sweepResolved:
		r.Resolved++
	case sweepExpired:
		r.Expired++
	case sweepAbandoned:
		r.Abandoned++
	case sweepWaiting:
		r.Waiting++
	}
}

// SweepStalePayments settles payments that have been pending for longer than
// PendingAge without a callback.
func (pb *paymentBusiness) SweepStalePayments(ctx context.Context) (*SweepReport, error) {
	now := pb.opts.Now()
	logger := pb.log.WithField("sweep_at", now.Format(time.RFC3339))

	stale, err := pb.payments.ListStalePending(ctx, now.Add(-pb.opts.PendingAge), pb.opts.SweepBatchSize)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Examined: len(stale)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pb.opts.SweepConcurrency)
	for _, payment := range stale {
		g.Go(func() error {
			result, err := pb.sweepPayment(gctx, payment, now)
			if err != nil {
				logger.WithError(err).WithField("payment_id", payment.GetID()).Warn("could not settle stale payment")
			}
			report.record(result, err)
			return nil
		})
	}
	_ = g.Wait()

	logger.WithFields(logrus.Fields{
		"examined":  report.Examined,
		"resolved":  report.Resolved,
		"expired":   report.Expired,
		"abandoned": report.Abandoned,
		"waiting":   report.Waiting,
		"failed":    report.Failed,
	}).Info("sweep finished")
	return report, ctx.Err()
}

func (pb *paymentBusiness) sweepPayment(ctx context.Context, payment *models.Payment, now time.Time) (sweepResult, error) {
	if !payment.HasCheckout() {
		_, err := pb.resolvePayment(ctx, payment, resolution{
			status:      models.PaymentFailed,
			description: reasonInitiationIncomplete,
		})
		return sweepAbandoned, err
	}

	result, queryErr := pb.gateway.QueryCharge(ctx, payment.CheckoutRequestID)
	if queryErr == nil && result != nil && !result.Pending {
		_, err := pb.resolvePayment(ctx, payment, chargeResolution(models.ChargeOutcome{
			CheckoutRequestID: payment.CheckoutRequestID,
			MerchantRequestID: payment.MerchantRequestID,
			ResultCode:        result.ResultCode,
			ResultDesc:        result.ResultDesc,
		}))
		return sweepResolved, err
	}

	if now.Sub(payment.CreatedAt) >= pb.opts.ExpireAfter {
		_, err := pb.resolvePayment(ctx, payment, resolution{
			status:      models.PaymentFailed,
			description: reasonExpired,
		})
		return sweepExpired, err
	}

	if err := pb.payments.TouchPending(ctx, payment.GetID()); err != nil {
		pb.log.WithError(err).WithField("payment_id", payment.GetID()).Warn("could not requeue stale payment")
	}
	return sweepWaiting, queryErr
}

// Sweeper runs SweepStalePayments under a Lease.
type Sweeper struct {
	business PaymentBusiness
	lease    Lease
	timeout  time.Duration
	log      *logrus.Entry
}

func NewSweeper(business PaymentBusiness, lease Lease, timeout time.Duration, logger *logrus.Entry) *Sweeper {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sweeper{
		business: business,
		lease:    lease,
		timeout:  timeout,
		log:      logger.WithField("type", "payment sweeper"),
	}
}

// Run sweeps once, or returns ErrLeaseHeld when another worker is sweeping.
func (s *Sweeper) Run(ctx context.Context) (*SweepReport, error) {
	acquired, err := s.lease.TryAcquire(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrLeaseHeld
	}
	defer func() {
		if err := s.lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.WithError(err).Warn("could not release sweep lease")
		}
	}()

	return s.business.SweepStalePayments(ctx)
}

// Register schedules the sweep on scheduler using a standard five-field cron spec.
func (s *Sweeper) Register(scheduler *cron.Cron, spec string) (cron.EntryID, error) {
	return scheduler.AddFunc(spec, func() {
		ctx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		_, err := s.Run(ctx)
		switch {
		case errors.Is(err, ErrLeaseHeld):
			s.log.Debug("sweep skipped, lease held elsewhere")
		case err != nil:
			s.log.WithError(err).Error("sweep failed")
		}
	})
}
