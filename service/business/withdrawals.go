package business

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/werachapchap/service-payments/service/coreapi"
	"github.com/werachapchap/service-payments/service/models"
	"github.com/werachapchap/service-payments/service/repository"
	"github.com/werachapchap/service-payments/service/utility"
)

// minimumWithdrawal is the smallest B2C payment the provider accepts.
var minimumWithdrawal = decimal.NewFromInt(10)

type WithdrawalInput struct {
	UserID string
	Phone  string
	Amount decimal.Decimal
}

// RequestWithdrawal holds the amount by debiting the wallet and records a
// pending withdrawal in the same transaction.
func (pb *paymentBusiness) RequestWithdrawal(ctx context.Context, request *WithdrawalInput) (*models.WithdrawalRequest, error) {
	phone, err := utility.NormalisePhone(request.Phone)
	if err != nil {
		return nil, ErrInvalidPhone
	}

	amount := utility.CleanDecimal(request.Amount)
	if amount.LessThan(minimumWithdrawal) {
		return nil, fmt.Errorf("%w: at least %s is required", ErrInvalidAmount, minimumWithdrawal.StringFixed(2))
	}
	// B2C pays whole shillings only; the held amount must be exactly what is sent.
	if !amount.Equal(amount.Truncate(0)) {
		return nil, fmt.Errorf("%w: withdrawals are paid in whole shillings", ErrInvalidAmount)
	}

	withdrawal := &models.WithdrawalRequest{
		UserID:      request.UserID,
		Amount:      amount,
		PhoneNumber: phone,
		Status:      models.WithdrawalPending,
		Reference:   utility.NewWithdrawalRef(),
	}
	withdrawal.GenID(ctx)

	err = repository.WithTransaction(ctx, pb.store, func(ctx context.Context) error {
		if err := pb.wallets.Debit(ctx, request.UserID, amount); err != nil {
			return err
		}
		return pb.withdrawals.Create(ctx, withdrawal)
	})
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return nil, ErrInsufficientBalance
		}
		return nil, err
	}

	pb.log.WithField("withdrawal_id", withdrawal.GetID()).WithField("user_id", request.UserID).
		Info("withdrawal requested")
	return withdrawal, nil
}

// GetWallet returns the user's wallet; users who were never credited have an
// empty one.
func (pb *paymentBusiness) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	wallet, err := pb.wallets.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &models.Wallet{UserID: userID, Balance: decimal.Zero}, nil
		}
		return nil, err
	}
	return wallet, nil
}

// ProcessWithdrawal sends the B2C payment for a pending withdrawal.
func (pb *paymentBusiness) ProcessWithdrawal(ctx context.Context, withdrawalID, processorID string) (*models.WithdrawalRequest, error) {
	logger := pb.log.WithField("withdrawal_id", withdrawalID).WithField("processor", processorID)

	withdrawal, err := pb.withdrawals.GetByID(ctx, withdrawalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}

	err = pb.withdrawals.MarkProcessing(ctx, withdrawal.GetID(), processorID)
	if err != nil {
		if errors.Is(err, repository.ErrTransitionLost) {
			return nil, ErrWithdrawalNotPending
		}
		return nil, err
	}

	result, err := pb.gateway.InitiateDisbursement(ctx, coreapi.DisbursementRequest{
		Phone:     withdrawal.PhoneNumber,
		Amount:    withdrawal.Amount,
		Reference: withdrawal.Reference,
		Remarks:   "Runner payout",
	})
	if err != nil {
		if coreapi.IsTransportError(err) {
			logger.WithError(err).Warn("disbursement outcome unknown, withdrawal left processing")
			return nil, fmt.Errorf("withdrawal %s is awaiting confirmation: %w", withdrawal.GetID(), err)
		}
		logger.WithError(err).Error("could not initiate disbursement")
		if _, ferr := pb.finaliseWithdrawal(ctx, withdrawal, models.WithdrawalFailed, fmt.Sprintf("initiation failed: %v", err)); ferr != nil {
			return nil, ferr
		}
		return nil, fmt.Errorf("could not initiate disbursement: %w", err)
	}

	if !result.Success {
		logger.WithField("response_code", result.ResponseCode).Info("provider declined disbursement")
		if _, err := pb.finaliseWithdrawal(ctx, withdrawal, models.WithdrawalFailed, result.Error); err != nil {
			return nil, err
		}
		return nil, &ProviderRejection{Code: result.ResponseCode, Description: result.Error}
	}

	if err := pb.withdrawals.AttachConversation(ctx, withdrawal.GetID(), result.ConversationID); err != nil {
		logger.WithError(err).Error("could not record conversation id")
		return nil, err
	}

	logger.WithField("conversation_id", result.ConversationID).Info("disbursement initiated")
	return pb.withdrawals.GetByID(ctx, withdrawal.GetID())
}

func (pb *paymentBusiness) ApplyDisbursementCallback(ctx context.Context, outcome models.DisbursementOutcome) error {
	logger := pb.log.WithFields(logrus.Fields{
		"conversation_id":            outcome.ConversationID,
		"originator_conversation_id": outcome.OriginatorConversationID,
		"result_code":                outcome.ResultCode,
	})

	withdrawal, err := pb.withdrawals.GetByConversation(ctx, outcome.ConversationID, outcome.OriginatorConversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("no withdrawal matches disbursement callback, discarding")
			return nil
		}
		return err
	}

	if withdrawal.Status.IsTerminal() {
		logger.Debug("withdrawal already final, ignoring")
		return nil
	}

	to := models.WithdrawalFailed
	if outcome.Succeeded() {
		to = models.WithdrawalCompleted
	}
	_, err = pb.finaliseWithdrawal(ctx, withdrawal, to, outcome.ResultDesc)
	return err
}

// finaliseWithdrawal is the single path into completed or failed. A failure
// refunds the held amount in the same transaction.
func (pb *paymentBusiness) finaliseWithdrawal(ctx context.Context, withdrawal *models.WithdrawalRequest,
	to models.WithdrawalStatus, description string) (bool, error) {
	logger := pb.log.WithField("withdrawal_id", withdrawal.GetID()).WithField("status", to)

	err := repository.WithTransaction(ctx, pb.store, func(ctx context.Context) error {
		if err := pb.withdrawals.Finalise(ctx, withdrawal.GetID(), to, description); err != nil {
			return err
		}
		if to == models.WithdrawalFailed {
			return pb.wallets.Credit(ctx, withdrawal.UserID, withdrawal.Amount)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrTransitionLost) {
			logger.Debug("withdrawal finalised concurrently, ignoring")
			return false, nil
		}
		logger.WithError(err).Error("could not finalise withdrawal")
		return false, err
	}

	logger.Info("withdrawal finalised")

	data := map[string]string{
		"amount":    withdrawal.Amount.StringFixed(2),
		"reference": withdrawal.Reference,
	}
	if to == models.WithdrawalCompleted {
		pb.notify(ctx, withdrawal.UserID, models.TemplateWithdrawalCompleted, data)
	} else {
		data["reason"] = description
		pb.notify(ctx, withdrawal.UserID, models.TemplateWithdrawalFailed, data)
	}
	return true, nil
}
