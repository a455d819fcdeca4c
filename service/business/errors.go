package business

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrorInitializationFail = status.Error(codes.Internal, "Internal configuration is invalid")

	ErrTaskNotFound = status.Error(codes.NotFound, "Specified task does not exist")

	ErrPaymentNotFound = status.Error(codes.NotFound, "Specified payment does not exist")

	ErrWithdrawalNotFound = status.Error(codes.NotFound, "Specified withdrawal does not exist")

	ErrNotTaskOwner = status.Error(codes.PermissionDenied, "Only the task owner can pay for this task")

	ErrNotPaymentOwner = status.Error(codes.PermissionDenied, "Payment belongs to another user")

	ErrTaskNotPayable = status.Error(codes.FailedPrecondition, "Task is not awaiting payment")

	ErrInvalidAmount = status.Error(codes.InvalidArgument, "Amount is missing or invalid")

	ErrInvalidPhone = status.Error(codes.InvalidArgument, "Phone number is missing or invalid")

	ErrDuplicateReference = status.Error(codes.AlreadyExists, "A payment with this reference already exists")

	ErrInsufficientBalance = status.Error(codes.FailedPrecondition, "Wallet balance is insufficient")

	ErrWithdrawalNotPending = status.Error(codes.FailedPrecondition, "Withdrawal has already been processed")
)

// ProviderRejection is a synchronous refusal from the payment provider. The
// payment it belongs to has been failed.
type ProviderRejection struct {
	Code        string
	Description string
}

func (e *ProviderRejection) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("provider rejected the request: %s", e.Description)
	}
	return fmt.Sprintf("provider rejected the request (%s): %s", e.Code, e.Description)
}

func (e *ProviderRejection) GRPCStatus() *status.Status {
	return status.New(codes.FailedPrecondition, e.Error())
}
