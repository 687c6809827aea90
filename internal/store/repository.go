/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the service. By defining an interface, we
 * decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation and handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sofihq/sofi-backend/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User methods
	FindUserByWhatsAppNumber(ctx context.Context, number string) (*domain.User, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	FindUserByCustomerCode(ctx context.Context, customerCode string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
	UpdateUserPINHash(ctx context.Context, userID uuid.UUID, pinHash string) error
	UpdateUserCustomerCode(ctx context.Context, userID uuid.UUID, customerCode string) error

	// Virtual account methods
	CreateVirtualAccount(ctx context.Context, account *domain.VirtualAccount) error
	FindVirtualAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.VirtualAccount, error)
	FindUserByVirtualAccountNumber(ctx context.Context, accountNumber string) (*domain.User, error)

	// Balance methods
	DebitBalance(ctx context.Context, userID uuid.UUID, amount int64) (int64, error)
	CreditBalance(ctx context.Context, userID uuid.UUID, amount int64) (int64, error)
	RecomputeBalance(ctx context.Context, userID uuid.UUID) (int64, error)

	// Transaction ledger methods
	AppendTransactionIfAbsent(ctx context.Context, tx *domain.Transaction) (bool, error)
	MarkTransactionCompleted(ctx context.Context, reference string) error
	MarkTransactionFailed(ctx context.Context, reference string) error
	FindTransactionsByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Transaction, error)
	DailyDebitTotals(ctx context.Context, userID uuid.UUID) (amount int64, count int, err error)

	// Beneficiary methods
	SaveBeneficiary(ctx context.Context, b *domain.Beneficiary) error
	FindBeneficiariesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Beneficiary, error)
	FindBeneficiaryByNickname(ctx context.Context, userID uuid.UUID, nickname string) (*domain.Beneficiary, error)
	DeleteBeneficiary(ctx context.Context, userID uuid.UUID, nickname string) error

	// PIN attempt methods
	GetPINAttemptRecord(ctx context.Context, userID uuid.UUID) (*domain.PINAttemptRecord, error)
	RecordFailedPINAttempt(ctx context.Context, userID uuid.UUID, maxAttempts int, lockoutSeconds int) (*domain.PINAttemptRecord, error)
	ResetPINAttempts(ctx context.Context, userID uuid.UUID) error

	// Secure token methods
	SaveSecureToken(ctx context.Context, token string, transferID uuid.UUID, expiresAt time.Time) error
	PeekSecureToken(ctx context.Context, token string) (uuid.UUID, error)
	ConsumeSecureToken(ctx context.Context, token string) (uuid.UUID, error)

	// Conversation thread methods
	FindThreadID(ctx context.Context, userID uuid.UUID, channel domain.Channel) (string, error)
	SaveThreadID(ctx context.Context, userID uuid.UUID, channel domain.Channel, threadID string) error

	// Transfer request methods
	CreateTransferRequest(ctx context.Context, req *domain.TransferRequest) error
	FindTransferRequestByID(ctx context.Context, transferID uuid.UUID) (*domain.TransferRequest, error)
	FindTransferRequestByReference(ctx context.Context, reference string) (*domain.TransferRequest, error)
	UpdateTransferRequestStatus(ctx context.Context, transferID uuid.UUID, status string) error
	SetTransferRequestSubmitted(ctx context.Context, transferID uuid.UUID, reference string) error
	ExpireStaleTransferRequests(ctx context.Context) (int64, error)

	// Transfer recipient cache methods
	FindRecipientCode(ctx context.Context, accountNumber, bankCode string) (string, error)
	SaveRecipientCode(ctx context.Context, rec *domain.TransferRecipient) error
}
