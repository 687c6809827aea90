/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to users, virtual accounts, the transaction ledger, beneficiaries,
 * PIN attempt state, secure tokens, conversation threads and transfer requests.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sofihq/sofi-backend/internal/domain"
)

var (
	ErrUserNotFound            = errors.New("user not found")
	ErrAccountNotFound         = errors.New("account not found")
	ErrBeneficiaryNotFound     = errors.New("beneficiary not found")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrPINNotSet               = errors.New("transaction pin not set")
	ErrTokenNotFound           = errors.New("secure token not found or already used")
	ErrThreadNotFound          = errors.New("conversation thread not found")
	ErrTransferRequestNotFound = errors.New("transfer request not found")
	ErrRecipientNotFound       = errors.New("transfer recipient not cached")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindUserByWhatsAppNumber retrieves a user by the WhatsApp number that messages arrive from.
func (r *PostgresRepository) FindUserByWhatsAppNumber(ctx context.Context, number string) (*domain.User, error) {
	var user domain.User
	query := `
		SELECT id, whatsapp_number, full_name, email, phone, cached_balance, pin_hash, paystack_customer_code, created_at
		FROM users
		WHERE whatsapp_number = $1
	`
	err := r.db.QueryRow(ctx, query, number).Scan(
		&user.ID, &user.WhatsAppNumber, &user.FullName, &user.Email, &user.Phone,
		&user.CachedBalance, &user.PINHash, &user.CustomerCode, &user.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByID retrieves a user from the database by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `
		SELECT id, whatsapp_number, full_name, email, phone, cached_balance, pin_hash, paystack_customer_code, created_at
		FROM users
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&user.ID, &user.WhatsAppNumber, &user.FullName, &user.Email, &user.Phone,
		&user.CachedBalance, &user.PINHash, &user.CustomerCode, &user.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByCustomerCode retrieves a user by their provider customer code, the
// reference carried on dedicated-account charge webhooks.
func (r *PostgresRepository) FindUserByCustomerCode(ctx context.Context, customerCode string) (*domain.User, error) {
	var user domain.User
	query := `
		SELECT id, whatsapp_number, full_name, email, phone, cached_balance, pin_hash, paystack_customer_code, created_at
		FROM users
		WHERE paystack_customer_code = $1
	`
	err := r.db.QueryRow(ctx, query, customerCode).Scan(
		&user.ID, &user.WhatsAppNumber, &user.FullName, &user.Email, &user.Phone,
		&user.CachedBalance, &user.PINHash, &user.CustomerCode, &user.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a new user row along with an empty pin_attempts row.
func (r *PostgresRepository) CreateUser(ctx context.Context, user *domain.User) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO users (id, whatsapp_number, full_name, email, phone, cached_balance, pin_hash, paystack_customer_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.Exec(ctx, query,
		user.ID, user.WhatsAppNumber, user.FullName, user.Email, user.Phone,
		user.CachedBalance, user.PINHash, user.CustomerCode,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `INSERT INTO pin_attempts (user_id, failed_attempts) VALUES ($1, 0)`, user.ID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// UpdateUserPINHash sets or replaces the user's transaction PIN hash.
func (r *PostgresRepository) UpdateUserPINHash(ctx context.Context, userID uuid.UUID, pinHash string) error {
	result, err := r.db.Exec(ctx, `UPDATE users SET pin_hash = $1 WHERE id = $2`, pinHash, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateUserCustomerCode records the provider customer code after onboarding.
func (r *PostgresRepository) UpdateUserCustomerCode(ctx context.Context, userID uuid.UUID, customerCode string) error {
	result, err := r.db.Exec(ctx, `UPDATE users SET paystack_customer_code = $1 WHERE id = $2`, customerCode, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateVirtualAccount inserts the dedicated NUBAN issued for a user.
func (r *PostgresRepository) CreateVirtualAccount(ctx context.Context, account *domain.VirtualAccount) error {
	query := `
		INSERT INTO virtual_accounts (id, user_id, account_number, bank_name, bank_code, account_name, customer_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		account.ID, account.UserID, account.AccountNumber, account.BankName,
		account.BankCode, account.AccountName, account.CustomerCode,
	)
	return err
}

// FindVirtualAccountByUserID retrieves a user's dedicated virtual account.
func (r *PostgresRepository) FindVirtualAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.VirtualAccount, error) {
	var account domain.VirtualAccount
	query := `
		SELECT id, user_id, account_number, bank_name, bank_code, account_name, customer_code, created_at
		FROM virtual_accounts
		WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&account.ID, &account.UserID, &account.AccountNumber, &account.BankName,
		&account.BankCode, &account.AccountName, &account.CustomerCode, &account.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindUserByVirtualAccountNumber resolves the owner of a dedicated account number.
// Used when a webhook event only carries the receiving NUBAN.
func (r *PostgresRepository) FindUserByVirtualAccountNumber(ctx context.Context, accountNumber string) (*domain.User, error) {
	var user domain.User
	query := `
		SELECT u.id, u.whatsapp_number, u.full_name, u.email, u.phone, u.cached_balance, u.pin_hash, u.paystack_customer_code, u.created_at
		FROM users u
		JOIN virtual_accounts va ON va.user_id = u.id
		WHERE va.account_number = $1
	`
	err := r.db.QueryRow(ctx, query, accountNumber).Scan(
		&user.ID, &user.WhatsAppNumber, &user.FullName, &user.Email, &user.Phone,
		&user.CachedBalance, &user.PINHash, &user.CustomerCode, &user.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// DebitBalance performs an atomic debit on a user's cached balance and returns
// the new balance. The row is locked so concurrent transfers cannot overdraw.
func (r *PostgresRepository) DebitBalance(ctx context.Context, userID uuid.UUID, amount int64) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var balance int64
	// Use FOR UPDATE to lock the row, preventing race conditions.
	err = tx.QueryRow(ctx, `SELECT cached_balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrUserNotFound
		}
		return 0, err
	}

	if balance < amount {
		return balance, ErrInsufficientFunds
	}

	newBalance := balance - amount
	_, err = tx.Exec(ctx, `UPDATE users SET cached_balance = $1 WHERE id = $2`, newBalance, userID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// CreditBalance performs an atomic credit on a user's cached balance and returns
// the new balance.
func (r *PostgresRepository) CreditBalance(ctx context.Context, userID uuid.UUID, amount int64) (int64, error) {
	var newBalance int64
	query := `UPDATE users SET cached_balance = cached_balance + $1 WHERE id = $2 RETURNING cached_balance`
	err := r.db.QueryRow(ctx, query, amount, userID).Scan(&newBalance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return newBalance, nil
}

// RecomputeBalance rewrites the cached balance from the completed ledger rows.
// The ledger is the truth; this is the recovery path when the cache is suspect.
func (r *PostgresRepository) RecomputeBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var newBalance int64
	query := `
		UPDATE users SET cached_balance = COALESCE((
			SELECT SUM(CASE WHEN type = 'credit' THEN amount ELSE -amount END)
			FROM bank_transactions
			WHERE user_id = $1 AND status = 'completed'
		), 0)
		WHERE id = $1
		RETURNING cached_balance
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(&newBalance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return newBalance, nil
}

// AppendTransactionIfAbsent inserts a ledger row keyed by its provider reference.
// It returns false when a row with the same reference already exists, which makes
// webhook credits idempotent under redelivery.
func (r *PostgresRepository) AppendTransactionIfAbsent(ctx context.Context, txn *domain.Transaction) (bool, error) {
	query := `
		INSERT INTO bank_transactions (
			id, user_id, type, amount, fee, status, reference, narration,
			counterparty_name, counterparty_account, counterparty_bank
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (reference) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query,
		txn.ID, txn.UserID, txn.Type, txn.Amount, txn.Fee, txn.Status, txn.Reference,
		txn.Narration, txn.CounterpartyName, txn.CounterpartyAccount, txn.CounterpartyBank,
	)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkTransactionCompleted transitions a ledger row to completed by reference.
func (r *PostgresRepository) MarkTransactionCompleted(ctx context.Context, reference string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE bank_transactions SET status = 'completed' WHERE reference = $1`, reference)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// MarkTransactionFailed transitions a ledger row to failed by reference.
func (r *PostgresRepository) MarkTransactionFailed(ctx context.Context, reference string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE bank_transactions SET status = 'failed' WHERE reference = $1`, reference)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// FindTransactionsByUserID retrieves a user's most recent ledger rows.
func (r *PostgresRepository) FindTransactionsByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT id, user_id, type, amount, fee, status, reference, narration,
		       COALESCE(counterparty_name, ''), COALESCE(counterparty_account, ''), COALESCE(counterparty_bank, ''),
		       created_at
		FROM bank_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var txn domain.Transaction
		err := rows.Scan(
			&txn.ID, &txn.UserID, &txn.Type, &txn.Amount, &txn.Fee, &txn.Status,
			&txn.Reference, &txn.Narration, &txn.CounterpartyName, &txn.CounterpartyAccount,
			&txn.CounterpartyBank, &txn.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}

	return transactions, rows.Err()
}

// DailyDebitTotals sums today's debit rows for a user. Failed debits do not
// count against the daily limits.
func (r *PostgresRepository) DailyDebitTotals(ctx context.Context, userID uuid.UUID) (int64, int, error) {
	var amount int64
	var count int
	query := `
		SELECT COALESCE(SUM(amount), 0), COUNT(*)
		FROM bank_transactions
		WHERE user_id = $1
		  AND type = 'debit'
		  AND status <> 'failed'
		  AND created_at >= date_trunc('day', NOW())
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(&amount, &count)
	if err != nil {
		return 0, 0, err
	}
	return amount, count, nil
}

// SaveBeneficiary inserts or refreshes a saved beneficiary. The same destination
// saved twice updates the nickname and resolved name in place.
func (r *PostgresRepository) SaveBeneficiary(ctx context.Context, b *domain.Beneficiary) error {
	query := `
		INSERT INTO beneficiaries (id, user_id, nickname, account_number, bank_code, bank_name, account_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, account_number, bank_code)
		DO UPDATE SET nickname = EXCLUDED.nickname, bank_name = EXCLUDED.bank_name, account_name = EXCLUDED.account_name
	`
	_, err := r.db.Exec(ctx, query,
		b.ID, b.UserID, b.Nickname, b.AccountNumber, b.BankCode, b.BankName, b.AccountName,
	)
	return err
}

// FindBeneficiariesByUserID lists a user's saved beneficiaries, newest first.
func (r *PostgresRepository) FindBeneficiariesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Beneficiary, error) {
	query := `
		SELECT id, user_id, nickname, account_number, bank_code, bank_name, account_name, created_at
		FROM beneficiaries
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var beneficiaries []domain.Beneficiary
	for rows.Next() {
		var b domain.Beneficiary
		err := rows.Scan(&b.ID, &b.UserID, &b.Nickname, &b.AccountNumber, &b.BankCode, &b.BankName, &b.AccountName, &b.CreatedAt)
		if err != nil {
			return nil, err
		}
		beneficiaries = append(beneficiaries, b)
	}

	return beneficiaries, rows.Err()
}

// FindBeneficiaryByNickname resolves a saved beneficiary by its nickname,
// case-insensitively.
func (r *PostgresRepository) FindBeneficiaryByNickname(ctx context.Context, userID uuid.UUID, nickname string) (*domain.Beneficiary, error) {
	var b domain.Beneficiary
	query := `
		SELECT id, user_id, nickname, account_number, bank_code, bank_name, account_name, created_at
		FROM beneficiaries
		WHERE user_id = $1 AND lower(btrim(nickname)) = lower(btrim($2))
	`
	err := r.db.QueryRow(ctx, query, userID, nickname).Scan(
		&b.ID, &b.UserID, &b.Nickname, &b.AccountNumber, &b.BankCode, &b.BankName, &b.AccountName, &b.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBeneficiaryNotFound
		}
		return nil, err
	}
	return &b, nil
}

// DeleteBeneficiary removes a saved beneficiary by nickname.
func (r *PostgresRepository) DeleteBeneficiary(ctx context.Context, userID uuid.UUID, nickname string) error {
	result, err := r.db.Exec(ctx,
		`DELETE FROM beneficiaries WHERE user_id = $1 AND lower(btrim(nickname)) = lower(btrim($2))`,
		userID, nickname)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrBeneficiaryNotFound
	}
	return nil
}

// GetPINAttemptRecord returns the PIN failure state for a user.
func (r *PostgresRepository) GetPINAttemptRecord(ctx context.Context, userID uuid.UUID) (*domain.PINAttemptRecord, error) {
	var rec domain.PINAttemptRecord
	query := `
		SELECT user_id, failed_attempts, last_failed_at, locked_until
		FROM pin_attempts
		WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(&rec.UserID, &rec.FailedAttempts, &rec.LastFailedAt, &rec.LockedUntil)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// RecordFailedPINAttempt atomically increments failed attempts and applies lockout.
// An expired lockout resets the counter to 1 on the next failure.
func (r *PostgresRepository) RecordFailedPINAttempt(ctx context.Context, userID uuid.UUID, maxAttempts int, lockoutSeconds int) (*domain.PINAttemptRecord, error) {
	var rec domain.PINAttemptRecord
	query := `
		UPDATE pin_attempts
		SET
			failed_attempts = CASE
				WHEN (locked_until IS NOT NULL AND locked_until <= NOW())
					OR (locked_until IS NULL AND failed_attempts >= $2) THEN 1
				ELSE failed_attempts + 1
			END,
			last_failed_at = NOW(),
			locked_until = CASE
				WHEN (
					CASE
						WHEN (locked_until IS NOT NULL AND locked_until <= NOW())
							OR (locked_until IS NULL AND failed_attempts >= $2) THEN 1
						ELSE failed_attempts + 1
					END
				) >= $2 THEN NOW() + ($3 * INTERVAL '1 second')
				ELSE NULL
			END
		WHERE user_id = $1
		RETURNING user_id, failed_attempts, last_failed_at, locked_until
	`
	err := r.db.QueryRow(ctx, query, userID, maxAttempts, lockoutSeconds).Scan(
		&rec.UserID, &rec.FailedAttempts, &rec.LastFailedAt, &rec.LockedUntil,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ResetPINAttempts clears failed-attempt counters after a successful PIN verification.
func (r *PostgresRepository) ResetPINAttempts(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE pin_attempts
		SET failed_attempts = 0, last_failed_at = NULL, locked_until = NULL
		WHERE user_id = $1
	`
	result, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SaveSecureToken persists a one-time PIN token bound to a transfer request.
func (r *PostgresRepository) SaveSecureToken(ctx context.Context, token string, transferID uuid.UUID, expiresAt time.Time) error {
	query := `
		INSERT INTO secure_tokens (token, transfer_id, expires_at, used)
		VALUES ($1, $2, $3, FALSE)
	`
	_, err := r.db.Exec(ctx, query, token, transferID, expiresAt)
	return err
}

// PeekSecureToken returns the transfer bound to a live token without spending it.
func (r *PostgresRepository) PeekSecureToken(ctx context.Context, token string) (uuid.UUID, error) {
	var transferID uuid.UUID
	query := `SELECT transfer_id FROM secure_tokens WHERE token = $1 AND used = FALSE AND expires_at > NOW()`
	err := r.db.QueryRow(ctx, query, token).Scan(&transferID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, ErrTokenNotFound
		}
		return uuid.Nil, err
	}
	return transferID, nil
}

// ConsumeSecureToken marks a token used and returns the transfer it authorizes.
// The conditional UPDATE makes consumption single-winner across instances:
// a second caller sees zero rows and gets ErrTokenNotFound.
func (r *PostgresRepository) ConsumeSecureToken(ctx context.Context, token string) (uuid.UUID, error) {
	var transferID uuid.UUID
	query := `
		UPDATE secure_tokens
		SET used = TRUE
		WHERE token = $1 AND used = FALSE AND expires_at > NOW()
		RETURNING transfer_id
	`
	err := r.db.QueryRow(ctx, query, token).Scan(&transferID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, ErrTokenNotFound
		}
		return uuid.Nil, err
	}
	return transferID, nil
}

// FindThreadID returns the assistant thread bound to a user and channel.
func (r *PostgresRepository) FindThreadID(ctx context.Context, userID uuid.UUID, channel domain.Channel) (string, error) {
	var threadID string
	query := `SELECT thread_id FROM conversation_threads WHERE user_id = $1 AND channel = $2`
	err := r.db.QueryRow(ctx, query, userID, channel).Scan(&threadID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrThreadNotFound
		}
		return "", err
	}
	return threadID, nil
}

// SaveThreadID upserts the assistant thread bound to a user and channel.
func (r *PostgresRepository) SaveThreadID(ctx context.Context, userID uuid.UUID, channel domain.Channel, threadID string) error {
	query := `
		INSERT INTO conversation_threads (user_id, channel, thread_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, channel)
		DO UPDATE SET thread_id = EXCLUDED.thread_id
	`
	_, err := r.db.Exec(ctx, query, userID, channel, threadID)
	return err
}

// CreateTransferRequest inserts a pending transfer awaiting PIN authorization.
func (r *PostgresRepository) CreateTransferRequest(ctx context.Context, req *domain.TransferRequest) error {
	query := `
		INSERT INTO transfer_requests (
			id, user_id, amount, fee, account_number, bank_code, bank_name, account_name,
			recipient_code, status, reference, narration, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(ctx, query,
		req.ID, req.UserID, req.Amount, req.Fee, req.AccountNumber, req.BankCode,
		req.BankName, req.AccountName, req.RecipientCode, req.Status, req.Reference,
		req.Narration, req.ExpiresAt,
	)
	return err
}

// FindTransferRequestByID retrieves a transfer request by its ID.
func (r *PostgresRepository) FindTransferRequestByID(ctx context.Context, transferID uuid.UUID) (*domain.TransferRequest, error) {
	return r.findTransferRequest(ctx, `id = $1`, transferID)
}

// FindTransferRequestByReference retrieves a transfer request by its provider reference.
func (r *PostgresRepository) FindTransferRequestByReference(ctx context.Context, reference string) (*domain.TransferRequest, error) {
	return r.findTransferRequest(ctx, `reference = $1`, reference)
}

func (r *PostgresRepository) findTransferRequest(ctx context.Context, where string, arg any) (*domain.TransferRequest, error) {
	var req domain.TransferRequest
	query := `
		SELECT id, user_id, amount, fee, account_number, bank_code, bank_name, account_name,
		       COALESCE(recipient_code, ''), status, COALESCE(reference, ''), COALESCE(narration, ''),
		       created_at, expires_at
		FROM transfer_requests
		WHERE ` + where
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&req.ID, &req.UserID, &req.Amount, &req.Fee, &req.AccountNumber, &req.BankCode,
		&req.BankName, &req.AccountName, &req.RecipientCode, &req.Status, &req.Reference,
		&req.Narration, &req.CreatedAt, &req.ExpiresAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransferRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// UpdateTransferRequestStatus transitions a transfer request to a new state.
func (r *PostgresRepository) UpdateTransferRequestStatus(ctx context.Context, transferID uuid.UUID, status string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE transfer_requests SET status = $1 WHERE id = $2`, status, transferID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTransferRequestNotFound
	}
	return nil
}

// SetTransferRequestSubmitted records the provider reference and moves the
// request to submitted in one statement.
func (r *PostgresRepository) SetTransferRequestSubmitted(ctx context.Context, transferID uuid.UUID, reference string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE transfer_requests SET status = $1, reference = $2 WHERE id = $3`,
		domain.TransferSubmitted, reference, transferID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTransferRequestNotFound
	}
	return nil
}

// ExpireStaleTransferRequests moves awaiting_pin requests past their window to
// expired and returns how many rows were affected.
func (r *PostgresRepository) ExpireStaleTransferRequests(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE transfer_requests
		SET status = $1
		WHERE status = $2 AND expires_at <= NOW()
	`, domain.TransferExpired, domain.TransferAwaitingPIN)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// FindRecipientCode looks up the cached provider recipient code for a destination.
func (r *PostgresRepository) FindRecipientCode(ctx context.Context, accountNumber, bankCode string) (string, error) {
	var code string
	query := `SELECT recipient_code FROM transfer_recipients WHERE account_number = $1 AND bank_code = $2`
	err := r.db.QueryRow(ctx, query, accountNumber, bankCode).Scan(&code)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrRecipientNotFound
		}
		return "", err
	}
	return code, nil
}

// SaveRecipientCode caches the provider recipient code for a destination.
func (r *PostgresRepository) SaveRecipientCode(ctx context.Context, rec *domain.TransferRecipient) error {
	query := `
		INSERT INTO transfer_recipients (user_id, account_number, bank_code, recipient_code)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_number, bank_code)
		DO UPDATE SET recipient_code = EXCLUDED.recipient_code
	`
	_, err := r.db.Exec(ctx, query, rec.UserID, rec.AccountNumber, rec.BankCode, rec.RecipientCode)
	return err
}
