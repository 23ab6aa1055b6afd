package testutil

import (
	"time"

	"github.com/master-pd/MARPD-MAX/models"
)

// CreateTestEntry creates a ledger entry draft for an account
func CreateTestEntry(accountID string, amount, balanceAfter int64, kind models.EntryKind) *models.LedgerEntry {
	return &models.LedgerEntry{
		AccountID:    accountID,
		Currency:     "BDT",
		Amount:       amount,
		Kind:         kind,
		OperationKey: "op-" + accountID,
		BalanceAfter: balanceAfter,
		Metadata: map[string]any{
			"test": true,
		},
	}
}

// CreateTestPaymentRequest creates a pending deposit request
func CreateTestPaymentRequest(id, accountID string, amount int64) *models.PaymentRequest {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.PaymentRequest{
		ID:        id,
		AccountID: accountID,
		Direction: models.PaymentDirectionDeposit,
		Currency:  "BDT",
		Amount:    amount,
		NetAmount: amount,
		Method:    "nagad",
		Status:    models.PaymentStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
}

// CreateTestRound creates an opened game round
func CreateTestRound(id, accountID, game string, stake int64, openedAt time.Time) *models.GameRound {
	return &models.GameRound{
		ID:        id,
		AccountID: accountID,
		Game:      game,
		Currency:  "BDT",
		Stake:     stake,
		Status:    models.RoundStatusOpened,
		OpenedAt:  openedAt,
	}
}
