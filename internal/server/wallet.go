package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tollgate/internal/money"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"go.uber.org/zap"
)

const walletTransactionsLimit = 100

type DepositRequest struct {
	Amount *money.Amount `json:"amount"`
}

type DepositResponse struct {
	Wallet    money.Amount `json:"wallet"`
	Reference string       `json:"reference,omitempty"`
}

type WalletResponse struct {
	Wallet       money.Amount          `json:"wallet"`
	Transactions []TransactionResponse `json:"transactions"`
}

type TransactionResponse struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Amount       money.Amount `json:"amount"`
	BalanceAfter money.Amount `json:"balance_after"`
	Reference    string       `json:"reference,omitempty"`
	CreatedAt    string       `json:"created_at"`
}

func (s *Server) Deposit(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, money.ErrInvalidAmount) {
			AbortWithError(c, err)
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Amount == nil {
		AbortWithError(c, newValidationError("amount", "required", "amount is required"))
		return
	}

	result, err := s.paymentSvc.Deposit(c.Request.Context(), userID, *req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Debug("deposit completed",
		zap.String("user_id", userID.String()),
		zap.String("reference", result.Charge.Reference),
	)
	c.JSON(http.StatusOK, DepositResponse{
		Wallet:    result.Balance,
		Reference: result.Charge.Reference,
	})
}

func (s *Server) GetWallet(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()
	balance, err := s.walletSvc.Balance(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	txns, err := s.walletSvc.ListTransactions(ctx, userID, walletTransactionsLimit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, WalletResponse{
		Wallet:       balance,
		Transactions: transactionResponses(txns),
	})
}

func transactionResponses(txns []walletdomain.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txns))
	for _, txn := range txns {
		out = append(out, TransactionResponse{
			ID:           txn.ID.String(),
			Type:         string(txn.Type),
			Amount:       txn.Amount,
			BalanceAfter: txn.BalanceAfter,
			Reference:    txn.ReferenceID,
			CreatedAt:    txn.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
