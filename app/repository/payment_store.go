package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-integrations/app/entity"
)

// PaymentStore groups the writes that must commit together.
type PaymentStore struct {
	db *sql.DB
}

func NewPaymentStore(db *sql.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

// RecordAttempt stores the transaction of a payment attempt and the order
// transition it caused in one database transaction.
func (s *PaymentStore) RecordAttempt(ctx context.Context, order *entity.Order, txn *entity.Transaction) error {
	revision := order.Revision
	err := withTx(ctx, s.db, func(tx DBTX) error {
		if err := NewTransactionRepository(tx).Create(ctx, txn); err != nil {
			return err
		}
		return NewOrderRepository(tx).Update(ctx, order)
	})
	if err != nil {
		order.Revision = revision
	}
	return err
}

// ReserveRefund inserts the refund only if, with the transaction row locked,
// the reserved refunds plus this one stay within the transaction amount.
func (s *PaymentStore) ReserveRefund(ctx context.Context, refund *entity.Refund) error {
	return withTx(ctx, s.db, func(tx DBTX) error {
		var amount int64
		err := tx.QueryRowContext(ctx,
			`SELECT amount_minor FROM payment_transactions WHERE id = ? FOR UPDATE`,
			refund.TransactionID,
		).Scan(&amount)
		if err == sql.ErrNoRows {
			return ErrTransactionNotFound
		}
		if err != nil {
			return err
		}

		refunds := NewRefundRepository(tx)
		reserved, err := refunds.SumReserved(ctx, refund.TransactionID)
		if err != nil {
			return err
		}
		if reserved+refund.AmountMinor > amount {
			return ErrRefundExceedsBalance
		}

		return refunds.Create(ctx, refund)
	})
}

// FinalizeRefund stores the refund outcome and, when given, the resulting
// order transition together.
func (s *PaymentStore) FinalizeRefund(ctx context.Context, refund *entity.Refund, order *entity.Order) error {
	var revision int64
	if order != nil {
		revision = order.Revision
	}
	err := withTx(ctx, s.db, func(tx DBTX) error {
		if err := NewRefundRepository(tx).Update(ctx, refund); err != nil {
			return err
		}
		if order == nil {
			return nil
		}
		return NewOrderRepository(tx).Update(ctx, order)
	})
	if err != nil && order != nil {
		order.Revision = revision
	}
	return err
}

// SettleTransaction stores a settled transaction and its order together.
func (s *PaymentStore) SettleTransaction(ctx context.Context, txn *entity.Transaction, order *entity.Order) error {
	txnRevision := txn.Revision
	var orderRevision int64
	if order != nil {
		orderRevision = order.Revision
	}
	err := withTx(ctx, s.db, func(tx DBTX) error {
		if err := NewTransactionRepository(tx).Update(ctx, txn); err != nil {
			return err
		}
		if order == nil {
			return nil
		}
		return NewOrderRepository(tx).Update(ctx, order)
	})
	if err != nil {
		txn.Revision = txnRevision
		if order != nil {
			order.Revision = orderRevision
		}
	}
	return err
}
