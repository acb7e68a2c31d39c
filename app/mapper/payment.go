package mapper

import (
	"github.com/vibast-solutions/ms-go-integrations/app/entity"
	"github.com/vibast-solutions/ms-go-integrations/app/money"
	"github.com/vibast-solutions/ms-go-integrations/app/types"
	"github.com/vibast-solutions/ms-go-integrations/config"
)

func OrderToResponse(item *entity.Order) *types.OrderResponse {
	if item == nil {
		return nil
	}

	currency := money.Currency(item.Currency)
	items := make([]types.OrderItemResponse, 0, len(item.Items))
	for _, it := range item.Items {
		items = append(items, types.OrderItemResponse{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   money.ToMajor(it.UnitPriceMinor, currency),
			TotalPrice:  money.ToMajor(it.TotalPriceMinor, currency),
			Category:    it.Category,
			SKU:         it.SKU,
		})
	}

	return &types.OrderResponse{
		ID:            item.ID,
		UserID:        item.UserID,
		MerchantID:    derefString(item.MerchantID),
		Amount:        money.ToMajor(item.AmountMinor, currency),
		Currency:      item.Currency,
		Description:   item.Description,
		Status:        string(item.Status),
		PaymentMethod: derefString(item.PaymentMethod),
		TransactionID: derefString(item.TransactionID),
		FailureReason: derefString(item.FailureReason),
		Items:         items,
		Metadata:      cloneMetadata(item.Metadata),
		CreatedAt:     item.CreatedAt.UTC(),
		UpdatedAt:     item.UpdatedAt.UTC(),
		ExpiresAt:     item.ExpiresAt.UTC(),
		CompletedAt:   utcPtr(item.CompletedAt),
		CancelledAt:   utcPtr(item.CancelledAt),
	}
}

// OrderWithStatus renders an order with a status evaluated by the caller,
// which lets a lapsed pending order read as expired.
func OrderWithStatus(item *entity.Order, status entity.OrderStatus) *types.OrderResponse {
	resp := OrderToResponse(item)
	if resp != nil {
		resp.Status = string(status)
	}
	return resp
}

func TransactionToResponse(item *entity.Transaction) *types.TransactionResponse {
	if item == nil {
		return nil
	}

	currency := money.Currency(item.Currency)
	return &types.TransactionResponse{
		ID:                   item.ID,
		OrderID:              item.OrderID,
		UserID:               item.UserID,
		Type:                 item.Type,
		Status:               string(item.Status),
		Amount:               money.ToMajor(item.AmountMinor, currency),
		Currency:             item.Currency,
		PaymentMethod:        item.PaymentMethod,
		Gateway:              item.Gateway.Gateway,
		GatewayTransactionID: item.Gateway.TransactionID,
		ResponseCode:         item.Gateway.ResponseCode,
		ResponseMessage:      item.Gateway.ResponseMessage,
		AuthorizationCode:    item.Gateway.AuthorizationCode,
		Fees:                 money.ToMajor(item.FeesMinor, currency),
		NetAmount:            money.ToMajor(item.NetAmountMinor, currency),
		CreatedAt:            item.CreatedAt.UTC(),
		ProcessedAt:          utcPtr(item.ProcessedAt),
		SettledAt:            utcPtr(item.SettledAt),
	}
}

func TransactionsToResponse(items []*entity.Transaction) []*types.TransactionResponse {
	result := make([]*types.TransactionResponse, 0, len(items))
	for _, item := range items {
		result = append(result, TransactionToResponse(item))
	}
	return result
}

func PaymentToResponse(order *entity.Order, txn *entity.Transaction) *types.PaymentResponse {
	resp := &types.PaymentResponse{
		Order:       OrderToResponse(order),
		Transaction: TransactionToResponse(txn),
	}
	if order != nil {
		resp.OrderID = order.ID
		resp.Status = string(order.Status)
	}
	if txn != nil {
		resp.TransactionID = txn.ID
	}
	return resp
}

func RefundToResponse(item *entity.Refund, order *entity.Order, remainingMinor int64) *types.RefundResponse {
	if item == nil {
		return nil
	}

	currency := money.Currency(item.Currency)
	resp := &types.RefundResponse{
		ID:              item.ID,
		TransactionID:   item.TransactionID,
		OrderID:         item.OrderID,
		Amount:          money.ToMajor(item.AmountMinor, currency),
		Currency:        item.Currency,
		Reason:          item.Reason,
		Status:          string(item.Status),
		GatewayRefundID: derefString(item.GatewayRefundID),
		FailureReason:   derefString(item.FailureReason),
		RequestedBy:     item.RequestedBy,
		CreatedAt:       item.CreatedAt.UTC(),
		ProcessedAt:     utcPtr(item.ProcessedAt),
		RemainingAmount: money.ToMajor(remainingMinor, currency),
	}
	if order != nil {
		resp.OrderStatus = string(order.Status)
	}
	return resp
}

func PaymentMethodsToResponse(items []config.MethodConfig) []*types.PaymentMethodResponse {
	result := make([]*types.PaymentMethodResponse, 0, len(items))
	for _, item := range items {
		currencies := make([]string, len(item.Currencies))
		copy(currencies, item.Currencies)
		result = append(result, &types.PaymentMethodResponse{
			ID:             item.ID,
			Name:           item.Name,
			Description:    item.Description,
			ProcessingTime: item.ProcessingTime,
			Enabled:        item.Enabled,
			FeePercentage:  float64(item.FeeBasisPoints) / 100,
			FeeFixedMinor:  item.FeeFixedMinor,
			Currencies:     currencies,
		})
	}
	return result
}

func WebhookToResponse(item *entity.Webhook, duplicate bool) *types.WebhookResponse {
	if item == nil {
		return nil
	}

	return &types.WebhookResponse{
		ID:          item.ID,
		Event:       item.Event,
		Status:      string(item.Status),
		RetryCount:  item.RetryCount,
		LastError:   derefString(item.LastError),
		Duplicate:   duplicate,
		Timestamp:   item.Timestamp.UTC(),
		ReceivedAt:  item.CreatedAt.UTC(),
		ProcessedAt: utcPtr(item.ProcessedAt),
		NextRetryAt: utcPtr(item.NextRetryAt),
	}
}

func WebhooksToResponse(items []*entity.Webhook) []*types.WebhookResponse {
	result := make([]*types.WebhookResponse, 0, len(items))
	for _, item := range items {
		result = append(result, WebhookToResponse(item, false))
	}
	return result
}
