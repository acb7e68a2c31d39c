package controller

import (
	"errors"
	"math"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-integrations/app/factory"
	"github.com/vibast-solutions/ms-go-integrations/app/mapper"
	"github.com/vibast-solutions/ms-go-integrations/app/service"
	"github.com/vibast-solutions/ms-go-integrations/app/types"
	"github.com/zoobzio/clockz"
)

type PaymentController struct {
	paymentService *service.PaymentService
	responder
}

func NewPaymentController(paymentService *service.PaymentService, clock clockz.Clock) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		responder:      newResponder("payment-controller", clock),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return c.writeSuccess(ctx, http.StatusOK, map[string]string{"status": "ok"}, "healthy")
}

func (c *PaymentController) CreateOrder(ctx echo.Context) error {
	req, err := types.NewCreateOrderRequestFromContext(ctx)
	if err != nil {
		return c.writeValidationError(ctx, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeValidationError(ctx, err.Error())
	}

	view, err := c.paymentService.CreateOrder(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Create order")
	}

	return c.writeSuccess(ctx, http.StatusCreated, mapper.OrderWithStatus(view.Order, view.Status), "Order created")
}

func (c *PaymentController) GetOrderStatus(ctx echo.Context) error {
	req, err := types.NewOrderIDRequestFromContext(ctx)
	if err != nil {
		return c.writeValidationError(ctx, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeValidationError(ctx, err.Error())
	}

	view, err := c.paymentService.GetOrderStatus(ctx.Request().Context(), req.OrderId)
	if err != nil {
		return c.writeServiceError(ctx, err, "Get order status")
	}

	return c.writeSuccess(ctx, http.StatusOK, &types.OrderStatusResponse{
		Order:     mapper.OrderWithStatus(view.Order, view.Status),
		Status:    string(view.Status),
		CheckedAt: view.CheckedAt.UTC(),
	}, "Order status retrieved")
}

func (c *PaymentController) CancelOrder(ctx echo.Context) error {
	req, err := types.NewOrderIDRequestFromContext(ctx)
	if err != nil {
		return c.writeValidationError(ctx, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeValidationError(ctx, err.Error())
	}

	view, err := c.paymentService.CancelOrder(ctx.Request().Context(), req.OrderId)
	if err != nil {
		return c.writeServiceError(ctx, err, "Cancel order")
	}

	return c.writeSuccess(ctx, http.StatusOK, mapper.OrderWithStatus(view.Order, view.Status), "Order cancelled")
}

// ProcessPayment answers 402 with the failed attempt when the gateway
// declines, so clients can show the reason without a second lookup.
func (c *PaymentController) ProcessPayment(ctx echo.Context) error {
	req, err := types.NewProcessPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeValidationError(ctx, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeValidationError(ctx, err.Error())
	}

	result, err := c.paymentService.ProcessPayment(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrPaymentFailed) && result != nil {
			return ctx.JSON(http.StatusPaymentRequired, &types.Response{
				Success:   false,
				Data:      mapper.PaymentToResponse(result.Order, result.Transaction),
				Error:     err.Error(),
				Code:      CodePaymentFailed,
				Message:   "Payment failed",
				Timestamp: c.clock.Now().UTC(),
			})
		}
		return c.writeServiceError(ctx, err, "Process payment")
	}

	resp := mapper.PaymentToResponse(result.Order, result.Transaction)
	resp.Status = string(result.Status)
	return c.writeSuccess(ctx, http.StatusOK, resp, "Payment processed")
}

func (c *PaymentController) Refund(ctx echo.Context) error {
	req, err := types.NewRefundRequestFromContext(ctx)
	if err != nil {
		return c.writeValidationError(ctx, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeValidationError(ctx, err.Error())
	}

	result, err := c.paymentService.Refund(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Refund")
	}

	return c.writeSuccess(ctx, http.StatusOK, mapper.RefundToResponse(result.Refund, result.Order, result.RemainingMinor), "Refund "+string(result.Refund.Status))
}

func (c *PaymentController) ListOrders(ctx echo.Context) error {
	req, err := types.NewListOrdersRequestFromContext(ctx)
	if err != nil {
		return c.writeValidationError(ctx, err.Error())
	}
	if err := req.Validate(); err != nil {
		return c.writeValidationError(ctx, err.Error())
	}

	page, err := c.paymentService.ListOrders(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "List orders")
	}

	orders := make([]*types.OrderResponse, 0, len(page.Items))
	for _, view := range page.Items {
		orders = append(orders, mapper.OrderWithStatus(view.Order, view.Status))
	}
	return c.writeSuccess(ctx, http.StatusOK, &types.OrderListResponse{
		Orders: orders,
		Total:  page.Total,
		Page:   page.Page,
		Limit:  page.Limit,
		Pages:  pageCount(page.Total, page.Limit),
	}, "Orders retrieved")
}

func (c *PaymentController) ListTransactions(ctx echo.Context) error {
	req, err := types.NewListTransactionsRequestFromContext(ctx)
	if err != nil {
		return c.writeValidationError(ctx, err.Error())
	}
	if err := req.Validate(); err != nil {
		return c.writeValidationError(ctx, err.Error())
	}

	page, err := c.paymentService.ListTransactions(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "List transactions")
	}

	return c.writeSuccess(ctx, http.StatusOK, &types.TransactionListResponse{
		Transactions: mapper.TransactionsToResponse(page.Items),
		Total:        page.Total,
		Page:         page.Page,
		Limit:        page.Limit,
		Pages:        pageCount(page.Total, page.Limit),
	}, "Transactions retrieved")
}

func pageCount(total int64, limit int32) int64 {
	if limit <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(total) / float64(limit)))
}

func (c *PaymentController) ListPaymentMethods(ctx echo.Context) error {
	return c.writeSuccess(ctx, http.StatusOK, mapper.PaymentMethodsToResponse(c.paymentService.ListPaymentMethods()), "Payment methods retrieved")
}

// Webhook acknowledges every authentic delivery with 200. Processing errors
// stay on the stored webhook and are retried in the background.
func (c *PaymentController) Webhook(ctx echo.Context) error {
	req, err := types.NewWebhookRequestFromContext(ctx)
	if err != nil {
		return c.writeValidationError(ctx, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeValidationError(ctx, err.Error())
	}

	result, err := c.paymentService.IngestWebhook(ctx.Request().Context(), req.Payload, req.Signature)
	if err != nil {
		if errors.Is(err, service.ErrSignature) {
			factory.LoggerWithContext(c.logger, ctx).Warn("Webhook signature rejected")
		}
		return c.writeServiceError(ctx, err, "Ingest webhook")
	}

	message := "Webhook received"
	if result.Duplicate {
		message = "Webhook already received"
	}
	return c.writeSuccess(ctx, http.StatusOK, mapper.WebhookToResponse(result.Webhook, result.Duplicate), message)
}

func (c *PaymentController) ListFailedWebhooks(ctx echo.Context) error {
	req, err := types.NewListFailedWebhooksRequestFromContext(ctx)
	if err != nil {
		return c.writeValidationError(ctx, err.Error())
	}
	if err := req.Validate(); err != nil {
		return c.writeValidationError(ctx, err.Error())
	}

	items, err := c.paymentService.ListFailedWebhooks(ctx.Request().Context(), req.Limit, req.Offset)
	if err != nil {
		return c.writeServiceError(ctx, err, "List failed webhooks")
	}

	return c.writeSuccess(ctx, http.StatusOK, &types.WebhookListResponse{
		Webhooks: mapper.WebhooksToResponse(items),
		Limit:    req.Limit,
		Offset:   req.Offset,
	}, "Failed webhooks retrieved")
}

func (c *PaymentController) RetryWebhook(ctx echo.Context) error {
	req, err := types.NewWebhookIDRequestFromContext(ctx)
	if err != nil {
		return c.writeValidationError(ctx, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeValidationError(ctx, err.Error())
	}

	item, err := c.paymentService.RequeueWebhook(ctx.Request().Context(), req.WebhookId)
	if err != nil {
		return c.writeServiceError(ctx, err, "Requeue webhook")
	}

	return c.writeSuccess(ctx, http.StatusOK, mapper.WebhookToResponse(item, false), "Webhook queued for retry")
}
