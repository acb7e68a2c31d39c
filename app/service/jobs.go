package service

import "context"

// RunWebhookRetryBatch re-processes webhooks whose retry is due.
func (s *PaymentService) RunWebhookRetryBatch(ctx context.Context) error {
	items, err := s.webhooks.ListDueRetry(ctx, s.now(), s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, webhook := range items {
		if webhook == nil || webhook.Processed() {
			continue
		}
		if err := s.processWebhook(ctx, webhook); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}
	return firstErr
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
