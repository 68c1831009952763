package handlers

import (
	"context"
	"encoding/json"
	"log"

	"github.com/hibiken/asynq"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/tasks"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

// notifyByEmail enqueues a notification email for the background worker.
// Delivery is best-effort; a full queue never fails the request that
// triggered it.
func notifyByEmail(ctx context.Context, client *asynq.Client, kind string, dealID, recipientID utils.SixID, amountCents int64) {
	if client == nil {
		return
	}
	payload, err := json.Marshal(tasks.EmailTaskPayload{
		Kind:        kind,
		DealID:      dealID.String(),
		BuyerID:     recipientID.String(),
		AmountCents: amountCents,
	})
	if err != nil {
		return
	}
	if _, err := client.EnqueueContext(ctx, asynq.NewTask(tasks.TypeEmailDelivery, payload)); err != nil {
		log.Printf("Warning: failed to enqueue %s email for deal %s: %v", kind, dealID.String(), err)
	}
}
