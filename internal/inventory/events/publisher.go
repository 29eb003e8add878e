package events

import (
	"context"

	"github.com/stocklot/stocklot-backend/internal/inventory/repository"
	"github.com/stocklot/stocklot-backend/pkg/logger"
	"github.com/stocklot/stocklot-backend/pkg/messaging"
)

// Publisher emits inventory domain events. A nil Publisher is safe to call
// and publishes nothing, so services run without a broker in tests.
type Publisher struct {
	pub *messaging.Publisher
	log *logger.Logger
}

// NewPublisher creates a new inventory event publisher
func NewPublisher(pub *messaging.Publisher, log *logger.Logger) *Publisher {
	return &Publisher{pub: pub, log: log.WithComponent("inventory-events")}
}

func (p *Publisher) publish(ctx context.Context, eventType, tenantID string, data interface{}) {
	if p == nil || p.pub == nil {
		return
	}
	if err := p.pub.Publish(ctx, eventType, tenantID, data); err != nil {
		// event delivery is best-effort; the ledger is the source of truth
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

// StockMovement publishes a ledger write
func (p *Publisher) StockMovement(ctx context.Context, tenantID string, rec *repository.TransactionRecord) {
	eventType := messaging.EventStockConsumed
	switch rec.Kind {
	case repository.MovementAdjustment, repository.MovementWastage:
		eventType = messaging.EventStockAdjusted
	case repository.MovementPurchase:
		eventType = messaging.EventBatchReceived
	}

	data := messaging.StockMovementEvent{
		ItemID:   rec.ItemID,
		Movement: string(rec.Kind),
		Quantity: rec.Quantity.String(),
		Unit:     rec.Unit,
	}
	if rec.BatchID != nil {
		data.BatchID = *rec.BatchID
	}
	if rec.Reference != nil {
		data.Reference = *rec.Reference
	}
	p.publish(ctx, eventType, tenantID, data)
}

// BatchProduced publishes a completed production run
func (p *Publisher) BatchProduced(ctx context.Context, tenantID string, batch *repository.DerivedBatch) {
	p.publish(ctx, messaging.EventBatchProduced, tenantID, messaging.BatchProducedEvent{
		BatchID:     batch.ID,
		ProductID:   batch.ProductID,
		BatchNumber: batch.BatchNumber,
		Quantity:    batch.QuantityProduced.String(),
		Unit:        batch.Unit,
		TotalCost:   batch.TotalCost.String(),
	})
}

// AlertCreated publishes a newly created alert
func (p *Publisher) AlertCreated(ctx context.Context, tenantID string, alert *repository.Alert, hint string) {
	data := messaging.AlertCreatedEvent{
		AlertID:         alert.ID,
		Kind:            string(alert.Kind),
		Priority:        string(alert.Priority),
		Message:         alert.Message,
		SuggestedAction: hint,
	}
	if alert.ItemID != nil {
		data.ItemID = *alert.ItemID
	}
	if alert.BatchID != nil {
		data.BatchID = *alert.BatchID
	}
	p.publish(ctx, messaging.EventAlertCreated, tenantID, data)
}

// AlertResolved publishes an alert resolution
func (p *Publisher) AlertResolved(ctx context.Context, tenantID, alertID string) {
	p.publish(ctx, messaging.EventAlertResolved, tenantID, map[string]string{"alert_id": alertID})
}

// StageChanged publishes a batch lifecycle transition
func (p *Publisher) StageChanged(ctx context.Context, tenantID, batchID, from, to string) {
	p.publish(ctx, messaging.EventStageChanged, tenantID, map[string]string{
		"batch_id": batchID,
		"from":     from,
		"to":       to,
	})
}
