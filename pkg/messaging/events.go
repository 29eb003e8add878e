package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Stock movement events
	EventStockConsumed  = "inventory.stock.consumed"
	EventStockAdjusted  = "inventory.stock.adjusted"
	EventBatchProduced  = "inventory.batch.produced"
	EventBatchReceived  = "inventory.batch.received"
	EventStageChanged   = "inventory.batch.stage_changed"

	// Alert events
	EventAlertCreated  = "inventory.alert.created"
	EventAlertResolved = "inventory.alert.resolved"
)

// Exchange names
const (
	ExchangeInventoryEvents = "inventory.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	TenantID      string          `json:"tenant_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID, tenantID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		TenantID:      tenantID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// StockMovementEvent is published for every ledger write
type StockMovementEvent struct {
	ItemID    string  `json:"item_id"`
	BatchID   string  `json:"batch_id,omitempty"`
	Movement  string  `json:"movement"`
	Quantity  string  `json:"quantity"`
	Unit      string  `json:"unit"`
	Reference string  `json:"reference,omitempty"`
}

// AlertCreatedEvent is published exactly once when a new alert is created.
// Updates to an existing alert are never re-sent.
type AlertCreatedEvent struct {
	AlertID         string `json:"alert_id"`
	Kind            string `json:"kind"`
	Priority        string `json:"priority"`
	Message         string `json:"message"`
	ItemID          string `json:"item_id"`
	BatchID         string `json:"batch_id,omitempty"`
	SuggestedAction string `json:"suggested_action,omitempty"`
}

// BatchProducedEvent is published when a production run creates a derived batch
type BatchProducedEvent struct {
	BatchID     string `json:"batch_id"`
	ProductID   string `json:"product_id"`
	BatchNumber string `json:"batch_number"`
	Quantity    string `json:"quantity"`
	Unit        string `json:"unit"`
	TotalCost   string `json:"total_cost"`
}
