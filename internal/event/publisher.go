package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marmota-alpina/gostack-desafio-08/internal/domain"
	pkgkafka "github.com/marmota-alpina/gostack-desafio-08/pkg/kafka"
)

// TopicCartUpdated carries the full cart after every effective mutation.
const TopicCartUpdated = "cart.updated"

// AggregateTypeCart is the aggregate type stamped on cart events.
const AggregateTypeCart = "cart"

// SourceCartStore identifies events emitted by this service.
const SourceCartStore = "cart-store"

// CartUpdatedData is the payload of a cart.updated event.
type CartUpdatedData struct {
	CartID      string            `json:"cart_id"`
	Items       []domain.LineItem `json:"items"`
	ItemCount   int               `json:"item_count"`
	TotalAmount float64           `json:"total_amount"`
}

// Publisher sends cart events to Kafka.
type Publisher struct {
	kafka  *pkgkafka.Producer
	cartID string
	logger *slog.Logger
}

// NewPublisher creates a publisher for the cart identified by cartID, which is
// also the partition key.
func NewPublisher(kafka *pkgkafka.Producer, cartID string, logger *slog.Logger) *Publisher {
	return &Publisher{kafka: kafka, cartID: cartID, logger: logger}
}

// PublishCartUpdated publishes a cart.updated event with the given state.
func (p *Publisher) PublishCartUpdated(ctx context.Context, products domain.Products) error {
	items := products.Clone()
	data := CartUpdatedData{
		CartID:      p.cartID,
		Items:       items,
		ItemCount:   items.ItemCount(),
		TotalAmount: items.TotalAmount(),
	}

	evt, err := pkgkafka.NewEvent(TopicCartUpdated, p.cartID, AggregateTypeCart, SourceCartStore, data)
	if err != nil {
		return fmt.Errorf("create cart.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartUpdated, evt); err != nil {
		return fmt.Errorf("publish cart.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("cart_id", p.cartID),
		slog.Int("item_count", data.ItemCount),
	)
	return nil
}
