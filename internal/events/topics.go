package events

// Topic constants for domain events emitted by a cart session.
const (
	TopicItemsReplaced    = "cart.items_replaced"
	TopicItemAdded        = "cart.item_added"
	TopicQuantityUpdated  = "cart.quantity_updated"
	TopicItemRemoved      = "cart.item_removed"
	TopicPromoApplied     = "cart.promo_applied"
	TopicPromoCleared     = "cart.promo_cleared"
	TopicPromoRejected    = "cart.promo_rejected"
	TopicMutationRejected = "cart.mutation_rejected"
)

// DefaultTopics returns the canonical list of cart topics.
func DefaultTopics() []string {
	return []string{
		TopicItemsReplaced,
		TopicItemAdded,
		TopicQuantityUpdated,
		TopicItemRemoved,
		TopicPromoApplied,
		TopicPromoCleared,
		TopicPromoRejected,
		TopicMutationRejected,
	}
}
