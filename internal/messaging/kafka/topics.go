package kafka

// Топики интеграционных событий.
const (
	// TopicOrderEvents несёт OrderCreated / OrderConfirmed / OrderCancelled.
	TopicOrderEvents = "retailops.order.events"
	// TopicStockEvents несёт StockLow.
	TopicStockEvents = "retailops.stock.events"
	// TopicDeadLetterQueue принимает события с исчерпанным бюджетом доставки.
	TopicDeadLetterQueue = "retailops.dlq"
)
