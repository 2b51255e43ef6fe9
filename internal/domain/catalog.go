package domain

// Store — точка продаж, к которой привязаны заказы и складские записи.
type Store struct {
	ID   int64
	Name string
	Code string
}

// SKU — торговая позиция с актуальной ценой. Цена копируется в позицию заказа
// в момент резервирования и дальше живёт своей жизнью.
type SKU struct {
	ID         int64
	Code       string
	Name       string
	PriceMinor int64
}
