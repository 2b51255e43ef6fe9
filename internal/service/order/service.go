package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/metrics"
)

// CreateItem — позиция запроса на создание заказа.
type CreateItem struct {
	SkuID    int64
	Quantity int32
}

// CreateRequest — входные данные саги создания заказа.
type CreateRequest struct {
	StoreID int64
	Items   []CreateItem
}

// CreateResult — результат успешного резервирования.
type CreateResult struct {
	OrderID          string
	Status           domain.OrderStatus
	TotalAmountMinor int64
}

// Service реализует сагу резервирования: одна транзакция мутирует Order и
// Inventory и дописывает интеграционные события в outbox. Любая ошибка
// откатывает транзакцию целиком — частичных резервов не бывает.
type Service struct {
	store   domain.SagaStore
	logger  *log.Entry
	metrics *metrics.SagaMetrics
}

// NewService создаёт рабочий экземпляр саги.
func NewService(store domain.SagaStore, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "order-saga")
	}
	return &Service{
		store:   store,
		logger:  logger,
		metrics: metrics.NewSagaMetrics(),
	}
}

// NewServiceWithoutMetrics создаёт сагу без метрик (для тестов).
func NewServiceWithoutMetrics(store domain.SagaStore, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "order-saga")
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// CreateOrder резервирует сток по каждой позиции и создаёт заказ в статусе
// reserved. Резервирования идут в порядке следования позиций запроса; первая
// неудача откатывает всё.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (CreateResult, error) {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.RecordSagaStarted()
		defer func() {
			s.metrics.RecordSagaDuration(time.Since(start))
		}()
	}

	if len(req.Items) == 0 {
		return CreateResult{}, domain.ErrItemsRequired
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return CreateResult{}, fmt.Errorf("%w: sku %d", domain.ErrItemQtyInvalid, item.SkuID)
		}
	}

	var result CreateResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.SagaTx) error {
		exists, err := tx.StoreExists(ctx, req.StoreID)
		if err != nil {
			return fmt.Errorf("check store: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: store %d", domain.ErrStoreNotFound, req.StoreID)
		}

		now := time.Now().UTC()
		order := domain.Order{
			ID:        uuid.NewString(),
			StoreID:   req.StoreID,
			Status:    domain.OrderStatusReserved,
			CreatedAt: now,
			UpdatedAt: now,
		}

		touched := make(map[int64]struct{}, len(req.Items))
		var total int64

		for _, item := range req.Items {
			inv, ok, err := tx.Inventory(ctx, req.StoreID, item.SkuID)
			if err != nil {
				return fmt.Errorf("load inventory: %w", err)
			}
			if !ok {
				return fmt.Errorf("%w: no inventory record for sku %d in store %d",
					domain.ErrInsufficientStock, item.SkuID, req.StoreID)
			}

			if err := inv.Reserve(item.Quantity); err != nil {
				return fmt.Errorf("%w: sku %d requested %d, available %d",
					err, item.SkuID, item.Quantity, inv.Available()+item.Quantity)
			}
			if err := tx.SaveInventory(ctx, inv); err != nil {
				return err
			}
			touched[item.SkuID] = struct{}{}

			price, err := s.unitPrice(ctx, tx, item.SkuID)
			if err != nil {
				return err
			}

			orderItem := domain.OrderItem{
				ID:             uuid.NewString(),
				OrderID:        order.ID,
				SkuID:          item.SkuID,
				Quantity:       item.Quantity,
				UnitPriceMinor: price,
				SubtotalMinor:  int64(item.Quantity) * price,
				CreatedAt:      now,
			}
			order.Items = append(order.Items, orderItem)
			total += orderItem.SubtotalMinor

			if err := tx.AppendMovement(ctx, domain.InventoryMovement{
				ID:        uuid.NewString(),
				StoreID:   req.StoreID,
				SkuID:     item.SkuID,
				Type:      domain.MovementReserve,
				Quantity:  item.Quantity,
				Reference: fmt.Sprintf("order %s", order.ID),
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}

		order.TotalAmountMinor = total
		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errs[0]
		}

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		if err := s.enqueueEvent(ctx, tx, domain.EventTypeOrderCreated, domain.OrderCreatedPayload{
			OrderID:          order.ID,
			StoreID:          order.StoreID,
			TotalAmountMinor: order.TotalAmountMinor,
			Status:           string(order.Status),
		}, now); err != nil {
			return err
		}

		// Перечитываем затронутые записи: резерв по нескольким позициям одного
		// SKU должен дать одно StockLow-событие по итоговому остатку.
		for skuID := range touched {
			inv, ok, err := tx.Inventory(ctx, req.StoreID, skuID)
			if err != nil {
				return fmt.Errorf("reload inventory: %w", err)
			}
			if !ok || !inv.LowStock() {
				continue
			}
			if err := s.enqueueEvent(ctx, tx, domain.EventTypeStockLow, domain.StockLowPayload{
				StoreID:      inv.StoreID,
				SkuID:        inv.SkuID,
				Available:    inv.Available(),
				ReorderPoint: inv.ReorderPoint,
			}, now); err != nil {
				return err
			}
		}

		result = CreateResult{
			OrderID:          order.ID,
			Status:           order.Status,
			TotalAmountMinor: order.TotalAmountMinor,
		}
		return nil
	})
	if err != nil {
		s.recordFailure(err)
		s.logger.WithError(err).WithField("store_id", req.StoreID).Warn("create order failed")
		return CreateResult{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordSagaCompleted()
	}
	s.logger.WithFields(log.Fields{
		"order_id": result.OrderID,
		"store_id": req.StoreID,
		"amount":   result.TotalAmountMinor,
	}).Info("order reserved")
	return result, nil
}

// ConfirmOrder списывает резерв: onHand и reserved уменьшаются на
// зарезервированное количество, доступный сток не меняется.
func (s *Service) ConfirmOrder(ctx context.Context, orderID string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.SagaTx) error {
		order, err := tx.Order(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(domain.OrderStatusConfirmed) {
			return fmt.Errorf("%w: cannot confirm order in state %s", domain.ErrInvalidStateTransition, order.Status)
		}

		now := time.Now().UTC()
		for _, item := range order.Items {
			inv, ok, err := tx.Inventory(ctx, order.StoreID, item.SkuID)
			if err != nil {
				return fmt.Errorf("load inventory: %w", err)
			}
			if !ok {
				// Резервирование обязано было создать запись: её отсутствие —
				// нарушение инварианта, а не бизнес-отказ.
				return fmt.Errorf("%w: inventory record missing for sku %d",
					domain.ErrInvalidStateTransition, item.SkuID)
			}
			if err := inv.Consume(item.Quantity); err != nil {
				return err
			}
			if err := tx.SaveInventory(ctx, inv); err != nil {
				return err
			}
			if err := tx.AppendMovement(ctx, domain.InventoryMovement{
				ID:        uuid.NewString(),
				StoreID:   order.StoreID,
				SkuID:     item.SkuID,
				Type:      domain.MovementConfirm,
				Quantity:  item.Quantity,
				Reference: fmt.Sprintf("order %s", order.ID),
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}

		order.Status = domain.OrderStatusConfirmed
		order.UpdatedAt = now
		if err := tx.UpdateOrderStatus(ctx, order); err != nil {
			return err
		}

		return s.enqueueEvent(ctx, tx, domain.EventTypeOrderConfirmed,
			domain.OrderStatePayload{OrderID: order.ID}, now)
	})
	if err != nil {
		s.recordFailure(err)
		s.logger.WithError(err).WithField("order_id", orderID).Warn("confirm order failed")
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderConfirmed()
	}
	s.logger.WithField("order_id", orderID).Info("order confirmed")
	return nil
}

// CancelOrder снимает резерв по каждой позиции и переводит заказ в cancelled.
func (s *Service) CancelOrder(ctx context.Context, orderID string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.SagaTx) error {
		order, err := tx.Order(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(domain.OrderStatusCancelled) {
			return fmt.Errorf("%w: cannot cancel order in state %s", domain.ErrInvalidStateTransition, order.Status)
		}

		now := time.Now().UTC()
		for _, item := range order.Items {
			inv, ok, err := tx.Inventory(ctx, order.StoreID, item.SkuID)
			if err != nil {
				return fmt.Errorf("load inventory: %w", err)
			}
			if !ok {
				continue
			}
			if err := inv.Release(item.Quantity); err != nil {
				return err
			}
			if err := tx.SaveInventory(ctx, inv); err != nil {
				return err
			}
			if err := tx.AppendMovement(ctx, domain.InventoryMovement{
				ID:        uuid.NewString(),
				StoreID:   order.StoreID,
				SkuID:     item.SkuID,
				Type:      domain.MovementCancel,
				Quantity:  item.Quantity,
				Reference: fmt.Sprintf("order %s", order.ID),
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}

		order.Status = domain.OrderStatusCancelled
		order.UpdatedAt = now
		if err := tx.UpdateOrderStatus(ctx, order); err != nil {
			return err
		}

		return s.enqueueEvent(ctx, tx, domain.EventTypeOrderCancelled,
			domain.OrderStatePayload{OrderID: order.ID}, now)
	})
	if err != nil {
		s.recordFailure(err)
		s.logger.WithError(err).WithField("order_id", orderID).Warn("cancel order failed")
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCancelled()
	}
	s.logger.WithField("order_id", orderID).Info("order cancelled")
	return nil
}

// unitPrice возвращает актуальную цену SKU. Отсутствующий SKU при существующей
// складской записи трактуется как нулевая цена, а не как отказ.
func (s *Service) unitPrice(ctx context.Context, tx domain.SagaTx, skuID int64) (int64, error) {
	sku, err := tx.SKU(ctx, skuID)
	if err != nil {
		if errors.Is(err, domain.ErrSKUNotFound) {
			s.logger.WithField("sku_id", skuID).Warn("sku has no price, snapshotting zero")
			return 0, nil
		}
		return 0, fmt.Errorf("load sku: %w", err)
	}
	return sku.PriceMinor, nil
}

func (s *Service) enqueueEvent(ctx context.Context, tx domain.SagaTx, eventType string, payload any, occurred time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	if err := tx.AppendOutbox(ctx, domain.OutboxEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Payload:    data,
		OccurredOn: occurred,
	}); err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
	return nil
}

func (s *Service) recordFailure(err error) {
	if s.metrics == nil {
		return
	}
	if domain.IsConcurrencyConflict(err) {
		s.metrics.RecordConcurrencyConflict()
	}
	s.metrics.RecordSagaFailed()
}
