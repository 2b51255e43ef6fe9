package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/retailops/internal/service/order"
)

// createOrderItem — позиция запроса на создание заказа.
type createOrderItem struct {
	SkuID    int64 `json:"sku_id" validate:"required,gt=0"`
	Quantity int32 `json:"quantity" validate:"required,min=1"`
}

// createOrderRequest — тело POST /api/orders.
type createOrderRequest struct {
	StoreID int64             `json:"store_id" validate:"required,gt=0"`
	Items   []createOrderItem `json:"items" validate:"required,min=1,dive"`
}

func (r createOrderRequest) toServiceRequest() order.CreateRequest {
	items := make([]order.CreateItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, order.CreateItem{SkuID: it.SkuID, Quantity: it.Quantity})
	}
	return order.CreateRequest{StoreID: r.StoreID, Items: items}
}

// validateStruct прогоняет структуру через validator и при ошибке пишет 400
// со структурированным списком полей. Возвращает false, если запрос отклонён.
func validateStruct(c *gin.Context, v *validatorv10.Validate, out any) bool {
	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": validationErrorsToMap(err),
		})
		return false
	}
	return true
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.StructNamespace()] = fe.Tag()
		}
		return out
	}
	out["error"] = err.Error()
	return out
}
