package repository

import (
	"context"

	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
)

// OrderRepository lectura de pedidos (con alícuotas de producto) para el núcleo fiscal.
type OrderRepository interface {
	// GetByID devuelve nil, nil si el pedido no existe para el tenant.
	GetByID(ctx context.Context, tenantID, orderID string) (*entity.Order, error)
}
