package inventory

// AdjustRequest for POST /inventory/adjust
type AdjustRequest struct {
	ProductID      string  `json:"product_id" validate:"required,uuid"`
	QuantityChange int     `json:"quantity_change" validate:"required"`
	MovementType   string  `json:"movement_type" validate:"required,movement_kind"`
	Notes          *string `json:"notes" validate:"omitempty,max=500"`
}

// OpenRequest for POST /inventory/open
type OpenRequest struct {
	ProductID       string `json:"product_id" validate:"required,uuid"`
	OpeningQuantity int    `json:"opening_quantity" validate:"gte=0"`
	ReorderLevel    *int   `json:"reorder_level" validate:"omitempty,gte=0"`
}

// ReorderLevelRequest for PUT /inventory/{productID}/reorder-level
type ReorderLevelRequest struct {
	ReorderLevel int `json:"reorder_level" validate:"gte=0"`
}
