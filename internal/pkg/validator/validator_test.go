package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Type     string `json:"type" validate:"required,txn_type"`
	Quantity int    `json:"quantity" validate:"gt=0"`
	Status   string `json:"status" validate:"omitempty,fraud_status"`
}

func TestValidateUsesJSONNamesAndCustomTags(t *testing.T) {
	errs := Validate(sample{Type: "gift", Quantity: 0, Status: "closed"})

	assert.Contains(t, errs, "type")
	assert.Contains(t, errs, "quantity")
	assert.Contains(t, errs, "status")
	assert.Nil(t, Validate(sample{Type: "sale", Quantity: 1}))
}

func TestValidateVar(t *testing.T) {
	assert.NoError(t, ValidateVar("damage", "movement_kind"))
	assert.Error(t, ValidateVar("gift", "movement_kind"))
	assert.NoError(t, ValidateVar("critical", "risk_level"))
}
