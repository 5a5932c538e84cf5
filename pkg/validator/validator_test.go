package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/money"
)

type pickupRequest struct {
	CarrierID string      `json:"carrier_id" validate:"required"`
	Address   string      `json:"pickup_address" validate:"notblank"`
	Phone     string      `json:"customer_phone" validate:"omitempty,kr_phone"`
	Amount    money.Money `json:"amount" validate:"gt=0"`
	Type      string      `json:"type" validate:"oneof=CANCEL RETURN EXCHANGE PARTIAL_REFUND"`
}

func TestValidate(t *testing.T) {
	v := New()

	ok := pickupRequest{
		CarrierID: "CJ",
		Address:   "Seoul",
		Phone:     "010-1234-5678",
		Amount:    money.FromInt(1000),
		Type:      "RETURN",
	}
	require.NoError(t, v.Validate(ok))

	bad := pickupRequest{Address: "  ", Phone: "555", Amount: money.Zero(), Type: "SWAP"}
	err := v.Validate(bad)
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))

	fields := v.ValidateStructured(bad)
	assert.Equal(t, "This field is required", fields["carrier_id"])
	assert.Equal(t, "Must not be blank", fields["pickup_address"])
	assert.Contains(t, fields, "customer_phone")
	assert.Contains(t, fields, "amount")
	assert.Contains(t, fields, "type")
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "&lt;b&gt;broken&lt;/b&gt;", Sanitize("  <b>broken</b> "))
}
