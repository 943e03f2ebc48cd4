package kafka

import (
	"encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestUnwrapPayload(t *testing.T) {
	type payload struct {
		OrderID string `json:"order_id"`
		Amount  int64  `json:"amount"`
	}
	got, err := UnwrapPayload[payload](json.RawMessage(`{"order_id":"ORD-1","amount":15000}`))
	require.NoError(t, err)
	assert.Equal(t, payload{OrderID: "ORD-1", Amount: 15000}, got)

	_, err = UnwrapPayload[payload](json.RawMessage(`{"amount":"x"}`))
	assert.Error(t, err)
}

func TestEventHeaders(t *testing.T) {
	h := EventHeaders("PaymentApproved", 1)
	require.Len(t, h, 2)
	assert.Equal(t, "x-event-type", h[0].Key)
	assert.Equal(t, "PaymentApproved", string(h[0].Value))
	assert.Equal(t, "1", string(h[1].Value))
}

func TestMustMarshal_Panics(t *testing.T) {
	assert.Panics(t, func() { MustMarshal(make(chan int)) })
}
