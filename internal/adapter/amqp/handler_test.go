package amqp

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YelzhanWeb/qristal-sync/internal/adapter/logger"
)

type countingWaker struct {
	wakes int
}

func (w *countingWaker) Wake() { w.wakes++ }

func TestDeductionHandler(t *testing.T) {
	w := &countingWaker{}
	h := NewDeductionHandler(w, logger.NewWithWriter("test", &bytes.Buffer{}))

	err := h.HandleDeductionRequest(context.Background(), []byte(`{"branchId":"branch-a","orderIds":["order-1"]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, w.wakes)

	assert.Error(t, h.HandleDeductionRequest(context.Background(), []byte(`{"orderIds":["order-1"]}`)))
	assert.Error(t, h.HandleDeductionRequest(context.Background(), []byte(`{`)))
	assert.Equal(t, 1, w.wakes)
}

func TestDashboardHandler(t *testing.T) {
	var out bytes.Buffer
	h := NewDashboardHandler(logger.NewWithWriter("test", &bytes.Buffer{}))
	h.out = &out

	err := h.HandleDashboardEvent(context.Background(), []byte(`{
		"event": "newOrder",
		"branchId": "branch-a",
		"timestamp": "2026-03-01T09:00:00Z",
		"payload": {"message": "New orders arrived!", "orderIds": ["order-1", "order-2"]}
	}`))
	require.NoError(t, err)

	err = h.HandleDashboardEvent(context.Background(), []byte(`{
		"event": "inventoryUpdate",
		"branchId": "branch-a",
		"timestamp": "2026-03-01T09:00:05Z",
		"payload": {"items": [
			{"id": "milk", "currentStock": 0.5, "minimumStock": 2},
			{"id": "beans", "currentStock": 900, "minimumStock": 100}
		]}
	}`))
	require.NoError(t, err)

	assert.Equal(t,
		"[09:00:00] branch-a newOrder: New orders arrived! (2 order(s))\n"+
			"[09:00:05] branch-a inventoryUpdate: 2 item(s), 1 at or below minimum\n",
		out.String())

	assert.Error(t, h.HandleDashboardEvent(context.Background(), []byte(`nope`)))
}
