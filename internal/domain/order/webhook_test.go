package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessPaymentWebhook_DepositPayment(t *testing.T) {
	o := depositOrder()
	d := &testDeps{orders: newMockOrderRepo(o)}
	svc := newTestService(d)

	err := svc.ProcessPaymentWebhook(context.Background(), Notification{
		Kind:           EventProformaPaid,
		VariableSymbol: "202510",
		Amount:         money2("18785.25"),
		Date:           testNow,
	})
	require.NoError(t, err)

	assert.Equal(t, DepositPaid, o.PaymentStatus)
	require.NotNil(t, o.DepositPaidAt)
	assert.Equal(t, testNow, *o.DepositPaidAt)
	assert.Equal(t, []InvoiceKind{KindTaxDocument}, d.provider.created,
		"deposit payment triggers the tax document")
}

func TestProcessPaymentWebhook_ToleratesRoundingDrift(t *testing.T) {
	o := depositOrder()
	svc := newTestService(&testDeps{orders: newMockOrderRepo(o)})

	err := svc.ProcessPaymentWebhook(context.Background(), Notification{
		Kind:           EventProformaPaid,
		VariableSymbol: "202510",
		Amount:         money2("18785.26"),
		Date:           testNow,
	})
	require.NoError(t, err)
	assert.Equal(t, DepositPaid, o.PaymentStatus)
}

func TestProcessPaymentWebhook_RemainingBalanceSettles(t *testing.T) {
	o := depositOrder()
	o.DepositPaidAt = &testNow
	o.PaymentStatus = DepositPaid
	svc := newTestService(&testDeps{orders: newMockOrderRepo(o)})

	err := svc.ProcessPaymentWebhook(context.Background(), Notification{
		Kind:           EventInvoicePaid,
		VariableSymbol: "202510",
		Amount:         money2("18785.25"), // total minus deposit
		Date:           testNow,
	})
	require.NoError(t, err)

	assert.Equal(t, Paid, o.PaymentStatus)
	require.NotNil(t, o.PaidAt)
}

func TestProcessPaymentWebhook_FullAmountSettlesStockOrder(t *testing.T) {
	o := stockOrder()
	svc := newTestService(&testDeps{orders: newMockOrderRepo(o)})

	err := svc.ProcessPaymentWebhook(context.Background(), Notification{
		Kind:           EventInvoicePaid,
		VariableSymbol: "202511",
		Amount:         money2("5445.00"),
		Date:           testNow,
	})
	require.NoError(t, err)
	assert.Equal(t, Paid, o.PaymentStatus)
}

func TestProcessPaymentWebhook_FullWireOnDepositOrderBackfills(t *testing.T) {
	o := depositOrder()
	svc := newTestService(&testDeps{orders: newMockOrderRepo(o)})

	err := svc.ProcessPaymentWebhook(context.Background(), Notification{
		Kind:           EventInvoicePaid,
		VariableSymbol: "202510",
		Amount:         money2("37570.50"),
		Date:           testNow,
	})
	require.NoError(t, err)

	assert.Equal(t, Paid, o.PaymentStatus)
	require.NotNil(t, o.DepositPaidAt, "full wire covers the deposit too")
}

func TestProcessPaymentWebhook_UnknownOrderIsAcknowledged(t *testing.T) {
	svc := newTestService(&testDeps{})

	err := svc.ProcessPaymentWebhook(context.Background(), Notification{
		Kind:           EventInvoicePaid,
		VariableSymbol: "999999",
		Amount:         money2("100.00"),
		Date:           testNow,
	})
	assert.NoError(t, err, "unknown variable symbol must not make the provider retry")
}

func TestProcessPaymentWebhook_MismatchedAmountIsAcknowledged(t *testing.T) {
	o := depositOrder()
	svc := newTestService(&testDeps{orders: newMockOrderRepo(o)})

	err := svc.ProcessPaymentWebhook(context.Background(), Notification{
		Kind:           EventInvoicePaid,
		VariableSymbol: "202510",
		Amount:         money2("5000.00"),
		Date:           testNow,
	})
	require.NoError(t, err)

	assert.Equal(t, AwaitingDeposit, o.PaymentStatus, "no state change on a partial amount")
	assert.Nil(t, o.DepositPaidAt)
}

func TestProcessPaymentWebhook_DuplicateDeliveryIsIdempotent(t *testing.T) {
	o := stockOrder()
	svc := newTestService(&testDeps{orders: newMockOrderRepo(o)})

	n := Notification{
		Kind:           EventInvoicePaid,
		VariableSymbol: "202511",
		Amount:         money2("5445.00"),
		Date:           testNow,
	}
	require.NoError(t, svc.ProcessPaymentWebhook(context.Background(), n))
	first := *o.PaidAt

	require.NoError(t, svc.ProcessPaymentWebhook(context.Background(), n))
	assert.Equal(t, Paid, o.PaymentStatus)
	assert.Equal(t, first, *o.PaidAt, "replay must not restamp the payment date")
}

func TestProcessPaymentWebhook_TaxDocumentFailureDoesNotFailWebhook(t *testing.T) {
	o := depositOrder()
	d := &testDeps{
		orders:   newMockOrderRepo(o),
		provider: &mockProvider{createErr: assert.AnError},
	}
	svc := newTestService(d)

	err := svc.ProcessPaymentWebhook(context.Background(), Notification{
		Kind:           EventProformaPaid,
		VariableSymbol: "202510",
		Amount:         money2("18785.25"),
		Date:           testNow,
	})
	require.NoError(t, err)
	assert.Equal(t, DepositPaid, o.PaymentStatus)
}
