package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/roach88/evertag/internal/domain"
)

func TestInsertOrder_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestMemorial(t, s, "m1", "TAG-0001", "pay_1")

	want := createTestOrder("pay_1", "m1")
	if err := s.InsertOrder(ctx, want); err != nil {
		t.Fatalf("InsertOrder() failed: %v", err)
	}

	got, err := s.GetOrderByReference(ctx, "pay_1")
	if err != nil {
		t.Fatalf("GetOrderByReference() failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestInsertOrder_DuplicateReferenceConflicts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.InsertOrder(ctx, createTestOrder("pay_1", "")); err != nil {
		t.Fatalf("first InsertOrder() failed: %v", err)
	}
	err := s.InsertOrder(ctx, createTestOrder("pay_1", ""))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second InsertOrder() error = %v, want ErrConflict", err)
	}
}

func TestSetOrderMemorial_OnlyWhenUnlinked(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestMemorial(t, s, "m1", "TAG-0001", "pay_1")
	createTestMemorial(t, s, "m2", "TAG-0002", "pay_other")

	o := createTestOrder("pay_1", "")
	if err := s.InsertOrder(ctx, o); err != nil {
		t.Fatalf("InsertOrder() failed: %v", err)
	}

	unlinked, err := s.ListOrders(ctx, OrderFilter{Unlinked: true})
	if err != nil {
		t.Fatalf("ListOrders() failed: %v", err)
	}
	if len(unlinked) != 1 {
		t.Fatalf("unlinked orders = %d, want 1", len(unlinked))
	}

	ok, err := s.SetOrderMemorial(ctx, o.ID, "m1", testTime)
	if err != nil || !ok {
		t.Fatalf("SetOrderMemorial(m1) = %v, %v; want true, nil", ok, err)
	}
	ok, err = s.SetOrderMemorial(ctx, o.ID, "m2", testTime)
	if err != nil || ok {
		t.Fatalf("SetOrderMemorial(m2) = %v, %v; want false, nil", ok, err)
	}

	got, err := s.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrder() failed: %v", err)
	}
	if got.MemorialID != "m1" {
		t.Errorf("memorial_id = %q, want m1", got.MemorialID)
	}
}

func TestUpdateOrderStatus_CompareAndSwap(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	o := createTestOrder("pay_1", "")
	if err := s.InsertOrder(ctx, o); err != nil {
		t.Fatalf("InsertOrder() failed: %v", err)
	}

	ok, err := s.UpdateOrderStatus(ctx, o.ID, domain.OrderPaid, domain.OrderProcessing, testTime)
	if err != nil || !ok {
		t.Fatalf("UpdateOrderStatus(paid->processing) = %v, %v", ok, err)
	}
	ok, err = s.UpdateOrderStatus(ctx, o.ID, domain.OrderPaid, domain.OrderCancelled, testTime)
	if err != nil || ok {
		t.Fatalf("stale UpdateOrderStatus(paid->cancelled) = %v, %v; want false, nil", ok, err)
	}

	processing, err := s.ListOrders(ctx, OrderFilter{Status: domain.OrderProcessing})
	if err != nil {
		t.Fatalf("ListOrders() failed: %v", err)
	}
	if len(processing) != 1 || processing[0].ID != o.ID {
		t.Errorf("processing orders = %+v, want [%s]", processing, o.ID)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	s := createTestStore(t)

	if _, err := s.GetOrder(context.Background(), "ord_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetOrder() error = %v, want ErrNotFound", err)
	}
}
