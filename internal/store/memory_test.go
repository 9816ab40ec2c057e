package store_test

import (
	"testing"

	"github.com/yacobolo/cssaudit/internal/store"
	"github.com/yacobolo/cssaudit/internal/store/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return store.NewMemory() })
}
