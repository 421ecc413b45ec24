// internal/extension/softdelete.go
package extension

import (
	"context"

	"contract-runtime/internal/contract"
	"contract-runtime/internal/store"
)

// SoftDelete rewrites a DELETE on an annotated resource into an update that
// sets the discriminator property. The record stays readable by key; list
// translation excludes it.
func SoftDelete(ctx context.Context, s store.Store, op *contract.Operation, collection, key string) (store.Record, error) {
	sd := op.EffectiveSoftDelete()
	return s.Update(ctx, collection, key, store.Record{sd.Property: sd.Value})
}
