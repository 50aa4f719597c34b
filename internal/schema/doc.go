// Package schema defines the record types cached on the device and exchanged
// with the remote service.
//
// # Records
//
// Customers are keyed by their business identifier (unique_id), which is
// assigned by the operator and is stable across devices. A customer created
// offline carries a provisional server id ("tmp-<uuid>") until the remote
// confirms the create.
//
// Orders are keyed by a local auto id. Orders that reached the remote are
// cached under a key derived from the server id; orders still waiting for
// upload are cached under the local id with SyncStatus "pending".
//
// Menu items are keyed by server id and are read-only on the device.
//
// # Pending mutations
//
// Every local write that the remote has not confirmed yet is represented by a
// PendingMutation. Its Type() ("customers.create", "orders.create", ...) is
// the value stored in the queue's type index.
//
//	m, err := schema.NewOrderCreate(schema.OrderPayload{
//	    CustomerBusinessID: "CUST-1",
//	    Name:               "Rice",
//	    Amount:             decimal.NewFromInt(75),
//	}, time.Now())
//
// # Wire format
//
// JSON field names follow the remote contract (unique_id, _id, order_amount,
// ...). Money is a decimal.Decimal and marshals as a JSON number.
package schema
