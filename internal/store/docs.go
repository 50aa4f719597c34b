package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/edebt/syncengine/internal/schema"
)

// Decode unmarshals the body of d into a T.
func Decode[T any](d Doc) (T, error) {
	var v T
	if err := json.Unmarshal(d.Body, &v); err != nil {
		return v, fmt.Errorf("failed to decode %s: %w", d.Key, err)
	}
	return v, nil
}

// DecodeAll unmarshals the bodies of docs in order.
func DecodeAll[T any](docs []Doc) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := Decode[T](d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func newDoc(key string, v any, idx map[string]string) (Doc, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Doc{}, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return Doc{Key: key, Body: body, Indexes: idx}, nil
}

// CustomerDoc encodes c keyed by its business id.
func CustomerDoc(c schema.Customer) (Doc, error) {
	if err := c.Validate(); err != nil {
		return Doc{}, fmt.Errorf("invalid customer: %w", err)
	}
	return newDoc(c.BusinessID, c, map[string]string{
		IndexSyncStatus: string(c.SyncStatus),
		IndexUpdatedAt:  schema.FormatTime(c.LocalUpdatedAt),
	})
}

// OrderDoc encodes o keyed by o.Key().
func OrderDoc(o schema.Order) (Doc, error) {
	if err := o.Validate(); err != nil {
		return Doc{}, fmt.Errorf("invalid order: %w", err)
	}
	created := o.LocalCreatedAt
	if created.IsZero() {
		created = o.CreatedAt
	}
	return newDoc(o.Key(), o, map[string]string{
		IndexCustomerID: o.CustomerBusinessID,
		IndexSyncStatus: string(o.SyncStatus),
		IndexCreatedAt:  schema.FormatTime(created),
	})
}

// MenuDoc encodes m keyed by its server id.
func MenuDoc(m schema.MenuItem) (Doc, error) {
	m.SetDefaults()
	if err := m.Validate(); err != nil {
		return Doc{}, fmt.Errorf("invalid menu item: %w", err)
	}
	return newDoc(m.ID, m, map[string]string{
		IndexCategory:  m.Category,
		IndexAvailable: strconv.FormatBool(m.Available),
	})
}

// MutationDoc encodes m keyed by its id.
func MutationDoc(m schema.PendingMutation) (Doc, error) {
	if m.ID == "" {
		return Doc{}, fmt.Errorf("invalid mutation: id is required")
	}
	if err := m.Validate(); err != nil {
		return Doc{}, fmt.Errorf("invalid mutation: %w", err)
	}
	return newDoc(m.ID, m, map[string]string{
		IndexType:      m.Type(),
		IndexCreatedAt: schema.FormatTime(m.CreatedAt),
		IndexState:     string(m.State),
	})
}

// MetaDoc encodes the SyncMeta singleton.
func MetaDoc(meta schema.SyncMeta) (Doc, error) {
	return newDoc(schema.MetaKey, meta, nil)
}

// GetCustomer reads the customer keyed by businessID.
func GetCustomer(tx Tx, businessID string) (schema.Customer, error) {
	doc, err := tx.Get(schema.Customers, businessID)
	if err != nil {
		return schema.Customer{}, err
	}
	return Decode[schema.Customer](doc)
}

// PutCustomer upserts c.
func PutCustomer(tx Tx, c schema.Customer) error {
	doc, err := CustomerDoc(c)
	if err != nil {
		return err
	}
	return tx.Put(schema.Customers, doc)
}

// GetOrder reads the order stored under key.
func GetOrder(tx Tx, key string) (schema.Order, error) {
	doc, err := tx.Get(schema.Orders, key)
	if err != nil {
		return schema.Order{}, err
	}
	return Decode[schema.Order](doc)
}

// PutOrder upserts o.
func PutOrder(tx Tx, o schema.Order) error {
	doc, err := OrderDoc(o)
	if err != nil {
		return err
	}
	return tx.Put(schema.Orders, doc)
}

// OrdersFor returns the cached orders of one customer.
func OrdersFor(tx Tx, businessID string) ([]schema.Order, error) {
	docs, err := tx.GetByIndex(schema.Orders, IndexCustomerID, businessID)
	if err != nil {
		return nil, err
	}
	return DecodeAll[schema.Order](docs)
}

// GetMutation reads the mutation with the given id.
func GetMutation(tx Tx, id string) (schema.PendingMutation, error) {
	doc, err := tx.Get(schema.PendingSync, id)
	if err != nil {
		return schema.PendingMutation{}, err
	}
	return Decode[schema.PendingMutation](doc)
}

// PutMutation upserts m.
func PutMutation(tx Tx, m schema.PendingMutation) error {
	doc, err := MutationDoc(m)
	if err != nil {
		return err
	}
	return tx.Put(schema.PendingSync, doc)
}

// MutationsOfType returns the mutations whose Type() is typ, in key order.
func MutationsOfType(tx Tx, typ string) ([]schema.PendingMutation, error) {
	docs, err := tx.GetByIndex(schema.PendingSync, IndexType, typ)
	if err != nil {
		return nil, err
	}
	return DecodeAll[schema.PendingMutation](docs)
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
