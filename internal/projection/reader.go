// Package projection implements the Tenant Projection Reader: for a given
// tenant and since-timestamp, it assembles the full pull bundle by
// querying all sixteen kind tables and decoding each row through the
// codec package.
package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldsync/syncd/internal/codec"
	"github.com/fieldsync/syncd/internal/domain"
	"github.com/fieldsync/syncd/internal/store"
)

// Reader reads tenant-scoped, timestamp-gated projections of the store.
type Reader struct {
	db *sql.DB
}

// NewReader builds a Reader over the given database handle.
func NewReader(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// ReadBundle executes read_bundle(tenant_id, since): for each of the
// sixteen kinds, it collects every row updated strictly after since,
// ordered by updated_at then id, and returns them as one Bundle. serverTime
// must already be formatted (captured once at request entry by the
// caller, per the single-snapshot contract); it is not computed here.
func (r *Reader) ReadBundle(ctx context.Context, tenantID, since, serverTime string) (domain.Bundle, error) {
	bundle := domain.Bundle{
		Meta: domain.Meta{ServerTime: serverTime, Since: since},
		Data: make(map[string][]domain.Record, len(domain.AllKinds)),
	}

	for _, info := range domain.AllKinds {
		var records []domain.Record
		err := store.ReadKind(ctx, r.db, info.Kind, tenantID, since, info.HasStatus, func(row store.RawRow) error {
			rec, decErr := codec.Decode(info.Kind, row)
			if decErr != nil {
				return fmt.Errorf("projection: read bundle: %w", decErr)
			}
			records = append(records, rec)
			return nil
		})
		if err != nil {
			return domain.Bundle{}, err
		}
		if records == nil {
			records = []domain.Record{}
		}
		bundle.Data[info.Kind.Table()] = records
	}

	return bundle, nil
}
