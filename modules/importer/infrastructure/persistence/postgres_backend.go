// Package persistence implements the import backend on PostgreSQL.
package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iota-uz/assetdesk/modules/importer/domain/backend"
	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/domain/reference"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
	"github.com/iota-uz/assetdesk/pkg/composables"
)

// PostgresBackend reads the pool and tenant from the context. Every BulkWrite runs in one tenant
// transaction, so a failed statement rolls back its whole batch.
type PostgresBackend struct {
	mapping Mapping
}

func NewPostgresBackend(mapping Mapping) (*PostgresBackend, error) {
	if err := mapping.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid import mapping")
	}
	return &PostgresBackend{mapping: mapping}, nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

func asUUID(v pgtype.UUID) uuid.UUID {
	if !v.Valid {
		return uuid.Nil
	}
	return uuid.UUID(v.Bytes)
}

func (b *PostgresBackend) LookupReference(ctx context.Context, kind schema.Kind) ([]reference.Entry, error) {
	k, ok := b.mapping.kind(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrUnsupportedKind, kind)
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, selectReferencesSQL(k), pgUUID(tenantID))
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", kind)
	}
	defer rows.Close()

	out := make([]reference.Entry, 0, 64)
	for rows.Next() {
		var id, parent pgtype.UUID
		var name pgtype.Text
		if err := rows.Scan(&id, &name, &parent); err != nil {
			return nil, errors.Wrapf(err, "scan %s", kind)
		}
		if !name.Valid {
			continue
		}
		out = append(out, reference.Entry{ID: asUUID(id), Name: name.String, ParentID: asUUID(parent)})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %s", kind)
	}
	return out, nil
}

func (b *PostgresBackend) CreateReference(ctx context.Context, kind schema.Kind, name string, parentID uuid.UUID) (uuid.UUID, error) {
	k, ok := b.mapping.kind(kind)
	if !ok || kind == schema.Employees {
		return uuid.Nil, fmt.Errorf("%w: %s", backend.ErrUnsupportedKind, kind)
	}
	if k.Parent != "" && parentID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%s %q needs a parent", kind, name)
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	args := []any{pgUUID(uuid.New()), pgUUID(tenantID), name}
	if k.Parent != "" {
		args = append(args, pgUUID(parentID))
	}
	var created pgtype.UUID
	err = composables.InTenantTx(ctx, func(txCtx context.Context) error {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}
		return tx.QueryRow(txCtx, insertReferenceSQL(k), args...).Scan(&created)
	})
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "create %s %q", kind, name)
	}
	return asUUID(created), nil
}

func (b *PostgresBackend) LookupExisting(ctx context.Context, entity string, keys [][]string) ([]backend.Existing, error) {
	e, ok := b.mapping.entity(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrUnsupportedEntity, entity)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	width := len(e.Key)
	args := make([]any, 0, width+1)
	args = append(args, pgUUID(tenantID))
	for i := 0; i < width; i++ {
		col := make([]string, len(keys))
		for j, k := range keys {
			if i < len(k) {
				col[j] = k[i]
			}
		}
		args = append(args, col)
	}

	rows, err := tx.Query(ctx, selectExistingSQL(e), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query existing %s", entity)
	}
	defer rows.Close()

	var out []backend.Existing
	for rows.Next() {
		var id pgtype.UUID
		key := make([]pgtype.Text, width)
		dest := make([]any, 0, width+1)
		dest = append(dest, &id)
		for i := range key {
			dest = append(dest, &key[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrapf(err, "scan existing %s", entity)
		}
		existing := backend.Existing{ID: asUUID(id), Key: make([]string, width)}
		for i, k := range key {
			existing.Key[i] = k.String
		}
		out = append(out, existing)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "read existing %s", entity)
	}
	return out, nil
}

func (b *PostgresBackend) BulkWrite(ctx context.Context, entity string, op record.Operation, rows []backend.WriteRow) (backend.WriteResult, error) {
	e, ok := b.mapping.entity(entity)
	if !ok {
		return backend.WriteResult{}, fmt.Errorf("%w: %s", backend.ErrUnsupportedEntity, entity)
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return backend.WriteResult{}, err
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		fields := writeColumns(e, row.Values)
		args := make([]any, 0, len(fields)+2)
		args = append(args, pgUUID(row.ID), pgUUID(tenantID))
		for _, f := range fields {
			args = append(args, encodeValue(row.Values[f]))
		}
		if op == record.Insert {
			batch.Queue(insertRowSQL(e, fields), args...)
		} else {
			batch.Queue(updateRowSQL(e, fields), args...)
		}
	}

	var res backend.WriteResult
	err = composables.InTenantTx(ctx, func(txCtx context.Context) error {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}
		br := tx.SendBatch(txCtx, batch)
		for _, row := range rows {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return errors.Wrapf(err, "row %d", row.Line)
			}
			if op == record.Update && tag.RowsAffected() == 0 {
				res.Failed = append(res.Failed, backend.RowFailure{ID: row.ID, Err: backend.ErrRowNotFound})
				continue
			}
			res.Succeeded = append(res.Succeeded, row.ID)
		}
		return br.Close()
	})
	if err != nil {
		return backend.WriteResult{}, errors.Wrapf(err, "%s %s batch", op, entity)
	}
	return res, nil
}

func encodeValue(v any) any {
	switch x := v.(type) {
	case uuid.UUID:
		return pgUUID(x)
	case decimal.Decimal:
		return x.String()
	default:
		return v
	}
}
