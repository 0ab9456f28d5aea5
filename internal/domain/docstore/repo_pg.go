package docstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openhie/shr/internal/platform/db"
)

type documentRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &documentRepoPG{pool: pool}
}

func (r *documentRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const documentCols = `id, encounter_id, unique_id, handler, blob_key, blob_hash,
	mime_type, encoding, representation, is_url,
	type_code, type_coding_scheme, type_display_name,
	format_code, format_coding_scheme, format_display_name,
	meta, created_at`

func (r *documentRepoPG) Create(ctx context.Context, d *Document) error {
	d.ID = uuid.New()
	meta := d.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO document (
			id, encounter_id, unique_id, handler, blob_key, blob_hash,
			mime_type, encoding, representation, is_url,
			type_code, type_coding_scheme, type_display_name,
			format_code, format_coding_scheme, format_display_name,
			meta
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16,
			$17
		)
		RETURNING created_at`,
		d.ID, d.EncounterID, d.UniqueID, d.Handler, d.BlobKey, d.BlobHash,
		d.MimeType, d.Encoding, d.Representation, d.IsURL,
		d.TypeCode, d.TypeCodingScheme, d.TypeDisplayName,
		d.FormatCode, d.FormatCodingScheme, d.FormatDisplayName,
		meta,
	).Scan(&d.CreatedAt)
}

func (r *documentRepoPG) GetByEncounter(ctx context.Context, encounterID uuid.UUID) (*Document, error) {
	d, err := scanDocument(r.conn(ctx).QueryRow(ctx, `SELECT `+documentCols+` FROM document WHERE encounter_id = $1`, encounterID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *documentRepoPG) ListByEncounters(ctx context.Context, handler string, encounterIDs []uuid.UUID) (map[uuid.UUID]*Document, error) {
	docs := make(map[uuid.UUID]*Document, len(encounterIDs))
	if len(encounterIDs) == 0 {
		return docs, nil
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+documentCols+` FROM document
		WHERE handler = $1 AND encounter_id = ANY($2)`, handler, encounterIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs[d.EncounterID] = d
	}
	return docs, rows.Err()
}

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(
		&d.ID, &d.EncounterID, &d.UniqueID, &d.Handler, &d.BlobKey, &d.BlobHash,
		&d.MimeType, &d.Encoding, &d.Representation, &d.IsURL,
		&d.TypeCode, &d.TypeCodingScheme, &d.TypeDisplayName,
		&d.FormatCode, &d.FormatCodingScheme, &d.FormatDisplayName,
		&d.Meta, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
