package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Signature fields and extra
// metadata live in jsonb columns; everything queryable has its own column.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Documents(ctx context.Context) DocumentStore  { return &docStore{db: s.db} }
func (s *PGStore) Signatures(ctx context.Context) SignatureStore { return &sigStore{db: s.db} }

type docStore struct{ db *sql.DB }

const docColumns = `id, title, original_file_name, content_url, content_id, uploader_id,
	signer_id, signer_email, signature_fields, status, signed_at, verified_at,
	rejection_reason, extra, created_at, updated_at`

func (s *docStore) Create(ctx context.Context, d *Document) error {
	fields, extra, err := marshalDocJSON(d)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into documents(id, title, original_file_name, content_url, content_id,
			uploader_id, signer_id, signer_email, signature_fields, status, extra,
			created_at, updated_at)
		values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		d.ID, d.Title, d.OriginalFileName, d.ContentURL, d.ContentID,
		d.UploaderID, d.SignerID, d.SignerEmail, fields, d.Status, extra,
		d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var (
		d          Document
		fields     []byte
		extra      []byte
		signedAt   sql.NullTime
		verifiedAt sql.NullTime
		rejection  sql.NullString
	)
	err := row.Scan(&d.ID, &d.Title, &d.OriginalFileName, &d.ContentURL, &d.ContentID,
		&d.UploaderID, &d.SignerID, &d.SignerEmail, &fields, &d.Status,
		&signedAt, &verifiedAt, &rejection, &extra, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if signedAt.Valid {
		t := signedAt.Time
		d.SignedAt = &t
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		d.VerifiedAt = &t
	}
	d.RejectionReason = rejection.String
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &d.SignatureFields); err != nil {
			return nil, fmt.Errorf("decode signature fields: %w", err)
		}
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &d.Extra); err != nil {
			return nil, fmt.Errorf("decode extra metadata: %w", err)
		}
	}
	return &d, nil
}

func marshalDocJSON(d *Document) (fields, extra []byte, err error) {
	if d.SignatureFields != nil {
		fields, err = json.Marshal(d.SignatureFields)
		if err != nil {
			return nil, nil, err
		}
	}
	if d.Extra != nil {
		extra, err = json.Marshal(d.Extra)
		if err != nil {
			return nil, nil, err
		}
	}
	return fields, extra, nil
}

func (s *docStore) Find(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+docColumns+` from documents where id=$1`, id)
	return scanDocument(row)
}

func (s *docStore) List(ctx context.Context, f Filter, p Page) ([]*Document, int, error) {
	where := ` where ($1='' or uploader_id=$1) and ($2='' or signer_id=$2) and ($3='' or status=$3)`
	args := []any{f.UploaderID, f.SignerID, string(f.Status)}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from documents`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`select `+docColumns+` from documents`+where+` order by created_at desc, id desc offset $4 limit $5`,
		append(args, p.Offset, p.Limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, d)
	}
	return docs, total, rows.Err()
}

func (s *docStore) Update(ctx context.Context, d *Document) error {
	fields, extra, err := marshalDocJSON(d)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`update documents set title=$2, signer_id=$3, signer_email=$4,
			signature_fields=$5, extra=$6, updated_at=$7
		where id=$1`,
		d.ID, d.Title, d.SignerID, d.SignerEmail, fields, extra, d.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *docStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from documents where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CommitSignature flips the document to signed and inserts the signature
// record in one transaction. The update is guarded by status='pending', so
// a concurrent signer loses the swap and the transaction rolls back.
func (s *docStore) CommitSignature(ctx context.Context, d *Document, sig *Signature) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`update documents set status=$2, signed_at=$3, content_url=$4, content_id=$5, updated_at=$6
		where id=$1 and status='pending'`,
		d.ID, d.Status, d.SignedAt, d.ContentURL, d.ContentID, d.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`select exists(select 1 from documents where id=$1)`, d.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrAlreadySigned
	}

	_, err = tx.ExecContext(ctx,
		`insert into signatures(id, document_id, signer_id, signature_data, signer_name,
			signer_email, signed_at, ip_address, user_agent, signed_content_url,
			signed_content_id, created_at)
		values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		sig.ID, sig.DocumentID, sig.SignerID, sig.SignatureData, sig.SignerName,
		sig.SignerEmail, sig.SignedAt, sig.IPAddress, sig.UserAgent,
		sig.SignedContentURL, sig.SignedContentID, sig.CreatedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

type sigStore struct{ db *sql.DB }

func (s *sigStore) ListByDocument(ctx context.Context, documentID string) ([]*Signature, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, document_id, signer_id, signature_data, signer_name, signer_email,
			signed_at, ip_address, user_agent, signed_content_url, signed_content_id, created_at
		from signatures where document_id=$1 order by created_at`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sigs []*Signature
	for rows.Next() {
		var sig Signature
		if err := rows.Scan(&sig.ID, &sig.DocumentID, &sig.SignerID, &sig.SignatureData,
			&sig.SignerName, &sig.SignerEmail, &sig.SignedAt, &sig.IPAddress,
			&sig.UserAgent, &sig.SignedContentURL, &sig.SignedContentID, &sig.CreatedAt); err != nil {
			return nil, err
		}
		sigs = append(sigs, &sig)
	}
	return sigs, rows.Err()
}
