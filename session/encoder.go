package session

import (
	"fmt"
	"strconv"
	"time"
)

const (
	recordSchemaVersionCurrent = 2
	recordSchemaVersionV1      = 1
)

const (
	fieldVersion   = "v"
	fieldID        = "id"
	fieldAccountID = "account_id"
	fieldTokenHash = "token_hash"
	fieldType      = "type"
	fieldStatus    = "status"
	fieldExpiresAt = "expires_at"
	fieldCreatedAt = "created_at"
)

// Encode flattens rec into Redis hash fields. Timestamps are unix milliseconds.
func Encode(rec *Record) (map[string]interface{}, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrRecordCorrupt)
	}
	if rec.AccountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrRecordCorrupt)
	}
	if len(rec.TokenHash) != 64 {
		return nil, fmt.Errorf("%w: token hash must be 64 hex characters", ErrRecordCorrupt)
	}
	if !rec.Status.Valid() {
		return nil, fmt.Errorf("%w: invalid status %q", ErrRecordCorrupt, rec.Status)
	}

	typ := rec.Type
	if typ == "" {
		typ = TypeRefresh
	}

	return map[string]interface{}{
		fieldVersion:   recordSchemaVersionCurrent,
		fieldID:        rec.ID,
		fieldAccountID: rec.AccountID,
		fieldTokenHash: rec.TokenHash,
		fieldType:      typ,
		fieldStatus:    string(rec.Status),
		fieldExpiresAt: rec.ExpiresAt.UnixMilli(),
		fieldCreatedAt: rec.CreatedAt.UnixMilli(),
	}, nil
}

// Decode rebuilds a record from HGETALL output. Version 1 records predate the
// type field and are read as REFRESH.
func Decode(fields map[string]string) (*Record, error) {
	version, err := strconv.Atoi(fields[fieldVersion])
	if err != nil {
		return nil, fmt.Errorf("%w: missing schema version", ErrRecordCorrupt)
	}
	if version != recordSchemaVersionCurrent && version != recordSchemaVersionV1 {
		return nil, fmt.Errorf("%w: unsupported schema version %d", ErrRecordCorrupt, version)
	}

	rec := &Record{
		ID:        fields[fieldID],
		AccountID: fields[fieldAccountID],
		TokenHash: fields[fieldTokenHash],
		Type:      TypeRefresh,
		Status:    Status(fields[fieldStatus]),
	}
	if version >= recordSchemaVersionCurrent {
		rec.Type = fields[fieldType]
	}

	if rec.ID == "" || rec.AccountID == "" || rec.TokenHash == "" {
		return nil, fmt.Errorf("%w: missing identity fields", ErrRecordCorrupt)
	}
	if !rec.Status.Valid() {
		return nil, fmt.Errorf("%w: invalid status %q", ErrRecordCorrupt, rec.Status)
	}

	expires, err := strconv.ParseInt(fields[fieldExpiresAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid expires_at", ErrRecordCorrupt)
	}
	created, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid created_at", ErrRecordCorrupt)
	}
	rec.ExpiresAt = time.UnixMilli(expires).UTC()
	rec.CreatedAt = time.UnixMilli(created).UTC()

	return rec, nil
}
