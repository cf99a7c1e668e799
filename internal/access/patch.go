package access

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"
)

// IDsPatch is a tri-state JSON field for project restrictions. A field left out
// of the body keeps Set false; an explicit null sets it with nil IDs (clear the
// restriction); an array sets it with non-nil IDs.
type IDsPatch struct {
	Set bool
	IDs []uuid.UUID
}

func (p *IDsPatch) UnmarshalJSON(data []byte) error {
	p.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		p.IDs = nil
		return nil
	}
	ids := []uuid.UUID{}
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	p.IDs = ids
	return nil
}

// NullableIDs rebuilds a uuid[] column read as (col IS NULL, COALESCE(col, '{}')).
// NULL becomes nil; anything else becomes a non-nil slice.
func NullableIDs(isNull bool, ids []uuid.UUID) []uuid.UUID {
	if isNull {
		return nil
	}
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
