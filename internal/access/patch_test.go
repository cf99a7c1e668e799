package access

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestIDsPatch_TriState(t *testing.T) {
	type body struct {
		AllowedProjectIDs IDsPatch `json:"allowed_project_ids"`
	}
	p1 := uuid.New()

	var absent body
	require.NoError(t, json.Unmarshal([]byte(`{}`), &absent))
	require.False(t, absent.AllowedProjectIDs.Set)

	var cleared body
	require.NoError(t, json.Unmarshal([]byte(`{"allowed_project_ids": null}`), &cleared))
	require.True(t, cleared.AllowedProjectIDs.Set)
	require.Nil(t, cleared.AllowedProjectIDs.IDs)

	var empty body
	require.NoError(t, json.Unmarshal([]byte(`{"allowed_project_ids": []}`), &empty))
	require.True(t, empty.AllowedProjectIDs.Set)
	require.NotNil(t, empty.AllowedProjectIDs.IDs)
	require.Empty(t, empty.AllowedProjectIDs.IDs)

	var set body
	require.NoError(t, json.Unmarshal([]byte(`{"allowed_project_ids": ["`+p1.String()+`"]}`), &set))
	require.Equal(t, []uuid.UUID{p1}, set.AllowedProjectIDs.IDs)

	var bad body
	require.Error(t, json.Unmarshal([]byte(`{"allowed_project_ids": ["nope"]}`), &bad))
}

func TestNullableIDs(t *testing.T) {
	require.Nil(t, NullableIDs(true, []uuid.UUID{}))
	require.NotNil(t, NullableIDs(false, nil))
	require.Empty(t, NullableIDs(false, nil))
}
