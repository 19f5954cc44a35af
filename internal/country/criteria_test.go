package country

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func TestSelectSingleCriterion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query Query
		want  Criterion
	}{
		{name: "name", query: Query{Name: strPtr("Poland")}, want: Criterion{Field: FieldName, Value: "Poland"}},
		{name: "capital", query: Query{Capital: strPtr("Tokyo")}, want: Criterion{Field: FieldCapital, Value: "Tokyo"}},
		{name: "region", query: Query{Region: strPtr("Europe")}, want: Criterion{Field: FieldRegion, Value: "Europe"}},
		{
			name:  "subregion trimmed",
			query: Query{Subregion: strPtr("  Northern Europe ")},
			want:  Criterion{Field: FieldSubregion, Value: "Northern Europe"},
		},
		{name: "language", query: Query{Language: strPtr("spanish")}, want: Criterion{Field: FieldLanguage, Value: "spanish"}},
		{
			name:  "currency with blank sibling",
			query: Query{Currency: strPtr("USD"), Name: strPtr("   ")},
			want:  Criterion{Field: FieldCurrency, Value: "USD"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Select(tt.query)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSelectRejectsZeroOrMany(t *testing.T) {
	t.Parallel()

	_, err := Select(Query{})
	var f *Failure
	require.True(t, errors.As(err, &f))
	require.Equal(t, http.StatusBadRequest, f.Status)
	require.Equal(t, KindInvalidRequest, f.Kind)
	require.Equal(t, MsgNoCriteria, f.Message)

	_, err = Select(Query{Name: strPtr(""), Region: strPtr(" ")})
	require.True(t, errors.As(err, &f))
	require.Equal(t, MsgNoCriteria, f.Message)

	_, err = Select(Query{Name: strPtr("Poland"), Capital: strPtr("Warsaw")})
	require.True(t, errors.As(err, &f))
	require.Equal(t, http.StatusBadRequest, f.Status)
	require.Equal(t, MsgMultipleCriteria, f.Message)
}

func TestCriterionKeyAndPath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "name:Poland", Criterion{Field: FieldName, Value: "Poland"}.Key())
	require.Equal(t, "lang", FieldLanguage.PathSegment())
	require.Equal(t, "currency", FieldCurrency.PathSegment())
}

func TestFailureJSONShapesNormalize(t *testing.T) {
	t.Parallel()

	inputs := map[string]string{
		"detail":  `{"status":404,"detail":"Country not found."}`,
		"error":   `{"error":"Country not found.","status":404}`,
		"message": `{"status":404,"message":"Country not found."}`,
	}
	for name, raw := range inputs {
		var f Failure
		require.NoError(t, json.Unmarshal([]byte(raw), &f), name)
		require.Equal(t, *NotFound(), f, name)
	}

	out, err := json.Marshal(InvalidRequest(MsgNoCriteria))
	require.NoError(t, err)
	require.JSONEq(t, `{"status":400,"detail":"No search criteria provided."}`, string(out))
}

func TestOutcomeStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusOK, Success([]Record{Record(`{}`)}).Status())
	require.True(t, Success(nil).OK())
	failed := Failed(Timeout())
	require.False(t, failed.OK())
	require.Equal(t, http.StatusGatewayTimeout, failed.Status())
}
