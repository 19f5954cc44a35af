package country

import (
	"strings"
)

// Field names one of the supported lookup dimensions.
type Field string

// Supported lookup fields.
const (
	FieldName      Field = "name"
	FieldCapital   Field = "capital"
	FieldRegion    Field = "region"
	FieldSubregion Field = "subregion"
	FieldLanguage  Field = "language"
	FieldCurrency  Field = "currency"
)

// Fields lists every supported field in precedence order.
var Fields = []Field{
	FieldName,
	FieldCapital,
	FieldRegion,
	FieldSubregion,
	FieldLanguage,
	FieldCurrency,
}

// PathSegment returns the directory service path segment for the field.
func (f Field) PathSegment() string {
	if f == FieldLanguage {
		return "lang"
	}
	return string(f)
}

// Query carries the optional filters accepted by a lookup. Nil means not provided.
type Query struct {
	Name      *string
	Capital   *string
	Region    *string
	Subregion *string
	Language  *string
	Currency  *string
}

func (q Query) values() map[Field]*string {
	return map[Field]*string{
		FieldName:      q.Name,
		FieldCapital:   q.Capital,
		FieldRegion:    q.Region,
		FieldSubregion: q.Subregion,
		FieldLanguage:  q.Language,
		FieldCurrency:  q.Currency,
	}
}

// Criterion is the single active filter of a validated query.
type Criterion struct {
	Field Field
	Value string
}

// Key derives the deduplication key "field:value".
func (c Criterion) Key() string {
	return string(c.Field) + ":" + c.Value
}

// Select validates that exactly one filter is set and returns it.
// Blank values count as not provided.
func Select(q Query) (Criterion, error) {
	values := q.values()
	var found []Criterion
	for _, field := range Fields {
		ptr := values[field]
		if ptr == nil {
			continue
		}
		value := strings.TrimSpace(*ptr)
		if value == "" {
			continue
		}
		found = append(found, Criterion{Field: field, Value: value})
	}
	switch len(found) {
	case 0:
		return Criterion{}, InvalidRequest(MsgNoCriteria)
	case 1:
		return found[0], nil
	default:
		return Criterion{}, InvalidRequest(MsgMultipleCriteria)
	}
}
