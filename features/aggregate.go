package features

import (
	"fmt"
)

const (
	GroupLexical = "lexical"
	GroupDomain  = "domain"
	GroupContent = "content"
	GroupTLS     = "tls"
)

// Field is a single flattened feature, named <group>_<field>. Value is one of
// int, bool, string or nil.
type Field struct {
	Name  string
	Value interface{}
}

// Row is the numeric projection of a record, in column order
type Row struct {
	Names  []string
	Values []float64
}

type Matrix struct {
	Names []string
	X     [][]float64
}

func (m Matrix) Len() int {
	return len(m.X)
}

type SchemaMismatchErr struct {
	Index int
}

func (err SchemaMismatchErr) Error() string {
	return fmt.Sprintf("record %d flattened into a different column layout", err.Index)
}

func name(group, field string) string {
	return group + "_" + field
}

func optional(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// Flatten emits every field of the record in a fixed order
func Flatten(rec Record) []Field {
	l, d, c, t := rec.Lexical, rec.Domain, rec.Content, rec.TLS
	return []Field{
		{name(GroupLexical, "url_length"), l.URLLength},
		{name(GroupLexical, "num_dots"), l.NumDots},
		{name(GroupLexical, "num_digits"), l.NumDigits},
		{name(GroupLexical, "num_special_chars"), l.NumSpecialChars},
		{name(GroupLexical, "has_ip_address"), l.HasIPAddress},
		{name(GroupLexical, "has_at_symbol"), l.HasAtSymbol},
		{name(GroupLexical, "has_double_slash"), l.HasDoubleSlash},
		{name(GroupLexical, "has_hex_chars"), l.HasHexChars},

		{name(GroupDomain, "domain_age"), d.Age},
		{name(GroupDomain, "domain_expiry"), d.Expiry},
		{name(GroupDomain, "has_whois"), d.HasWhois},

		{name(GroupContent, "num_external_links"), c.NumExternalLinks},
		{name(GroupContent, "has_form"), c.HasForm},
		{name(GroupContent, "has_password_field"), c.HasPasswordField},
		{name(GroupContent, "num_iframes"), c.NumIframes},
		{name(GroupContent, "has_hidden_element"), c.HasHiddenElement},

		{name(GroupTLS, "has_ssl"), t.HasSSL},
		{name(GroupTLS, "ssl_issuer"), optional(t.Issuer)},
		{name(GroupTLS, "ssl_days_valid"), t.DaysValid},
		{name(GroupTLS, "ssl_validation_level"), t.ValidationLevel},
	}
}

// Numeric narrows flattened fields to numeric columns. Booleans become 0/1,
// strings and nulls are dropped.
func Numeric(fields []Field) Row {
	var row Row
	for _, f := range fields {
		var v float64
		switch val := f.Value.(type) {
		case int:
			v = float64(val)
		case int64:
			v = float64(val)
		case float64:
			v = val
		case bool:
			if val {
				v = 1
			}
		default:
			continue
		}
		row.Names = append(row.Names, f.Name)
		row.Values = append(row.Values, v)
	}
	return row
}

// Aggregate converts a record into the numeric row consumed by the classifier.
// Training and inference both go through this function.
func Aggregate(rec Record) Row {
	return Numeric(Flatten(rec))
}

func AggregateAll(recs []Record) (Matrix, error) {
	var m Matrix
	for i, rec := range recs {
		row := Aggregate(rec)
		if i == 0 {
			m.Names = row.Names
		} else if !sameNames(m.Names, row.Names) {
			return Matrix{}, SchemaMismatchErr{Index: i}
		}
		m.X = append(m.X, row.Values)
	}
	return m, nil
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
