package assets

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Expr is a completeness condition over a single asset. Every expression
// has a row-level form (Eval) and an equivalent SQL boolean expression over
// the assets table. SQL never yields NULL, so expressions compose with NOT.
type Expr interface {
	Eval(a *Asset) bool
	SQL() string
}

// Rule is one named clause of the completeness rule set
type Rule struct {
	Name string
	Expr Expr
}

// CompletenessRules is the single definition of a complete asset record.
// IsComplete and CompletenessSQL are both derived from it.
var CompletenessRules = []Rule{
	{"name", Present("name")},
	{"department", Present("department")},
	{"purpose", Present("purpose")},
	{"research_owner", Implies(Equals("purpose", PurposeResearch), Present("owner"))},
	{"purpose_other", Implies(Equals("purpose", PurposeOther), Present("purpose_other"))},
	{"personal_data", Any(
		IsFalse("personal_data"),
		All(
			IsTrue("personal_data"),
			NonEmpty("data_subject"),
			NonEmpty("data_category"),
			Present("recipients_outside_uni"),
			Present("recipients_outside_eea"),
			Present("retention"),
		),
	)},
	{"recipients_outside_uni_description", Implies(
		Equals("recipients_outside_uni", RecipientsYes), Present("recipients_outside_uni_description"))},
	{"recipients_outside_eea_description", Implies(
		Equals("recipients_outside_eea", RecipientsYes), Present("recipients_outside_eea_description"))},
	{"risk_type", NonEmpty("risk_type")},
	{"storage_location", Present("storage_location")},
	{"storage_format", NonEmpty("storage_format")},
	{"paper_storage_security", Implies(Contains("storage_format", StoragePaper), NonEmpty("paper_storage_security"))},
	{"digital_storage_security", Implies(Contains("storage_format", StorageDigital), NonEmpty("digital_storage_security"))},
}

// IsComplete evaluates the rule set against a single asset
func IsComplete(a *Asset) bool {
	for _, r := range CompletenessRules {
		if !r.Expr.Eval(a) {
			return false
		}
	}
	return true
}

// FailedRules returns the names of the rules an asset violates
func FailedRules(a *Asset) []string {
	var failed []string
	for _, r := range CompletenessRules {
		if !r.Expr.Eval(a) {
			failed = append(failed, r.Name)
		}
	}
	return failed
}

// CompletenessSQL returns the rule set as one SQL boolean expression
func CompletenessSQL() string {
	return completenessSQL
}

var completenessSQL = func() string {
	exprs := make([]Expr, len(CompletenessRules))
	for i, r := range CompletenessRules {
		exprs[i] = r.Expr
	}
	return All(exprs...).SQL()
}()

func mustField(name string, kinds ...fieldKind) *field {
	f := lookupField(name)
	if f == nil {
		panic(fmt.Sprintf("assets: unknown field %q", name))
	}
	for _, k := range kinds {
		if f.kind == k {
			return f
		}
	}
	panic(fmt.Sprintf("assets: field %q has the wrong kind for this expression", name))
}

type present struct{ f *field }

// Present requires a text field to be non-null and not the empty string
func Present(name string) Expr { return present{mustField(name, kindText)} }

func (e present) Eval(a *Asset) bool {
	v := *e.f.text(a)
	return v != nil && *v != ""
}

func (e present) SQL() string {
	return fmt.Sprintf("(%s IS NOT NULL AND %s <> '')", e.f.name, e.f.name)
}

type nonEmpty struct{ f *field }

// NonEmpty requires a set field to hold at least one value
func NonEmpty(name string) Expr { return nonEmpty{mustField(name, kindSet)} }

func (e nonEmpty) Eval(a *Asset) bool {
	return len(*e.f.set(a)) > 0
}

func (e nonEmpty) SQL() string {
	return fmt.Sprintf("(COALESCE(cardinality(%s), 0) > 0)", e.f.name)
}

type equals struct {
	f     *field
	value string
}

// Equals requires a text field to hold exactly value
func Equals(name, value string) Expr { return equals{mustField(name, kindText), value} }

func (e equals) Eval(a *Asset) bool {
	v := *e.f.text(a)
	return v != nil && *v == e.value
}

func (e equals) SQL() string {
	return fmt.Sprintf("COALESCE(%s = %s, FALSE)", e.f.name, pq.QuoteLiteral(e.value))
}

type isTrue struct{ f *field }

// IsTrue requires a nullable boolean field to be true
func IsTrue(name string) Expr { return isTrue{mustField(name, kindNullBool)} }

func (e isTrue) Eval(a *Asset) bool {
	v := *e.f.nullFlag(a)
	return v != nil && *v
}

func (e isTrue) SQL() string {
	return fmt.Sprintf("COALESCE(%s, FALSE)", e.f.name)
}

type isFalse struct{ f *field }

// IsFalse requires a nullable boolean field to be false. Null is neither
// true nor false.
func IsFalse(name string) Expr { return isFalse{mustField(name, kindNullBool)} }

func (e isFalse) Eval(a *Asset) bool {
	v := *e.f.nullFlag(a)
	return v != nil && !*v
}

func (e isFalse) SQL() string {
	return fmt.Sprintf("COALESCE(NOT %s, FALSE)", e.f.name)
}

type contains struct {
	f     *field
	value string
}

// Contains requires a set field to include value
func Contains(name, value string) Expr { return contains{mustField(name, kindSet), value} }

func (e contains) Eval(a *Asset) bool {
	for _, v := range *e.f.set(a) {
		if v == e.value {
			return true
		}
	}
	return false
}

func (e contains) SQL() string {
	return fmt.Sprintf("COALESCE(%s @> ARRAY[%s]::text[], FALSE)", e.f.name, pq.QuoteLiteral(e.value))
}

type all []Expr

// All is true when every expression is true. All() is true.
func All(exprs ...Expr) Expr { return all(exprs) }

func (e all) Eval(a *Asset) bool {
	for _, x := range e {
		if !x.Eval(a) {
			return false
		}
	}
	return true
}

func (e all) SQL() string { return joinSQL(e, " AND ", "TRUE") }

type anyOf []Expr

// Any is true when at least one expression is true. Any() is false.
func Any(exprs ...Expr) Expr { return anyOf(exprs) }

func (e anyOf) Eval(a *Asset) bool {
	for _, x := range e {
		if x.Eval(a) {
			return true
		}
	}
	return false
}

func (e anyOf) SQL() string { return joinSQL(e, " OR ", "FALSE") }

type implies struct{ cond, then Expr }

// Implies requires then to hold whenever cond holds
func Implies(cond, then Expr) Expr { return implies{cond, then} }

func (e implies) Eval(a *Asset) bool {
	return !e.cond.Eval(a) || e.then.Eval(a)
}

func (e implies) SQL() string {
	return fmt.Sprintf("(NOT %s OR %s)", e.cond.SQL(), e.then.SQL())
}

func joinSQL(exprs []Expr, sep, empty string) string {
	if len(exprs) == 0 {
		return empty
	}
	parts := make([]string, len(exprs))
	for i, x := range exprs {
		parts[i] = x.SQL()
	}
	return "(" + strings.Join(parts, sep) + ")"
}
