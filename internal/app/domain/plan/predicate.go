package plan

// Predicate is a unary or binary assertion operator evaluated against a
// value extracted at an Assertion's Path.
type Predicate string

const (
	PredicateIsNull    Predicate = "IS_NULL"
	PredicateIsNotNull Predicate = "IS_NOT_NULL"
	PredicateIsTrue    Predicate = "IS_TRUE"
	PredicateIsFalse   Predicate = "IS_FALSE"

	PredicateEQ           Predicate = "EQ"
	PredicateNE           Predicate = "NE"
	PredicateGT           Predicate = "GT"
	PredicateLT           Predicate = "LT"
	PredicateGE           Predicate = "GE"
	PredicateLE           Predicate = "LE"
	PredicateContains     Predicate = "CONTAINS"
	PredicateNotContains  Predicate = "NOT_CONTAINS"
	PredicateStartsWith   Predicate = "STARTS_WITH"
	PredicateEndsWith     Predicate = "ENDS_WITH"
	PredicateIsEmpty      Predicate = "IS_EMPTY"
	PredicateIsNotEmpty   Predicate = "IS_NOT_EMPTY"
)

var unaryPredicates = map[Predicate]bool{
	PredicateIsNull:    true,
	PredicateIsNotNull: true,
	PredicateIsTrue:    true,
	PredicateIsFalse:   true,
	PredicateIsEmpty:   true,
	PredicateIsNotEmpty: true,
}

// IsUnary reports whether p takes no Expected operand.
func (p Predicate) IsUnary() bool {
	return unaryPredicates[p]
}

// Valid reports whether p is one of the known predicate symbols.
func (p Predicate) Valid() bool {
	switch p {
	case PredicateIsNull, PredicateIsNotNull, PredicateIsTrue, PredicateIsFalse,
		PredicateEQ, PredicateNE, PredicateGT, PredicateLT, PredicateGE, PredicateLE,
		PredicateContains, PredicateNotContains, PredicateStartsWith, PredicateEndsWith,
		PredicateIsEmpty, PredicateIsNotEmpty:
		return true
	default:
		return false
	}
}
