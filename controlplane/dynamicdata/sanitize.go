package dynamicdata

import (
	"fmt"
	"regexp"
	"strings"
)

// Identifiers cannot be bound as statement parameters, so a conservative
// grammar is the injection defense for anything interpolated into generated
// SQL: table names, column names, and sort fields.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid identifier '%v': identifiers must contain only letters, digits, and underscores, and must not start with a digit", e.Name)
}

func checkIdentifier(name string) error {
	if !identPattern.MatchString(name) {
		return &InvalidIdentifierError{Name: name}
	}
	return nil
}

// Free text where/orderBy fragments pass an allow-list character grammar and
// a deny-list of statement constructs before any SQL is built around them.
var (
	clausePattern = regexp.MustCompile(`^[A-Za-z0-9_\s,.'"=<>!()%+*/-]*$`)

	deniedKeywords = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|grant|revoke|exec|execute|union|declare|cursor|merge)\b`)

	deniedSequences = []string{";", "--", "/*", "*/", "xp_"}
)

type UnsafeClauseError struct {
	Clause string
	Reason string
}

func (e *UnsafeClauseError) Error() string {
	return fmt.Sprintf("clause rejected (%v): %v", e.Reason, e.Clause)
}

func checkClause(clause string) error {
	if clause == "" {
		return nil
	}

	for _, seq := range deniedSequences {
		if strings.Contains(clause, seq) {
			return &UnsafeClauseError{Clause: clause, Reason: fmt.Sprintf("contains '%v'", seq)}
		}
	}

	if match := deniedKeywords.FindString(clause); match != "" {
		return &UnsafeClauseError{Clause: clause, Reason: fmt.Sprintf("contains keyword '%v'", match)}
	}

	if !clausePattern.MatchString(clause) {
		return &UnsafeClauseError{Clause: clause, Reason: "contains characters outside the allowed grammar"}
	}

	return nil
}
