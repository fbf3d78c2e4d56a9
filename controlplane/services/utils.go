package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"dbplane/controlplane/auth"
	"dbplane/controlplane/dbschema"
	"dbplane/controlplane/dynamicdata"
	"dbplane/controlplane/provision"
	"dbplane/controlplane/routing"
	"dbplane/controlplane/schema"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	return errorCode(err)
}

// errorCode maps core error kinds onto response codes: user correctable
// input problems, conflicts, not found, and everything else as internal.
func errorCode(err error) int {
	var validation *dbschema.ValidationError
	var badIdent *dynamicdata.InvalidIdentifierError
	var unsafeClause *dynamicdata.UnsafeClauseError
	var noTable *dynamicdata.TableNotFoundError
	var noCollection *dynamicdata.CollectionNotFoundError
	var noDocument *dynamicdata.DocumentNotFoundError

	switch {
	case errors.As(err, &validation),
		errors.Is(err, provision.ErrNameRequired),
		errors.Is(err, provision.ErrInvalidKind):
		return http.StatusUnprocessableEntity
	case errors.As(err, &badIdent), errors.As(err, &unsafeClause),
		errors.Is(err, dynamicdata.ErrEmptyRecord),
		errors.Is(err, routing.ErrNoRelationalStore),
		errors.Is(err, routing.ErrNoDocumentStore):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrTenantNameTaken):
		return http.StatusConflict
	case errors.As(err, &noTable), errors.As(err, &noCollection), errors.As(err, &noDocument),
		errors.Is(err, schema.ErrTenantNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError surfaces a failure to the caller. Internal failures carry only
// the correlation id, the detail stays in the server log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := GetResponseCode(err)
	if code == http.StatusInternalServerError {
		correlationId := auth.CorrelationIdFromContext(r.Context())
		slog.Error("internal error handling request", "path", r.URL.Path, "correlation_id", correlationId, "error", err)
		http.Error(w, fmt.Sprintf("internal error, correlation id %v", correlationId), code)
		return
	}
	http.Error(w, err.Error(), code)
}
