package store

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// NotFound is returned when a patched document does not exist.
func NotFound(id string) error {
	return httperror.NewHTTPErrorf(http.StatusNotFound, "document %s does not exist", id)
}

// AlreadyExists is returned when creating a document whose id is taken.
func AlreadyExists(id string) error {
	return httperror.NewHTTPErrorf(http.StatusConflict, "document %s already exists", id)
}

// RevisionMismatch is returned when a conditional patch lost a race.
func RevisionMismatch(id string) error {
	return httperror.NewHTTPErrorf(http.StatusConflict, "document %s revision changed", id)
}

// InvalidDocument is returned when a document lacks an id or type.
func InvalidDocument(reason string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, reason)
}

// IsNotFound reports whether err is a not-found store error.
func IsNotFound(err error) bool {
	return err != nil && httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound
}

// IsConflict reports whether err is a conflict store error.
func IsConflict(err error) bool {
	return err != nil && httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusConflict
}
