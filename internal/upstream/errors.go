package upstream

import (
	"errors"
	"fmt"

	"github.com/wsuscatalog/wsuscatalog/internal/catalogerr"
)

// soapFaultError wraps catalogerr.ErrSoapFault with the upstream's fault
// string; the expired-update probe tests for this kind
// specifically to short-circuit a revision walk instead of retrying it.
type soapFaultError struct {
	detail string
}

func (e *soapFaultError) Error() string { return fmt.Sprintf("upstream: soap fault: %s", e.detail) }
func (e *soapFaultError) Unwrap() error { return catalogerr.ErrSoapFault }

func newSoapFault(detail string) error { return &soapFaultError{detail: detail} }

// IsSoapFault reports whether err is (or wraps) a SOAP fault response, as
// opposed to a transport-level failure.
func IsSoapFault(err error) bool {
	return errors.Is(err, catalogerr.ErrSoapFault)
}
