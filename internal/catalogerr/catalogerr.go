// Package catalogerr defines the sentinel error kinds shared across the
// catalog's layers. Each kind is a plain sentinel;
// call sites wrap it with fmt.Errorf("...: %w", err) to attach context,
// and callers test for a kind with errors.Is.
package catalogerr

import "errors"

var (
	ErrTransportTimeout     = errors.New("transport timeout")
	ErrSoapFault            = errors.New("soap fault")
	ErrMissingMetadata      = errors.New("missing metadata")
	ErrMissingConfiguration = errors.New("missing configuration")
	ErrUnknownPartition     = errors.New("unknown partition")
	ErrKeyNotFound          = errors.New("key not found")
	ErrIndexOutOfRange      = errors.New("index out of range")
	ErrCorruptStore         = errors.New("corrupt store")
	ErrRequestTooLarge      = errors.New("request too large")
	ErrCancelled            = errors.New("cancelled")
)
