package service

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"syscall"

	"google.golang.org/api/googleapi"
)

// ErrFileNotFound is an error returned by the storages when a layer or a key does not exist
type ErrFileNotFound struct {
	File string
}

func (e ErrFileNotFound) Error() string {
	return fmt.Sprintf("File not found: %s", e.File)
}

// IsNotFound returns true if the error trace contains an ErrFileNotFound
func IsNotFound(err error) bool {
	return errors.As(err, &ErrFileNotFound{})
}

type temporaryError struct{ error }

func (e *temporaryError) Temporary() bool { return true }
func (e *temporaryError) Unwrap() error   { return e.error }

type fatalError struct{ error }

func (e *fatalError) Fatal() bool   { return true }
func (e *fatalError) Unwrap() error { return e.error }

// MakeTemporary marks the error as transient: the unit can be retried
func MakeTemporary(err error) error {
	if err == nil {
		return nil
	}
	return &temporaryError{err}
}

// MakeFatal marks the error as fatal: the unit cannot be processed as is
func MakeFatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err}
}

// syscall errors that are worth a retry
var temporaryErrnos = []syscall.Errno{
	syscall.EIO, syscall.EBUSY, syscall.ECANCELED, syscall.ECONNABORTED, syscall.ECONNRESET, syscall.ENOMEM, syscall.EPIPE,
}

// http codes of the cloud apis that are worth a retry
var temporaryHTTPCodes = map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}

// Temporary inspects the error trace and returns whether the error is transient
func Temporary(err error) bool {
	if err == nil || IsNotFound(err) {
		return false
	}
	var uerr *neturl.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}
	for _, errno := range temporaryErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	var tmp interface{ Temporary() bool }
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return temporaryHTTPCodes[gerr.Code]
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Fatal inspects the error trace and returns whether the error is fatal
func Fatal(err error) bool {
	var fatal interface{ Fatal() bool }
	return errors.As(err, &fatal) && fatal.Fatal()
}

// MergeErrors merges the errors, appending their texts.
// If priorityToError, the fatal errors come first, then the temporary ones.
// Otherwise, no error wins, then the temporary errors, then the fatal ones.
func MergeErrors(priorityToError bool, err error, newErrs ...error) error {
	for _, newErr := range newErrs {
		switch {
		case newErr == nil:
			if !priorityToError {
				return nil
			}
		case err == nil:
			err = newErr
		case priorityToError != Temporary(err):
			err = fmt.Errorf("%w\n %v", err, newErr)
		default:
			err = fmt.Errorf("%w\n %v", newErr, err)
		}
	}
	return err
}
