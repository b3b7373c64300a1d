package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps err as an EngineError of the given type, preserving an
// existing EngineError's context as the new error's cause chain.
func Wrap(err error, errType ErrorType, code, message string) *EngineError {
	if err == nil {
		return nil
	}

	var ee *EngineError
	if errors.As(err, &ee) {
		return &EngineError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       ee,
			Context:     ee.Context,
			Component:   ee.Component,
			FilePath:    ee.FilePath,
			Recoverable: ee.Recoverable,
		}
	}

	return &EngineError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeExtraction || errType == ErrorTypeCache || errType == ErrorTypeCompanion || errType == ErrorTypeStore,
	}
}

func WrapExtraction(err error, code, message string) *EngineError {
	return Wrap(err, ErrorTypeExtraction, code, message)
}

func WrapCache(err error, code, message string) *EngineError {
	return Wrap(err, ErrorTypeCache, code, message)
}

func WrapCompanion(err error, code, message string) *EngineError {
	return Wrap(err, ErrorTypeCompanion, code, message)
}

func WrapStore(err error, code, message string) *EngineError {
	return Wrap(err, ErrorTypeStore, code, message)
}

func WrapRegistry(err error, code, message string) *EngineError {
	return Wrap(err, ErrorTypeRegistry, code, message)
}

func WrapConfig(err error, code, message string) *EngineError {
	ee := Wrap(err, ErrorTypeConfig, code, message)
	if ee != nil {
		ee.Recoverable = false
	}
	return ee
}

func WrapInternal(err error, code, message string) *EngineError {
	ee := Wrap(err, ErrorTypeInternal, code, message)
	if ee != nil {
		ee.Recoverable = false
	}
	return ee
}

// FormatError renders err for user-facing display.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Error()
	}
	return err.Error()
}

// ExtractCause walks the Cause chain and returns the innermost error.
func ExtractCause(err error) error {
	for err != nil {
		var ee *EngineError
		if errors.As(err, &ee) {
			if ee.Cause == nil {
				return ee
			}
			err = ee.Cause
		} else {
			return err
		}
	}
	return nil
}

// CollectErrors filters out nil errors.
func CollectErrors(errs ...error) []error {
	var collected []error
	for _, err := range errs {
		if err != nil {
			collected = append(collected, err)
		}
	}
	return collected
}

// FirstError returns the first non-nil error.
func FirstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// CombineErrors merges multiple errors into a single EngineError.
func CombineErrors(errs ...error) error {
	nonNil := CollectErrors(errs...)
	if len(nonNil) == 0 {
		return nil
	}
	if len(nonNil) == 1 {
		return nonNil[0]
	}

	messages := make([]string, 0, len(nonNil))
	for _, err := range nonNil {
		messages = append(messages, err.Error())
	}

	return &EngineError{
		Type:    ErrorTypeInternal,
		Code:    "ERR_MULTIPLE_ERRORS",
		Message: fmt.Sprintf("%d errors occurred", len(nonNil)),
		Context: map[string]interface{}{"errors": messages},
	}
}
