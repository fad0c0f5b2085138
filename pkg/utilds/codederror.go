// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package utilds

import (
	"errors"
	"fmt"
)

// CodedError wraps an error with a string code for categorization.
// The code survives %w wrapping and is read back with GetErrorCode.
type CodedError struct {
	Code    string
	SubCode string
	Err     error
}

func (e CodedError) Error() string {
	return e.Err.Error()
}

func (e CodedError) Unwrap() error {
	return e.Err
}

func MakeCodedError(code string, err error) CodedError {
	return CodedError{Code: code, Err: err}
}

func MakeSubCodedError(code string, subCode string, err error) CodedError {
	return CodedError{Code: code, SubCode: subCode, Err: err}
}

// GetErrorCode returns the code of the first CodedError in the chain, or "".
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

func GetErrorSubCode(err error) string {
	if err == nil {
		return ""
	}
	var coded CodedError
	if errors.As(err, &coded) {
		return coded.SubCode
	}
	return ""
}

func Errorf(code string, format string, args ...interface{}) error {
	return MakeCodedError(code, fmt.Errorf(format, args...))
}

func SubErrorf(code string, subCode string, format string, args ...interface{}) error {
	return MakeSubCodedError(code, subCode, fmt.Errorf(format, args...))
}
