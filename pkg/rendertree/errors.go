// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rendertree

import "github.com/wavetermdev/wavedom/pkg/utilds"

const (
	// producer and consumer disagree about the protocol; fatal for the batch
	ErrCode_Protocol = "protocol"
	// an id or offset names nothing in the live tree; the batch is rejected
	ErrCode_Addressing = "addressing"
)

// sub codes for protocol errors, telling a malformed frame apart from a
// well-formed batch that breaks the tree rules
const (
	ErrSubCode_Decode   = "decode"
	ErrSubCode_Validate = "validate"
)

func decodeErrorf(format string, args ...any) error {
	return utilds.SubErrorf(ErrCode_Protocol, ErrSubCode_Decode, format, args...)
}

func validateErrorf(format string, args ...any) error {
	return utilds.SubErrorf(ErrCode_Protocol, ErrSubCode_Validate, format, args...)
}

func ProtocolErrorf(format string, args ...any) error {
	return utilds.Errorf(ErrCode_Protocol, format, args...)
}

func AddressingErrorf(format string, args ...any) error {
	return utilds.Errorf(ErrCode_Addressing, format, args...)
}

func IsProtocolError(err error) bool {
	return utilds.GetErrorCode(err) == ErrCode_Protocol
}

func IsAddressingError(err error) bool {
	return utilds.GetErrorCode(err) == ErrCode_Addressing
}

func ErrorSubCode(err error) string {
	return utilds.GetErrorSubCode(err)
}
