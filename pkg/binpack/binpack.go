// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package binpack holds the low-level framing used by the batch wire codec:
// varint-prefixed byte strings and fixed little-endian int32 fields.
package binpack

import (
	"encoding/binary"
	"fmt"
	"io"
)

type FullByteReader interface {
	io.ByteReader
	io.Reader
}

// Unpacker keeps the first error it sees; later reads become no-ops.
type Unpacker struct {
	R   FullByteReader
	Err error
}

func PackValue(w io.Writer, barr []byte) error {
	viBuf := make([]byte, binary.MaxVarintLen64)
	viLen := binary.PutUvarint(viBuf, uint64(len(barr)))
	_, err := w.Write(viBuf[0:viLen])
	if err != nil {
		return err
	}
	if len(barr) > 0 {
		_, err = w.Write(barr)
		if err != nil {
			return err
		}
	}
	return nil
}

// PackInt writes a signed varint (zig-zag), matching UnpackInt.
func PackInt(w io.Writer, ival int) error {
	viBuf := make([]byte, binary.MaxVarintLen64)
	l := binary.PutVarint(viBuf, int64(ival))
	_, err := w.Write(viBuf[0:l])
	return err
}

func PackInt32(w io.Writer, ival int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(ival))
	_, err := w.Write(buf[:])
	return err
}

func UnpackValue(r FullByteReader, maxLen int) ([]byte, error) {
	lenVal, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if lenVal == 0 {
		return nil, nil
	}
	if maxLen >= 0 && lenVal > uint64(maxLen) {
		return nil, fmt.Errorf("value length %d exceeds limit %d", lenVal, maxLen)
	}
	rtnBuf := make([]byte, int(lenVal))
	_, err = io.ReadFull(r, rtnBuf)
	if err != nil {
		return nil, err
	}
	return rtnBuf, nil
}

func UnpackInt(r io.ByteReader) (int, error) {
	ival64, err := binary.ReadVarint(r)
	if err != nil {
		return 0, err
	}
	return int(ival64), nil
}

func UnpackInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	_, err := io.ReadFull(r, buf[:])
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

func (u *Unpacker) UnpackValue(name string, maxLen int) []byte {
	if u.Err != nil {
		return nil
	}
	rtn, err := UnpackValue(u.R, maxLen)
	if err != nil {
		u.Err = fmt.Errorf("cannot unpack %s: %v", name, err)
	}
	return rtn
}

func (u *Unpacker) UnpackInt(name string) int {
	if u.Err != nil {
		return 0
	}
	rtn, err := UnpackInt(u.R)
	if err != nil {
		u.Err = fmt.Errorf("cannot unpack %s: %v", name, err)
	}
	return rtn
}

func (u *Unpacker) UnpackInt32(name string) int32 {
	if u.Err != nil {
		return 0
	}
	rtn, err := UnpackInt32(u.R)
	if err != nil {
		u.Err = fmt.Errorf("cannot unpack %s: %v", name, err)
	}
	return rtn
}

// Fail records err unless an earlier error is already held.
func (u *Unpacker) Fail(err error) {
	if u.Err == nil {
		u.Err = err
	}
}

func (u *Unpacker) Error() error {
	return u.Err
}

func MakeUnpacker(r FullByteReader) *Unpacker {
	return &Unpacker{R: r}
}
