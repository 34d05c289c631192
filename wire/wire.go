// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wire implements the fixed-layout binary codec for KE-Paxos
// protocol messages (spec.md §4.1). All integers are big-endian.
//
//	offset  size  field
//	  0     4     ballot
//	  4     4     seq
//	  8     1     msg_type
//	  9     1     cmd_type
//	 10     1     committed
//	 11     4     klen
//	 15     klen  key
//	 15+klen 4    dlen
//	 19+klen dlen data
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/shardkv/kepaxos/ballot"
)

// Type is the wire msg_type byte.
type Type uint8

const (
	PreAccept Type = iota
	PreAcceptResp
	Accept
	AcceptResp
	Commit
	// Recover and RecoverResp are a supplemental pair (SPEC_FULL.md §12.6)
	// used by the demo CLI to fetch state from a peer; the core protocol
	// engine never emits or requires them.
	Recover
	RecoverResp
)

func (t Type) String() string {
	switch t {
	case PreAccept:
		return "PRE_ACCEPT"
	case PreAcceptResp:
		return "PRE_ACCEPT_RESP"
	case Accept:
		return "ACCEPT"
	case AcceptResp:
		return "ACCEPT_RESP"
	case Commit:
		return "COMMIT"
	case Recover:
		return "RECOVER"
	case RecoverResp:
		return "RECOVER_RESP"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// fixedPrefixLen is the size of everything before the variable-length
// key and data buffers: ballot(4) + seq(4) + msg_type(1) + cmd_type(1) +
// committed(1) + klen(4) + dlen(4).
const fixedPrefixLen = 4 + 4 + 1 + 1 + 1 + 4 + 4

var (
	// ErrShortBuffer is returned when a buffer is too small to even hold
	// the fixed-size message prefix.
	ErrShortBuffer = errors.New("wire: buffer shorter than fixed message prefix")
	// ErrLengthOverrun is returned when klen or dlen claims more bytes
	// than the buffer actually holds.
	ErrLengthOverrun = errors.New("wire: klen/dlen overruns buffer")
)

// Message is the decoded form of any of the protocol's wire messages.
// Only Commit (and RecoverResp) populate CmdType/Data meaningfully;
// responses carry Data == nil.
type Message struct {
	Ballot    ballot.Ballot
	Seq       uint32
	Type      Type
	CmdType   uint8
	Committed bool
	Key       []byte
	Data      []byte
}

// Encode serializes m into the fixed layout described in the package doc.
func Encode(m Message) []byte {
	total := fixedPrefixLen + len(m.Key) + len(m.Data)
	buf := make([]byte, total)

	binary.BigEndian.PutUint32(buf[0:4], uint32(m.Ballot))
	binary.BigEndian.PutUint32(buf[4:8], m.Seq)
	buf[8] = uint8(m.Type)
	buf[9] = m.CmdType
	if m.Committed {
		buf[10] = 1
	}
	binary.BigEndian.PutUint32(buf[11:15], uint32(len(m.Key)))
	off := 15
	copy(buf[off:off+len(m.Key)], m.Key)
	off += len(m.Key)
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(m.Data)))
	off += 4
	copy(buf[off:off+len(m.Data)], m.Data)

	return buf
}

// Decode parses buf into a Message, rejecting any buffer that is short or
// whose embedded lengths overrun the buffer (spec.md §4.1).
func Decode(buf []byte) (Message, error) {
	if len(buf) < fixedPrefixLen {
		return Message{}, ErrShortBuffer
	}

	var m Message
	m.Ballot = ballot.Ballot(binary.BigEndian.Uint32(buf[0:4]))
	m.Seq = binary.BigEndian.Uint32(buf[4:8])
	m.Type = Type(buf[8])
	m.CmdType = buf[9]
	m.Committed = buf[10] != 0

	klen := binary.BigEndian.Uint32(buf[11:15])
	off := 15
	if uint64(off)+uint64(klen)+4 > uint64(len(buf)) {
		return Message{}, ErrLengthOverrun
	}
	if klen > 0 {
		m.Key = append([]byte(nil), buf[off:off+int(klen)]...)
	}
	off += int(klen)

	dlen := binary.BigEndian.Uint32(buf[off : off+4])
	off += 4
	if uint64(off)+uint64(dlen) > uint64(len(buf)) {
		return Message{}, ErrLengthOverrun
	}
	if dlen > 0 {
		m.Data = append([]byte(nil), buf[off:off+int(dlen)]...)
	}

	return m, nil
}
