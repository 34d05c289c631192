// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardkv/kepaxos/ballot"
)

func TestScenarioFRoundTrip(t *testing.T) {
	// spec.md §8 Scenario F.
	m := Message{
		Ballot:    ballot.Ballot(0xDEADBEEF),
		Seq:       42,
		Type:      Commit,
		CmdType:   1,
		Committed: false,
		Key:       []byte("hello"),
		Data:      []byte("world"),
	}

	buf := Encode(m)
	require.Len(t, buf, 29)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, m.Ballot, got.Ballot)
	require.Equal(t, m.Seq, got.Seq)
	require.Equal(t, m.Type, got.Type)
	require.Equal(t, m.CmdType, got.CmdType)
	require.Equal(t, m.Committed, got.Committed)
	require.Equal(t, m.Key, got.Key)
	require.Equal(t, m.Data, got.Data)
}

func TestRoundTripAllTypes(t *testing.T) {
	// Testable property 6.
	for _, typ := range []Type{PreAccept, PreAcceptResp, Accept, AcceptResp, Commit, Recover, RecoverResp} {
		m := Message{
			Ballot:    ballot.New(7, 2),
			Seq:       99,
			Type:      typ,
			CmdType:   3,
			Committed: true,
			Key:       []byte("k"),
			Data:      []byte("v1"),
		}
		buf := Encode(m)
		got, err := Decode(buf)
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
}

func TestDecodeEmptyKeyAndData(t *testing.T) {
	m := Message{Ballot: ballot.New(1, 0), Seq: 0, Type: PreAccept}
	buf := Encode(m)
	require.Len(t, buf, fixedPrefixLen)
	got, err := Decode(buf)
	require.NoError(t, err)
	require.Nil(t, got.Key)
	require.Nil(t, got.Data)
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	_, err := Decode(make([]byte, fixedPrefixLen-1))
	require.ErrorIs(t, err, ErrShortBuffer)

	_, err = Decode(nil)
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestDecodeRejectsKlenOverrun(t *testing.T) {
	buf := Encode(Message{Key: []byte("hello")})
	// Claim a much bigger key length than the buffer actually has.
	buf[14] = 0xFF
	_, err := Decode(buf)
	require.ErrorIs(t, err, ErrLengthOverrun)
}

func TestDecodeRejectsDlenOverrun(t *testing.T) {
	buf := Encode(Message{Key: []byte("hi"), Data: []byte("there")})
	dlenOff := 15 + 2
	buf[dlenOff+3] = 0xFF
	_, err := Decode(buf)
	require.ErrorIs(t, err, ErrLengthOverrun)
}

func TestTypeString(t *testing.T) {
	require.Equal(t, "PRE_ACCEPT", PreAccept.String())
	require.Equal(t, "COMMIT", Commit.String())
	require.Contains(t, Type(200).String(), "UNKNOWN")
}
