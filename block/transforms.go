// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import "github.com/cockroachdb/rowblk/internal/base"

// IterTransforms allow on-the-fly transformation of data at iteration time.
type IterTransforms struct {
	// SyntheticSeqNum, if set, overrides the sequence number in all keys. It
	// is set if the block was created externally and ingested whole.
	SyntheticSeqNum SyntheticSeqNum
}

// NoTransforms is the default value for IterTransforms.
var NoTransforms = IterTransforms{}

// NoTransforms returns true if there are no transforms enabled.
func (t *IterTransforms) NoTransforms() bool {
	return t.SyntheticSeqNum == 0
}

// SyntheticSeqNum is used to override all sequence numbers in a block. It is
// set to a non-zero value when the block was created externally and ingested
// whole.
type SyntheticSeqNum base.SeqNum

// NoSyntheticSeqNum is the default zero value for SyntheticSeqNum, which
// disables overriding the sequence number.
const NoSyntheticSeqNum SyntheticSeqNum = 0
