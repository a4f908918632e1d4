// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package projectcontent

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/teradata-labs/conductor/pkg/types"
)

// contextWindow is how much surrounding text each operation carries so
// the editor can re-anchor an edit if the document shifted.
const contextWindow = 32

// OperationsBetween diffs the original document against the updated one
// and emits positional edit operations. Offsets index into the original;
// a delete immediately followed by an insert collapses into a replace.
func OperationsBetween(original, updated string) []types.EditorOperation {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(original, updated, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	preHash := ContentHash(original)
	var ops []types.EditorOperation
	offset := 0
	for i := 0; i < len(diffs); i++ {
		d := diffs[i]
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			offset += len(d.Text)
		case diffmatchpatch.DiffDelete:
			op := types.EditorOperation{
				OpType:       types.OpDelete,
				Start:        offset,
				End:          offset + len(d.Text),
				PreHash:      preHash,
				OriginalText: d.Text,
			}
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				op.OpType = types.OpReplace
				op.Text = diffs[i+1].Text
				i++
			}
			op.LeftContext, op.RightContext = contextAround(original, op.Start, op.End)
			ops = append(ops, op)
			offset = op.End
		case diffmatchpatch.DiffInsert:
			op := types.EditorOperation{
				OpType:  types.OpInsert,
				Start:   offset,
				End:     offset,
				Text:    d.Text,
				PreHash: preHash,
			}
			op.LeftContext, op.RightContext = contextAround(original, offset, offset)
			ops = append(ops, op)
		}
	}
	return ops
}

// ContentHash is the hex sha256 of a document snapshot, used as the
// operation pre-image check.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func contextAround(original string, start, end int) (left, right string) {
	ls := start - contextWindow
	if ls < 0 {
		ls = 0
	}
	re := end + contextWindow
	if re > len(original) {
		re = len(original)
	}
	return original[ls:start], original[end:re]
}
