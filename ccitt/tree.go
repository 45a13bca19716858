package ccitt

import (
	"mit.edu/dsg/pagedio/common"
)

type codeKind uint8

const (
	terminatingCode codeKind = iota
	makeUpCode
	eolMarker
)

// codeWord is the leaf value of a lookup tree.
type codeWord struct {
	kind      codeKind
	runLength int
}

// node is a binary prefix tree node; children are indexed by the next input bit.
type node struct {
	children [2]*node
	leaf     *codeWord
}

func (n *node) insert(code string, word codeWord) {
	cur := n
	for i := 0; i < len(code); i++ {
		common.Assert(cur.leaf == nil, "code %s extends the code word at depth %d", code, i)
		bit := code[i] - '0'
		if cur.children[bit] == nil {
			cur.children[bit] = &node{}
		}
		cur = cur.children[bit]
	}
	common.Assert(cur.leaf == nil && cur.children[0] == nil && cur.children[1] == nil,
		"code %s is not prefix-free", code)
	cur.leaf = &word
}

// addEOL registers the end-of-line marker and lets any number of fill zeros precede it: the node
// reached after eleven zeros loops to itself on another zero.
func (n *node) addEOL() {
	n.insert(eolCode, codeWord{kind: eolMarker})
	fill := n
	for i := 0; i < len(eolCode)-1; i++ {
		fill = fill.children[0]
	}
	common.Assert(fill.children[0] == nil, "fill node already has a zero branch")
	fill.children[0] = fill
}

func buildTree(terminating []string, makeUp []string) *node {
	root := &node{}
	for length, code := range terminating {
		root.insert(code, codeWord{kind: terminatingCode, runLength: length})
	}
	for i, code := range makeUp {
		root.insert(code, codeWord{kind: makeUpCode, runLength: (i + 1) * 64})
	}
	for i, code := range extendedMakeUpCodes {
		root.insert(code, codeWord{kind: makeUpCode, runLength: 1792 + i*64})
	}
	root.addEOL()
	return root
}

// The lookup trees are built once and never modified, so decoders share them freely.
var (
	whiteTree = buildTree(whiteTerminatingCodes[:], whiteMakeUpCodes[:])
	blackTree = buildTree(blackTerminatingCodes[:], blackMakeUpCodes[:])
)
