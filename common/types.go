package common

import "math"

const (
	// PageSize is the size of every page handed out by a scratch file.
	PageSize int = 4096
	// PageLinkSize is the width of the previous/next page pointers stored at either end of a page
	// in a linked scratch file.
	PageLinkSize int = 8
	// LinkedPagePayloadSize is the number of content bytes a linked page carries.
	LinkedPagePayloadSize = PageSize - 2*PageLinkSize
	// MaxPageIndex bounds page and chunk indices, which are kept as 32-bit quantities.
	MaxPageIndex = math.MaxInt32
)

// NoPage marks the absence of a page, e.g. the previous pointer of the first linked page.
const NoPage int64 = -1
