package utils

import (
	"errors"
	"regexp"
)

const DefaultBufferSize = 1024 * 1024 * 8 // 8MB buffer
const ToolUserAgent = "tronctl/1.0"

// ErrJobSkipped is returned by ValidateJob when the artifact is already in place.
var ErrJobSkipped = errors.New("job skipped")

var ErrRangeRequestsNotSupported = errors.New("range requests are not supported")
var ChunkIDRegex = regexp.MustCompile(`\.part(\d+)$`)
