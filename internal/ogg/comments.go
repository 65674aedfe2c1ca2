package ogg

import (
	"encoding/binary"
	"fmt"

	"github.com/agleyzer/oggseek/internal/extractor"
)

// parseComments decodes a Vorbis comment list: a length-prefixed vendor
// string followed by a count of length-prefixed "KEY=value" strings. All
// integers are little-endian.
func parseComments(p []byte) (extractor.Metadata, error) {
	var md extractor.Metadata
	next := func() (string, error) {
		if len(p) < 4 {
			return "", fmt.Errorf("%w: comment list truncated", ErrMalformedHeader)
		}
		n := binary.LittleEndian.Uint32(p)
		p = p[4:]
		if uint64(n) > uint64(len(p)) {
			return "", fmt.Errorf("%w: comment length %d exceeds packet", ErrMalformedHeader, n)
		}
		s := string(p[:n])
		p = p[n:]
		return s, nil
	}

	vendor, err := next()
	if err != nil {
		return md, err
	}
	md.Vendor = vendor

	if len(p) < 4 {
		return md, fmt.Errorf("%w: comment count missing", ErrMalformedHeader)
	}
	count := binary.LittleEndian.Uint32(p)
	p = p[4:]
	// Every comment needs at least its length prefix.
	if uint64(count)*4 > uint64(len(p)) {
		return md, fmt.Errorf("%w: comment count %d exceeds packet", ErrMalformedHeader, count)
	}
	md.Comments = make([]string, 0, count)
	for range count {
		c, err := next()
		if err != nil {
			return md, err
		}
		md.Comments = append(md.Comments, c)
	}
	return md, nil
}
