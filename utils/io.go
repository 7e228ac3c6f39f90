package utils

import "io"

// ByteReader 既可以按字节读, 也可以按slice读.
type ByteReader interface {
	io.Reader
	io.ByteReader
}
