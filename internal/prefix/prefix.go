package prefix

import (
	"bytes"
)

// Space identifies which half of a row a key addresses
type Space byte

const (
	// Object keys hold the row's object
	Object Space = 'o'
	// Metadata keys hold the row's metadata
	Metadata Space = 'm'
)

const sep = byte(0)

// Row returns the key of the row's object or metadata: <space>\x00<collection>\x00<key>
func Row(space Space, collection, key string) []byte {
	buf := make([]byte, 0, len(collection)+len(key)+3)
	buf = append(buf, byte(space), sep)
	buf = append(buf, collection...)
	buf = append(buf, sep)
	return append(buf, key...)
}

// Collection returns the prefix shared by every row key in the collection
func Collection(space Space, collection string) []byte {
	buf := make([]byte, 0, len(collection)+3)
	buf = append(buf, byte(space), sep)
	buf = append(buf, collection...)
	return append(buf, sep)
}

// All returns the prefix shared by every row key in the space
func All(space Space) []byte {
	return []byte{byte(space), sep}
}

// Split decodes a row key into its collection and key
func Split(rowKey []byte) (collection string, key string, ok bool) {
	parts := bytes.SplitN(rowKey, []byte{sep}, 3)
	if len(parts) != 3 || len(parts[0]) != 1 {
		return "", "", false
	}
	return string(parts[1]), string(parts[2]), true
}
