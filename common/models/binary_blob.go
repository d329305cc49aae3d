package models

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
)

// BinaryBlob holds ciphertext such as encrypted variable values and data keys. It is stored
// hex-encoded since goqu does not round-trip raw bytes through every driver.
type BinaryBlob []byte

func (b *BinaryBlob) Scan(src interface{}) error {
	var encoded string
	switch v := src.(type) {
	case nil:
		return nil
	case []byte: // postgres
		encoded = string(v)
	case string: // sqlite
		encoded = v
	default:
		return fmt.Errorf("error unsupported type for binary blob: %[1]T (%[1]v)", src)
	}
	decoded, err := hex.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("error decoding binary blob: %w", err)
	}
	*b = decoded
	return nil
}

func (b BinaryBlob) Value() (driver.Value, error) {
	if b == nil {
		return nil, nil
	}
	return hex.EncodeToString(b), nil
}
