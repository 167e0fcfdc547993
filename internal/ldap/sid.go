package ldap

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/go-objectsid"
)

// minSIDLength is the size of a SID with no sub-authorities.
const minSIDLength = 8

// DecodeSID converts a binary objectSid to its S-1-5-21-... string form.
func DecodeSID(binarySID []byte) (string, error) {
	if len(binarySID) == 0 {
		return "", errors.New("binary SID cannot be empty")
	}
	if len(binarySID) < minSIDLength {
		return "", fmt.Errorf("binary SID too short: %d bytes", len(binarySID))
	}

	// Byte 1 is the sub-authority count; each sub-authority is four bytes.
	if want := minSIDLength + int(binarySID[1])*4; len(binarySID) < want {
		return "", fmt.Errorf("binary SID truncated: want %d bytes, got %d", want, len(binarySID))
	}

	sid := objectsid.Decode(binarySID)
	return sid.String(), nil
}
