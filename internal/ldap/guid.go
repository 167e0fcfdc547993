package ldap

import (
	"fmt"

	"github.com/google/uuid"
)

// GUIDBytesLength is the size of a binary objectGUID.
const GUIDBytesLength = 16

// DecodeGUID converts a binary objectGUID to its canonical string form.
//
// Active Directory stores GUIDs mixed-endian: the first three groups (Data1, Data2, Data3)
// are little-endian and the last eight bytes are in network order.
func DecodeGUID(guidBytes []byte) (string, error) {
	if len(guidBytes) != GUIDBytesLength {
		return "", fmt.Errorf("invalid GUID byte length: expected %d, got %d", GUIDBytesLength, len(guidBytes))
	}

	var u uuid.UUID
	copy(u[:], guidBytes)

	u[0], u[1], u[2], u[3] = u[3], u[2], u[1], u[0]
	u[4], u[5] = u[5], u[4]
	u[6], u[7] = u[7], u[6]

	return u.String(), nil
}
