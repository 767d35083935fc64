package vectorstore

import (
	"fmt"

	"github.com/google/uuid"
)

var chunkNamespace = uuid.MustParse("6f1c7d52-4a0e-5b8e-9c55-2d7f3a4b8e10")

// DocumentID derives a stable id for part of a message, so indexing the
// same message twice overwrites instead of duplicating.
func DocumentID(organizationID int64, sessionID string, messageIndex, part int) string {
	name := fmt.Sprintf("%d/%s/%d/%d", organizationID, sessionID, messageIndex, part)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}
