// Package itemid generates item ids for enrolled faces.
package itemid

import (
	"path/filepath"

	"github.com/google/uuid"
)

// namespace scopes file-derived ids so they never collide with other UUIDv5 users.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("facevault:file"))

// New returns a random item id for an upload with no stable source.
func New() string {
	return uuid.NewString()
}

// FromFile returns a stable item id for an image file enrolled under tenantID.
// The same tenant and path always yield the same id, so re-enrolling a file
// from a watched directory or a bulk build does not create a second record.
func FromFile(tenantID, path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return uuid.NewSHA1(namespace, []byte(tenantID+"\x00"+filepath.Clean(abs))).String()
}
