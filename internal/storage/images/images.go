// Package images stores uploaded product pictures and returns the URL the
// storefront should use to fetch them.
package images

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewName builds "<field>_<unix millis>_<random><ext>". The random part keeps
// two uploads in the same millisecond apart.
func NewName(field, original string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	return fmt.Sprintf("%s_%d_%s%s", field, now.UnixMilli(), suffix, ext)
}

func joinURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + name
}
