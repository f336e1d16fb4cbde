package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newIdempotencyKey returns visit_<unix-ms>_<random>.
func newIdempotencyKey(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("visit_%d_%s", now.UnixMilli(), random)
}
