package live

import (
	"time"

	"github.com/google/uuid"
)

// keyNamespace scopes idempotency keys to this application.
var keyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/IvanHuYY/Stockbot/order"))

// IdempotencyKey is a stable UUIDv5 of symbol and cycle time. The same
// symbol in the same cycle always maps to the same key, which the broker
// sees as the client order ID.
func IdempotencyKey(symbol string, cycle time.Time) string {
	return uuid.NewSHA1(keyNamespace, []byte(symbol+"@"+cycle.UTC().Format(time.RFC3339Nano))).String()
}
