package widget

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewTempSessionID returns an anonymous id of the form temp_<unix-ms>_<9 base36 chars>.
// Collisions are possible and not detected.
func NewTempSessionID(now time.Time) string {
	return "temp_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + randomToken(9)
}

// NewSessionID proposes a real session id to the chat API.
func NewSessionID() string {
	return "session_" + uuid.NewString()
}

func randomToken(n int) string {
	buf := make([]byte, n)
	limit := big.NewInt(int64(len(base36)))
	for i := range buf {
		v, err := rand.Int(rand.Reader, limit)
		if err != nil {
			buf[i] = base36[time.Now().UnixNano()%int64(len(base36))]
			continue
		}
		buf[i] = base36[v.Int64()]
	}
	return string(buf)
}
