package shared

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Layouts used for every persisted timestamp and date.
const (
	TimestampLayout = "2006-01-02T15:04:05"
	DateLayout      = "2006-01-02"
)

// Timestamp formats t with second resolution.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Date formats the calendar date of t.
func Date(t time.Time) string {
	return t.Format(DateLayout)
}

func hexSuffix(n int) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:n])
}

// ReceiptNumber returns INV-YYYYMMDD-XXXXXX.
func ReceiptNumber(t time.Time) string {
	return fmt.Sprintf("INV-%s-%s", t.Format("20060102"), hexSuffix(6))
}

// OrderNumber returns PO-YYYYMMDD-XXXX.
func OrderNumber(t time.Time) string {
	return fmt.Sprintf("PO-%s-%s", t.Format("20060102"), hexSuffix(4))
}

// ShortID returns an 8 character lowercase id used for holds and users.
func ShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// SixDigit returns a random numeric code in [100000, 999999].
func SixDigit() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return fmt.Sprintf("%06d", 100000+time.Now().UnixNano()%900000)
	}
	return fmt.Sprintf("%d", 100000+n.Int64())
}

// UniqueSixDigit draws codes until one is absent from used, records it, and returns it.
// It gives up after the code space is effectively exhausted.
func UniqueSixDigit(used map[string]struct{}) (string, error) {
	for attempt := 0; attempt < 10000; attempt++ {
		code := SixDigit()
		if _, taken := used[code]; taken {
			continue
		}
		used[code] = struct{}{}
		return code, nil
	}
	return "", Errorf(ErrConflict, "shared: six digit code", "no free code after 10000 attempts")
}

// IsSixDigit reports whether s is exactly six ASCII digits.
func IsSixDigit(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
