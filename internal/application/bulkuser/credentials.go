package bulkuser

import (
	"fmt"
	"strings"
	"time"
)

// Credential is one generated identity before persistence.
type Credential struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"-"`
}

// GenerateCredentials derives count identities from the config pattern
// starting at the given offset. Identifiers embed a shared timestamp plus a
// sequence number, so two calls in the same run with disjoint offsets can
// never collide.
func GenerateCredentials(count, offset int, stamp int64, cfg CreationConfig) []Credential {
	creds := make([]Credential, 0, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("%d_%d", stamp, offset+i)
		username := strings.Replace(cfg.UsernamePattern, idPlaceholder, id, 1)
		creds = append(creds, Credential{
			Username: username,
			Email:    fmt.Sprintf("%s@%s", username, cfg.EmailDomain),
			Password: cfg.Password,
		})
	}
	return creds
}

// runStamp returns the timestamp component shared by every identity of one
// creation run. Nanosecond resolution keeps back-to-back runs from colliding
// on usernames.
func runStamp() int64 {
	return time.Now().UnixNano()
}
