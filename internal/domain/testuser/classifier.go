package testuser

import "strings"

// Classification is the result of deciding whether an account is synthetic.
type Classification string

const (
	ClassTest       Classification = "test"
	ClassProduction Classification = "production"
	ClassUnknown    Classification = "unknown"
)

// Deletable reports whether a record with this classification may be removed
// by a lifecycle operation. Unknown is not deletable: ambiguous records are
// treated exactly like production data.
func (c Classification) Deletable() bool {
	return c == ClassTest
}

// Classifier decides test-vs-production status for user records. The policy
// fails closed: any record with conflicting or missing signals classifies as
// Unknown, and every destructive caller must treat Unknown as production.
type Classifier struct {
	testEmailDomains   []string
	testUsernamePrefix []string
}

// NewClassifier creates a classifier with the default recognized test
// email domains and username prefixes.
func NewClassifier() *Classifier {
	return &Classifier{
		testEmailDomains:   []string{"example.com", "loadtest.local", "perftest.local", "sectest.local"},
		testUsernamePrefix: []string{"testuser_", "loadtest_", "perftest_", "sectest_"},
	}
}

// NewClassifierWithPatterns creates a classifier with custom recognized
// test email domains and username prefixes.
func NewClassifierWithPatterns(emailDomains, usernamePrefixes []string) *Classifier {
	return &Classifier{
		testEmailDomains:   emailDomains,
		testUsernamePrefix: usernamePrefixes,
	}
}

// Classify applies the decision policy in priority order:
//  1. IsTestUser set with coherent supporting signals (batch id or bulk
//     marker or a recognized test pattern) -> Test.
//  2. IsTestUser set but no supporting signal at all -> Unknown (conflicting
//     evidence; callers must protect it).
//  3. IsTestUser unset but bulk-creation markers present (batch id or
//     CreatedByBulk) -> Unknown. Someone explicitly flipped the flag off on
//     a bulk-created row, or a batch id collided with a real account; either
//     way the record must be protected.
//  4. IsTestUser unset, no markers, but a recognized test email domain or
//     username prefix -> Test (legacy synthetic rows predating the markers).
//  5. Otherwise -> Production.
func (c *Classifier) Classify(user *User) Classification {
	if user == nil {
		return ClassUnknown
	}

	patternMatch := c.matchesTestPattern(user)

	if user.IsTestUser {
		if user.TestBatchID != nil || user.CreatedByBulk || patternMatch {
			return ClassTest
		}
		// Flag says test but nothing else does. Treat as ambiguous.
		return ClassUnknown
	}

	if user.CreatedByBulk || user.TestBatchID != nil {
		return ClassUnknown
	}

	if patternMatch {
		return ClassTest
	}

	return ClassProduction
}

func (c *Classifier) matchesTestPattern(user *User) bool {
	for _, prefix := range c.testUsernamePrefix {
		if strings.HasPrefix(strings.ToLower(user.Username), prefix) {
			return true
		}
	}
	if at := strings.LastIndex(user.Email, "@"); at >= 0 {
		domain := strings.ToLower(user.Email[at+1:])
		for _, d := range c.testEmailDomains {
			if domain == d {
				return true
			}
		}
	}
	return false
}
