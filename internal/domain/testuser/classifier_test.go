package testuser

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_TestUserWithMarkers(t *testing.T) {
	batchID := uuid.New()
	user, err := NewTestUser("testuser_1_0", "testuser_1_0@example.com", "TestUser2025!", batchID, nil)
	require.NoError(t, err)

	c := NewClassifier()
	assert.Equal(t, ClassTest, c.Classify(user))
	assert.True(t, c.Classify(user).Deletable())
}

func TestClassify_ProductionUser(t *testing.T) {
	user, err := NewUser("alice", "alice@company.com", "RealUser2025!")
	require.NoError(t, err)

	c := NewClassifier()
	assert.Equal(t, ClassProduction, c.Classify(user))
	assert.False(t, c.Classify(user).Deletable())
}

func TestClassify_FlagOffButBulkMarkersPresent(t *testing.T) {
	// A bulk-created row whose test flag was flipped off must be protected,
	// not silently reclaimed as a test user.
	batchID := uuid.New()
	user, err := NewTestUser("testuser_2_0", "testuser_2_0@example.com", "TestUser2025!", batchID, nil)
	require.NoError(t, err)
	user.IsTestUser = false

	c := NewClassifier()
	assert.Equal(t, ClassUnknown, c.Classify(user))
	assert.False(t, c.Classify(user).Deletable())
}

func TestClassify_FlagOnWithoutAnySupportingSignal(t *testing.T) {
	user, err := NewUser("bob", "bob@company.com", "RealUser2025!")
	require.NoError(t, err)
	user.IsTestUser = true

	c := NewClassifier()
	assert.Equal(t, ClassUnknown, c.Classify(user))
}

func TestClassify_LegacyPatternMatch(t *testing.T) {
	// Rows predating the markers are recognized by username prefix or email
	// domain alone.
	byPrefix, err := NewUser("loadtest_999", "someone@company.com", "RealUser2025!")
	require.NoError(t, err)

	byDomain, err := NewUser("carol", "carol@loadtest.local", "RealUser2025!")
	require.NoError(t, err)

	c := NewClassifier()
	assert.Equal(t, ClassTest, c.Classify(byPrefix))
	assert.Equal(t, ClassTest, c.Classify(byDomain))
}

func TestClassify_BulkMarkerAloneIsAmbiguous(t *testing.T) {
	user, err := NewUser("dave", "dave@company.com", "RealUser2025!")
	require.NoError(t, err)
	user.CreatedByBulk = true

	c := NewClassifier()
	assert.Equal(t, ClassUnknown, c.Classify(user))
}

func TestClassify_NilUser(t *testing.T) {
	c := NewClassifier()
	assert.Equal(t, ClassUnknown, c.Classify(nil))
}

func TestClassify_CustomPatterns(t *testing.T) {
	c := NewClassifierWithPatterns([]string{"qa.internal"}, []string{"qa_"})

	user, err := NewUser("qa_17", "qa_17@qa.internal", "RealUser2025!")
	require.NoError(t, err)
	assert.Equal(t, ClassTest, c.Classify(user))

	// The defaults no longer apply.
	legacy, err := NewUser("testuser_1", "x@example.com", "RealUser2025!")
	require.NoError(t, err)
	assert.Equal(t, ClassProduction, c.Classify(legacy))
}
