package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"First Name", "first name"},
		{"  Prénom*  (Given-Name) ", "prenom given name"},
		{"E-mail Address:", "e mail address"},
		{"", ""},
		{"***", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Fold(tt.in))
		})
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, Similarity("First Name", "first  name*"))
	assert.Equal(t, 0.0, Similarity("", "first name"))
	assert.Greater(t, Similarity("First Name", "First Name (required)"), 0.7)
	assert.Less(t, Similarity("First Name", "Last Name"), 0.5)
	assert.Equal(t, 0.0, Similarity("Email", "Phone"))
}

func TestChoiceSetHash(t *testing.T) {
	t.Parallel()

	a := ChoiceSetHash([]string{"Male", "Female", "Decline to self-identify"})
	b := ChoiceSetHash([]string{"decline to self identify", "FEMALE", "male", "Male"})
	assert.NotEmpty(t, a)
	assert.Equal(t, a, b)
	assert.Empty(t, ChoiceSetHash(nil))
	assert.NotEqual(t, a, ChoiceSetHash([]string{"Yes", "No"}))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "héll", Truncate("héllo", 4))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "", Truncate("abc", 0))
}
