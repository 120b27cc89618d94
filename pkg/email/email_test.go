package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksLike(t *testing.T) {
	assert.True(t, LooksLike("a@x.edu"))
	assert.True(t, LooksLike("first.last@dept.uni.edu"))
	assert.False(t, LooksLike("a@localhost"))
	assert.False(t, LooksLike("no-at-sign.edu"))
	assert.False(t, LooksLike("a@b.c@d"), "the dot must come after the last at sign")
	assert.True(t, LooksLike("we@ird@x.edu"))
	assert.False(t, LooksLike(""))
}

func TestDeriveDisplayName(t *testing.T) {
	assert.Equal(t, "Jane Q Doe", DeriveDisplayName("jane.q-doe@x.edu"))
	assert.Equal(t, "Bob", DeriveDisplayName("bob@y.edu"))
	assert.Equal(t, "Alice Smith", DeriveDisplayName("alice_smith"))
	assert.Equal(t, "", DeriveDisplayName("@x.edu"))
}
