package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := GenerateCode(TeamInviteCodeLength)
		require.NoError(t, err)
		assert.Len(t, code, TeamInviteCodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected rune %q", r)
		}
		seen[code] = true
	}
	// 100 draws from a 32^8 space colliding would mean a broken generator.
	assert.Len(t, seen, 100)
}

func TestGenerateCode_Lengths(t *testing.T) {
	team, err := GenerateCode(TeamInviteCodeLength)
	require.NoError(t, err)
	join, err := GenerateCode(TournamentJoinCodeLength)
	require.NoError(t, err)
	assert.NotEqual(t, len(team), len(join))
}
