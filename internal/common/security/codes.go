package security

import (
	"crypto/rand"
	"math/big"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	// TeamInviteCodeLength identifies team invite codes.
	TeamInviteCodeLength = 8
	// TournamentJoinCodeLength identifies private tournament join codes.
	TournamentJoinCodeLength = 6
)

// GenerateCode returns a random code over an unambiguous alphabet.
func GenerateCode(length int) (string, error) {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
