package app

import (
	"crypto/rand"
	"encoding/hex"
)

// inviteAlphabet is a 32-symbol set with visually ambiguous characters
// (0, O, 1, I) removed so codes survive being read aloud or retyped.
const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const inviteCodeLength = 6

// newInviteCode draws a random 6-character code. Uniqueness among live rooms
// is the caller's responsibility (retry against the directory on collision).
func newInviteCode() string {
	buf := make([]byte, inviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	code := make([]byte, inviteCodeLength)
	for i, b := range buf {
		code[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(code)
}

// newID returns a random hex identifier for battles and participants.
func newID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
