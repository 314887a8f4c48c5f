package store

import "crypto/rand"

// Job IDs are 10-character random tokens. Generated client-side, before the
// insert, so ID allocation never serializes with the write. The alphabet is
// single-case so lexical order agrees between Go byte comparison and the
// text ordering used by the claim index tie-break.
const (
	jobIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	jobIDLen      = 10
)

func newJobID() string {
	buf := make([]byte, jobIDLen)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic("job id generation: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = jobIDAlphabet[int(b)%len(jobIDAlphabet)]
	}
	return string(buf)
}
