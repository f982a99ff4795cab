package complaint

import (
	"strings"

	"github.com/google/uuid"
)

// idPrefix is stamped on every complaint ID so citizens can recognize a
// JanSahayak token out of context (SMS, paper receipt, phone call).
const idPrefix = "JAN-"

// idAlphabet is Crockford base32: no I, L, O or U, so tokens survive
// being read out loud and written down by hand.
const idAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// idLength of 8 symbols encodes 40 random bits, enough headroom that
// collisions stay negligible for a municipal complaint volume.
const idLength = 8

// NewID generates a complaint ID token, e.g. "JAN-7K2M9QWX".
//
// The token is derived purely from fresh random entropy, never from record
// content, so it can be assigned before the record is persisted and stays
// stable regardless of later edits. IDs are never reused: the store's
// primary key rejects the (practically impossible) duplicate draw.
func NewID() string {
	u := uuid.New()

	var b strings.Builder
	b.Grow(len(idPrefix) + idLength)
	b.WriteString(idPrefix)

	// Consume 5 bits of UUID entropy per symbol.
	var acc uint64
	bits := 0
	byteIdx := 0
	for b.Len() < len(idPrefix)+idLength {
		if bits < 5 {
			acc = acc<<8 | uint64(u[byteIdx])
			byteIdx++
			bits += 8
		}
		bits -= 5
		b.WriteByte(idAlphabet[(acc>>uint(bits))&31])
	}
	return b.String()
}
