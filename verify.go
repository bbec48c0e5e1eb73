package klondike

import (
	"github.com/opencontainers/go-digest"
)

// VerifiedEntry is an entry that decoded to its recorded size.
type VerifiedEntry struct {
	Entry

	// Digest is the sha256 digest of the decoded content.
	Digest digest.Digest
}

// Verify decodes every entry and checks its size. It returns the entries
// that passed, with content digests, and an *ExtractError naming the ones
// that did not.
func (a *Archive) Verify() ([]VerifiedEntry, error) {
	var ok []VerifiedEntry
	err := a.ExtractAll(func(e Entry, data []byte) error {
		ok = append(ok, VerifiedEntry{Entry: e, Digest: digest.FromBytes(data)})
		return nil
	})
	return ok, err
}
