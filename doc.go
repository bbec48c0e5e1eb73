// Package klondike reads and writes klondike archives: single-file
// containers holding named, individually compressed blobs.
//
// Each entry is compressed by racing several codecs and keeping the smallest
// result (see package engine). Already-compressed content is stored as is.
// A whole archive body can be sealed with a password using PBKDF2 and
// AES-256-GCM.
//
// # Basic Usage
//
//	a := klondike.New(klondike.WithLogger(logger))
//	defer a.Close()
//
//	if _, err := a.Add("notes/a.txt", data); err != nil {
//	    return err
//	}
//	if err := a.Save("backup.kcl"); err != nil {
//	    return err
//	}
//
//	b, err := klondike.Open("backup.kcl")
//	if err != nil {
//	    return err
//	}
//	content, err := b.Extract("notes/a.txt")
//
// # Encryption
//
// Call [Archive.SetPassword] before saving to write an encrypted archive.
// Opening one requires [WithPassword]; a wrong password yields [ErrAuth].
//
// # Concurrency
//
// An Archive is not safe for concurrent use. Callers that share one must
// serialize access.
package klondike
