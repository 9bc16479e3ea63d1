// Package zip assembles the download bundle for a completed loop job: the
// source clip and the rendered output packed into one archive.
package zip

import (
	"archive/zip"
	"bytes"
)

// Entry is one file in the bundle.
type Entry struct {
	Filename string
	Data     []byte
}

// Bundle packs the entries into an in-memory zip archive. An entry that
// cannot be created is skipped; a failed write aborts the whole bundle.
func Bundle(entries []Entry) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, entry := range entries {
		w, err := zw.Create(entry.Filename)
		if err != nil {
			continue
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil
		}
	}
	_ = zw.Close()
	return buf.Bytes()
}
