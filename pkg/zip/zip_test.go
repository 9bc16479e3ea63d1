package zip

import (
	"archive/zip"
	"bytes"
	"testing"
)

func TestBundle_RoundTrip(t *testing.T) {
	data := Bundle([]Entry{
		{Filename: "source-clip.mp4", Data: []byte("video bytes")},
		{Filename: "output-loop.mp4", Data: []byte("rendered bytes")},
	})
	if data == nil {
		t.Fatal("bundle returned nil")
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("entries: got %d, want 2", len(zr.File))
	}
	if zr.File[0].Name != "source-clip.mp4" || zr.File[1].Name != "output-loop.mp4" {
		t.Fatalf("entry names: %s, %s", zr.File[0].Name, zr.File[1].Name)
	}
	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer rc.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(rc); err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if buf.String() != "rendered bytes" {
		t.Fatalf("entry content: %q", buf.String())
	}
}

func TestBundle_EmptyInput(t *testing.T) {
	data := Bundle(nil)
	if _, err := zip.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("empty bundle must still be a valid archive: %v", err)
	}
}
