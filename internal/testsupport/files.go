package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes an empty file.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	writeWithHeader(t, path, nil, size)
}

// WriteAudio writes an MP3-framed file of the requested size.
func WriteAudio(t testing.TB, path string, size int64) {
	t.Helper()
	writeWithHeader(t, path, MP3Header(), size)
}

// MP3Header returns the first bytes of an MPEG audio frame.
func MP3Header() []byte {
	return []byte{0xFF, 0xFB, 0x90, 0x64}
}

// AudioBytes returns an MP3-framed payload of size bytes.
func AudioBytes(size int) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	copy(buf, MP3Header())
	return buf
}

func writeWithHeader(t testing.TB, path string, header []byte, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}
	copy(buf, header)

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		for i := 0; i < len(header); i++ {
			buf[i] = 0x42
		}
		remaining -= toWrite
	}
}
