package hashing

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/wpsim/hairpin/src/internal/utils"
)

type ChecksumProvider interface {
	GetChecksum() (string, error)
}

// ChecksumReaderProxy calculates the MD5 checksum of data as it's read.
type ChecksumReaderProxy struct {
	reader   io.Reader
	checksum hash.Hash
	readErr  error
}

func NewMD5ReaderProxy(reader io.Reader) *ChecksumReaderProxy {
	return &ChecksumReaderProxy{
		reader:   reader,
		checksum: md5.New(),
	}
}

func (p *ChecksumReaderProxy) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)
	if n > 0 {
		p.checksum.Write(buf[:n])
	}
	if err != nil && !errors.Is(err, io.EOF) {
		p.readErr = err
	}
	return n, err
}

// GetChecksum returns the checksum of everything read so far.
// It fails if the underlying reader failed, since the sum would be partial.
func (p *ChecksumReaderProxy) GetChecksum() (string, error) {
	if p.readErr != nil {
		return "", p.readErr
	}
	return hex.EncodeToString(p.checksum.Sum(nil)), nil
}

// BytesChecksum returns the MD5 checksum of data as a hex string.
func BytesChecksum(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// FileChecksum returns the MD5 checksum of the file at path.
// A missing file is not an error: it returns ("", false, nil).
func FileChecksum(path string) (string, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer utils.CloseOrWarn(file)

	proxy := NewMD5ReaderProxy(file)
	if _, err := io.Copy(io.Discard, proxy); err != nil {
		return "", true, fmt.Errorf("failed to read %s: %w", path, err)
	}

	checksum, err := proxy.GetChecksum()
	return checksum, true, err
}
