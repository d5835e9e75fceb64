package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"mediatorpro/src/helpers"
)

// BundleExt is the extension of snapshot files.
const BundleExt = ".bundle"

// Envelope is the on-disk form of one exported collection.
type Envelope struct {
	Collection    string    `bson:"collection"`
	SchemaVersion int       `bson:"schemaVersion"`
	ExportedAt    time.Time `bson:"exportedAt"`
	Count         int       `bson:"count"`
	Sealed        bool      `bson:"sealed"`
	Salt          []byte    `bson:"salt,omitempty"`
	Payload       []byte    `bson:"payload"`
}

// payload wraps the record list, since a BSON document cannot be a bare array.
type payload struct {
	Records any `bson:"records"`
}

// BundlePath is where a collection's snapshot lives under dir.
func BundlePath(dir, collection string) string {
	return filepath.Join(dir, collection+BundleExt)
}

func writeBundle(path string, env *Envelope) error {
	data, err := helpers.EncodeBSON(env)
	if err != nil {
		return fmt.Errorf("error encoding bundle %s: %w", path, err)
	}
	return helpers.WriteFileAtomic(path, data)
}

// readBundle maps the bundle file and decodes its envelope. The payload is
// copied out before the mapping is released.
func readBundle(path string) (*Envelope, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening bundle file %s: %w", path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file stats for %s: %w", path, err)
	}
	fileSize := int(stat.Size())
	if fileSize == 0 {
		return nil, fmt.Errorf("bundle file %s is empty", path)
	}

	data, err := unix.Mmap(int(file.Fd()), 0, fileSize, syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to memory map %s: %w", path, err)
	}
	defer unix.Munmap(data)

	var env Envelope
	if err := helpers.DecodeBSON(data, &env); err != nil {
		return nil, fmt.Errorf("error decoding bundle %s: %w", path, err)
	}
	env.Payload = append([]byte(nil), env.Payload...)
	env.Salt = append([]byte(nil), env.Salt...)
	return &env, nil
}
