package database

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"go-mangadex-upload/internal/helpers"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

// gzipMagicBytes are the first two bytes of a gzip stream.
var gzipMagicBytes = []byte{0x1f, 0x8b}

// DB wraps the bitcask store holding the persisted credential and the upload history.
type DB struct {
	db *bitcask.Bitcask
	mu sync.RWMutex
}

// Open initializes and returns a DB instance, creating the parent directory if needed.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := helpers.CheckAndMakeDir(dir); err != nil {
			return nil, fmt.Errorf("failed to prepare database directory: %w", err)
		}
	}

	dbInstance, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bitcask database at %s: %w", path, err)
	}
	log.Debugf("Database opened at %s", path)
	return &DB{db: dbInstance}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Close()
}

// Has checks if a key exists in the database.
func (d *DB) Has(key []byte) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db.Has(key)
}

// Get retrieves the value stored at key, decompressing it if necessary.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	value, err := d.db.Get(key)
	d.mu.RUnlock()

	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting key %s: %w", string(key), err)
	}
	return decompressIfGzipped(value)
}

// Put compresses and stores a key-value pair, syncing it to disk.
func (d *DB) Put(key []byte, value []byte) error {
	compressedValue, err := compressGzip(value, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("error compressing value for key %s: %w", string(key), err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.db.Put(key, compressedValue); err != nil {
		return fmt.Errorf("error putting key %s: %w", string(key), err)
	}
	if err := d.db.Sync(); err != nil {
		return fmt.Errorf("error syncing after put of %s: %w", string(key), err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (d *DB) Delete(key []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.db.Delete(key); err != nil && !errors.Is(err, bitcask.ErrKeyNotFound) {
		return fmt.Errorf("error deleting key %s: %w", string(key), err)
	}
	return nil
}

// FoldPrefix calls fn for every key starting with prefix, with its decompressed value.
func (d *DB) FoldPrefix(prefix []byte, fn func(key []byte, value []byte) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.db.Scan(prefix, func(key []byte) error {
		rawValue, err := d.db.Get(key)
		if err != nil {
			log.WithError(err).Warnf("Scan: error getting value for key %s", string(key))
			return nil
		}
		value, err := decompressIfGzipped(rawValue)
		if err != nil {
			log.WithError(err).Warnf("Scan: error decompressing value for key %s", string(key))
			return nil
		}
		return fn(key, value)
	})
}

// --- Compression Helpers ---

func decompressIfGzipped(value []byte) ([]byte, error) {
	if !bytes.HasPrefix(value, gzipMagicBytes) {
		return value, nil
	}
	gReader, err := gzip.NewReader(bytes.NewReader(value))
	if err != nil {
		log.WithError(err).Warn("Error creating gzip reader for value, returning raw data.")
		return value, nil
	}
	defer gReader.Close()

	decompressedValue, err := io.ReadAll(gReader)
	if err != nil {
		log.WithError(err).Warn("Error decompressing value, returning raw data.")
		return value, nil
	}
	return decompressedValue, nil
}

func compressGzip(value []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	gWriter, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("error creating gzip writer: %w", err)
	}
	if _, err := gWriter.Write(value); err != nil {
		_ = gWriter.Close()
		return nil, fmt.Errorf("error writing compressed data: %w", err)
	}
	if err := gWriter.Close(); err != nil {
		return nil, fmt.Errorf("error closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}
