package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go-mangadex-upload/internal/models"

	log "github.com/sirupsen/logrus"
)

const (
	credentialKey = "auth_credential"
	historyPrefix = "u_"
)

// --- Credential ---

// LoadCredential returns the stored session, or ErrNotFound.
func (d *DB) LoadCredential() (models.Credential, error) {
	raw, err := d.Get([]byte(credentialKey))
	if err != nil {
		return models.Credential{}, err
	}
	var cred models.Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return models.Credential{}, fmt.Errorf("error unmarshalling stored credential: %w", err)
	}
	return cred, nil
}

// SaveCredential overwrites the stored session.
func (d *DB) SaveCredential(cred models.Credential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("error marshalling credential: %w", err)
	}
	return d.Put([]byte(credentialKey), raw)
}

// ClearCredential removes the stored session.
func (d *DB) ClearCredential() error {
	return d.Delete([]byte(credentialKey))
}

// --- Upload history ---

func historyKey(fingerprint string) []byte {
	return []byte(historyPrefix + fingerprint)
}

// GetUpload returns the history record for an archive fingerprint.
func (d *DB) GetUpload(fingerprint string) (models.UploadRecord, error) {
	raw, err := d.Get(historyKey(fingerprint))
	if err != nil {
		return models.UploadRecord{}, err
	}
	var rec models.UploadRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.UploadRecord{}, fmt.Errorf("error unmarshalling upload record %s: %w", fingerprint, err)
	}
	return rec, nil
}

// IsCommitted reports whether the archive with this fingerprint was already committed.
func (d *DB) IsCommitted(fingerprint string) bool {
	rec, err := d.GetUpload(fingerprint)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.WithError(err).Warnf("Could not read history for %s", fingerprint)
		}
		return false
	}
	return rec.Status == models.StatusCommitted
}

// PutUpload stores rec under its fingerprint. A committed record is never
// replaced by a failed one.
func (d *DB) PutUpload(rec models.UploadRecord) error {
	if rec.Fingerprint == "" {
		return errors.New("cannot store upload record: fingerprint is empty")
	}
	if rec.Status == models.StatusFailed && d.IsCommitted(rec.Fingerprint) {
		log.Debugf("Keeping committed history record for %s", rec.ArchiveName)
		return nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("error marshalling upload record for %s: %w", rec.ArchiveName, err)
	}
	return d.Put(historyKey(rec.Fingerprint), raw)
}

// ListUploads returns every history record, newest first.
func (d *DB) ListUploads() ([]models.UploadRecord, error) {
	var records []models.UploadRecord
	err := d.FoldPrefix([]byte(historyPrefix), func(key, value []byte) error {
		var rec models.UploadRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			log.WithError(err).Warnf("Skipping unreadable history entry %s", string(key))
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning upload history: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// PruneFailed deletes every failed history record and returns how many
// were removed. Committed records are kept.
func (d *DB) PruneFailed() (int, error) {
	records, err := d.ListUploads()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, rec := range records {
		if rec.Status != models.StatusFailed || rec.Fingerprint == "" {
			continue
		}
		if err := d.Delete(historyKey(rec.Fingerprint)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
