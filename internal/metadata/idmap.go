package metadata

import (
	"encoding/json"
	"os"

	log "github.com/sirupsen/logrus"
)

// NameIDMap resolves series and group names to platform identifiers.
type NameIDMap struct {
	Manga map[string]string `json:"manga"`
	Group map[string]string `json:"group"`
}

// LoadNameIDMap reads the lookup file. A missing or unreadable file yields
// empty tables so archives named by id still work.
func LoadNameIDMap(path string) NameIDMap {
	m := NameIDMap{}
	raw, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).Warnf("Name to id map %s not readable, using empty map", path)
		return m.normalized()
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		log.WithError(err).Warnf("Name to id map %s is not valid JSON, using empty map", path)
		return NameIDMap{}.normalized()
	}
	log.Debugf("Loaded %d series and %d group names from %s", len(m.Manga), len(m.Group), path)
	return m.normalized()
}

func (m NameIDMap) normalized() NameIDMap {
	if m.Manga == nil {
		m.Manga = map[string]string{}
	}
	if m.Group == nil {
		m.Group = map[string]string{}
	}
	return m
}
