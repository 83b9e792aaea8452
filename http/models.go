package http

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"tabularml/db"
	"tabularml/ml"
)

// ModelStore persists classifiers in the database registry and keeps recently used ones
// decoded in memory.
type ModelStore struct {
	cache *lru.Cache[string, ml.Classifier]
}

// NewModelStore returns a store caching up to cacheSize decoded models.
func NewModelStore(cacheSize int) (*ModelStore, error) {
	cache, err := lru.New[string, ml.Classifier](cacheSize)
	if err != nil {
		return nil, err
	}
	return &ModelStore{cache: cache}, nil
}

// Put encodes c, writes it to the registry under name and caches it.
func (s *ModelStore) Put(name, target string, c ml.Classifier) (db.ModelRecord, error) {
	modelType, payload, err := ml.EncodeModel(c)
	if err != nil {
		return db.ModelRecord{}, err
	}
	rec := db.ModelRecord{
		Name:      name,
		Type:      string(modelType),
		Target:    target,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.SaveModel(rec); err != nil {
		return db.ModelRecord{}, fmt.Errorf("save model %q: %w", name, err)
	}
	s.cache.Add(name, c)
	return rec, nil
}

// Get returns the named classifier, decoding it from the registry on a cache miss.
func (s *ModelStore) Get(name string) (ml.Classifier, error) {
	if c, ok := s.cache.Get(name); ok {
		return c, nil
	}
	rec, err := db.LoadModelRecord(name)
	if err != nil {
		return nil, err
	}
	c, err := ml.DecodeModel(ml.ModelType(rec.Type), rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode model %q: %w", name, err)
	}
	s.cache.Add(name, c)
	return c, nil
}

// List returns the registry entries without payloads.
func (s *ModelStore) List() ([]db.ModelRecord, error) {
	return db.ListModels()
}

// Delete removes name from the registry and the cache.
func (s *ModelStore) Delete(name string) error {
	s.cache.Remove(name)
	return db.DeleteModel(name)
}

// Cached returns the number of decoded models held in memory.
func (s *ModelStore) Cached() int {
	return s.cache.Len()
}
