package main

import (
	"sort"
	"strconv"
	"sync"
)

type record = map[string]any

// collection is one in-memory CRM table. Records are kept as decoded JSON
// objects so any payload the frontend sends survives a round trip.
type collection struct {
	mu      sync.RWMutex
	idField string
	nextID  int64
	items   map[int64]record
}

func newCollection(idField string) *collection {
	return &collection{idField: idField, nextID: 1, items: make(map[int64]record)}
}

func (c *collection) list() []record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]int64, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]record, len(ids))
	for i, id := range ids {
		out[i] = c.items[id]
	}
	return out
}

func (c *collection) get(id int64) (record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.items[id]
	return r, ok
}

func (c *collection) create(r record) record {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	r[c.idField] = id
	c.items[id] = r
	return r
}

// update merges patch into the stored record.
func (c *collection) update(id int64, patch record) (record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.items[id]
	if !ok {
		return nil, false
	}
	for k, v := range patch {
		r[k] = v
	}
	r[c.idField] = id
	return r, true
}

func (c *collection) delete(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	return true
}

// Store holds every collection the CRM frontend reads.
type Store struct {
	collections map[string]*collection
	// enveloped collections answer {success, data} instead of a bare payload
	enveloped map[string]bool
	sms       *collection
}

func NewStore() *Store {
	s := &Store{
		collections: map[string]*collection{
			"contacts":            newCollection("id"),
			"entreprises":         newCollection("id"),
			"campagnes":           newCollection("id"),
			"opportunites":        newCollection("id_opportunite"),
			"interactions":        newCollection("id_interaction"),
			"utilisateurs":        newCollection("id_utilisateur"),
			"taches":              newCollection("id_tache"),
			"historique-actions":  newCollection("id"),
			"projets-prospection": newCollection("id"),
			"adresses":            newCollection("id"),
			"ha-contacts":         newCollection("id"),
			"email":               newCollection("id_email"),
		},
		enveloped: map[string]bool{"entreprises": true, "opportunites": true, "email": true},
		sms:       newCollection("id"),
	}
	return s
}

func (s *Store) Collection(name string) (*collection, bool) {
	c, ok := s.collections[name]
	return c, ok
}

func (s *Store) Names() []string {
	names := make([]string, 0, len(s.collections))
	for n := range s.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Seed fills the store with a handful of Malagasy contacts.
func (s *Store) Seed() {
	contacts := s.collections["contacts"]
	for _, c := range []record{
		{"prenom": "Ana", "nom": "Rakoto", "email": "ana.rakoto@example.mg", "telephone": "0341234567", "fonction": "Directrice", "entreprise": "Telma"},
		{"prenom": "Bako", "nom": "Rabe", "email": "bako.rabe@example.mg", "telephone": "+261331234567", "fonction": "Acheteur", "entreprise": "Star"},
		{"prenom": "Hery", "nom": "Randria", "email": "hery@example.mg", "telephone": "0321234567", "fonction": "CTO"},
	} {
		contacts.create(c)
	}
	s.collections["entreprises"].create(record{"nom": "Telma", "secteur": "Télécoms"})
	s.collections["campagnes"].create(record{"nom": "Rentrée", "statut": "active"})
	s.collections["utilisateurs"].create(record{"nom": "Admin", "email": "admin@example.mg", "role": "admin", "actif": true})
	s.collections["opportunites"].create(record{"titre": "Flotte mobile", "montant": "12000.00", "etape_pipeline": "proposition"})
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}
