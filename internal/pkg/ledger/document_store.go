package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/stakeaware/accessgate/app/models"
)

// DocumentStore persists the whole ledger as one human-inspectable JSON
// document. Every mutation rewrites the full document, so a single mutex
// guards load/save; writes go through a temp file + rename to stay atomic.
type DocumentStore struct {
	path string
	mu   sync.Mutex
}

type pendingLinkEntry struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type ledgerDocument struct {
	Subscribers       map[string]*models.SubscriptionRecord `json:"subscribers"`
	AppliedReferences map[string]string                     `json:"applied_references"`
	PendingLinks      map[string]pendingLinkEntry           `json:"pending_links"`
}

func newLedgerDocument() *ledgerDocument {
	return &ledgerDocument{
		Subscribers:       make(map[string]*models.SubscriptionRecord),
		AppliedReferences: make(map[string]string),
		PendingLinks:      make(map[string]pendingLinkEntry),
	}
}

// NewDocumentStore creates a document store at path, creating the parent
// directory if needed. A missing file is an empty ledger.
func NewDocumentStore(path string) (*DocumentStore, error) {
	if path == "" {
		return nil, errors.New("ledger document path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	return &DocumentStore{path: path}, nil
}

func (s *DocumentStore) load() (*ledgerDocument, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return newLedgerDocument(), nil
		}
		return nil, fmt.Errorf("read ledger document: %w", err)
	}

	doc := newLedgerDocument()
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse ledger document: %w", err)
	}
	if doc.Subscribers == nil {
		doc.Subscribers = make(map[string]*models.SubscriptionRecord)
	}
	if doc.AppliedReferences == nil {
		doc.AppliedReferences = make(map[string]string)
	}
	if doc.PendingLinks == nil {
		doc.PendingLinks = make(map[string]pendingLinkEntry)
	}
	return doc, nil
}

func (s *DocumentStore) save(doc *ledgerDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger document: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ledger document: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace ledger document: %w", err)
	}
	return nil
}

func (s *DocumentStore) Get(email string) (*models.SubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	rec, ok := doc.Subscribers[email]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (s *DocumentStore) Put(rec *models.SubscriptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	now := time.Now()
	stored := *rec
	if existing, ok := doc.Subscribers[rec.Email]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	doc.Subscribers[rec.Email] = &stored
	return s.save(doc)
}

func (s *DocumentStore) ApplyGrant(rec *models.SubscriptionRecord, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	now := time.Now()
	stored := *rec
	if existing, ok := doc.Subscribers[rec.Email]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	doc.Subscribers[rec.Email] = &stored

	doc.AppliedReferences[reference] = rec.Email

	for ref, entry := range doc.PendingLinks {
		if entry.Email == rec.Email {
			delete(doc.PendingLinks, ref)
		}
	}
	doc.PendingLinks[reference] = pendingLinkEntry{Email: rec.Email, CreatedAt: now}

	// One save covers all three sections, so a write failure leaves the
	// whole grant unapplied.
	return s.save(doc)
}

func (s *DocumentStore) Snapshot() ([]models.SubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]models.SubscriptionRecord, 0, len(doc.Subscribers))
	for _, rec := range doc.Subscribers {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *DocumentStore) FindByChatID(chatID int64) (*models.SubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, rec := range doc.Subscribers {
		if rec.ChatID != nil && *rec.ChatID == chatID {
			out := *rec
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *DocumentStore) HasReference(reference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return false, err
	}
	_, ok := doc.AppliedReferences[reference]
	return ok, nil
}

func (s *DocumentStore) ConsumePendingLink(reference string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return "", err
	}
	entry, ok := doc.PendingLinks[reference]
	if !ok {
		return "", ErrNotFound
	}
	delete(doc.PendingLinks, reference)
	if err := s.save(doc); err != nil {
		return "", err
	}
	return entry.Email, nil
}
