package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anp-network/node/internal/logger"
)

// FileStore is the filesystem-backed Store implementation: one directory
// tree under Root holding identity.json, threads/, patterns.json,
// context.md, corrections.log (NDJSON), peers.json, budget.json, and keys/.
// All operations are serialized behind a single mutex since the underlying
// filesystem offers no atomic read-modify-write primitive of its own.
type FileStore struct {
	mu   sync.Mutex
	Root string
}

// NewFileStore returns a FileStore rooted at dir. The directory and its
// threads/ and keys/ subdirectories are created if absent.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "threads"), 0755); err != nil {
		return nil, logger.New(logger.ErrCodeInternal, "failed to create threads directory", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "keys"), 0755); err != nil {
		return nil, logger.New(logger.ErrCodeInternal, "failed to create keys directory", err)
	}
	return &FileStore{Root: dir}, nil
}

func (s *FileStore) path(elem ...string) string {
	return filepath.Join(append([]string{s.Root}, elem...)...)
}

func readJSONFile(path string, out interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return true, err
	}
	return true, nil
}

func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadIdentity returns the node identity record. Unlike every other read, a
// missing record (and missing published document) is a hard error, since an
// identity-less node cannot operate.
func (s *FileStore) ReadIdentity(ctx context.Context) (IdentityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var record IdentityRecord
	found, err := readJSONFile(s.path("identity.json"), &record)
	if err != nil {
		return IdentityRecord{}, logger.New(logger.ErrCodeInternal, "failed to parse identity.json", err)
	}
	if found {
		return record, nil
	}

	var doc struct {
		ID string `json:"id"`
	}
	found, err = readJSONFile(s.path("did.json"), &doc)
	if err != nil {
		return IdentityRecord{}, logger.New(logger.ErrCodeInternal, "failed to parse did.json", err)
	}
	if found && doc.ID != "" {
		return IdentityRecord{ID: doc.ID}, nil
	}

	return IdentityRecord{}, logger.New(logger.ErrCodeNotFound, "no identity.json or did.json found", nil)
}

func (s *FileStore) WriteIdentity(ctx context.Context, record IdentityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONFile(s.path("identity.json"), record)
}

func (s *FileStore) ReadPatterns(ctx context.Context) ([]Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	patterns := []Pattern{}
	if _, err := readJSONFile(s.path("patterns.json"), &patterns); err != nil {
		return nil, err
	}
	return patterns, nil
}

func (s *FileStore) WritePatterns(ctx context.Context, patterns []Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if patterns == nil {
		patterns = []Pattern{}
	}
	return writeJSONFile(s.path("patterns.json"), patterns)
}

// AddPattern appends p, deduplicated by case-folded description: an
// existing pattern with the same description is replaced rather than
// duplicated.
func (s *FileStore) AddPattern(ctx context.Context, p Pattern) error {
	existing, err := s.ReadPatterns(ctx)
	if err != nil {
		return err
	}
	key := strings.ToLower(p.Description)
	replaced := false
	for i, e := range existing {
		if strings.ToLower(e.Description) == key {
			existing[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		existing = append(existing, p)
	}
	return s.WritePatterns(ctx, existing)
}

func (s *FileStore) ReadContext(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path("context.md"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

func (s *FileStore) WriteContext(ctx context.Context, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.WriteFile(s.path("context.md"), []byte(content), 0644)
}

func (s *FileStore) AppendContext(ctx context.Context, section, content string) error {
	existing, err := s.ReadContext(ctx)
	if err != nil {
		return err
	}
	updated := existing + "\n## " + section + "\n\n" + content + "\n"
	return s.WriteContext(ctx, updated)
}

func (s *FileStore) AppendCorrection(ctx context.Context, c Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Timestamp == "" {
		c.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	line, err := json.Marshal(c)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.path("corrections.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

func (s *FileStore) ReadCorrections(ctx context.Context) ([]Correction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readCorrectionsLocked()
}

func (s *FileStore) readCorrectionsLocked() ([]Correction, error) {
	data, err := os.ReadFile(s.path("corrections.log"))
	if err != nil {
		if os.IsNotExist(err) {
			return []Correction{}, nil
		}
		return nil, err
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	corrections := make([]Correction, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var c Correction
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			return nil, err
		}
		corrections = append(corrections, c)
	}
	return corrections, nil
}

func (s *FileStore) ReadPeers(ctx context.Context) ([]Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers := []Peer{}
	if _, err := readJSONFile(s.path("peers.json"), &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

func (s *FileStore) WritePeers(ctx context.Context, peers []Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if peers == nil {
		peers = []Peer{}
	}
	return writeJSONFile(s.path("peers.json"), peers)
}

func (s *FileStore) UpsertPeer(ctx context.Context, p Peer) error {
	peers, err := s.ReadPeers(ctx)
	if err != nil {
		return err
	}
	for i, existing := range peers {
		if existing.DID == p.DID {
			peers[i] = p
			return s.WritePeers(ctx, peers)
		}
	}
	peers = append(peers, p)
	return s.WritePeers(ctx, peers)
}

func (s *FileStore) DeletePeer(ctx context.Context, did string) error {
	peers, err := s.ReadPeers(ctx)
	if err != nil {
		return err
	}
	filtered := peers[:0]
	for _, p := range peers {
		if p.DID != did {
			filtered = append(filtered, p)
		}
	}
	return s.WritePeers(ctx, filtered)
}

func defaultBudget() Budget {
	return Budget{
		MonthlyLimitTokens: 500_000,
		AutonomyThreshold:  DefaultAutonomyThreshold,
		LastReset:          time.Now().UTC().Format(time.RFC3339),
		Mood:               MoodModerate,
	}
}

// ReadBudget applies the monthly-reset rule (counters to zero, last_reset to
// now) whenever the stored last_reset falls in an earlier UTC month than
// now, persisting the reset before returning.
func (s *FileStore) ReadBudget(ctx context.Context) (Budget, error) {
	s.mu.Lock()
	budget := defaultBudget()
	found, err := readJSONFile(s.path("budget.json"), &budget)
	s.mu.Unlock()
	if err != nil {
		return Budget{}, err
	}
	if !found {
		if writeErr := s.WriteBudget(ctx, budget); writeErr != nil {
			return Budget{}, writeErr
		}
		return budget, nil
	}

	if needsMonthlyReset(budget.LastReset, time.Now().UTC()) {
		budget.UsedTokens = 0
		budget.CallsTotal = 0
		budget.LastReset = time.Now().UTC().Format(time.RFC3339)
		if err := s.WriteBudget(ctx, budget); err != nil {
			return Budget{}, err
		}
	}

	return budget, nil
}

func needsMonthlyReset(lastReset string, now time.Time) bool {
	t, err := time.Parse(time.RFC3339, lastReset)
	if err != nil {
		return false
	}
	t = t.UTC()
	return t.Year() < now.Year() || (t.Year() == now.Year() && t.Month() < now.Month())
}

func (s *FileStore) WriteBudget(ctx context.Context, b Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONFile(s.path("budget.json"), b)
}

func (s *FileStore) RecordUsage(ctx context.Context, tokens int64) error {
	budget, err := s.ReadBudget(ctx)
	if err != nil {
		return err
	}
	budget.UsedTokens += tokens
	budget.CallsTotal++
	return s.WriteBudget(ctx, budget)
}

func (s *FileStore) IsOverBudget(ctx context.Context) (bool, error) {
	budget, err := s.ReadBudget(ctx)
	if err != nil {
		return false, err
	}
	return budget.UsedTokens >= budget.MonthlyLimitTokens, nil
}

func (s *FileStore) GetMood(ctx context.Context) (string, error) {
	budget, err := s.ReadBudget(ctx)
	if err != nil {
		return "", err
	}
	if budget.Mood == "" {
		return MoodModerate, nil
	}
	return budget.Mood, nil
}

func (s *FileStore) SetMood(ctx context.Context, mood string) error {
	if !validMood(mood) {
		return &ErrInvalidMood{Value: mood}
	}
	budget, err := s.ReadBudget(ctx)
	if err != nil {
		return err
	}
	budget.Mood = mood
	return s.WriteBudget(ctx, budget)
}

func (s *FileStore) GetAutoApprove(ctx context.Context) (bool, error) {
	budget, err := s.ReadBudget(ctx)
	if err != nil {
		return false, err
	}
	return budget.AutoApprove, nil
}

func (s *FileStore) SetAutoApprove(ctx context.Context, enabled bool) error {
	budget, err := s.ReadBudget(ctx)
	if err != nil {
		return err
	}
	budget.AutoApprove = enabled
	return s.WriteBudget(ctx, budget)
}

func (s *FileStore) threadPath(threadID string) string {
	return s.path("threads", threadID+".json")
}

func (s *FileStore) ReadThread(ctx context.Context, threadID string) ([]map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := []map[string]interface{}{}
	if _, err := readJSONFile(s.threadPath(threadID), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *FileStore) WriteThread(ctx context.Context, threadID string, messages []map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if messages == nil {
		messages = []map[string]interface{}{}
	}
	return writeJSONFile(s.threadPath(threadID), messages)
}

func (s *FileStore) AppendToThread(ctx context.Context, threadID string, message map[string]interface{}) error {
	messages, err := s.ReadThread(ctx, threadID)
	if err != nil {
		return err
	}
	messages = append(messages, message)
	return s.WriteThread(ctx, threadID, messages)
}

func (s *FileStore) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.threadPath(threadID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *FileStore) ListThreads(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.path("threads"))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) CorrectionCount(ctx context.Context) (int, error) {
	corrections, err := s.ReadCorrections(ctx)
	if err != nil {
		return 0, err
	}
	return len(corrections), nil
}

func (s *FileStore) PatternCount(ctx context.Context) (int, error) {
	patterns, err := s.ReadPatterns(ctx)
	if err != nil {
		return 0, err
	}
	return len(patterns), nil
}

func (s *FileStore) ContextWordCount(ctx context.Context) (int, error) {
	content, err := s.ReadContext(ctx)
	if err != nil {
		return 0, err
	}
	return len(strings.Fields(content)), nil
}

// Close is a no-op for the filesystem backend; it exists to satisfy Store.
func (s *FileStore) Close() error {
	return nil
}

var _ Store = (*FileStore)(nil)
