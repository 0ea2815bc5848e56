// Package queue implements the durable FIFO task store.
//
// The whole queue lives in one YAML file that is read in full and rewritten
// in full (temp file + rename) on every mutation. Priority is not consulted:
// tasks leave in exactly the order they arrived. Issued task IDs are appended
// to a sidecar ledger so an ID is never accepted twice, even after the task
// has been dequeued.
//
// The store assumes a single writer process. Within the process all access is
// serialized by a mutex, which also makes DequeueFront safe to call from
// several workers.
package queue

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/Wbcubazo/Multiday-mini/internal/logging"
	"github.com/Wbcubazo/Multiday-mini/internal/model"
	yamlutil "github.com/Wbcubazo/Multiday-mini/internal/yaml"
)

type Store struct {
	path       string
	ledgerPath string
	baseDir    string

	mu           sync.Mutex
	logger       *logging.Logger
	onCorruption func(*CorruptionError)
	write        func(path string, v any) error
}

type Option func(*Store)

func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l.With("store") }
}

// WithCorruptionHandler registers a callback invoked after a corrupt queue
// file was quarantined and replaced by an empty one.
func WithCorruptionHandler(fn func(*CorruptionError)) Option {
	return func(s *Store) { s.onCorruption = fn }
}

// Open prepares a store backed by path. The file is created on first write.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("queue path is required")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}

	s := &Store{
		path:       path,
		ledgerPath: path + ".ids",
		baseDir:    dir,
		logger:     logging.Discard(),
		write:      yamlutil.AtomicWrite,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Enqueue appends task to the tail and persists the queue before returning.
func (s *Store) Enqueue(task model.Task) error {
	return s.EnqueueAll(task)
}

// EnqueueAll appends tasks in order with a single rewrite, so a batch is
// never interleaved with other writes.
func (s *Store) EnqueueAll(tasks ...model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	issued, err := s.readLedger()
	if err != nil {
		return err
	}
	current, err := s.load()
	if err != nil {
		return err
	}
	for _, t := range current {
		issued[t.ID] = true
	}

	batch := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("enqueue: %w", err)
		}
		if issued[t.ID] || batch[t.ID] {
			return fmt.Errorf("enqueue %s: %w", t.ID, ErrDuplicateTaskID)
		}
		batch[t.ID] = true
	}

	if err := s.save(append(current, tasks...)); err != nil {
		return err
	}
	// The tasks are queued at this point, so a ledger failure is not returned:
	// a retry would only be rejected as a duplicate of the pending task.
	if err := s.appendLedger(tasks); err != nil {
		s.logger.Errorf("id_ledger_append_failed path=%s error=%v", s.ledgerPath, err)
	}

	for _, t := range tasks {
		s.logger.Debugf("enqueued task_id=%s to=%s priority=%s", t.ID, t.To, t.Priority)
	}
	return nil
}

// DequeueFront removes and returns the head task. The remainder is persisted
// before returning. ok is false when the store is empty; in that case nothing
// is written.
func (s *Store) DequeueFront() (task model.Task, ok bool, err error) {
	tasks, err := s.DequeueBatch(1)
	if err != nil || len(tasks) == 0 {
		return model.Task{}, false, err
	}
	return tasks[0], true, nil
}

// DequeueBatch removes up to n tasks from the head in one rewrite.
func (s *Store) DequeueBatch(n int) ([]model.Task, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return nil, nil
	}
	if n > len(current) {
		n = len(current)
	}

	head := append([]model.Task(nil), current[:n]...)
	if err := s.save(current[n:]); err != nil {
		return nil, fmt.Errorf("dequeue write-back: %w", err)
	}
	return head, nil
}

// PeekAll returns a copy of the pending tasks in queue order.
func (s *Store) PeekAll() ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]model.Task, len(current))
	copy(out, current)
	return out, nil
}

func (s *Store) Len() (int, error) {
	tasks, err := s.PeekAll()
	return len(tasks), err
}

// load reads the queue file. A missing file is an empty queue, and a
// malformed one is quarantined and treated as empty. I/O errors are returned
// and leave the file where it is.
func (s *Store) load() ([]model.Task, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read queue %s: %w", s.path, err)
	}

	tasks, err := decodeQueue(data)
	if err != nil {
		s.corrupted(err)
		return nil, nil
	}
	return tasks, nil
}

func (s *Store) corrupted(cause error) {
	cerr := &CorruptionError{Path: s.path, Cause: cause}

	quarantined, err := yamlutil.RecoverCorruptedFile(s.baseDir, s.path, yamlutil.FileTypeTaskQueue)
	cerr.QuarantinedTo = quarantined
	if err != nil {
		s.logger.Errorf("store_recovery_failed path=%s error=%v", s.path, err)
	}

	s.logger.Warnf("store_corruption path=%s quarantined=%s error=%v treating_as_empty=true",
		s.path, quarantined, cause)
	if s.onCorruption != nil {
		s.onCorruption(cerr)
	}
}

func (s *Store) save(tasks []model.Task) error {
	if tasks == nil {
		tasks = []model.Task{}
	}
	q := model.TaskQueue{
		SchemaVersion: yamlutil.CurrentSchemaVersion,
		FileType:      yamlutil.FileTypeTaskQueue,
		Tasks:         tasks,
	}
	if err := s.write(s.path, q); err != nil {
		return fmt.Errorf("persist queue %s: %w", s.path, err)
	}
	return nil
}

// decodeQueue accepts the task_queue document and, for compatibility, a bare
// list of task records.
func decodeQueue(data []byte) ([]model.Task, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var root yamlv3.Node
	if err := yamlv3.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, nil
	}

	doc := root.Content[0]
	switch doc.Kind {
	case yamlv3.SequenceNode:
		var tasks []model.Task
		if err := doc.Decode(&tasks); err != nil {
			return nil, fmt.Errorf("decode task list: %w", err)
		}
		return tasks, nil
	case yamlv3.MappingNode:
		if err := yamlutil.CheckHeader(data, yamlutil.FileTypeTaskQueue); err != nil {
			return nil, err
		}
		var q model.TaskQueue
		if err := doc.Decode(&q); err != nil {
			return nil, fmt.Errorf("decode task_queue: %w", err)
		}
		return q.Tasks, nil
	default:
		return nil, errors.New("expected a task_queue document or a list of tasks")
	}
}

func (s *Store) readLedger() (map[string]bool, error) {
	issued := make(map[string]bool)
	f, err := os.Open(s.ledgerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return issued, nil
		}
		return nil, fmt.Errorf("open id ledger: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			issued[id] = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read id ledger: %w", err)
	}
	return issued, nil
}

func (s *Store) appendLedger(tasks []model.Task) error {
	f, err := os.OpenFile(s.ledgerPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open id ledger: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	for _, t := range tasks {
		buf.WriteString(t.ID)
		buf.WriteByte('\n')
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append id ledger: %w", err)
	}
	return f.Sync()
}
