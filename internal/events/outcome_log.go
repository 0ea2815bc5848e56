package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Wbcubazo/Multiday-mini/internal/model"
)

const (
	DefaultOutcomeLogName = "outcomes.jsonl"
	DefaultMaxSizeMB      = 100
	DefaultMaxBackups     = 5
)

// Record is one line of the outcome log.
type Record struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	TaskID    string                 `json:"task_id,omitempty"`
	To        string                 `json:"to,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Artifacts []string               `json:"artifacts,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Checksum  string                 `json:"checksum,omitempty"`
}

type RotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// OutcomeLog appends JSONL records through a size-rotated writer.
type OutcomeLog struct {
	mu             sync.Mutex
	w              *lumberjack.Logger
	path           string
	enableChecksum bool
}

func NewOutcomeLog(path string, rot RotationConfig) (*OutcomeLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create outcome log dir: %w", err)
	}
	if rot.MaxSizeMB <= 0 {
		rot.MaxSizeMB = DefaultMaxSizeMB
	}
	if rot.MaxBackups <= 0 {
		rot.MaxBackups = DefaultMaxBackups
	}
	return &OutcomeLog{
		path: path,
		w: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    rot.MaxSizeMB,
			MaxBackups: rot.MaxBackups,
			MaxAge:     rot.MaxAgeDays,
			Compress:   rot.Compress,
		},
	}, nil
}

// RecordOutcome logs a finished task as task_completed or task_failed.
func (l *OutcomeLog) RecordOutcome(o model.ExecutionOutcome) error {
	eventType := EventTaskCompleted
	if !o.Done() {
		eventType = EventTaskFailed
	}
	return l.WriteRecord(&Record{
		Timestamp: time.Now().UTC(),
		EventType: string(eventType),
		TaskID:    o.TaskID,
		To:        o.To,
		Status:    string(o.Status),
		Artifacts: o.Artifacts,
		Error:     o.Error,
	})
}

// Log writes a free-form record. task_id in details is lifted to the record.
func (l *OutcomeLog) Log(eventType string, details map[string]interface{}) error {
	rec := Record{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Details:   details,
	}
	if taskID, ok := details["task_id"].(string); ok {
		rec.TaskID = taskID
	}
	return l.WriteRecord(&rec)
}

func (l *OutcomeLog) WriteRecord(rec *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.enableChecksum {
		rec.Checksum = checksum(rec)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal outcome record: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.w.Write(data); err != nil {
		return fmt.Errorf("write outcome record: %w", err)
	}
	return nil
}

// Subscribe mirrors plan_compiled and store_corruption bus events into the
// log. Task outcomes arrive through RecordOutcome instead. The returned
// function detaches both subscriptions.
func (l *OutcomeLog) Subscribe(bus *Bus) func() {
	write := func(e Event) { _ = l.Log(string(e.Type), e.Data) }
	unsubPlan := bus.Subscribe(EventPlanCompiled, write)
	unsubCorrupt := bus.Subscribe(EventStoreCorruption, write)
	return func() {
		unsubPlan()
		unsubCorrupt()
	}
}

func (l *OutcomeLog) EnableChecksum(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enableChecksum = enable
}

// Rotate closes the current file, moves it aside and starts a new one.
func (l *OutcomeLog) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Rotate()
}

func (l *OutcomeLog) Path() string { return l.path }

func (l *OutcomeLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}

// ReadRecords loads every well-formed record of a log file. Malformed lines
// are skipped and counted.
func ReadRecords(path string) ([]Record, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open outcome log: %w", err)
	}
	defer f.Close()

	var (
		records []Record
		skipped int
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return records, skipped, fmt.Errorf("scan outcome log: %w", err)
	}
	return records, skipped, nil
}

// VerifyIntegrity returns the number of records and how many of them carry
// no checksum or a matching one. Malformed lines count as invalid records.
func VerifyIntegrity(path string) (total, valid int, err error) {
	records, skipped, err := ReadRecords(path)
	if err != nil {
		return 0, 0, err
	}
	total = skipped
	for i := range records {
		total++
		rec := records[i]
		if rec.Checksum == "" || rec.Checksum == checksum(&rec) {
			valid++
		}
	}
	return total, valid, nil
}

func checksum(rec *Record) string {
	cp := *rec
	cp.Checksum = ""
	data, err := json.Marshal(cp)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", djb2(data))
}

func djb2(data []byte) uint64 {
	var hash uint64 = 5381
	for _, b := range data {
		hash = ((hash << 5) + hash) + uint64(b)
	}
	return hash
}
