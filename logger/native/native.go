package native

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"finvault/e2ee/logger"

	"github.com/docker/go-units"
	"github.com/google/uuid"
)

// Native writes JSON lines to a file from a single background worker.
// Every entry carries the id of the process session that wrote it.
type Native struct {
	filePath string
	maxSize  int64
	maxAge   time.Duration
	level    logger.Level
	logs     chan *logger.Log
	sessid   string
	file     *os.File
	stopped  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// New opens filePath for appending. maxSize is a human size such as "15MB";
// entries older than maxAge are dropped on Rotate, zero keeps them all.
func New(filePath, maxSize string, maxAge time.Duration, level logger.Level) (*Native, error) {
	size, err := units.FromHumanSize(maxSize)
	if err != nil {
		return nil, fmt.Errorf("invalid log size %q : %v", maxSize, err)
	}

	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	native := &Native{
		filePath: filePath,
		maxSize:  size,
		maxAge:   maxAge,
		level:    level,
		logs:     make(chan *logger.Log, 25),
		sessid:   uuid.NewString(),
		file:     file,
	}

	native.ctx, native.cancel = context.WithCancel(context.Background())
	native.wg.Add(1)
	go func() {
		defer native.wg.Done()
		if err := native.worker(native.ctx); err != nil {
			fmt.Fprintf(os.Stderr, "log worker stopped: %v\n", err)
		}
	}()

	return native, nil
}

func (s *Native) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessid
}

// With overrides the session id stamped on later entries.
func (s *Native) With(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessid = id
}

// Stop drains pending entries and closes the file. Later entries are
// dropped.
func (s *Native) Stop() {
	if s.stopped.Swap(true) {
		return
	}
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Close()
}

// Rotate trims the file once it grows past maxSize, keeping the newest
// half, and drops entries older than maxAge.
func (s *Native) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, err := os.Stat(s.filePath)
	if err != nil {
		return err
	}
	if stats.Size() <= s.maxSize && s.maxAge == 0 {
		return nil
	}

	file, err := os.Open(s.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	cutoff := int64(0)
	if s.maxAge > 0 {
		cutoff = time.Now().Add(-s.maxAge).UnixMilli()
	}

	lines := make([][]byte, 0)
	currSize := int64(0)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		log := new(logger.Log)
		if err := json.Unmarshal(scanner.Bytes(), log); err != nil {
			continue
		}
		if log.Time < cutoff {
			continue
		}
		line := append([]byte{}, scanner.Bytes()...)
		lines = append(lines, line)
		currSize += int64(len(line)) + 1
	}
	if err = scanner.Err(); err != nil {
		return err
	}

	start := 0
	if stats.Size() > s.maxSize {
		threshold := s.maxSize / 2 // keep half
		for currSize > threshold && start < len(lines) {
			currSize -= int64(len(lines[start])) + 1
			start++
		}
	}

	temp, err := os.CreateTemp("", "finvault-logs-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(temp.Name())

	w := bufio.NewWriter(temp)
	for _, line := range lines[start:] {
		if _, err = w.Write(append(line, '\n')); err != nil {
			temp.Close()
			return err
		}
	}
	if err = w.Flush(); err != nil {
		temp.Close()
		return err
	}
	if _, err = temp.Seek(0, io.SeekStart); err != nil {
		temp.Close()
		return err
	}

	s.file.Close()
	out, err := os.OpenFile(s.filePath, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		temp.Close()
		return err
	}
	if _, err = io.Copy(out, temp); err != nil {
		temp.Close()
		out.Close()
		return err
	}
	temp.Close()
	out.Close()

	s.file, err = os.OpenFile(s.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}

	s.write(&logger.Log{
		SessionID: s.sessid,
		Level:     logger.InfoLevel,
		Time:      time.Now().UnixMilli(),
		Message:   fmt.Sprintf("rotated logs, was %s, kept %s", units.HumanSize(float64(stats.Size())), units.HumanSize(float64(currSize))),
	})
	return nil
}

func (s *Native) Log(level logger.Level, msg string, args ...any) {
	if s.stopped.Load() || !level.Enabled(s.level) {
		return
	}

	s.mu.Lock()
	sessid := s.sessid
	s.mu.Unlock()

	select {
	case s.logs <- &logger.Log{
		SessionID: sessid,
		Level:     level,
		Time:      time.Now().UnixMilli(),
		Message:   msg,
		Args:      args,
	}:
	case <-s.ctx.Done():
	}
}

// write expects s.mu to be held.
func (s *Native) write(log *logger.Log) error {
	// Keep json, not text.
	// Storage is cheap, debug time ain't.
	bytes, err := json.Marshal(log)
	if err != nil {
		return err
	}
	_, err = s.file.Write(append(bytes, '\n'))
	return err
}

func (s *Native) worker(ctx context.Context) error {
	processLog := func(log *logger.Log) error {
		if len(log.Args) > 0 {
			log.Message = fmt.Sprintf(log.Message, log.Args...)
			log.Args = nil
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		return s.write(log)
	}

outer:
	for {
		select {
		case <-ctx.Done():
			break outer
		case log := <-s.logs:
			if err := processLog(log); err != nil {
				return err
			}
		}
	}

	for {
		select {
		case log := <-s.logs:
			if err := processLog(log); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}
