// Package runner owns the lifecycle of one yt-dlp subprocess per job: it
// builds the argument vector, spawns the process, streams its output through
// the progress parser, enforces cancellation, and reports a terminal outcome
// back to the scheduler. It never touches the scheduler's active set.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hunght/gograb/internal/domain"
	"github.com/hunght/gograb/internal/logger"
	"github.com/hunght/gograb/internal/parser"
)

// Store is the slice of the job store the runner needs: throttled progress
// writes and the CAS status transition.
type Store interface {
	UpdateProgress(id string, percent float64, speed string, etaSeconds int64) error
	Transition(id string, from, to domain.JobStatus, fields *domain.TransitionFields) (bool, error)
}

type OutcomeKind int

const (
	OutcomeCompleted OutcomeKind = iota
	OutcomeFailed
	OutcomeCancelled
)

// Outcome is what one finished run reports to the scheduler. The engine owns
// the terminal store write; the runner only decides what happened.
type Outcome struct {
	Kind          OutcomeKind
	FilePath      string
	FileSizeBytes int64
	ErrorMessage  string
	ErrorKind     domain.ErrorKind
	Retryable     bool
}

type Options struct {
	Binary           string
	OutDir           string
	FilenameTemplate string
	ExtraArgs        []string
	ProgressInterval time.Duration
	IdleTimeout      time.Duration
	GraceTimeout     time.Duration
	Rules            Rules
}

type Runner struct {
	store Store
	log   *logger.Logger
	opts  Options
}

func New(store Store, log *logger.Logger, opts Options) *Runner {
	if opts.Binary == "" {
		opts.Binary = "yt-dlp"
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	if opts.GraceTimeout <= 0 {
		opts.GraceTimeout = 10 * time.Second
	}
	if len(opts.Rules.Restricted) == 0 && len(opts.Rules.Network) == 0 && len(opts.Rules.Format) == 0 {
		opts.Rules = DefaultRules()
	}

	return &Runner{store: store, log: log, opts: opts}
}

// Run executes one job end to end and returns only after the subprocess is
// confirmed dead. The caller has already moved the job to queued; Run claims
// it with the queued -> downloading swap once the spawn succeeds.
func (r *Runner) Run(ctx context.Context, job *domain.DownloadJob) Outcome {
	binPath, err := exec.LookPath(r.opts.Binary)
	if err != nil {
		return r.spawnFailed(job, fmt.Errorf("%s not found in PATH: %w", r.opts.Binary, err))
	}

	outDir := r.opts.OutDir
	if job.OutputPath != "" {
		outDir = job.OutputPath
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return r.spawnFailed(job, fmt.Errorf("failed to create output directory: %w", err))
	}

	args := buildArgs(job, r.opts.OutDir, r.opts.FilenameTemplate, r.opts.ExtraArgs)

	// procCtx lets the idle watchdog kill a stuck process without the
	// engine's cancel signal being involved.
	procCtx, stopProc := context.WithCancel(ctx)
	defer stopProc()

	cmd := exec.CommandContext(procCtx, binPath, args...)
	cmd.Cancel = func() error {
		// Best-effort TERM first; WaitDelay escalates to a kill.
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.opts.GraceTimeout

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return r.spawnFailed(job, fmt.Errorf("setup stdout pipe: %w", err))
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return r.spawnFailed(job, fmt.Errorf("setup stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return r.spawnFailed(job, fmt.Errorf("start %s: %w", r.opts.Binary, err))
	}

	// The CAS is the mutual-exclusion mechanism: if the swap loses, another
	// actor (a cancel request, a racing restart) already moved the job, and
	// this process must not run on its behalf.
	claimed, err := r.store.Transition(job.ID, domain.StatusQueued, domain.StatusDownloading, nil)
	if err != nil || !claimed {
		stopProc()
		_ = cmd.Wait()
		if err != nil {
			r.log.Error("[Runner] %s: claim failed: %v", job.ID, err)
		}
		return Outcome{Kind: OutcomeCancelled}
	}

	acc := newAccumulator(job, r.store, r.log, r.opts.ProgressInterval)

	var wg sync.WaitGroup
	var streamErr error
	var streamErrMu sync.Mutex

	read := func(rd io.Reader, stderr bool) {
		defer wg.Done()
		scanner := bufio.NewScanner(rd)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			acc.observe(line, stderr)
		}
		if err := scanner.Err(); err != nil {
			streamErrMu.Lock()
			if streamErr == nil {
				streamErr = err
			}
			streamErrMu.Unlock()
		}
	}

	wg.Add(2)
	go read(stdoutPipe, false)
	go read(stderrPipe, true)

	// Idle watchdog: a subprocess that stops reporting progress is treated
	// as stuck, not left hanging forever.
	watchdogDone := make(chan struct{})
	var timedOut atomic.Bool
	go func() {
		t := time.NewTicker(r.opts.IdleTimeout / 4)
		defer t.Stop()
		for {
			select {
			case <-watchdogDone:
				return
			case <-t.C:
				if acc.idleFor() > r.opts.IdleTimeout {
					timedOut.Store(true)
					stopProc()
					return
				}
			}
		}
	}()

	wg.Wait()
	waitErr := cmd.Wait()
	close(watchdogDone)

	// Terminal decisions happen only here, with the process confirmed dead.
	if ctx.Err() != nil {
		return Outcome{Kind: OutcomeCancelled}
	}

	if timedOut.Load() {
		return Outcome{
			Kind:         OutcomeFailed,
			ErrorMessage: fmt.Sprintf("no progress for %s, download considered stuck", r.opts.IdleTimeout),
			ErrorKind:    domain.ErrorKindNetwork,
			Retryable:    true,
		}
	}

	filePath, fileSize := acc.verifyOutput()

	if waitErr == nil && filePath != "" {
		acc.flushFinal()
		return Outcome{Kind: OutcomeCompleted, FilePath: filePath, FileSizeBytes: fileSize}
	}

	exitCode := 0
	var exitError *exec.ExitError
	if errors.As(waitErr, &exitError) {
		exitCode = exitError.ExitCode()
	}

	message := acc.errorText()
	if message == "" && waitErr != nil {
		message = waitErr.Error()
	}

	streamErrMu.Lock()
	if streamErr != nil && message == "" {
		message = fmt.Sprintf("output stream broken: %v", streamErr)
	}
	streamErrMu.Unlock()

	if message == "" {
		message = "download finished without producing an output file"
	}

	kind, retryable := Classify(exitCode, message, filePath != "", r.opts.Rules)

	return Outcome{
		Kind:         OutcomeFailed,
		ErrorMessage: message,
		ErrorKind:    kind,
		Retryable:    retryable,
	}
}

// spawnFailed reports a job that never got a running subprocess. Unknown and
// retryable: the retry cap bounds automation, and a manual retry must stay
// available once the operator fixes the install.
func (r *Runner) spawnFailed(job *domain.DownloadJob, err error) Outcome {
	r.log.Error("[Runner] %s: spawn failed: %v", job.ID, err)
	return Outcome{
		Kind:         OutcomeFailed,
		ErrorMessage: err.Error(),
		ErrorKind:    domain.ErrorKindUnknown,
		Retryable:    true,
	}
}

// splitByNewlineOrCR splits on \n and \r so yt-dlp's carriage-return
// progress rewrites come through as individual lines.
func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// errorTail keeps a bounded window of stderr lines for classification.
const errorTailLines = 64

type accumulator struct {
	job      *domain.DownloadJob
	store    Store
	log      *logger.Logger
	interval time.Duration

	mu          sync.Mutex
	percent     float64 // high-water mark; yt-dlp restarts percent per stream
	speed       string
	etaSeconds  int64
	destination string
	stderrTail  []string
	lastEvent   time.Time
	lastFlush   time.Time
}

func newAccumulator(job *domain.DownloadJob, store Store, log *logger.Logger, interval time.Duration) *accumulator {
	return &accumulator{
		job:       job,
		store:     store,
		log:       log,
		interval:  interval,
		lastEvent: time.Now(),
	}
}

func (a *accumulator) observe(line string, stderr bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if stderr {
		a.stderrTail = append(a.stderrTail, line)
		if len(a.stderrTail) > errorTailLines {
			a.stderrTail = a.stderrTail[1:]
		}
	}

	ev := parser.ParseLine(line)
	if ev == nil {
		return
	}

	a.lastEvent = time.Now()

	if ev.Destination != "" {
		a.destination = ev.Destination
	}
	if ev.HasPercent && ev.Percent > a.percent {
		a.percent = ev.Percent
	}
	if ev.Speed != "" {
		a.speed = ev.Speed
	}
	if ev.ETASeconds > 0 {
		a.etaSeconds = ev.ETASeconds
	}

	// Flush at a bounded rate; the 100% event always goes through so a
	// finished stream is never shown stale.
	if time.Since(a.lastFlush) >= a.interval || a.percent >= 100 {
		a.flushLocked()
	}
}

func (a *accumulator) flushLocked() {
	a.lastFlush = time.Now()
	if err := a.store.UpdateProgress(a.job.ID, a.percent, a.speed, a.etaSeconds); err != nil {
		a.log.Warn("[Runner] %s: progress write failed: %v", a.job.ID, err)
	}
}

func (a *accumulator) flushFinal() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.percent = 100
	a.flushLocked()
}

func (a *accumulator) idleFor() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Since(a.lastEvent)
}

// verifyOutput checks that the announced destination actually exists and is
// non-empty. A zero exit without a real file is not a success.
func (a *accumulator) verifyOutput() (string, int64) {
	a.mu.Lock()
	dest := a.destination
	a.mu.Unlock()

	if dest == "" {
		return "", 0
	}

	info, err := os.Stat(dest)
	if err != nil || info.Size() == 0 {
		return "", 0
	}
	return dest, info.Size()
}

func (a *accumulator) errorText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.TrimSpace(strings.Join(a.stderrTail, "\n"))
}
