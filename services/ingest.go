package services

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parolam/breach-checker/models"
	"github.com/parolam/breach-checker/store"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
)

const (
	leakFileExt = ".txt"

	// delimiters separate email from password; only the first one found on
	// a line counts, the rest belong to the password.
	delimiters = ":,;\t"

	progressStep = 10000
	ctxCheckStep = 4096
)

var newline = []byte{'\n'}

var ErrInvalidBatchSize = errors.New("batch size must be positive")

// FlushError wraps a failed store write. It is fatal for a run: the rows in
// the failed batch were not written.
type FlushError struct {
	Err error
}

func (e *FlushError) Error() string { return "flushing batch: " + e.Err.Error() }
func (e *FlushError) Unwrap() error { return e.Err }

// ParseLine splits a line into an email/password pair on the first
// delimiter. Lines without a delimiter or with an empty side are rejected.
// Invalid UTF-8 sequences are dropped.
func ParseLine(line string) (email, password string, ok bool) {
	line = strings.TrimSpace(strings.ToValidUTF8(line, ""))
	i := strings.IndexAny(line, delimiters)
	if i < 0 {
		return "", "", false
	}
	email, password = line[:i], line[i+1:]
	if email == "" || password == "" {
		return "", "", false
	}
	return email, password, true
}

type leakFile struct {
	path    string
	dir     string
	num     uint64
	numeric bool
}

// DiscoverFiles returns every *.txt file under root, ordered by parent
// directory name, then by numeric file stem. Files whose stem is not a
// number sort after the numbered ones of the same directory.
func DiscoverFiles(root string) ([]string, error) {
	var found []leakFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			pterm.Warning.Printf("skipping %s: %v\n", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || filepath.Ext(d.Name()) != leakFileExt {
			return nil
		}

		f := leakFile{path: path, dir: filepath.Base(filepath.Dir(path))}
		stem := strings.TrimSuffix(d.Name(), leakFileExt)
		if isDigits(stem) {
			if n, err := strconv.ParseUint(stem, 10, 64); err == nil {
				f.num, f.numeric = n, true
			}
		}
		found = append(found, f)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking %s", root)
	}

	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.dir != b.dir {
			return a.dir < b.dir
		}
		if a.numeric != b.numeric {
			return a.numeric
		}
		if a.numeric && a.num != b.num {
			return a.num < b.num
		}
		return a.path < b.path
	})

	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// CountLines counts the lines of every readable file. It only feeds the
// progress bar, so unreadable files count as zero.
func CountLines(files []string) int {
	total := 0
	buf := make([]byte, 64*1024)
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			pterm.Warning.Printf("error counting lines of %s: %v\n", filepath.Base(path), err)
			continue
		}
		var last byte = '\n'
		for {
			n, err := f.Read(buf)
			total += bytes.Count(buf[:n], newline)
			if n > 0 {
				last = buf[n-1]
			}
			if err != nil {
				break
			}
		}
		f.Close()
		// unterminated last line
		if last != '\n' {
			total++
		}
	}
	return total
}

// Result summarises an ingestion run.
type Result struct {
	RunID       string
	Files       int
	FailedFiles int
	Lines       int64
	Skipped     int64
	Rows        int64
	Flushes     int
}

// Ingestor turns credential files into password_leaks and email_leaks rows
// for a single breach. It is not safe for concurrent use: one run owns one
// pair of buffers.
type Ingestor struct {
	Store     store.Store
	BatchSize int
	BreachID  uint32
	// Now stamps email rows with their version; defaults to time.Now.
	Now func() time.Time
	// Progress enables the console progress bar and its line counting pass.
	Progress bool
	// Cache, when set, loses the cached ranges of every prefix a flush wrote.
	Cache *store.Cache

	emails    []models.EmailLeak
	passwords []models.PasswordLeak
	result    Result
	bar       *pterm.ProgressbarPrinter
	pending   int
}

// Run ingests files in order. A file that cannot be read is logged and
// skipped. A failed flush stops the run and is returned as *FlushError;
// batches flushed before it stay written.
func (in *Ingestor) Run(ctx context.Context, files []string) (Result, error) {
	if in.BatchSize <= 0 {
		return Result{}, ErrInvalidBatchSize
	}
	if in.Now == nil {
		in.Now = time.Now
	}
	in.emails = make([]models.EmailLeak, 0, in.BatchSize)
	in.passwords = make([]models.PasswordLeak, 0, in.BatchSize)
	in.result = Result{RunID: uuid.NewString()}

	pterm.Info.Printf("run %s: importing %d files into breach %d ...\n", in.result.RunID, len(files), in.BreachID)

	if in.Progress {
		bar, err := pterm.DefaultProgressbar.
			WithTotal(CountLines(files)).
			WithTitle("processing data").
			Start()
		if err == nil {
			in.bar = bar
			defer bar.Stop()
		}
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return in.finish(ctx, err)
		}

		in.result.Files++
		err := in.processFile(ctx, path)
		if err == nil {
			continue
		}

		var fe *FlushError
		if errors.As(err, &fe) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return in.finish(ctx, err)
		}
		in.result.FailedFiles++
		CounterFileErrors.Inc()
		pterm.Warning.Printf("error while processing %s: %v\n", filepath.Base(path), err)
	}

	return in.finish(ctx, nil)
}

// finish flushes whatever is still buffered. After a failed flush the
// buffers are dropped; on cancellation they are still written so that work
// already parsed is not lost.
func (in *Ingestor) finish(ctx context.Context, cause error) (Result, error) {
	in.tick(0, "")
	var fe *FlushError
	if cause != nil && errors.As(cause, &fe) {
		return in.result, cause
	}

	if len(in.emails) > 0 || len(in.passwords) > 0 {
		pterm.Info.Println("sending remaining rows ...")
		if err := in.flush(context.WithoutCancel(ctx)); err != nil {
			if cause == nil {
				cause = err
			}
			return in.result, cause
		}
	}

	if cause != nil {
		return in.result, cause
	}
	pterm.Success.Printf("import complete, %d rows processed in %d flushes\n", in.result.Rows, in.result.Flushes)
	return in.result, nil
}

func (in *Ingestor) processFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	name := filepath.Base(path)
	in.tick(0, name)

	r := bufio.NewReaderSize(f, 1<<20)
	var n int
	for {
		line, readErr := r.ReadString('\n')
		if line != "" {
			n++
			if err := in.add(ctx, line); err != nil {
				return err
			}
			in.tick(1, name)
			if n%ctxCheckStep == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// add parses one line and appends one row to each buffer. Both buffers grow
// together, so reaching the batch size on the email buffer flushes both.
func (in *Ingestor) add(ctx context.Context, line string) error {
	in.result.Lines++
	email, password, ok := ParseLine(line)
	if !ok {
		in.result.Skipped++
		CounterLines.WithLabelValues("skipped").Inc()
		return nil
	}
	CounterLines.WithLabelValues("parsed").Inc()

	ep, es := SplitHash(email)
	pp, ps := SplitHash(password)
	in.emails = append(in.emails, models.EmailLeak{
		EmailPrefix: ep,
		EmailSuffix: es,
		BreachID:    in.BreachID,
		Version:     uint64(in.Now().Unix()),
	})
	in.passwords = append(in.passwords, models.PasswordLeak{
		HashPrefix: pp,
		HashSuffix: ps,
		Prevalence: 1,
	})

	if len(in.emails) >= in.BatchSize {
		return in.flush(ctx)
	}
	return nil
}

func (in *Ingestor) flush(ctx context.Context) error {
	if err := in.Store.InsertEmailLeaks(ctx, in.emails); err != nil {
		return &FlushError{Err: err}
	}
	CounterRowsFlushed.WithLabelValues(store.TableEmails).Add(float64(len(in.emails)))

	if err := in.Store.InsertPasswordLeaks(ctx, in.passwords); err != nil {
		return &FlushError{Err: err}
	}
	CounterRowsFlushed.WithLabelValues(store.TablePasswords).Add(float64(len(in.passwords)))

	if err := in.Cache.InvalidateRanges(ctx, flushedPrefixes(in.passwords)); err != nil {
		pterm.Warning.Printf("range cache invalidation failed: %v\n", err)
	}

	in.result.Rows += int64(len(in.emails))
	in.result.Flushes++
	CounterFlushes.Inc()

	in.emails = in.emails[:0]
	in.passwords = in.passwords[:0]
	return nil
}

func flushedPrefixes(rows []models.PasswordLeak) []string {
	seen := make(map[string]struct{}, len(rows))
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.HashPrefix]; ok {
			continue
		}
		seen[r.HashPrefix] = struct{}{}
		out = append(out, r.HashPrefix)
	}
	return out
}

// tick advances the progress bar in steps; a zero delta only pushes what is
// pending.
func (in *Ingestor) tick(delta int, file string) {
	if in.bar == nil {
		return
	}
	in.pending += delta
	if delta == 0 || in.pending >= progressStep {
		in.bar.Add(in.pending)
		in.pending = 0
		if file != "" {
			in.bar.UpdateTitle("file: " + file + " | total: " + strconv.FormatInt(in.result.Rows, 10))
		}
	}
}
