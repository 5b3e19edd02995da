// Package mbox stores archived Gmail messages in a single mbox file. Every
// record carries an X-GmailID header naming the remote message it came from.
package mbox

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/hashicorp/go-multierror"
)

// IdentityHeader is the header injected into every appended record.
const IdentityHeader = "X-GmailID"

const fromSender = "MAILER-DAEMON"

type entry struct {
	id  string // empty when the record has no usable identity
	seq int    // record number in file order
}

// Archive is an exclusively locked mbox file. Appends go straight to the end
// of the file; removals are applied by rewriting the file on Close.
type Archive struct {
	path    string
	f       *os.File
	w       *mbox.Writer
	live    []entry
	nextSeq int
	dirty   bool
	closed  bool

	Now func() time.Time
}

// Open creates path if needed, locks it and indexes the records it holds.
func Open(path string) (*Archive, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	a := &Archive{path: path, f: f, Now: time.Now}
	if err := a.scan(); err != nil {
		_ = unlockFile(f)
		_ = f.Close()
		return nil, err
	}
	if err := a.prepareAppend(); err != nil {
		_ = unlockFile(f)
		_ = f.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) scan() error {
	if _, err := a.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek archive: %w", err)
	}
	r := mbox.NewReader(a.f)
	for {
		msg, err := r.NextMessage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive record %d: %w", a.nextSeq, err)
		}
		br := bufio.NewReader(msg)
		a.live = append(a.live, entry{id: readIdentity(br), seq: a.nextSeq})
		a.nextSeq++
		if _, err := io.Copy(io.Discard, br); err != nil {
			return fmt.Errorf("read archive record %d: %w", a.nextSeq-1, err)
		}
	}
}

// prepareAppend positions the file at its end, separating any trailing record
// that lacks a final newline.
func (a *Archive) prepareAppend() error {
	end, err := a.f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek archive: %w", err)
	}
	if end > 0 {
		last := make([]byte, 1)
		if _, err := a.f.ReadAt(last, end-1); err != nil {
			return fmt.Errorf("read archive tail: %w", err)
		}
		if last[0] != '\n' {
			if _, err := a.f.Write([]byte("\n\n")); err != nil {
				return fmt.Errorf("terminate archive tail: %w", err)
			}
		}
	}
	a.w = mbox.NewWriter(a.f)
	return nil
}

// readIdentity returns the tag of the record read by br. A record whose header
// block does not parse is still tagged when its first line is the tag field,
// the form Append writes for such messages.
func readIdentity(br *bufio.Reader) string {
	lead := leadingIdentity(br)
	h, err := textproto.ReadHeader(br)
	if err != nil {
		return lead
	}
	return cleanIdentity(h.Get(IdentityHeader))
}

func leadingIdentity(br *bufio.Reader) string {
	b, _ := br.Peek(br.Size())
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	name, value, ok := strings.Cut(string(b), ":")
	if !ok || !strings.EqualFold(name, IdentityHeader) {
		return ""
	}
	return cleanIdentity(value)
}

func cleanIdentity(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.IndexFunc(v, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return ""
	}
	return v
}

// Path returns the archive file path.
func (a *Archive) Path() string { return a.path }

// Len returns the number of records currently in the archive.
func (a *Archive) Len() int { return len(a.live) }

// Identity returns the identity tag of the record at pos. ok is false when the
// record carries no usable tag.
func (a *Archive) Identity(pos int) (string, bool) {
	if pos < 0 || pos >= len(a.live) {
		return "", false
	}
	id := a.live[pos].id
	return id, id != ""
}

// Append writes raw as a new record tagged with id and returns its position.
func (a *Archive) Append(id string, raw []byte) (int, error) {
	if a.closed {
		return 0, errors.New("append to closed archive")
	}
	if cleanIdentity(id) == "" {
		return 0, fmt.Errorf("invalid identity %q", id)
	}
	br := bufio.NewReader(bytes.NewReader(raw))
	h, err := textproto.ReadHeader(br)
	var date time.Time
	if err == nil {
		h.Del(IdentityHeader)
		h.Add(IdentityHeader, id)
		date = headerDate(h)
	}
	if date.IsZero() {
		date = a.Now()
	}
	mw, werr := a.w.CreateMessage(fromSender, date)
	if werr != nil {
		return 0, fmt.Errorf("append %s: %w", id, werr)
	}
	if err == nil {
		if werr := textproto.WriteHeader(mw, h); werr != nil {
			return 0, fmt.Errorf("append %s: %w", id, werr)
		}
		if _, werr := io.Copy(mw, br); werr != nil {
			return 0, fmt.Errorf("append %s: %w", id, werr)
		}
	} else {
		// unparseable header block: keep the bytes, prefix the tag
		if _, werr := fmt.Fprintf(mw, "%s: %s\r\n", IdentityHeader, id); werr != nil {
			return 0, fmt.Errorf("append %s: %w", id, werr)
		}
		if _, werr := mw.Write(raw); werr != nil {
			return 0, fmt.Errorf("append %s: %w", id, werr)
		}
	}
	a.live = append(a.live, entry{id: id, seq: a.nextSeq})
	a.nextSeq++
	return len(a.live) - 1, nil
}

// Remove drops the record at pos. Later records shift down by one.
func (a *Archive) Remove(pos int) error { return a.RemoveAll([]int{pos}) }

// RemoveAll drops the records at positions, all counted before any removal,
// in one pass. Nothing is removed if a position is out of range.
func (a *Archive) RemoveAll(positions []int) error {
	if a.closed {
		return errors.New("remove from closed archive")
	}
	drop := make(map[int]struct{}, len(positions))
	for _, pos := range positions {
		if pos < 0 || pos >= len(a.live) {
			return fmt.Errorf("remove: position %d out of range [0,%d)", pos, len(a.live))
		}
		drop[pos] = struct{}{}
	}
	if len(drop) == 0 {
		return nil
	}
	kept := a.live[:0]
	for i, e := range a.live {
		if _, ok := drop[i]; !ok {
			kept = append(kept, e)
		}
	}
	a.live = kept
	a.dirty = true
	return nil
}

// Close finishes pending appends, applies removals and releases the lock.
// Calling Close more than once is a no-op.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	var result *multierror.Error
	if err := a.w.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("finish archive: %w", err))
	}
	if a.dirty && result.ErrorOrNil() == nil {
		if err := a.rewrite(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := a.f.Sync(); err != nil {
		result = multierror.Append(result, fmt.Errorf("sync archive: %w", err))
	}
	if err := unlockFile(a.f); err != nil {
		result = multierror.Append(result, err)
	}
	if err := a.f.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close archive: %w", err))
	}
	return result.ErrorOrNil()
}

// rewrite copies the surviving records into a temporary file that then
// replaces the archive.
func (a *Archive) rewrite() (err error) {
	keep := make(map[int]struct{}, len(a.live))
	for _, e := range a.live {
		keep[e.seq] = struct{}{}
	}
	if _, err := a.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek archive: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(a.path), "."+filepath.Base(a.path)+".*")
	if err != nil {
		return fmt.Errorf("create rewrite file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if st, statErr := a.f.Stat(); statErr == nil {
		_ = tmp.Chmod(st.Mode().Perm())
	}

	r := mbox.NewReader(a.f)
	w := mbox.NewWriter(tmp)
	for seq := 0; ; seq++ {
		msg, err := r.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reread archive record %d: %w", seq, err)
		}
		if _, ok := keep[seq]; !ok {
			continue
		}
		body, err := io.ReadAll(msg)
		if err != nil {
			return fmt.Errorf("reread archive record %d: %w", seq, err)
		}
		date := a.Now()
		if h, herr := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(body))); herr == nil {
			if d := headerDate(h); !d.IsZero() {
				date = d
			}
		}
		mw, err := w.CreateMessage(fromSender, date)
		if err != nil {
			return fmt.Errorf("rewrite archive record %d: %w", seq, err)
		}
		if _, err := mw.Write(body); err != nil {
			return fmt.Errorf("rewrite archive record %d: %w", seq, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish rewrite: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync rewrite: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close rewrite: %w", err)
	}
	if err := os.Rename(tmp.Name(), a.path); err != nil {
		return fmt.Errorf("replace archive: %w", err)
	}
	return nil
}

func headerDate(h textproto.Header) time.Time {
	mh := mail.Header{Header: message.Header{Header: h}}
	d, err := mh.Date()
	if err != nil {
		return time.Time{}
	}
	return d
}
