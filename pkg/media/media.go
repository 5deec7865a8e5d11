// Package media makes files of a repository medium available locally.
// Local media (dir, file, cd, dvd, hd, iso mounted by the host) are used
// in place; http and https media are downloaded into a private attach
// directory that is removed on Release.
package media

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"pkgbind/internal/log"
)

var (
	ErrFileNotFound      = errors.New("file not found on medium")
	ErrUnsupportedScheme = errors.New("unsupported media scheme")
	ErrAborted           = errors.New("download aborted")
)

// Report receives download progress of remote media.
type Report interface {
	Start(url, dest string)
	// Progress returns false to abort the download.
	Progress(percent int) bool
	Done(err error)
}

// DirectoryIndex lists the entries of a remote directory, one per line,
// sub directories with a trailing slash.
const DirectoryIndex = "directory.yast"

// Access is the handle of one repository medium set.
type Access struct {
	base    string
	attach  string
	client  *fasthttp.Client
	timeout time.Duration
	report  Report
}

// Option customizes an Access.
type Option func(*Access)

// WithClient replaces the HTTP client.
func WithClient(c *fasthttp.Client) Option {
	return func(a *Access) { a.client = c }
}

// WithReport attaches a download report.
func WithReport(r Report) Option {
	return func(a *Access) { a.report = r }
}

func WithTimeout(d time.Duration) Option {
	return func(a *Access) { a.timeout = d }
}

// Open prepares access to base; nothing is fetched yet.
func Open(base string, opts ...Option) (*Access, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid media URL %s", base)
	}
	scheme := strings.ToLower(u.Scheme)
	if !SchemeIsLocal(scheme) && scheme != "http" && scheme != "https" {
		return nil, errors.Wrap(ErrUnsupportedScheme, scheme)
	}
	a := &Access{
		base:    base,
		client:  &fasthttp.Client{Name: "pkgbind", MaxResponseBodySize: 1 << 30},
		timeout: 5 * time.Minute,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

func (a *Access) URL() string { return a.base }

// Local reports whether the medium is read in place.
func (a *Access) Local() bool { return SchemeIsLocal(Scheme(a.base)) }

// localRoot is the directory of medium nr of a local media set.
func localRoot(base string, nr int) (string, error) {
	u, err := url.Parse(MediaURL(base, nr))
	if err != nil {
		return "", err
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	if p == "" {
		p = "/"
	}
	return filepath.Clean(p), nil
}

func (a *Access) attachDir() (string, error) {
	if a.attach != "" {
		return a.attach, nil
	}
	dir, err := os.MkdirTemp("", "pkgbind-media-")
	if err != nil {
		return "", errors.Wrap(err, "create attach point")
	}
	a.attach = dir
	return dir, nil
}

// ProvideFile returns a local path of file on medium nr.
func (a *Access) ProvideFile(ctx context.Context, nr int, file string) (string, error) {
	file = path.Clean("/" + file)

	if a.Local() {
		root, err := localRoot(a.base, nr)
		if err != nil {
			return "", err
		}
		p := filepath.Join(root, file)
		st, err := os.Stat(p)
		if err != nil || st.IsDir() {
			return "", errors.Wrap(ErrFileNotFound, file)
		}
		return p, nil
	}

	return a.download(ctx, nr, file)
}

func (a *Access) download(ctx context.Context, nr int, file string) (string, error) {
	attach, err := a.attachDir()
	if err != nil {
		return "", err
	}
	dest := filepath.Join(attach, itoaDir(nr), file)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	if a.report != nil {
		a.report.Start(HidePassword(a.base)+file, dest)
	}
	err = a.store(ctx, nr, file, dest)
	if a.report != nil {
		a.report.Done(err)
	}
	if err != nil {
		return "", err
	}
	log.Logger.Debugf("Downloaded %s%s -> %s", HidePassword(a.base), file, dest)
	return dest, nil
}

func (a *Access) store(ctx context.Context, nr int, file, dest string) error {
	body, err := a.fetch(ctx, MediaURL(a.base, nr), file)
	if err != nil {
		return err
	}
	if a.report != nil && !a.report.Progress(100) {
		return errors.Wrap(ErrAborted, file)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.Wrap(err, "create download dir")
	}
	return errors.Wrap(os.WriteFile(dest, body, 0644), "store download")
}

func itoaDir(nr int) string {
	if nr < 1 {
		nr = 1
	}
	return "media." + strconv.Itoa(nr)
}

func (a *Access) fetch(ctx context.Context, base, file string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(strings.TrimSuffix(base, "/") + file)
	req.Header.SetMethod(fasthttp.MethodGet)

	timeout := a.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	req.SetTimeout(timeout)
	if err := a.client.DoRedirects(req, resp, 5); err != nil {
		return nil, errors.Wrapf(err, "download %s", file)
	}

	switch code := resp.StatusCode(); {
	case code == fasthttp.StatusNotFound:
		return nil, errors.Wrap(ErrFileNotFound, file)
	case code != fasthttp.StatusOK:
		return nil, errors.Errorf("download %s: HTTP %d", file, code)
	}
	return append([]byte(nil), resp.Body()...), nil
}

// ProvideDir makes dir of medium nr available and returns its local path.
// Remote directories need a directory index.
func (a *Access) ProvideDir(ctx context.Context, nr int, dir string, recursive bool) (string, error) {
	dir = path.Clean("/" + dir)

	if a.Local() {
		root, err := localRoot(a.base, nr)
		if err != nil {
			return "", err
		}
		p := filepath.Join(root, dir)
		st, err := os.Stat(p)
		if err != nil || !st.IsDir() {
			return "", errors.Wrap(ErrFileNotFound, dir)
		}
		return p, nil
	}

	attach, err := a.attachDir()
	if err != nil {
		return "", err
	}
	if err := a.fetchDir(ctx, nr, dir, recursive); err != nil {
		return "", err
	}
	return filepath.Join(attach, itoaDir(nr), dir), nil
}

func (a *Access) fetchDir(ctx context.Context, nr int, dir string, recursive bool) error {
	index, err := a.fetch(ctx, MediaURL(a.base, nr), path.Join(dir, DirectoryIndex))
	if err != nil {
		return errors.Wrapf(err, "list %s", dir)
	}
	if err := os.MkdirAll(filepath.Join(a.attach, itoaDir(nr), dir), 0755); err != nil {
		return err
	}

	scanner := bufio.NewScanner(bytes.NewReader(index))
	for scanner.Scan() {
		entry := strings.TrimSpace(scanner.Text())
		if entry == "" || entry == DirectoryIndex {
			continue
		}
		if strings.HasSuffix(entry, "/") {
			if recursive {
				if err := a.fetchDir(ctx, nr, path.Join(dir, entry), true); err != nil {
					return err
				}
			}
			continue
		}
		if _, err := a.download(ctx, nr, path.Join(dir, entry)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// CopyFile copies a provided file to dest.
func CopyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Release drops every downloaded file. The handle stays usable.
func (a *Access) Release() error {
	if a.attach == "" {
		return nil
	}
	err := os.RemoveAll(a.attach)
	a.attach = ""
	return errors.Wrap(err, "release medium")
}
