//go:build !windows

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/zero5yt/StreamixBot2.0/pkg/logging"
)

// PIDFile is an flock-held file containing the owning process id. It keeps
// two servers from sharing one link database during restarts.
type PIDFile struct {
	file *os.File
}

func NewPIDFile(path string) (*PIDFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return &PIDFile{file: file}, nil
}

// Acquire takes the lock, waiting for the current holder to exit if there
// is one, then records our pid.
func (p *PIDFile) Acquire() error {
	fd := int(p.file.Fd())
	err := syscall.Flock(fd, syscall.LOCK_EX|syscall.LOCK_NB)
	if errors.Is(err, syscall.EWOULDBLOCK) {
		logger := logging.GetLogger()
		ev := logger.Warn().Str("path", p.file.Name())
		if holder, ok := p.holder(); ok {
			ev = ev.Int("holder_pid", holder)
		}
		ev.Msg("Another streamix server holds the pid file, waiting for it to exit")
		err = syscall.Flock(fd, syscall.LOCK_EX)
	}
	if err != nil {
		return err
	}
	if err := p.writePID(); err != nil {
		return err
	}
	return p.file.Sync()
}

// Release unlocks and removes the file.
func (p *PIDFile) Release() error {
	if err := syscall.Flock(int(p.file.Fd()), syscall.LOCK_UN); err != nil {
		return err
	}
	name := p.file.Name()
	if err := p.file.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}

func (p *PIDFile) holder() (int, bool) {
	b, err := io.ReadAll(io.NewSectionReader(p.file, 0, 32))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	return pid, err == nil
}

func (p *PIDFile) writePID() error {
	if err := p.file.Truncate(0); err != nil {
		return err
	}
	_, err := p.file.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0)
	return err
}
