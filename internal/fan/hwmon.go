package fan

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"

	"codeberg.org/mutker/ventilator/internal/errors"
	"codeberg.org/mutker/ventilator/internal/logger"
)

// Hwmon drives fans through the kernel hwmon sysfs interface. The chip is
// located by the contents of its "name" attribute; channels map to
// writable attribute files such as "fan2_min" inside the chip directory.
type Hwmon struct {
	root     string
	chip     string
	channels map[ChannelKey]string
	logger   logger.Logger
	exclusive
}

func NewHwmon(root, chip string, channels map[string]string, log logger.Logger) *Hwmon {
	m := make(map[ChannelKey]string, len(channels))
	for k, v := range channels {
		m[ChannelKey(k)] = v
	}

	return &Hwmon{
		root:     root,
		chip:     chip,
		channels: m,
		logger:   log,
	}
}

type hwmonSession struct {
	owner *Hwmon
	dir   string
	closer
}

func (h *Hwmon) Open() (Session, error) {
	errFactory := errors.New()

	if err := h.acquire(); err != nil {
		return nil, err
	}

	dir, err := h.findChip()
	if err != nil {
		h.release()
		return nil, errFactory.Wrap(ErrConnection, err)
	}

	h.logger.Debug().Str("dir", dir).Str("chip", h.chip).Msg("Opened hwmon session")

	return &hwmonSession{owner: h, dir: dir}, nil
}

func (h *Hwmon) findChip() (string, error) {
	errFactory := errors.New()

	entries, err := os.ReadDir(h.root)
	if err != nil {
		return "", err
	}

	for _, e := range entries {
		dir := filepath.Join(h.root, e.Name())
		name, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		if string(bytes.TrimSpace(name)) == h.chip {
			return dir, nil
		}
	}

	return "", errFactory.WithData(errors.ErrResourceNotFound, struct {
		Root string
		Chip string
	}{
		Root: h.root,
		Chip: h.chip,
	})
}

func (s *hwmonSession) SetChannel(key ChannelKey, value int) error {
	errFactory := errors.New()

	if s.isClosed() {
		return errFactory.New(ErrSessionClosed)
	}

	attr, ok := s.owner.channels[key]
	if !ok {
		return unknownChannel(key)
	}

	path := filepath.Join(s.dir, attr)
	info, err := os.Stat(path)
	if err != nil {
		return errFactory.Wrap(ErrWrite, err)
	}
	// Attributes without a store op are exposed without write bits; the
	// kernel refuses them even for root.
	if info.Mode().Perm()&0o222 == 0 {
		return errFactory.Wrap(ErrWrite, errFactory.WithData(ErrReadOnlyChannel, path))
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return errFactory.Wrap(ErrWrite, err)
	}

	if _, err := f.WriteString(strconv.Itoa(value)); err != nil {
		f.Close()
		return errFactory.Wrap(ErrWrite, err)
	}
	if err := f.Close(); err != nil {
		return errFactory.Wrap(ErrWrite, err)
	}

	s.owner.logger.Debug().
		Str("channel", string(key)).
		Str("path", path).
		Int("value", value).
		Msg("Channel written")

	return nil
}

func (s *hwmonSession) Close() error {
	if err := s.markClosed(); err != nil {
		return err
	}
	s.owner.release()

	return nil
}
