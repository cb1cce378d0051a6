//go:build linux

package async

import "golang.org/x/sys/unix"

// eventfdSignal is a signalFD backed by a Linux eventfd, the same
// mechanism the runner's own wake pipe uses.
type eventfdSignal struct {
	fd int
}

func newSignalFD() (signalFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &eventfdSignal{fd: fd}, nil
}

func (s *eventfdSignal) FD() Handle { return Handle(s.fd) }

func (s *eventfdSignal) Signal() {
	var buf [8]byte
	buf[7] = 1
	_, _ = unix.Write(s.fd, buf[:])
}

func (s *eventfdSignal) Drain() {
	var buf [8]byte
	for {
		if _, err := unix.Read(s.fd, buf[:]); err != nil {
			break
		}
	}
}

func (s *eventfdSignal) Close() error {
	return unix.Close(s.fd)
}
