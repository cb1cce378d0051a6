//go:build darwin

package async

import "golang.org/x/sys/unix"

// pipeSignal is a signalFD backed by a non-blocking anonymous pipe, the
// portable fallback for platforms (kqueue-based BSDs) without eventfd.
type pipeSignal struct {
	readFD  int
	writeFD int
}

func newSignalFD() (signalFD, error) {
	var fdPair [2]int
	if err := unix.Pipe2(fdPair[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, err
	}
	return &pipeSignal{readFD: fdPair[0], writeFD: fdPair[1]}, nil
}

func (s *pipeSignal) FD() Handle { return Handle(s.readFD) }

func (s *pipeSignal) Signal() {
	var buf [1]byte
	_, _ = unix.Write(s.writeFD, buf[:])
}

func (s *pipeSignal) Drain() {
	var buf [64]byte
	for {
		if _, err := unix.Read(s.readFD, buf[:]); err != nil {
			break
		}
	}
}

func (s *pipeSignal) Close() error {
	err1 := unix.Close(s.readFD)
	err2 := unix.Close(s.writeFD)
	if err1 != nil {
		return err1
	}
	return err2
}
