package main

import (
	"errors"
	"fmt"

	"github.com/ardnew/sdspi/bus"
	"github.com/ardnew/sdspi/bus/sim"
	"github.com/ardnew/sdspi/disk"
	"github.com/ardnew/sdspi/driver"
	"github.com/ardnew/sdspi/pkg"
)

// driverName is the first word of the device line passed to the driver.
const driverName = "SDPP.SYS"

// session is an initialized driver serving an image file.
type session struct {
	media *sim.FileMedia
	card  *sim.Card
	drv   *driver.Driver
}

// openSession opens the image, attaches a simulated card and sends the
// driver its init request.
func openSession(f *flags) (*session, error) {
	if f.image == "" {
		return nil, errors.New("no image given (use --image)")
	}
	kind, err := sim.ParseKind(f.kind)
	if err != nil {
		return nil, err
	}

	media, err := sim.NewFileMedia(f.image, f.readOnly)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}

	sd := sim.New(kind, media)
	var b bus.Bus = sd
	if f.trace {
		b = bus.Trace(sd)
	}

	s := &session{
		media: media,
		card:  sd,
		drv:   driver.New(disk.New(b)),
	}

	r := &driver.Request{Command: driver.CmdInit, Args: deviceLine(f)}
	s.drv.Dispatch(r)
	if err := r.Err(); err != nil {
		media.Close()
		return nil, err
	}
	pkg.LogDebug(componentCLI, "session open", "image", f.image, "kind", kind)
	return s, nil
}

// deviceLine renders the flags as driver options.
func deviceLine(f *flags) string {
	line := driverName
	if f.partition != 0 {
		line += fmt.Sprintf(" /P=%d", f.partition)
	}
	if f.verbose || f.trace {
		line += " /D"
	}
	return line
}

// Close flushes and closes the image.
func (s *session) Close() error {
	return errors.Join(s.media.Sync(), s.media.Close())
}

// disk returns the disk behind the driver.
func (s *session) disk() *disk.Disk {
	return s.drv.Disk()
}

// transfer issues an input or output request for count sectors at lbn.
func (s *session) transfer(cmd driver.Command, lbn uint32, count uint16, buf []byte) error {
	r := &driver.Request{
		Command:   cmd,
		Start:     0xFFFF,
		LongStart: lbn,
		Count:     count,
		Buffer:    buf,
	}
	s.drv.Dispatch(r)
	return r.Err()
}
