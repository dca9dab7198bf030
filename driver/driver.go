package driver

import (
	"log/slog"
	"sync"

	"github.com/ardnew/sdspi/disk"
	"github.com/ardnew/sdspi/pkg"
)

// MaxTransfer is the largest number of sectors moved by one disk transfer.
// Longer requests are split.
const MaxTransfer = 16

// Driver adapts a Disk to block device driver requests.
//
// Requests are serialized: Dispatch may be called from any goroutine, but
// only one request touches the card at a time.
type Driver struct {
	disk *disk.Disk
	opts Options
	mu   sync.Mutex
}

// New creates a driver serving d. The disk is initialized by the first
// CmdInit request.
func New(d *disk.Disk) *Driver {
	return &Driver{disk: d}
}

// Disk returns the served disk.
func (d *Driver) Disk() *disk.Disk {
	return d.disk
}

// Options returns the options parsed by the last CmdInit request.
func (d *Driver) Options() Options {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opts
}

// Dispatch executes one request and sets its Status.
func (d *Driver) Dispatch(r *Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pkg.LogDebug(pkg.ComponentDriver, "request", "command", r.Command, "unit", r.Unit)

	switch r.Command {
	case CmdInit:
		d.initialize(r)
	case CmdMediaCheck:
		r.MediaChange = d.disk.MediaCheck()
		r.Status = StatusDone
	case CmdGetBPB:
		r.BPB = d.disk.BPB()
		r.Status = StatusDone
	case CmdInput:
		d.input(r)
	case CmdOutput, CmdOutputVerify:
		d.output(r)
	case CmdGenericIOCTL:
		d.genericIOCTL(r)
	case CmdIOCTLQuery:
		d.ioctlQuery(r)
	case CmdGetLogical, CmdSetLogical:
		r.Status = StatusDone
	default:
		pkg.LogWarn(pkg.ComponentDriver, "unimplemented request", "command", r.Command)
		r.Status = failed(disk.UnknownCommand)
	}

	if r.Status.IsError() {
		pkg.LogDebug(pkg.ComponentDriver, "request failed", "command", r.Command, "status", r.Status)
	}
}

// initialize parses the device line and brings up the disk. A driver whose
// disk cannot be initialized reports no units.
func (d *Driver) initialize(r *Request) {
	r.Units = 0

	opts, err := ParseOptions(r.Args)
	if err != nil {
		pkg.LogError(pkg.ComponentDriver, "bad options", "args", r.Args, "error", err)
		r.Status = failed(disk.CodeOf(err))
		return
	}
	d.opts = opts
	if opts.Debug {
		pkg.SetLogLevel(slog.LevelDebug)
	}

	if err := d.disk.Initialize(opts.Partition); err != nil {
		pkg.LogError(pkg.ComponentDriver, "drive not connected or not powered", "error", err)
		r.Status = failed(disk.CodeOf(err))
		return
	}

	bpb := d.disk.BPB()
	pkg.LogInfo(pkg.ComponentDriver, "initialized",
		"type", d.disk.CardType(),
		"partition", opts.Partition,
		"start", bpb.PartitionStart,
		"sectors", bpb.TotalSectors)
	r.Units = 1
	r.Status = StatusDone
}

// ready re-initializes the disk if a previous error left it needing a
// reset. It reports a general failure in r if that does not succeed.
func (d *Driver) ready(r *Request) bool {
	if d.disk.Ready() {
		return true
	}
	if err := d.disk.Initialize(d.opts.Partition); err != nil {
		pkg.LogDebug(pkg.ComponentDriver, "drive failed to initialize", "error", err)
		r.Status = failed(disk.GeneralFailure)
		return false
	}
	pkg.LogDebug(pkg.ComponentDriver, "drive initialized")
	return true
}

// transfer checks that the request buffer holds Count sectors.
func transfer(r *Request) bool {
	if len(r.Buffer) < int(r.Count)*disk.SectorSize {
		r.Status = failed(disk.CRC)
		return false
	}
	return true
}

// input reads Count sectors in transfers of at most MaxTransfer. When a
// transfer fails, the first sector of its buffer is zeroed.
func (d *Driver) input(r *Request) {
	if !d.ready(r) || !transfer(r) {
		return
	}

	lbn, count, buf := r.Sector(), uint32(r.Count), r.Buffer
	for count > 0 {
		n := min(count, MaxTransfer)
		if err := d.disk.Read(lbn, n, buf); err != nil {
			clear(buf[:disk.SectorSize])
			r.Status = failed(disk.CodeOf(err))
			return
		}
		lbn += n
		count -= n
		buf = buf[n*disk.SectorSize:]
	}
	r.Status = StatusDone
}

// output writes Count sectors in transfers of at most MaxTransfer. Verify
// requests are written the same way; the card checks every block it
// accepts.
func (d *Driver) output(r *Request) {
	if !d.ready(r) || !transfer(r) {
		return
	}

	lbn, count, buf := r.Sector(), uint32(r.Count), r.Buffer
	for count > 0 {
		n := min(count, MaxTransfer)
		if err := d.disk.Write(lbn, n, buf); err != nil {
			r.Status = failed(disk.CodeOf(err))
			return
		}
		lbn += n
		count -= n
		buf = buf[n*disk.SectorSize:]
	}
	r.Status = StatusDone
}
