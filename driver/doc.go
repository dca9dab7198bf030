// Package driver adapts a [disk.Disk] to the request interface of a DOS
// block device driver.
//
// A [Driver] receives [Request] headers through [Driver.Dispatch] and
// answers with a status word: done, optionally with the error bit and a
// [disk.Code] in the low byte. Reads and writes are split into transfers of
// at most [MaxTransfer] sectors. Errors that leave the card in an unknown
// state cause the disk to be re-initialized before the next transfer.
//
//	drv := driver.New(disk.New(b))
//	req := &driver.Request{Command: driver.CmdInit, Args: "SDPP.SYS /P=1"}
//	drv.Dispatch(req)
//	if req.Status.IsError() {
//	    return req.Status.Code()
//	}
package driver
