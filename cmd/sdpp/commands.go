package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ardnew/sdspi/disk"
	"github.com/ardnew/sdspi/driver"
	"github.com/ardnew/sdspi/internal/fixture"
)

// =============================================================================
// info
// =============================================================================

func newInfoCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the card and volume the driver found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(f)
			if err != nil {
				return err
			}
			defer s.Close()
			return printInfo(cmd.OutOrStdout(), s)
		},
	}
}

func printInfo(w io.Writer, s *session) error {
	d := s.disk()

	count, err := d.Ioctl(disk.IoctlGetSectorCount)
	if err != nil {
		return err
	}
	cid, err := d.Card().ReadCID()
	d.Card().Deselect()
	if err != nil {
		return err
	}

	r := &driver.Request{Command: driver.CmdGenericIOCTL, Major: driver.CategoryDisk, Minor: driver.FuncGetParameters}
	s.drv.Dispatch(r)
	if err := r.Err(); err != nil {
		return err
	}
	p := r.Parameters
	bpb := p.BPB
	tm := d.Card().Timing()

	layout := "FAT12/16"
	if bpb.IsFAT32() {
		layout = "FAT32"
	}

	fmt.Fprintf(w, "Card:               %s\n", d.CardType())
	fmt.Fprintf(w, "Identity:           %s\n", &cid)
	fmt.Fprintf(w, "Card sectors:       %d\n", count)
	fmt.Fprintf(w, "Init timeout:       %v\n", tm.InitTimeout())
	fmt.Fprintf(w, "Ready timeout:      %v\n", tm.ReadyTimeout())
	fmt.Fprintf(w, "Token timeout:      %v\n", tm.TokenTimeout())
	fmt.Fprintf(w, "File system:        %s\n", layout)
	fmt.Fprintf(w, "Partition offset:   %d\n", bpb.PartitionStart)
	fmt.Fprintf(w, "Sector size:        %d\n", bpb.SectorSize)
	fmt.Fprintf(w, "Allocation unit:    %d\n", bpb.SectorsPerCluster)
	fmt.Fprintf(w, "Reserved sectors:   %d\n", bpb.ReservedSectors)
	fmt.Fprintf(w, "FAT count:          %d\n", bpb.FATCount)
	fmt.Fprintf(w, "Directory size:     %d\n", bpb.RootEntries)
	fmt.Fprintf(w, "Total sectors:      %d\n", bpb.TotalSectors)
	fmt.Fprintf(w, "Media descriptor:   0x%02X\n", bpb.Media)
	fmt.Fprintf(w, "FAT sectors:        %d\n", bpb.SectorsPerFAT)
	fmt.Fprintf(w, "Track size:         %d\n", bpb.SectorsPerTrack)
	fmt.Fprintf(w, "Head count:         %d\n", bpb.Heads)
	fmt.Fprintf(w, "Hidden sectors:     %d\n", bpb.HiddenSectors)
	fmt.Fprintf(w, "Cylinders:          %d\n", p.Cylinders)
	return nil
}

// =============================================================================
// read
// =============================================================================

func newReadCommand(f *flags) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "read LBN [COUNT]",
		Short: "Read volume sectors as a hex dump or to a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lbn, count, err := parseRange(args)
			if err != nil {
				return err
			}

			s, err := openSession(f)
			if err != nil {
				return err
			}
			defer s.Close()

			buf := make([]byte, int(count)*disk.SectorSize)
			if err := s.transfer(driver.CmdInput, lbn, count, buf); err != nil {
				return err
			}

			if out != "" {
				return os.WriteFile(out, buf, 0644)
			}
			dumper := hex.Dumper(cmd.OutOrStdout())
			defer dumper.Close()
			_, err = dumper.Write(buf)
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write raw sectors to this file instead of dumping")
	return cmd
}

// =============================================================================
// write
// =============================================================================

func newWriteCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "write LBN FILE",
		Short: "Write a file to volume sectors, padding the last sector with zeros",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lbn, err := parseUint(args[0], 32)
			if err != nil {
				return fmt.Errorf("LBN: %w", err)
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			count := (len(data) + disk.SectorSize - 1) / disk.SectorSize
			if count == 0 {
				return nil
			}
			if count > math.MaxUint16 {
				return fmt.Errorf("%s: %d sectors is too large for one request", args[1], count)
			}

			s, err := openSession(f)
			if err != nil {
				return err
			}
			defer s.Close()

			buf := make([]byte, count*disk.SectorSize)
			copy(buf, data)
			if err := s.transfer(driver.CmdOutput, uint32(lbn), uint16(count), buf); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d sectors at %d\n", count, lbn)
			return nil
		},
	}
}

// =============================================================================
// mkimage
// =============================================================================

func newImageCommand() *cobra.Command {
	var (
		sectors uint32
		start   uint32
		fat32   bool
	)

	cmd := &cobra.Command{
		Use:   "mkimage FILE",
		Short: "Create a blank FAT-formatted card image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if start >= sectors {
				return fmt.Errorf("partition start %d is beyond %d sectors", start, sectors)
			}
			img := buildImage(sectors, start, fat32)
			if err := os.WriteFile(args[0], img, 0644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s: %d sectors\n", args[0], sectors)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&sectors, "sectors", 65536, "image size in sectors")
	cmd.Flags().Uint32Var(&start, "start", 0, "partition start sector (0 writes no partition table)")
	cmd.Flags().BoolVar(&fat32, "fat32", false, "use the FAT32 boot sector layout")
	return cmd
}

// buildImage lays out a superfloppy when start is 0 and a single-partition
// card otherwise.
func buildImage(sectors, start uint32, fat32 bool) []byte {
	if start == 0 {
		bs := fixture.FAT16(sectors)
		if fat32 {
			bs = fixture.FAT32(sectors)
		}
		return fixture.NewImage(sectors).Put(0, bs.Bytes()).Bytes()
	}
	typ := uint8(fixture.TypeFAT16)
	if fat32 {
		typ = fixture.TypeFAT32
	}
	return fixture.Partitioned(sectors, fixture.Partition{
		Type:    typ,
		Start:   start,
		Sectors: sectors - start,
		Active:  true,
	})
}

// =============================================================================
// Argument Parsing
// =============================================================================

func parseRange(args []string) (uint32, uint16, error) {
	lbn, err := parseUint(args[0], 32)
	if err != nil {
		return 0, 0, fmt.Errorf("LBN: %w", err)
	}
	count := uint64(1)
	if len(args) > 1 {
		if count, err = parseUint(args[1], 16); err != nil {
			return 0, 0, fmt.Errorf("COUNT: %w", err)
		}
	}
	return uint32(lbn), uint16(count), nil
}

// parseUint accepts decimal, 0x hex and 0 octal numbers.
func parseUint(s string, bits int) (uint64, error) {
	return strconv.ParseUint(s, 0, bits)
}
