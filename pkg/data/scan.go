package data

import (
	"context"
	"log/slog"
	"net"

	"github.com/barnettlynn/scanbridge/pkg/metrics"
	"github.com/barnettlynn/scanbridge/pkg/scanproto"
)

// Page is one scanned side, emitted in the order the appliance produced
// it. Side 0 is the front, side 1 the back (duplex only).
type Page struct {
	PhysicalSheet int
	Side          int
	Data          []byte
}

// RunOptions configures a single scan run.
type RunOptions struct {
	Config scanproto.ScanConfig
	// OnPage, if set, is invoked synchronously for every page as it
	// finishes transferring, including pages with an empty payload.
	OnPage func(Page)
}

// RunScan drives the appliance through one complete scan run over a
// dedicated data channel connection: settings negotiation, the prepare
// and wait handshake, the page loop, and End-scan on every exit path.
func RunScan(ctx context.Context, host net.IP, token scanproto.Token, opts RunOptions) ([]Page, error) {
	ch, err := Dial(ctx, host)
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	defer func() {
		if err := ch.EndScan(token); err != nil {
			slog.Warn("scan run: end-scan failed", "error", err)
		}
	}()

	if _, err := ch.GetScanSettings(token); err != nil {
		return nil, err
	}
	if _, err := ch.SetScanSettings(token, opts.Config); err != nil {
		return nil, err
	}
	if opts.Config.BleedThrough {
		if _, err := ch.WriteToneCurve(token); err != nil {
			return nil, err
		}
	}
	if _, err := ch.PrepareScan(token); err != nil {
		return nil, err
	}

	status, err := ch.GetStatus(token)
	if err != nil {
		return nil, err
	}
	if status&0x80 != 0 {
		return nil, &scanproto.NoPaperError{}
	}

	waitStatus, err := ch.WaitForScan(token)
	if err != nil {
		return nil, err
	}
	if waitStatus != 0 {
		return nil, &scanproto.WaitFailedError{Status: waitStatus}
	}

	sidesPerSheet := 1
	if opts.Config.Duplex {
		sidesPerSheet = 2
	}

	var pages []Page
	transferSheet := 0
	physicalSheet := 0
	for {
		for side := 0; side < sidesPerSheet; side++ {
			buf, err := reassembleSide(ch, token, transferSheet)
			if err != nil {
				return pages, err
			}
			page := Page{PhysicalSheet: physicalSheet, Side: side, Data: buf}
			pages = append(pages, page)
			metrics.PagesEmitted.Inc()
			if opts.OnPage != nil {
				opts.OnPage(page)
			}
			if err := ch.GetPageMetadata(token); err != nil {
				return pages, err
			}
			transferSheet++
		}

		if _, err := ch.GetStatus(token); err != nil {
			return pages, err
		}
		waitStatus, err := ch.WaitForScan(token)
		if err != nil {
			return pages, err
		}
		if waitStatus != 0 {
			break
		}
		physicalSheet++
	}
	return pages, nil
}

// reassembleSide pulls chunks for one side until the appliance marks the
// final chunk, concatenating payloads in receipt order.
func reassembleSide(ch *Channel, token scanproto.Token, transferSheet int) ([]byte, error) {
	var buf []byte
	chunkIndex := 0
	for {
		header, payload, err := ch.TransferChunk(token, transferSheet, chunkIndex)
		if err != nil {
			return nil, err
		}
		buf = append(buf, payload...)
		if header.Final() {
			return buf, nil
		}
		chunkIndex++
	}
}
