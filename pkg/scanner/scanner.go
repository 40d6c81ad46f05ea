// Package scanner implements the public facade a caller drives: pairing
// with a fresh appliance, connecting to an already-paired one, running a
// scan, and writing the result to disk.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/barnettlynn/scanbridge/pkg/control"
	"github.com/barnettlynn/scanbridge/pkg/data"
	"github.com/barnettlynn/scanbridge/pkg/discovery"
	"github.com/barnettlynn/scanbridge/pkg/scanproto"
)

// connectRetries and connectBackoff bound the retry policy for
// data-channel probes issued during pair and connect.
const (
	connectRetries = 3
	connectBackoff = 2 * time.Second
)

// Scanner is a handle to one paired appliance for the duration of a
// session. It owns the heartbeat task and the derived identity; every
// method issues its own fresh connections.
type Scanner struct {
	discovery *discovery.Service
	control   *control.Session
	token     scanproto.Token
	descr     *discovery.ApplianceDescriptor
	identity  string
}

// Pair discovers an appliance and establishes a new pairing with it
// using either an explicit identity or a password from which the
// identity is derived. On success the heartbeat is running and the
// appliance has registered this session.
func Pair(ctx context.Context, targetIP net.IP, password, identity string, timeout time.Duration) (*Scanner, string, error) {
	if identity == "" {
		derived, err := ComputeIdentity(password)
		if err != nil {
			return nil, "", err
		}
		identity = derived
	}

	token, err := scanproto.NewToken()
	if err != nil {
		return nil, "", err
	}
	disc := discovery.NewService(token)

	descr, err := disc.FindAppliance(ctx, targetIP, timeout)
	if err != nil {
		return nil, "", err
	}

	ctrl := control.NewSession(descr.IP, token)

	if err := disc.StartHeartbeat(ctx, descr.IP); err != nil {
		return nil, "", fmt.Errorf("start heartbeat: %w", err)
	}
	if err := ctrl.Reserve(ctx, disc.LocalIP(), scanproto.PortClientReply, identity); err != nil {
		disc.StopHeartbeat()
		return nil, "", err
	}

	s := &Scanner{discovery: disc, control: ctrl, token: token, descr: descr, identity: identity}

	if err := s.probePairing(ctx); err != nil {
		disc.StopHeartbeat()
		return nil, "", err
	}
	if _, err := ctrl.WifiStatus(ctx); err != nil {
		disc.StopHeartbeat()
		return nil, "", err
	}
	if err := ctrl.Release(ctx, true); err != nil {
		disc.StopHeartbeat()
		return nil, "", fmt.Errorf("register session: %w", err)
	}

	return s, identity, nil
}

// Connect resumes a session with an appliance this client has already
// paired with. Discovery must happen first so the token reaches the
// appliance.
func Connect(ctx context.Context, targetIP net.IP, identity string, timeout time.Duration) (*Scanner, error) {
	token, err := scanproto.NewToken()
	if err != nil {
		return nil, err
	}
	disc := discovery.NewService(token)

	descr, err := disc.FindAppliance(ctx, targetIP, timeout)
	if err != nil {
		return nil, err
	}

	if err := disc.StartHeartbeat(ctx, descr.IP); err != nil {
		return nil, fmt.Errorf("start heartbeat: %w", err)
	}

	ctrl := control.NewSession(descr.IP, token)
	s := &Scanner{discovery: disc, control: ctrl, token: token, descr: descr, identity: identity}

	if err := ctrl.Reserve(ctx, disc.LocalIP(), scanproto.PortClientReply, identity); err != nil {
		disc.StopHeartbeat()
		return nil, err
	}
	if err := s.probeConnect(ctx); err != nil {
		disc.StopHeartbeat()
		return nil, err
	}
	if _, err := ctrl.WifiStatus(ctx); err != nil {
		disc.StopHeartbeat()
		return nil, err
	}

	return s, nil
}

// probePairing issues the device-info and scan-params probes new
// pairing requires, retrying each up to connectRetries times on
// transport errors. It does not push a set-config: the appliance has
// no scan job pending during pairing.
func (s *Scanner) probePairing(ctx context.Context) error {
	return s.runProbes(ctx, []func(*data.Channel) error{
		func(ch *data.Channel) error { _, err := ch.GetDeviceInfo(s.token); return err },
		func(ch *data.Channel) error { _, err := ch.GetScanParams(s.token); return err },
	})
}

// probeConnect issues the device-info, scan-params, and set-config
// probes a resumed session needs to confirm the data channel is alive
// and leave the appliance holding a baseline configuration.
func (s *Scanner) probeConnect(ctx context.Context) error {
	return s.runProbes(ctx, []func(*data.Channel) error{
		func(ch *data.Channel) error { _, err := ch.GetDeviceInfo(s.token); return err },
		func(ch *data.Channel) error { _, err := ch.GetScanParams(s.token); return err },
		func(ch *data.Channel) error { _, err := ch.SetConfig(s.token); return err },
	})
}

func (s *Scanner) runProbes(ctx context.Context, probes []func(*data.Channel) error) error {
	for _, probe := range probes {
		if err := s.withRetry(ctx, probe); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) withRetry(ctx context.Context, probe func(*data.Channel) error) error {
	var lastErr error
	for attempt := 0; attempt < connectRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(connectBackoff):
			}
		}
		ch, err := data.Dial(ctx, s.descr.IP)
		if err != nil {
			lastErr = err
			continue
		}
		err = probe(ch)
		ch.Close()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// Scan runs one scan job and returns its non-empty pages. If
// waitForButton is set, it blocks for a physical button press before
// starting the run.
func (s *Scanner) Scan(ctx context.Context, cfg scanproto.ScanConfig, waitForButton bool, buttonTimeout time.Duration) ([]data.Page, error) {
	if waitForButton {
		if _, err := s.discovery.WaitForButton(ctx, buttonTimeout); err != nil {
			return nil, err
		}
	}
	pages, err := data.RunScan(ctx, s.descr.IP, s.token, data.RunOptions{Config: cfg})
	if err != nil {
		return nil, err
	}
	return filterEmpty(pages), nil
}

// ScanToFiles runs a scan job and streams each non-empty page to
// page_<sheet>_<front|back>.<ext> under dir.
func (s *Scanner) ScanToFiles(ctx context.Context, dir string, cfg scanproto.ScanConfig, waitForButton bool, buttonTimeout time.Duration) ([]string, error) {
	if waitForButton {
		if _, err := s.discovery.WaitForButton(ctx, buttonTimeout); err != nil {
			return nil, err
		}
	}

	ext := "jpg"
	if cfg.ColorMode == scanproto.ColorBW {
		ext = "tiff"
	}

	var written []string
	onPage := func(p data.Page) {
		if len(p.Data) == 0 {
			return
		}
		side := "front"
		if p.Side == 1 {
			side = "back"
		}
		name := fmt.Sprintf("page_%03d_%s.%s", p.PhysicalSheet, side, ext)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, p.Data, 0o644); err != nil {
			slog.Error("scan to files: write page failed", "path", path, "error", err)
			return
		}
		written = append(written, path)
	}

	_, err := data.RunScan(ctx, s.descr.IP, s.token, data.RunOptions{Config: cfg, OnPage: onPage})
	if err != nil {
		return written, err
	}
	return written, nil
}

// Disconnect releases the reservation and stops the heartbeat. Release
// errors are logged, not returned, since the heartbeat expiry frees the
// reservation regardless.
func (s *Scanner) Disconnect(ctx context.Context) {
	if err := s.control.Release(ctx, false); err != nil {
		slog.Warn("disconnect: release failed", "error", err)
	}
	s.discovery.StopHeartbeat()
}

// Descriptor returns the appliance this scanner is bound to.
func (s *Scanner) Descriptor() *discovery.ApplianceDescriptor { return s.descr }

// Identity returns the pairing identity in effect for this session.
func (s *Scanner) Identity() string { return s.identity }

func filterEmpty(pages []data.Page) []data.Page {
	out := make([]data.Page, 0, len(pages))
	for _, p := range pages {
		if len(p.Data) > 0 {
			out = append(out, p)
		}
	}
	return out
}
