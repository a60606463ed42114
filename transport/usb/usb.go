// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package usb drives PN531, PN533 and RC-S360 readers over their USB bulk
// endpoints using gousb.
package usb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ZaparooProject/go-pn53x"
	"github.com/ZaparooProject/go-pn53x/detection"
	"github.com/ZaparooProject/go-pn53x/internal/frame"
	"github.com/ZaparooProject/go-pn53x/internal/syncutil"
	"github.com/google/gousb"
)

// DriverName is the connection string driver served by this package.
const DriverName = "pn53x_usb"

// ErrNoEndpoints is returned when a device lacks the bulk endpoint pair.
var ErrNoEndpoints = errors.New("no bulk endpoints")

// Model describes a USB reader built around a PN53x.
type Model struct {
	Name    string
	Vendor  gousb.ID
	Product gousb.ID
	Chip    pn53x.ChipType
}

// Models lists the readers this driver claims.
var Models = []Model{
	{Name: "Philips / PN531", Vendor: 0x04CC, Product: 0x0531, Chip: pn53x.ChipPN531},
	{Name: "Sony / PN531", Vendor: 0x054C, Product: 0x0193, Chip: pn53x.ChipPN531},
	{Name: "NXP / PN533", Vendor: 0x04CC, Product: 0x2533, Chip: pn53x.ChipPN533},
	{Name: "ASK / LoGO", Vendor: 0x1FD3, Product: 0x0608, Chip: pn53x.ChipPN533},
	{Name: "SCM Micro / SCL3711-NFC&RW", Vendor: 0x04E6, Product: 0x5591, Chip: pn53x.ChipPN533},
	{Name: "SCM Micro / SCL3712-NFC&RW", Vendor: 0x04E6, Product: 0x5594, Chip: pn53x.ChipPN533},
	{Name: "Sony / FeliCa S360 [PaSoRi]", Vendor: 0x054C, Product: 0x02E1, Chip: pn53x.ChipRCS360},
}

// LookupModel returns the model for a vendor and product ID.
func LookupModel(vid, pid gousb.ID) (Model, bool) {
	for _, m := range Models {
		if m.Vendor == vid && m.Product == pid {
			return m, true
		}
	}
	return Model{}, false
}

type inEndpoint interface {
	ReadContext(ctx context.Context, p []byte) (int, error)
}

type outEndpoint interface {
	WriteContext(ctx context.Context, p []byte) (int, error)
}

// Config selects a device. Zero Bus and Addr pick the first known reader.
type Config struct {
	Bus  int
	Addr int
	// WriteTimeout bounds each bulk OUT transfer.
	WriteTimeout time.Duration
	ACKTimeout   time.Duration
}

// DefaultConfig returns the settings used for the first known reader.
func DefaultConfig() Config {
	return Config{WriteTimeout: time.Second, ACKTimeout: pn53x.TransportACKTimeout}
}

// Transport implements pn53x.Transport over USB bulk endpoints.
type Transport struct {
	in     inEndpoint
	out    outEndpoint
	closer func() error
	abort  chan struct{}
	name   string
	config Config
	dec    frame.Decoder
	model  Model
	mu     syncutil.Mutex
	closed bool
}

func init() {
	pn53x.RegisterDriver(DriverName, open)
}

func open(_ context.Context, cs detection.ConnString) (pn53x.Transport, error) {
	config := DefaultConfig()
	for key, dst := range map[string]*int{"bus": &config.Bus, "addr": &config.Addr} {
		s, ok := cs.Get(key)
		if !ok {
			continue
		}
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%s: invalid %s %q", DriverName, key, s)
		}
		*dst = v
	}
	return New(config)
}

// New opens the reader described by config and claims its first
// interface.
func New(config Config) (*Transport, error) {
	ctx := gousb.NewContext()
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if _, ok := LookupModel(desc.Vendor, desc.Product); !ok {
			return false
		}
		if config.Bus != 0 && desc.Bus != config.Bus {
			return false
		}
		return config.Addr == 0 || desc.Address == config.Addr
	})
	if len(devs) == 0 {
		_ = ctx.Close()
		if err != nil {
			return nil, fmt.Errorf("open USB reader: %w: %w", pn53x.ErrDeviceNotFound, err)
		}
		return nil, fmt.Errorf("open USB reader: %w", pn53x.ErrDeviceNotFound)
	}
	dev := devs[0]
	for _, d := range devs[1:] {
		_ = d.Close()
	}

	t, err := claim(ctx, dev, config)
	if err != nil {
		_ = dev.Close()
		_ = ctx.Close()
		return nil, err
	}
	return t, nil
}

func claim(ctx *gousb.Context, dev *gousb.Device, config Config) (*Transport, error) {
	if err := dev.SetAutoDetach(true); err != nil {
		pn53x.Debugf("usb: auto detach: %v", err)
	}
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		return nil, fmt.Errorf("claim USB interface: %w", err)
	}

	var in *gousb.InEndpoint
	var out *gousb.OutEndpoint
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch {
		case ep.Direction == gousb.EndpointDirectionIn && in == nil:
			in, err = intf.InEndpoint(ep.Number)
		case ep.Direction == gousb.EndpointDirectionOut && out == nil:
			out, err = intf.OutEndpoint(ep.Number)
		}
		if err != nil {
			done()
			return nil, fmt.Errorf("open USB endpoint %d: %w", ep.Number, err)
		}
	}
	if in == nil || out == nil {
		done()
		return nil, ErrNoEndpoints
	}

	model, _ := LookupModel(dev.Desc.Vendor, dev.Desc.Product)
	name := fmt.Sprintf("%03d:%03d", dev.Desc.Bus, dev.Desc.Address)
	t := NewWithEndpoints(in, out, model, name, config)
	t.closer = func() error {
		done()
		err := dev.Close()
		return errors.Join(err, ctx.Close())
	}
	if err := t.CancelCommand(); err != nil {
		pn53x.Debugf("usb %s: clearing pending command: %v", name, err)
	}
	return t, nil
}

// NewWithEndpoints runs the transport over already opened endpoints.
func NewWithEndpoints(in inEndpoint, out outEndpoint, model Model, name string, config Config) *Transport {
	def := DefaultConfig()
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.ACKTimeout <= 0 {
		config.ACKTimeout = def.ACKTimeout
	}
	return &Transport{
		in:     in,
		out:    out,
		model:  model,
		name:   name,
		config: config,
		abort:  make(chan struct{}, 1),
	}
}

// Write sends p and waits for the ACK.
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, pn53x.NewClosedError("write", t.name)
	}
	out, err := frame.Command(p, t.extended())
	if err != nil || len(p) == 0 {
		return 0, pn53x.NewDataTooLargeError("write", t.name)
	}
	select {
	case <-t.abort:
	default:
	}
	t.dec.Reset()

	var lastErr error
	for range pn53x.TransportACKRetries {
		if err := t.send(out); err != nil {
			return 0, err
		}
		lastErr = t.waitACK()
		if lastErr == nil {
			return len(p), nil
		}
		if !errors.Is(lastErr, pn53x.ErrNACKReceived) {
			return 0, lastErr
		}
	}
	return 0, lastErr
}

func (t *Transport) extended() bool {
	return t.model.Chip == pn53x.ChipPN533 || t.model.Chip == pn53x.ChipRCS360
}

func (t *Transport) send(b []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.config.WriteTimeout)
	defer cancel()
	if _, err := t.out.WriteContext(ctx, b); err != nil {
		return pn53x.NewTransportError("write", t.name, err, pn53x.ErrorTypeTransient)
	}
	return nil
}

func (t *Transport) waitACK() error {
	deadline := time.Now().Add(t.config.ACKTimeout)
	for {
		f, err := t.next(deadline, nil)
		switch {
		case errors.Is(err, frame.ErrChecksum), errors.Is(err, frame.ErrMalformed):
			continue
		case err != nil:
			return err
		case f == nil:
			return pn53x.NewNoACKError("ack", t.name)
		case f.Kind == frame.KindACK:
			return nil
		case f.Kind == frame.KindNACK:
			return pn53x.NewNACKReceivedError("ack", t.name)
		}
	}
}

// next returns the next frame, or nil once deadline passes or abort fires.
// Bulk reads are cancelled through their context, so Abort takes effect
// immediately.
func (t *Transport) next(deadline time.Time, abort <-chan struct{}) (*frame.Frame, error) {
	buf := frame.GetFrameBuffer()
	defer frame.PutBuffer(buf)

	for {
		f, err := t.dec.Next()
		if err == nil {
			return &f, nil
		}
		if !errors.Is(err, frame.ErrIncomplete) {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}

		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		stop := make(chan struct{})
		aborted := make(chan struct{})
		go func() {
			select {
			case <-abort:
				close(aborted)
				cancel()
			case <-stop:
			}
		}()
		n, err := t.in.ReadContext(ctx, buf)
		close(stop)
		expired := ctx.Err() != nil
		cancel()
		if n > 0 {
			_, _ = t.dec.Write(buf[:n])
		}
		select {
		case <-aborted:
			return nil, nil
		default:
		}
		if err != nil {
			if expired || errors.Is(err, gousb.ErrorTimeout) {
				return nil, nil
			}
			return nil, pn53x.NewTransportError("read", t.name, err, pn53x.ErrorTypeTransient)
		}
	}
}

// Read waits up to timeout for the response frame.
func (t *Transport) Read(p []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, pn53x.NewClosedError("read", t.name)
	}
	deadline := time.Now().Add(timeout)
	for {
		f, err := t.next(deadline, t.abort)
		switch {
		case err == nil && f == nil:
			return 0, nil
		case errors.Is(err, frame.ErrChecksum), errors.Is(err, frame.ErrMalformed):
			pn53x.Debugf("usb %s: %v, sending NACK", t.name, err)
			if err := t.send(frame.NackFrame); err != nil {
				return 0, err
			}
			continue
		case err != nil:
			return 0, err
		case f.Kind == frame.KindACK, f.Kind == frame.KindNACK:
			continue
		}
		body, err := f.Body()
		if err != nil {
			return 0, pn53x.NewTransportError("read", t.name, err, pn53x.ErrorTypeTransient)
		}
		if len(body) > len(p) {
			return 0, pn53x.NewDataTooLargeError("read", t.name)
		}
		return copy(p, body), nil
	}
}

// Abort cancels a blocked Read.
func (t *Transport) Abort() error {
	select {
	case t.abort <- struct{}{}:
	default:
	}
	return nil
}

// CancelCommand sends an ACK frame so the chip drops its command.
func (t *Transport) CancelCommand() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return pn53x.NewClosedError("cancel", t.name)
	}
	t.dec.Reset()
	return t.send(frame.AckFrame)
}

// Close releases the interface and the device.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.closer == nil {
		return nil
	}
	if err := t.closer(); err != nil {
		return fmt.Errorf("close USB reader %s: %w", t.name, err)
	}
	return nil
}

// Type returns pn53x.TransportUSB.
func (*Transport) Type() pn53x.TransportType {
	return pn53x.TransportUSB
}

// ChipType reports the chip implied by the USB product ID.
func (t *Transport) ChipType() pn53x.ChipType {
	return t.model.Chip
}

// Model returns the reader model.
func (t *Transport) Model() Model {
	return t.model
}

// HasCapability reports extended frame support on PN533 based readers.
func (t *Transport) HasCapability(c pn53x.TransportCapability) bool {
	return c == pn53x.CapabilityExtendedFrames && t.extended()
}

var (
	_ pn53x.Transport                  = (*Transport)(nil)
	_ pn53x.CommandCanceller           = (*Transport)(nil)
	_ pn53x.ChipTyper                  = (*Transport)(nil)
	_ pn53x.TransportCapabilityChecker = (*Transport)(nil)
)
