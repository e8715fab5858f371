//go:build linux

package afpacket

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"firestige.xyz/sourcewatch/internal/capture"
)

// Handle is a capture.Source backed by an AF_PACKET ring.
type Handle struct {
	cfg    Config
	handle *afpacket.TPacket
}

var _ capture.Source = (*Handle)(nil)

// Open creates the TPACKET_V3 ring, joins the fanout group and attaches the
// BPF filter. Any failure closes the half-built handle.
func Open(cfg Config) (*Handle, error) {
	if cfg.Interface == "" {
		return nil, fmt.Errorf("afpacket: interface is required")
	}
	cfg.applyDefaults()

	frameSize := frameSizeFor(cfg.SnapLen)
	if cfg.BlockSize%frameSize != 0 {
		return nil, fmt.Errorf("afpacket: block size %d must be divisible by frame size %d", cfg.BlockSize, frameSize)
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(cfg.Interface),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(cfg.BlockSize),
		afpacket.OptNumBlocks(cfg.NumBlocks),
		afpacket.OptPollTimeout(cfg.PollTimeout),
		afpacket.OptTPacketVersion(afpacket.TPacketVersion3),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create TPacket handle on %s: %w", cfg.Interface, err)
	}
	h := &Handle{cfg: cfg, handle: tp}

	if cfg.Fanout {
		if err := tp.SetFanout(afpacket.FanoutHash, cfg.FanoutID); err != nil {
			tp.Close()
			return nil, fmt.Errorf("failed to set fanout: %w", err)
		}
	}

	if cfg.BPFFilter != "" {
		if err := h.applyBPFFilter(); err != nil {
			tp.Close()
			return nil, err
		}
		slog.Debug("BPF filter applied", "interface", cfg.Interface, "filter", cfg.BPFFilter)
	}

	if err := tp.InitSocketStats(); err != nil {
		slog.Warn("failed to init socket stats", "interface", cfg.Interface, "error", err)
	}

	return h, nil
}

// ReadPacketData returns the next frame without copying it out of the ring.
// Poll timeouts and interrupted polls surface as capture.ErrTimeout.
func (h *Handle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := h.handle.ZeroCopyReadPacketData()
	if err != nil {
		if isTransient(err) {
			return nil, ci, capture.ErrTimeout
		}
		return nil, ci, err
	}
	return data, ci, nil
}

// KernelDrops returns the number of frames the kernel dropped because the
// ring was full.
func (h *Handle) KernelDrops() uint64 {
	_, v3, err := h.handle.SocketStats()
	if err != nil {
		return 0
	}
	return uint64(v3.Drops())
}

// Close releases the ring. It must not race with ReadPacketData.
func (h *Handle) Close() error {
	h.handle.Close()
	return nil
}

func isTransient(err error) bool {
	return errors.Is(err, afpacket.ErrTimeout) ||
		errors.Is(err, afpacket.ErrPoll) ||
		errors.Is(err, unix.EINTR)
}

// applyBPFFilter compiles and applies a BPF filter to the capture handle.
func (h *Handle) applyBPFFilter() error {
	rawInsns, err := CompileFilter(h.cfg.BPFFilter, h.cfg.SnapLen)
	if err != nil {
		return err
	}
	if err := h.handle.SetBPF(rawInsns); err != nil {
		return fmt.Errorf("failed to set BPF: %w", err)
	}
	return nil
}

// CompileFilter compiles a tcpdump expression for Ethernet frames.
func CompileFilter(expr string, snapLen int) ([]bpf.RawInstruction, error) {
	pcapInsns, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile BPF filter %q: %w", expr, err)
	}

	// pcap.BPFInstruction and bpf.RawInstruction share a layout: Code->Op, Jt, Jf, K.
	rawInsns := make([]bpf.RawInstruction, len(pcapInsns))
	for i, insn := range pcapInsns {
		rawInsns[i] = bpf.RawInstruction{
			Op: insn.Code,
			Jt: insn.Jt,
			Jf: insn.Jf,
			K:  insn.K,
		}
	}
	return rawInsns, nil
}
